// Package events streams committed prices and fired alerts to Kafka.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"pricealerts/internal/models"
)

const flushTimeout = 5 * time.Second

// Producer publishes price samples and fired alerts to Kafka.
type Producer struct {
	producer   *kafka.Producer
	priceTopic string
	alertTopic string
	logger     *zap.Logger
	done       chan struct{}
}

func NewProducer(brokers, clientID, priceTopic, alertTopic string, logger *zap.Logger) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         clientID,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	producer := &Producer{
		producer:   p,
		priceTopic: priceTopic,
		alertTopic: alertTopic,
		logger:     logger,
		done:       make(chan struct{}),
	}
	go producer.reportDeliveries()
	return producer, nil
}

// reportDeliveries drains delivery reports until the producer is closed.
func (p *Producer) reportDeliveries() {
	defer close(p.done)
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.logger.Warn("Kafka delivery failed",
					zap.String("topic", topicOf(ev)),
					zap.Error(ev.TopicPartition.Error),
				)
			}
		case kafka.Error:
			p.logger.Error("Kafka producer error", zap.Error(ev))
		}
	}
}

func (p *Producer) PublishPrice(_ context.Context, update models.PriceUpdate) error {
	msg, err := newMessage(p.priceTopic, update.Symbol, update)
	if err != nil {
		return err
	}
	return p.producer.Produce(msg, nil)
}

func (p *Producer) PublishAlert(_ context.Context, event models.AlertEvent) error {
	msg, err := newMessage(p.alertTopic, event.AlertID.String(), event)
	if err != nil {
		return err
	}
	return p.producer.Produce(msg, nil)
}

// Close flushes outstanding messages and releases the producer.
func (p *Producer) Close() {
	if remaining := p.producer.Flush(int(flushTimeout.Milliseconds())); remaining > 0 {
		p.logger.Warn("Kafka messages left unflushed", zap.Int("remaining", remaining))
	}
	p.producer.Close()
	<-p.done
}

func newMessage(topic, key string, v any) (*kafka.Message, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, nil
}

func topicOf(m *kafka.Message) string {
	if m.TopicPartition.Topic == nil {
		return ""
	}
	return *m.TopicPartition.Topic
}
