package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"pricealerts/internal/models"
)

const pollTimeout = 500 * time.Millisecond

// Consumer reads the price and alert topics back, for tooling and
// downstream processing.
type Consumer struct {
	consumer   *kafka.Consumer
	priceTopic string
	alertTopic string
	logger     *zap.Logger
}

func NewConsumer(brokers, groupID, priceTopic, alertTopic string, logger *zap.Logger) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{priceTopic, alertTopic}, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe %s, %s: %w", priceTopic, alertTopic, err)
	}
	return &Consumer{consumer: c, priceTopic: priceTopic, alertTopic: alertTopic, logger: logger}, nil
}

// Event is one decoded message. Exactly one of Price and Alert is set.
type Event struct {
	Topic string
	Price *models.PriceUpdate
	Alert *models.AlertEvent
}

// Run decodes messages and hands them to handle until ctx is cancelled.
// Undecodable messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(Event)) error {
	for ctx.Err() == nil {
		msg, err := c.consumer.ReadMessage(pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				continue
			}
			c.logger.Warn("Kafka consumer error", zap.Error(err))
			continue
		}

		event, err := c.decode(topicOf(msg), msg.Value)
		if err != nil {
			c.logger.Warn("Skipping undecodable event",
				zap.String("topic", topicOf(msg)),
				zap.Error(err),
			)
			continue
		}
		handle(event)
	}
	return nil
}

func (c *Consumer) decode(topic string, value []byte) (Event, error) {
	event := Event{Topic: topic}
	switch topic {
	case c.priceTopic:
		event.Price = &models.PriceUpdate{}
		return event, json.Unmarshal(value, event.Price)
	case c.alertTopic:
		event.Alert = &models.AlertEvent{}
		return event, json.Unmarshal(value, event.Alert)
	default:
		return event, fmt.Errorf("unexpected topic %q", topic)
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
