package handlers

import (
	"context"

	json "github.com/goccy/go-json"

	"pricealerts/internal/models"
)

// Streams bundles the live endpoints. It can be handed to the price cycle
// as a publisher on a single instance, or fed from Redis channels when
// several instances share the load.
type Streams struct {
	Alerts *AlertStream
	Prices *PriceStream
}

func (s *Streams) PublishPrice(_ context.Context, update models.PriceUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	s.Prices.Broadcast(payload)
	return nil
}

func (s *Streams) PublishAlert(_ context.Context, event models.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.Alerts.Broadcast(payload)
	return nil
}

func (s *Streams) Close() {
	s.Alerts.Close()
	s.Prices.Close()
}
