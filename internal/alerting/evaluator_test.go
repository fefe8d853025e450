package alerting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"pricealerts/internal/models"
)

func TestEvaluate(t *testing.T) {
	threshold := decimal.NewFromInt(100)
	eps := decimal.RequireFromString("0.00000001")

	tests := []struct {
		name      string
		direction models.Direction
		price     decimal.Decimal
		want      bool
	}{
		{"inc below", models.DirectionIncrease, threshold.Sub(eps), false},
		{"inc equal", models.DirectionIncrease, threshold, true},
		{"inc above", models.DirectionIncrease, threshold.Add(eps), true},
		{"dec below", models.DirectionDecrease, threshold.Sub(eps), true},
		{"dec equal", models.DirectionDecrease, threshold, true},
		{"dec above", models.DirectionDecrease, threshold.Add(eps), false},
		{"unknown direction", models.Direction("up"), threshold, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := models.Alert{ThresholdPrice: threshold, Direction: tt.direction}
			assert.Equal(t, tt.want, Evaluate(alert, tt.price))
			// Same inputs, same answer.
			assert.Equal(t, tt.want, Evaluate(alert, tt.price))
		})
	}
}

func TestEvaluateEqualPrecision(t *testing.T) {
	alert := models.Alert{ThresholdPrice: decimal.RequireFromString("90.000"), Direction: models.DirectionDecrease}
	assert.True(t, Evaluate(alert, decimal.NewFromInt(90)))
}
