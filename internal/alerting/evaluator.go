package alerting

import (
	"github.com/shopspring/decimal"

	"pricealerts/internal/models"
)

// Evaluate reports whether price satisfies the alert. Both directions fire
// on equality. An alert with an unknown direction never fires.
func Evaluate(alert models.Alert, price decimal.Decimal) bool {
	cmp := price.Cmp(alert.ThresholdPrice)
	switch alert.Direction {
	case models.DirectionIncrease:
		return cmp >= 0
	case models.DirectionDecrease:
		return cmp <= 0
	default:
		return false
	}
}
