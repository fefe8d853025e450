// Package validation holds every input rule shared by the coin and alert
// create and update paths. Failures are reported as *Error values so callers
// can branch on Kind instead of parsing messages.
package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricealerts/internal/models"
)

type Kind string

const (
	KindRequired          Kind = "required"
	KindInvalidSymbol     Kind = "invalid_symbol"
	KindInvalidEmail      Kind = "invalid_email"
	KindNegativeThreshold Kind = "negative_threshold"
	KindInvalidID         Kind = "invalid_id"
	KindFutureTimestamp   Kind = "future_timestamp"
	KindInvalidRange      Kind = "invalid_range"
	KindUnknownCoin       Kind = "unknown_coin"
	KindInvalidTimestamp  Kind = "invalid_timestamp"
	KindInvalidBody       Kind = "invalid_body"
)

// MaxSymbolLength matches the width of the coins.name column.
const MaxSymbolLength = 50

// DefaultWindow is the price history window used when no bounds are given.
const DefaultWindow = 5 * time.Minute

// Error reports the field that failed and how it failed.
type Error struct {
	Field   string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsKind reports whether err is a validation error of the given kind.
func IsKind(err error, kind Kind) bool {
	var verr *Error
	return errors.As(err, &verr) && verr.Kind == kind
}

// Required reports a missing field.
func Required(field string) error {
	return &Error{Field: field, Kind: KindRequired, Message: "field required"}
}

var emailShape = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
		return emailShape.MatchString(fl.Field().String())
	})
	return v
}

// Symbol normalizes a coin symbol to its canonical uppercase form.
func Symbol(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		return "", &Error{Field: "name", Kind: KindRequired, Message: "coin name is required"}
	}
	if err := validate.Var(symbol, fmt.Sprintf("alphanum,max=%d", MaxSymbolLength)); err != nil {
		return "", &Error{Field: "name", Kind: KindInvalidSymbol, Message: fmt.Sprintf("coin name %q is not a valid symbol", raw)}
	}
	return symbol, nil
}

func Email(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if !strings.Contains(email, "@") {
		return "", &Error{Field: "email", Kind: KindInvalidEmail, Message: "email must contain @"}
	}
	if err := validate.Var(email, "required,emailshape"); err != nil {
		return "", &Error{Field: "email", Kind: KindInvalidEmail, Message: "provided email is not a valid email address"}
	}
	return email, nil
}

func Threshold(price decimal.Decimal) error {
	if price.IsNegative() {
		return &Error{Field: "threshold_price", Kind: KindNegativeThreshold, Message: fmt.Sprintf("threshold %s must not be negative", price)}
	}
	return nil
}

func ID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, &Error{Field: field, Kind: KindInvalidID, Message: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}

// Direction derives the alert direction from the coin's current price.
// A threshold strictly above the price waits for an increase; anything else
// waits for a decrease.
func Direction(threshold, current decimal.Decimal) models.Direction {
	if threshold.GreaterThan(current) {
		return models.DirectionIncrease
	}
	return models.DirectionDecrease
}

// TimeRange converts optional Unix-second bounds into a UTC window. Missing
// bounds default to [now-DefaultWindow, now].
func TimeRange(start, end *float64, now time.Time) (time.Time, time.Time, error) {
	nowTs := float64(now.UnixNano()) / float64(time.Second)
	for _, b := range []struct {
		field string
		value *float64
	}{{"start_timestamp", start}, {"end_timestamp", end}} {
		if b.value != nil && *b.value > nowTs {
			return time.Time{}, time.Time{}, &Error{
				Field:   b.field,
				Kind:    KindFutureTimestamp,
				Message: fmt.Sprintf("timestamp %v must not be in the future", *b.value),
			}
		}
	}
	if start != nil && end != nil && *end < *start {
		return time.Time{}, time.Time{}, &Error{Field: "end_timestamp", Kind: KindInvalidRange, Message: "end_timestamp must be after start_timestamp"}
	}

	to := now.UTC()
	if end != nil {
		to = fromUnix(*end)
	}
	from := now.Add(-DefaultWindow).UTC()
	if start != nil {
		from = fromUnix(*start)
	}
	return from, to, nil
}

// Timestamp parses an optional Unix-seconds query value. An empty raw value
// yields nil.
func Timestamp(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return nil, &Error{Field: field, Kind: KindInvalidTimestamp, Message: fmt.Sprintf("%q is not a unix timestamp", raw)}
	}
	return &ts, nil
}

func fromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
