// Package notify delivers alert emails.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"pricealerts/internal/models"
)

// Notifier sends one message to one recipient. Implementations make a
// single attempt and return the failure to the caller.
type Notifier interface {
	Send(ctx context.Context, subject, recipient, body string) error
}

// SMTPConfig describes the relay. From defaults to Username.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPNotifier sends mail through a relay with mandatory STARTTLS and PLAIN auth.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

// NewSMTPNotifier fills in the From and Timeout defaults.
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPNotifier{cfg: cfg, logger: logger}
}

func (n *SMTPNotifier) message(subject, recipient, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("set sender %q: %w", n.cfg.From, err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", recipient, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, subject, recipient, body string) error {
	msg, err := n.message(subject, recipient, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(n.cfg.Host,
		mail.WithPort(n.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(n.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.Warn("email delivery failed",
			zap.String("recipient", recipient),
			zap.String("host", n.cfg.Host),
			zap.Error(err),
		)
		return fmt.Errorf("send email to %s: %w", recipient, err)
	}

	n.logger.Info("email sent", zap.String("recipient", recipient), zap.String("subject", subject))
	return nil
}

// LogNotifier only logs messages. Used when no SMTP relay is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, subject, recipient, body string) error {
	n.logger.Info("email suppressed, smtp disabled", zap.String("subject", subject))
	// Recipient and body stay out of info logs.
	n.logger.Debug("suppressed email content",
		zap.String("recipient", recipient),
		zap.String("body", body),
	)
	return nil
}

// AlertMessage renders the subject and body sent when an alert fires.
func AlertMessage(symbol string, alert models.Alert, price decimal.Decimal, at time.Time) (string, string) {
	verb := "risen to"
	if alert.Direction == models.DirectionDecrease {
		verb = "fallen to"
	}
	subject := fmt.Sprintf("%s price alert: %s", symbol, price.String())
	body := fmt.Sprintf(
		"The price of %s has %s %s, crossing your threshold of %s.\n\nObserved at %s.\nThis alert has been removed; create a new one to keep tracking %s.\n",
		symbol,
		verb,
		price.String(),
		alert.ThresholdPrice.String(),
		at.UTC().Format(time.RFC3339),
		symbol,
	)
	return subject, body
}
