package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EmailOptions describe the SMTP relay and the addresses used.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends one plain-text mail per triggered alert.
type EmailNotifier struct {
	opts     EmailOptions
	sendMail sendMailFunc
	logger   zerolog.Logger
}

// NewEmailNotifier builds an SMTP notifier. Port defaults to 587.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.From == "" {
		opts.From = opts.Username
	}
	if opts.To == "" {
		opts.To = opts.From
	}
	return &EmailNotifier{
		opts:     opts,
		sendMail: smtp.SendMail,
		logger:   logger.With().Str("component", "alert_email").Logger(),
	}
}

// Notify renders and sends the alert mail. smtp.SendMail takes no context, so
// only an already cancelled context is honoured.
func (n *EmailNotifier) Notify(ctx context.Context, alert TriggeredAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.opts.Username != "" && n.opts.Password != "" {
		auth = smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	msg := buildMail(n.opts.From, n.opts.To, alert)
	if err := n.sendMail(addr, auth, n.opts.From, []string{n.opts.To}, msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	n.logger.Info().Str("alert_id", alert.ID).Str("symbol", alert.Symbol).Msg("alert sent (email)")
	return nil
}

func emailSubject(alert TriggeredAlert) string {
	return fmt.Sprintf("Stock Alert: %s price %s $%s",
		alert.Symbol, alert.Kind, decimal.NewFromFloat(alert.Threshold).String())
}

func emailBody(alert TriggeredAlert) string {
	var b strings.Builder
	b.WriteString("Stock Alert Triggered!\n\n")
	fmt.Fprintf(&b, "Symbol: %s\n", alert.Symbol)
	fmt.Fprintf(&b, "Alert Type: Price %s $%s\n", alert.Kind, decimal.NewFromFloat(alert.Threshold).String())
	fmt.Fprintf(&b, "Current Price: $%s\n", decimal.NewFromFloat(alert.CurrentPrice).String())
	fmt.Fprintf(&b, "Triggered At: %s\n", alert.TriggeredAt.Local().Format(time.RFC1123))
	b.WriteString("\nThis is an automated message from your Stock Alert System.")
	return b.String()
}

func buildMail(from, to string, alert TriggeredAlert) []byte {
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, to, emailSubject(alert), emailBody(alert)))
}

var _ Notifier = (*EmailNotifier)(nil)
