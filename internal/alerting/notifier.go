package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/fetcher"
)

// Notifier delivers a single triggered alert. One call is one delivery attempt.
type Notifier interface {
	Notify(ctx context.Context, alert TriggeredAlert) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered alert.
func (n *TelegramNotifier) Notify(ctx context.Context, alert TriggeredAlert) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("alert_id", alert.ID).Str("symbol", alert.Symbol).Msg("alert sent (telegram)")
	return nil
}

// LogNotifier only writes the alert to the log. Used when no channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, alert TriggeredAlert) error {
	n.logger.Warn().
		Str("alert_id", alert.ID).
		Str("symbol", alert.Symbol).
		Str("kind", string(alert.Kind)).
		Float64("threshold", alert.Threshold).
		Float64("current_price", alert.CurrentPrice).
		Str("origin", string(alert.Origin)).
		Msg("alert triggered")
	return nil
}

// MultiNotifier fans one alert out to every channel. The attempt fails if any
// channel fails; the other channels are still tried.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, alert TriggeredAlert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func renderMessage(alert TriggeredAlert) string {
	var b strings.Builder
	b.WriteString("[Stock Alert]\n")
	fmt.Fprintf(&b, "Symbol: %s\n", alert.Symbol)
	fmt.Fprintf(&b, "Condition: price %s $%s\n", alert.Kind, money(alert.Threshold))
	fmt.Fprintf(&b, "Current: $%s\n", money(alert.CurrentPrice))
	fmt.Fprintf(&b, "Triggered: %s UTC\n", alert.TriggeredAt.UTC().Format(time.RFC3339))
	if alert.Origin == fetcher.OriginSynthetic {
		fmt.Fprintf(&b, "Source: %s data\n", alert.Origin)
	}
	return b.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = MultiNotifier(nil)
)
