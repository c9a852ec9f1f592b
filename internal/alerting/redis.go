package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions configure the Redis notifier.
type RedisOptions struct {
	ChannelPrefix string
	HistoryKey    string
	HistorySize   int64
}

// RedisNotifier publishes every triggered alert on "<prefix><SYMBOL>" and keeps
// the most recent ones in a capped list.
type RedisNotifier struct {
	rdb    redis.UniversalClient
	opts   RedisOptions
	logger zerolog.Logger
}

type redisAlertMessage struct {
	AlertID      string    `json:"alertId"`
	Symbol       string    `json:"symbol"`
	Kind         string    `json:"kind"`
	Threshold    float64   `json:"threshold"`
	CurrentPrice float64   `json:"currentPrice"`
	Origin       string    `json:"origin"`
	TriggeredAt  time.Time `json:"triggeredAt"`
}

// NewRedisNotifier wraps an existing client.
func NewRedisNotifier(rdb redis.UniversalClient, opts RedisOptions, logger zerolog.Logger) *RedisNotifier {
	if opts.ChannelPrefix == "" {
		opts.ChannelPrefix = "alerts."
	}
	return &RedisNotifier{
		rdb:    rdb,
		opts:   opts,
		logger: logger.With().Str("component", "alert_redis").Logger(),
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, alert TriggeredAlert) error {
	payload, err := json.Marshal(redisAlertMessage{
		AlertID:      alert.ID,
		Symbol:       alert.Symbol,
		Kind:         string(alert.Kind),
		Threshold:    alert.Threshold,
		CurrentPrice: alert.CurrentPrice,
		Origin:       string(alert.Origin),
		TriggeredAt:  alert.TriggeredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal redis alert: %w", err)
	}

	pipe := n.rdb.TxPipeline()
	pipe.Publish(ctx, n.opts.ChannelPrefix+alert.Symbol, payload)
	if n.opts.HistoryKey != "" && n.opts.HistorySize > 0 {
		pipe.LPush(ctx, n.opts.HistoryKey, payload)
		pipe.LTrim(ctx, n.opts.HistoryKey, 0, n.opts.HistorySize-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish alert: %w", err)
	}

	n.logger.Debug().Str("alert_id", alert.ID).Str("symbol", alert.Symbol).Msg("alert published (redis)")
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
