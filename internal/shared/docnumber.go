package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const sequenceTTL = 48 * time.Hour

// OrderNumberGenerator hands out human-readable order numbers such as
// ORD-20261019-000042 from a per-day redis counter. Without redis it falls
// back to a ULID suffix, which is unique but not sequential.
type OrderNumberGenerator struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewOrderNumberGenerator constructs the generator. client may be nil.
func NewOrderNumberGenerator(client *redis.Client, prefix string, logger *slog.Logger) *OrderNumberGenerator {
	if prefix == "" {
		prefix = "ORD"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderNumberGenerator{client: client, prefix: strings.ToUpper(prefix), logger: logger}
}

// Next returns the next order number for the day of at.
func (g *OrderNumberGenerator) Next(ctx context.Context, at time.Time) (string, error) {
	day := at.UTC().Format("20060102")
	if g.client == nil {
		return g.fallback(day), nil
	}
	key := fmt.Sprintf("orders:seq:%s:%s", strings.ToLower(g.prefix), day)
	seq, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		g.logger.Warn("order sequence unavailable, using ulid", slog.Any("error", err))
		return g.fallback(day), nil
	}
	if seq == 1 {
		if err := g.client.Expire(ctx, key, sequenceTTL).Err(); err != nil {
			g.logger.Warn("order sequence expiry", slog.String("key", key), slog.Any("error", err))
		}
	}
	return fmt.Sprintf("%s-%s-%06d", g.prefix, day, seq), nil
}

func (g *OrderNumberGenerator) fallback(day string) string {
	return fmt.Sprintf("%s-%s-%s", g.prefix, day, ulid.Make().String())
}
