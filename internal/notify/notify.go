// Package notify публикует события программы лояльности для внешних получателей.
// Публикация выполняется после фиксации транзакции; ошибка публикации только логируется
// и никогда не откатывает изменения баланса.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Типы событий.
const (
	EventOrderCompleted    = "order_completed"
	EventTierUpgraded      = "tier_upgraded"
	EventReferralBonusPaid = "referral_bonus_paid"
	EventDailyBonusClaimed = "daily_bonus_claimed"
	EventRefundRequired    = "refund_required"
)

// Event — событие для внешней доставки уведомлений.
type Event struct {
	Type    string         `json:"type"`
	UserID  int64          `json:"user_id"`
	OrderID string         `json:"order_id,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}

// Publisher публикует события.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Dispatch публикует события по очереди. Ошибки логируются с уровнем warn.
func Dispatch(ctx context.Context, p Publisher, logger *zap.Logger, events ...Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			logger.Warn("publish event failed",
				zap.String("type", e.Type),
				zap.Int64("userID", e.UserID),
				zap.String("orderID", e.OrderID),
				zap.Error(err),
			)
		}
	}
}

// LogPublisher пишет события в лог. Используется, когда брокер не настроен.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт издателя, пишущего события в лог.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

// Publish пишет событие в лог с уровнем info.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("event",
		zap.String("type", e.Type),
		zap.Int64("userID", e.UserID),
		zap.String("orderID", e.OrderID),
		zap.Any("data", e.Data),
	)
	return nil
}

// RedisPublisher публикует события в канал Redis Pub/Sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher подключается к Redis и проверяет соединение.
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisPublisher{client: client, channel: channel}, nil
}

// Publish сериализует событие в JSON и публикует его в канал.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
