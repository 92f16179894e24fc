package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/reservation"
)

// AvailabilityCache は空席スナップショットのRedisキャッシュ
// スナップショットは返った時点で古くなりうる性質のため、短いTTLで保持する
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache は新しいAvailabilityCacheを作成する
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// GetSeatViews は上映の空席ビューをキャッシュから取得する
func (c *AvailabilityCache) GetSeatViews(ctx context.Context, showID int64) ([]reservation.SeatView, error) {
	val, err := c.client.Get(ctx, c.key(showID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, reservation.ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var views []reservation.SeatView
	if err := json.Unmarshal(val, &views); err != nil {
		return nil, fmt.Errorf("キャッシュ復号に失敗: %w", err)
	}
	return views, nil
}

// SetSeatViews は上映の空席ビューをキャッシュに保存する
func (c *AvailabilityCache) SetSeatViews(ctx context.Context, showID int64, views []reservation.SeatView) error {
	body, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("キャッシュ符号化に失敗: %w", err)
	}
	if err := c.client.Set(ctx, c.key(showID), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は上映のキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, showID int64) error {
	if err := c.client.Del(ctx, c.key(showID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) key(showID int64) string {
	return fmt.Sprintf("seats:availability:%d", showID)
}
