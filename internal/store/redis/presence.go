// Package redis implements the presence store on Redis so that online
// state survives process restarts and is visible to sibling processes.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/pulsechat/pulse-server/internal/store"
)

const (
	keyOnline   = "presence:online"   // set of online user ids
	keyLastSeen = "presence:lastseen" // hash userID -> unix millis
)

// PresenceStore implements store.PresenceStore backed by Redis.
type PresenceStore struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*PresenceStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &PresenceStore{client: client}, nil
}

// SetOnline adds the user to the online set.
func (p *PresenceStore) SetOnline(ctx context.Context, userID string) error {
	if err := p.client.SAdd(ctx, keyOnline, userID).Err(); err != nil {
		return fmt.Errorf("%w: sadd online: %v", store.ErrUnavailable, err)
	}
	return nil
}

// SetOffline removes the user from the online set and records last-seen.
func (p *PresenceStore) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	pipe := p.client.TxPipeline()
	pipe.SRem(ctx, keyOnline, userID)
	pipe.HSet(ctx, keyLastSeen, userID, strconv.FormatInt(lastSeen.UnixMilli(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: set offline: %v", store.ErrUnavailable, err)
	}
	return nil
}

// GetOnlineUsers returns up to limit online user ids.
func (p *PresenceStore) GetOnlineUsers(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	users, _, err := p.client.SScan(ctx, keyOnline, 0, "", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: sscan online: %v", store.ErrUnavailable, err)
	}
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// LastSeen returns the recorded last-seen time for a user, or zero time
// if the user was never seen going offline.
func (p *PresenceStore) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := p.client.HGet(ctx, keyLastSeen, userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: hget lastseen: %v", store.ErrUnavailable, err)
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse lastseen: %w", err)
	}
	return time.UnixMilli(millis), nil
}

// Close closes the Redis connection.
func (p *PresenceStore) Close() error {
	return p.client.Close()
}
