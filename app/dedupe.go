package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrEventInFlight means another worker holds the event. The webhook answers
// 409 so Stripe delivers it again later.
var ErrEventInFlight = errors.New("webhook event is in flight")

const (
	dedupeLockTTL = 2 * time.Minute
	dedupeDoneTTL = 7 * 24 * time.Hour
)

// Deduper runs fn at most once per event id among successful attempts.
// A failed fn leaves no trace, so the next delivery runs it again.
type Deduper interface {
	Do(ctx context.Context, eventID string, fn func(context.Context) error) (duplicate bool, err error)
}

func checkDedupeArgs(eventID string, fn func(context.Context) error) error {
	if strings.TrimSpace(eventID) == "" {
		return errors.New("event id is required")
	}
	if fn == nil {
		return errors.New("handler is required")
	}
	return nil
}

// MemoryDeduper keeps event ids in process memory. Suitable for a single
// instance and for tests.
type MemoryDeduper struct {
	mu       sync.Mutex
	done     map[string]time.Time
	inFlight map[string]struct{}
	now      func() time.Time

	lastPrune time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{
		done:     make(map[string]time.Time),
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

func (d *MemoryDeduper) Do(ctx context.Context, eventID string, fn func(context.Context) error) (bool, error) {
	if err := checkDedupeArgs(eventID, fn); err != nil {
		return false, err
	}

	d.mu.Lock()
	now := d.now()
	if now.Sub(d.lastPrune) >= time.Hour {
		for id, at := range d.done {
			if now.Sub(at) >= dedupeDoneTTL {
				delete(d.done, id)
			}
		}
		d.lastPrune = now
	}
	if at, ok := d.done[eventID]; ok && now.Sub(at) < dedupeDoneTTL {
		d.mu.Unlock()
		return true, nil
	}
	if _, ok := d.inFlight[eventID]; ok {
		d.mu.Unlock()
		return false, ErrEventInFlight
	}
	d.inFlight[eventID] = struct{}{}
	d.mu.Unlock()

	err := fn(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, eventID)
	if err != nil {
		return false, err
	}
	d.done[eventID] = d.now()
	return false, nil
}

// RedisDeduper shares dedupe state between instances. A SETNX lock marks the
// event in flight and a done key with a TTL records completion.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

func NewRedisDeduper(ctx context.Context, addr, password string) (*RedisDeduper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	log.Info().Str("addr", addr).Msg("webhook dedupe backed by redis")
	return &RedisDeduper{client: client, prefix: "northstar:stripe:event:"}, nil
}

func (d *RedisDeduper) Do(ctx context.Context, eventID string, fn func(context.Context) error) (bool, error) {
	if err := checkDedupeArgs(eventID, fn); err != nil {
		return false, err
	}
	doneKey := d.prefix + eventID + ":done"
	lockKey := d.prefix + eventID + ":lock"

	n, err := d.client.Exists(ctx, doneKey).Result()
	if err != nil {
		return false, fmt.Errorf("check dedupe key: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	acquired, err := d.client.SetNX(ctx, lockKey, time.Now().UTC().UnixMilli(), dedupeLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire dedupe lock: %w", err)
	}
	if !acquired {
		if n, err := d.client.Exists(ctx, doneKey).Result(); err == nil && n > 0 {
			return true, nil
		}
		return false, ErrEventInFlight
	}
	defer func() {
		if err := d.client.Del(context.WithoutCancel(ctx), lockKey).Err(); err != nil {
			log.Warn().Err(err).Str("key", lockKey).Msg("failed to release dedupe lock")
		}
	}()

	if err := fn(ctx); err != nil {
		return false, err
	}
	if err := d.client.Set(ctx, doneKey, time.Now().UTC().UnixMilli(), dedupeDoneTTL).Err(); err != nil {
		// Already applied; without the done key a redelivery replays the merge.
		log.Warn().Err(err).Str("key", doneKey).Msg("failed to record processed event")
	}
	return false, nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
