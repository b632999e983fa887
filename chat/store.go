package chat

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ChannelName = "chat:global"
	HistoryKey  = "chat:global:history"

	historyLen = 50
)

// Subscription is a live feed of broadcast payloads for one subscriber.
// Messages is closed when the subscription is closed or the backing
// connection drops.
type Subscription interface {
	Messages() <-chan string
	Close() error
}

// Broker fans a published payload out to every current subscriber. Delivery
// is best-effort and not persisted; late subscribers only see earlier
// messages through History.
type Broker interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// History is the bounded most-recent-50 message log, newest first.
type History interface {
	Append(ctx context.Context, key, payload string) error
	Read(ctx context.Context, key string) ([]string, error)
}

// LimitStore is the slice of redis the rate limiter needs. Incr must be
// atomic across connections so a rapid double-send from one sender cannot
// lose an update. TTL returns 0 when the key has no expiry or is missing.
type LimitStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Exists(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Store backs Broker, History and LimitStore with one shared redis client.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Publish(ctx context.Context, channel, payload string) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	msgs      chan string
	done      chan struct{}
	closeOnce sync.Once
}

func (r *redisSubscription) Messages() <-chan string { return r.msgs }

func (r *redisSubscription) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return r.pubsub.Close()
}

func (s *Store) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, channel)
	// Confirm the subscription before reporting success, otherwise a dead
	// redis looks like a silent feed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		msgs:   make(chan string, 16),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(sub.msgs)
		for msg := range pubsub.Channel() {
			select {
			case sub.msgs <- msg.Payload:
			case <-sub.done:
				// Subscriber stopped reading; drop the rest.
				return
			}
		}
	}()
	return sub, nil
}

func (s *Store) Append(ctx context.Context, key, payload string) error {
	if err := s.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return err
	}
	return s.rdb.LTrim(ctx, key, 0, historyLen-1).Err()
}

func (s *Store) Read(ctx context.Context, key string) ([]string, error) {
	return s.rdb.LRange(ctx, key, 0, historyLen-1).Result()
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis reports missing key / no expiry as negative durations.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, 1, ttl).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
