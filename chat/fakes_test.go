package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

// In-memory stand-ins for the redis-backed interfaces. The limit store
// carries its own clock so expiry can be driven without sleeping.

var errStoreDown = errors.New("store down")

type memLimitStore struct {
	mu      sync.Mutex
	now     time.Time
	values  map[string]int64
	expiry  map[string]time.Time
	failing bool
}

func newMemLimitStore() *memLimitStore {
	return &memLimitStore{
		now:    time.Unix(1700000000, 0),
		values: make(map[string]int64),
		expiry: make(map[string]time.Time),
	}
}

func (s *memLimitStore) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// purge drops the key when its expiry has passed. Callers hold the lock.
func (s *memLimitStore) purge(key string) {
	if deadline, ok := s.expiry[key]; ok && !deadline.After(s.now) {
		delete(s.values, key)
		delete(s.expiry, key)
	}
}

func (s *memLimitStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errStoreDown
	}
	s.purge(key)
	s.values[key]++
	return s.values[key], nil
}

func (s *memLimitStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	s.expiry[key] = s.now.Add(ttl)
	return nil
}

func (s *memLimitStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errStoreDown
	}
	s.purge(key)
	deadline, ok := s.expiry[key]
	if !ok {
		return 0, nil
	}
	return deadline.Sub(s.now), nil
}

func (s *memLimitStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, errStoreDown
	}
	s.purge(key)
	_, ok := s.values[key]
	return ok, nil
}

func (s *memLimitStore) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	s.values[key] = 1
	s.expiry[key] = s.now.Add(ttl)
	return nil
}

func (s *memLimitStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	delete(s.values, key)
	delete(s.expiry, key)
	return nil
}

type memSubscription struct {
	broker    *memBroker
	msgs      chan string
	closeOnce sync.Once
}

func (m *memSubscription) Messages() <-chan string { return m.msgs }

func (m *memSubscription) Close() error {
	m.broker.mu.Lock()
	defer m.broker.mu.Unlock()
	for i, sub := range m.broker.subs {
		if sub == m {
			m.broker.subs = append(m.broker.subs[:i], m.broker.subs[i+1:]...)
			break
		}
	}
	m.closeOnce.Do(func() { close(m.msgs) })
	return nil
}

type memBroker struct {
	mu   sync.Mutex
	subs []*memSubscription
}

func newMemBroker() *memBroker { return &memBroker{} }

func (b *memBroker) Publish(ctx context.Context, channel, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.msgs <- payload
	}
	return nil
}

func (b *memBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &memSubscription{broker: b, msgs: make(chan string, 64)}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

type memHistory struct {
	mu    sync.Mutex
	items map[string][]string
}

func newMemHistory() *memHistory {
	return &memHistory{items: make(map[string][]string)}
}

func (h *memHistory) Append(ctx context.Context, key, payload string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := append([]string{payload}, h.items[key]...)
	if len(entries) > historyLen {
		entries = entries[:historyLen]
	}
	h.items[key] = entries
	return nil
}

func (h *memHistory) Read(ctx context.Context, key string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.items[key]...), nil
}
