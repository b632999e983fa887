package chat

import (
	"context"
	"fmt"
	"time"
)

const (
	burstWindow  = 10 * time.Second
	burstLimit   = 5
	strikeWindow = 120 * time.Second

	challengeWindow = 120 * time.Second
	blockDuration   = 60 * time.Second
	blockStrikes    = 3
)

// Verdict is the outcome of one inbound message against the sender's
// rate-limit state.
type Verdict struct {
	Blocked    bool
	Escalated  bool // this message tipped the sender into the block
	RetryAfter int  // seconds, only meaningful when Blocked
	Challenge  bool // a challenge is pending for this sender
}

// Limiter applies the burst/strike/challenge/block escalation. All state
// lives in the store, keyed by sender, so concurrent connections for the
// same sender share it and it expires on its own.
type Limiter struct {
	store LimitStore
}

func NewLimiter(store LimitStore) *Limiter {
	return &Limiter{store: store}
}

func blockKey(sender string) string     { return "chat:block:" + sender }
func countKey(sender string) string     { return "chat:count:" + sender }
func strikesKey(sender string) string   { return "chat:strikes:" + sender }
func challengeKey(sender string) string { return "chat:challenge:" + sender }

// Check records one message attempt and returns the verdict. A non-nil
// error means the store is unavailable; callers fail open and skip
// throttling for that message.
func (l *Limiter) Check(ctx context.Context, sender string) (Verdict, error) {
	// Blocked senders are rejected before any counter moves.
	ttl, err := l.store.TTL(ctx, blockKey(sender))
	if err != nil {
		return Verdict{}, fmt.Errorf("block ttl: %w", err)
	}
	if ttl > 0 {
		return Verdict{Blocked: true, RetryAfter: int(ttl / time.Second)}, nil
	}

	count, err := l.store.Incr(ctx, countKey(sender))
	if err != nil {
		return Verdict{}, fmt.Errorf("incr count: %w", err)
	}
	if count == 1 {
		if err := l.store.Expire(ctx, countKey(sender), burstWindow); err != nil {
			return Verdict{}, fmt.Errorf("expire count: %w", err)
		}
	}

	pending, err := l.store.Exists(ctx, challengeKey(sender))
	if err != nil {
		return Verdict{}, fmt.Errorf("challenge exists: %w", err)
	}

	if count > burstLimit {
		strikes, err := l.store.Incr(ctx, strikesKey(sender))
		if err != nil {
			return Verdict{}, fmt.Errorf("incr strikes: %w", err)
		}
		if strikes == 1 {
			if err := l.store.Expire(ctx, strikesKey(sender), strikeWindow); err != nil {
				return Verdict{}, fmt.Errorf("expire strikes: %w", err)
			}
		}
		if strikes >= blockStrikes {
			if err := l.store.SetFlag(ctx, blockKey(sender), blockDuration); err != nil {
				return Verdict{}, fmt.Errorf("set block: %w", err)
			}
			return Verdict{Blocked: true, Escalated: true, RetryAfter: int(blockDuration / time.Second)}, nil
		}
		if err := l.store.SetFlag(ctx, challengeKey(sender), challengeWindow); err != nil {
			return Verdict{}, fmt.Errorf("set challenge: %w", err)
		}
		pending = true
	}

	return Verdict{Challenge: pending}, nil
}

// ClearChallenge drops the pending challenge flag after a passing
// verification.
func (l *Limiter) ClearChallenge(ctx context.Context, sender string) error {
	return l.store.Del(ctx, challengeKey(sender))
}
