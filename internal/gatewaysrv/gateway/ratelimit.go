package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/datagate-io/datagate/internal/common/apperrors"
)

// RateLimiter derives its decisions entirely from the audit log plus an
// in-flight reservation count. There is no separate counter to drift out
// of sync with the log: restarting the gateway restarts nothing, because
// the log is the state.
type RateLimiter struct {
	audit     AuditStore
	window    time.Duration
	maxCalls  int
	maxErrors int

	mu       sync.Mutex
	inFlight map[string]int
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
	ErrorStreak       bool
}

// Reservation holds one in-flight slot; callers must Release it after the
// call's audit record has been appended.
type Reservation struct {
	limiter *RateLimiter
	agentID string
	once    sync.Once
}

// Release frees the in-flight slot. Safe to call more than once.
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.limiter.mu.Lock()
		defer r.limiter.mu.Unlock()
		r.limiter.inFlight[r.agentID]--
		if r.limiter.inFlight[r.agentID] <= 0 {
			delete(r.limiter.inFlight, r.agentID)
		}
	})
}

// NewRateLimiter creates a limiter over the given audit store.
func NewRateLimiter(audit AuditStore, window time.Duration, maxCalls, maxErrors int) *RateLimiter {
	return &RateLimiter{
		audit:     audit,
		window:    window,
		maxCalls:  maxCalls,
		maxErrors: maxErrors,
		inFlight:  make(map[string]int),
	}
}

// Reserve checks the agent's window and, when allowed, reserves an
// in-flight slot so concurrent calls cannot jointly slip past the limit
// while their audit records are still pending. Blocked calls are recorded
// by the caller with a blocked outcome, which the limiter does not count,
// so being blocked never extends the block.
func (l *RateLimiter) Reserve(ctx context.Context, agentID string) (*Reservation, Decision, apperrors.Error) {
	since := time.Now().Add(-l.window)
	recent, err := l.audit.RecentByAgent(ctx, agentID, since)
	if err != nil {
		return nil, Decision{}, err
	}

	calls, errors := 0, 0
	for _, r := range recent {
		if r.Kind != KindRead || r.Outcome == OutcomeBlocked {
			continue
		}
		calls++
		if r.Outcome == OutcomeError {
			errors++
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if calls+l.inFlight[agentID] >= l.maxCalls {
		return nil, Decision{
			Allowed:           false,
			RetryAfterSeconds: int(l.window.Seconds()),
			ErrorStreak:       errors >= l.maxErrors,
		}, nil
	}

	l.inFlight[agentID]++
	return &Reservation{limiter: l, agentID: agentID},
		Decision{Allowed: true, ErrorStreak: errors >= l.maxErrors}, nil
}
