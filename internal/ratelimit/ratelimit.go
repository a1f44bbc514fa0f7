package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/peermatch/internal/store"
)

// ActionMatches is the action name used to gate match searches.
const ActionMatches = "matches"

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

// RemainingSeconds rounds the remaining wait up to whole seconds.
func (d Decision) RemainingSeconds() int {
	if d.Allowed || d.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(d.Remaining.Seconds()))
}

// Limiter decides whether a person may use an action again. It never blocks;
// callers decide what to do with a negative decision.
type Limiter struct {
	ledger store.Ledger
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(ledger store.Ledger, logger *zap.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{ledger: ledger, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Check(ctx context.Context, personID int64, action string, window time.Duration) (Decision, error) {
	last, ok, err := l.ledger.LastUsed(ctx, personID, action)
	if err != nil {
		return Decision{}, fmt.Errorf("check %q limit: %w", action, err)
	}
	if !ok {
		return Decision{Allowed: true}, nil
	}

	elapsed := l.now().Sub(last)
	if elapsed < window {
		remaining := window - elapsed
		if remaining > window {
			// last use is in the future (clock skew): never report more than a full window
			remaining = window
		}
		l.logger.Debug("action is rate limited",
			zap.Int64("person_id", personID),
			zap.String("action", action),
			zap.Duration("remaining", remaining),
		)
		return Decision{Allowed: false, Remaining: remaining}, nil
	}

	return Decision{Allowed: true}, nil
}

func (l *Limiter) Record(ctx context.Context, personID int64, action string) error {
	if err := l.ledger.SetLastUsed(ctx, personID, action, l.now().UTC()); err != nil {
		return fmt.Errorf("record %q use: %w", action, err)
	}
	return nil
}

// Forget drops every ledger entry of the person.
func (l *Limiter) Forget(ctx context.Context, personID int64) error {
	return l.ledger.Forget(ctx, personID)
}
