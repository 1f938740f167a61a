package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
)

// RollingConfig holds rolling-registration tuning.
type RollingConfig struct {
	// HorizonLowWater is how close the end of the full schedule may get
	// before the monitor should fetch more prayer events.
	HorizonLowWater time.Duration
}

// DefaultRollingConfig returns default rolling-store configuration.
func DefaultRollingConfig() RollingConfig {
	return RollingConfig{
		HorizonLowWater: 14 * 24 * time.Hour,
	}
}

// RollingStore owns the full multi-month schedule and the bounded subset
// actively registered with the enforcement authority. The authority caps
// how many intervals it monitors concurrently, so only the soonest
// unexpired windows are registered at any time.
type RollingStore struct {
	mu        sync.Mutex
	cfg       RollingConfig
	authority domain.EnforcementAuthority
	persister domain.Persister
	logger    *zap.Logger

	full       domain.ScheduleSet
	registered domain.ScheduleSet

	// generation guards against a stale registration completing after a
	// newer one started and overwriting it.
	generation uint64
}

// NewRollingStore creates a rolling window store. persister may be nil
// (persistence disabled, used in tests).
func NewRollingStore(
	cfg RollingConfig,
	authority domain.EnforcementAuthority,
	persister domain.Persister,
	logger *zap.Logger,
) *RollingStore {
	return &RollingStore{
		cfg:       cfg,
		authority: authority,
		persister: persister,
		logger:    logger,
	}
}

// Replace installs a freshly built schedule, persists it, and refreshes the
// registered subset. Called when settings, prayer events, or location change.
func (r *RollingStore) Replace(ctx context.Context, full domain.ScheduleSet, now time.Time) error {
	if err := full.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	r.mu.Lock()
	r.full = full

	if r.persister != nil {
		if err := r.persister.SaveSchedule(full); err != nil {
			r.logger.Warn("failed to persist schedule", zap.Error(err))
		}
	}

	want, gen, changed := r.nextRegistrationLocked(now)
	r.mu.Unlock()

	if !changed {
		return nil
	}
	return r.register(ctx, want, gen)
}

// Refresh recomputes the registered subset from the current schedule and
// re-registers only if it differs from what is already registered.
func (r *RollingStore) Refresh(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	want, gen, changed := r.nextRegistrationLocked(now)
	r.mu.Unlock()

	if !changed {
		return nil
	}
	return r.register(ctx, want, gen)
}

// nextRegistrationLocked computes the next desired registration. When it
// differs from the current one, the generation counter is advanced and the
// new generation returned.
func (r *RollingStore) nextRegistrationLocked(now time.Time) (domain.ScheduleSet, uint64, bool) {
	unexpired := r.full.Unexpired(now)
	limit := r.authority.Cap()
	if len(unexpired) > limit {
		unexpired = unexpired[:limit]
	}

	if unexpired.Equal(r.registered) {
		return nil, 0, false
	}

	r.generation++
	return unexpired, r.generation, true
}

// register performs the authority call outside the lock and commits the
// result only if no newer registration superseded it in the meantime.
// On failure the previous registration is kept and retried on the next
// trigger, so the device is never left with zero registered windows when a
// valid registration existed.
func (r *RollingStore) register(ctx context.Context, want domain.ScheduleSet, gen uint64) error {
	err := r.authority.Register(ctx, want)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.logger.Warn("window registration failed, keeping previous registration",
			zap.Int("windows", len(want)),
			zap.Error(err))
		return fmt.Errorf("failed to register windows: %w", err)
	}

	if r.generation != gen {
		// A newer registration started while this one was in flight.
		r.logger.Debug("registration superseded", zap.Uint64("generation", gen))
		return nil
	}

	r.registered = want
	r.logger.Info("registered blocking windows",
		zap.Int("count", len(want)),
		zap.Uint64("generation", gen))
	return nil
}

// NeedsRefresh reports whether the registered subset has run out: either
// nothing is registered while windows remain, or the last registered window
// has ended.
func (r *RollingStore) NeedsRefresh(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.registered) == 0 {
		return len(r.full.Unexpired(now)) > 0
	}
	return r.registered[len(r.registered)-1].Expired(now)
}

// HorizonLow reports whether the full schedule is close to running out and
// new prayer events should be fetched.
func (r *RollingStore) HorizonLow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.full) == 0 {
		return true
	}
	last := r.full[len(r.full)-1]
	return last.End().Sub(now) < r.cfg.HorizonLowWater
}

// Full returns a snapshot of the full schedule.
func (r *RollingStore) Full() domain.ScheduleSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(domain.ScheduleSet, len(r.full))
	copy(out, r.full)
	return out
}

// Registered returns a snapshot of the currently registered subset.
func (r *RollingStore) Registered() domain.ScheduleSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(domain.ScheduleSet, len(r.registered))
	copy(out, r.registered)
	return out
}

// CurrentAt returns the window containing now, if any.
func (r *RollingStore) CurrentAt(now time.Time) (domain.BlockingWindow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full.CurrentAt(now)
}

// NextAfter returns the first window starting after now, if any.
func (r *RollingStore) NextAfter(now time.Time) (domain.BlockingWindow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full.NextAfter(now)
}
