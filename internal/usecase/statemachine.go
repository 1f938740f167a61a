// Package usecase contains application business logic.
package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
)

// WindowSource provides the current and upcoming blocking windows.
// Implementation: the rolling window store.
type WindowSource interface {
	// CurrentAt returns the window containing now, if any.
	CurrentAt(now time.Time) (domain.BlockingWindow, bool)

	// NextAfter returns the first window starting after now, if any.
	NextAfter(now time.Time) (domain.BlockingWindow, bool)
}

// MachineConfig holds state-machine tuning.
type MachineConfig struct {
	// ImminentHorizon is how far ahead an upcoming window counts as
	// Scheduled rather than Idle.
	ImminentHorizon time.Duration
}

// DefaultMachineConfig returns default state-machine configuration.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		ImminentHorizon: 6 * time.Hour,
	}
}

// Machine is the single-writer owner of the live blocking state. All
// transitions happen through Reconcile, which derives the state from
// wall-clock time and the latest authority confirmation. Reconcile is
// idempotent: the same inputs always produce the same state.
//
// The machine never claims Blocking on wall-clock alone. The authority may
// lag or fail to enforce, so Blocking additionally requires a confirmation
// received since the window started.
type Machine struct {
	mu        sync.Mutex
	cfg       MachineConfig
	windows   WindowSource
	persister domain.Persister
	logger    *zap.Logger

	state       domain.BlockingState
	confirmed   bool
	confirmedAt time.Time
	unlocks     map[domain.WindowKey]domain.EarlyUnlockRecord
}

// NewMachine creates a state machine. persister may be nil (persistence
// disabled, used in tests). Previously persisted early-unlock records are
// restored so a process restart does not reset the at-most-once guarantee.
func NewMachine(
	cfg MachineConfig,
	windows WindowSource,
	persister domain.Persister,
	logger *zap.Logger,
) *Machine {
	m := &Machine{
		cfg:       cfg,
		windows:   windows,
		persister: persister,
		logger:    logger,
		state:     domain.BlockingState{Phase: domain.PhaseIdle},
		unlocks:   make(map[domain.WindowKey]domain.EarlyUnlockRecord),
	}

	if persister != nil {
		records, err := persister.LoadEarlyUnlocks()
		if err != nil {
			logger.Warn("failed to load early unlock records", zap.Error(err))
		}
		for _, rec := range records {
			m.unlocks[rec.Window] = rec
		}
	}

	return m
}

// Reconcile recomputes the blocking state from wall-clock time and the last
// authority confirmation, and returns the resulting snapshot.
func (m *Machine) Reconcile(now time.Time) domain.BlockingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconcileLocked(now)
}

// ForceCheck is an out-of-band reconcile, used when the application becomes
// active again after being suspended to correct drift immediately.
func (m *Machine) ForceCheck(now time.Time) domain.BlockingState {
	return m.Reconcile(now)
}

// SetAuthorityConfirmed records the enforcement authority's asynchronous
// report of whether applications are actually blocked, then reconciles.
// observedAt is when the authority produced the report, not when it was
// read: the report may be re-read many times, and one produced before the
// current window started must never promote that window to Blocking.
// A confirmation arriving while no window is current is likewise stale and
// ignored: window absence is authoritative, and the machine fails toward
// not claiming an invalid block.
func (m *Machine) SetAuthorityConfirmed(confirmed bool, observedAt, now time.Time) domain.BlockingState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if confirmed {
		if _, ok := m.windows.CurrentAt(now); !ok {
			m.logger.Debug("ignoring stale authority confirmation: no current window")
			m.confirmed = false
		} else {
			m.confirmed = true
			m.confirmedAt = observedAt
		}
	} else {
		m.confirmed = false
	}

	return m.reconcileLocked(now)
}

// State returns a read-only snapshot of the current blocking state.
func (m *Machine) State() domain.BlockingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// MarkEarlyUnlocked records an early unlock for a window. At most one
// record may exist per window key; a second call returns ErrEarlyUnlockUsed
// without resetting anything.
func (m *Machine) MarkEarlyUnlocked(key domain.WindowKey, now time.Time) (domain.EarlyUnlockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, used := m.unlocks[key]; used {
		return domain.EarlyUnlockRecord{}, domain.ErrEarlyUnlockUsed
	}

	rec := domain.EarlyUnlockRecord{Window: key, UsedAt: now}
	m.unlocks[key] = rec

	if m.persister != nil {
		if err := m.persister.SaveEarlyUnlock(rec); err != nil {
			m.logger.Warn("failed to persist early unlock record", zap.Error(err))
		}
	}

	m.logger.Info("window unlocked early",
		zap.String("window", key.String()),
		zap.Time("used_at", now))

	m.reconcileLocked(now)
	return rec, nil
}

// reconcileLocked performs one reconciliation pass. Caller holds mu.
func (m *Machine) reconcileLocked(now time.Time) domain.BlockingState {
	m.pruneUnlocksLocked(now)

	state := domain.BlockingState{
		Phase:            domain.PhaseIdle,
		LastReconciledAt: now,
	}

	if cur, ok := m.windows.CurrentAt(now); ok {
		state.IsScheduled = true
		state.ActiveWindow = &cur

		switch {
		case m.unlockedLocked(cur.Key()):
			// Terminal for the remainder of this window.
			state.Phase = domain.PhaseEarlyUnlocked
			state.IsEarlyUnlockedActive = true
		case m.confirmed && !m.confirmedAt.Before(cur.Start):
			state.Phase = domain.PhaseBlocking
			state.IsCurrentlyBlocking = true
			state.AppsActuallyBlocked = true
		default:
			// In the window by wall-clock, but the authority has not
			// confirmed enforcement since the window started.
			state.Phase = domain.PhaseScheduled
		}
	} else {
		// No current window: any confirmation on record is stale.
		m.confirmed = false

		if next, ok := m.windows.NextAfter(now); ok && next.Start.Sub(now) <= m.cfg.ImminentHorizon {
			state.Phase = domain.PhaseScheduled
			state.IsScheduled = true
			state.ActiveWindow = &next
		}
	}

	changed := !statesEquivalent(m.state, state)
	m.state = state

	if changed {
		m.logger.Info("blocking state changed",
			zap.String("phase", string(state.Phase)),
			zap.Bool("blocking", state.IsCurrentlyBlocking),
			zap.Bool("early_unlocked", state.IsEarlyUnlockedActive))

		if m.persister != nil {
			if err := m.persister.SaveState(state); err != nil {
				m.logger.Warn("failed to persist blocking state", zap.Error(err))
			}
		}
	}

	return state
}

// pruneUnlocksLocked discards early-unlock records whose calendar day has
// passed. A window key can never recur after its day, so the at-most-once
// guarantee is unaffected.
func (m *Machine) pruneUnlocksLocked(now time.Time) {
	today := now.Format("2006-01-02")
	for key := range m.unlocks {
		if key.Day >= today {
			continue
		}
		delete(m.unlocks, key)
		if m.persister != nil {
			if err := m.persister.ClearEarlyUnlock(key); err != nil {
				m.logger.Warn("failed to clear early unlock record",
					zap.String("window", key.String()),
					zap.Error(err))
			}
		}
	}
}

func (m *Machine) unlockedLocked(key domain.WindowKey) bool {
	_, ok := m.unlocks[key]
	return ok
}

// statesEquivalent compares snapshots ignoring the reconcile timestamp, so
// a quiet tick does not count as a state change.
func statesEquivalent(a, b domain.BlockingState) bool {
	if a.Phase != b.Phase ||
		a.IsScheduled != b.IsScheduled ||
		a.IsCurrentlyBlocking != b.IsCurrentlyBlocking ||
		a.AppsActuallyBlocked != b.AppsActuallyBlocked ||
		a.IsEarlyUnlockedActive != b.IsEarlyUnlockedActive {
		return false
	}
	switch {
	case a.ActiveWindow == nil && b.ActiveWindow == nil:
		return true
	case a.ActiveWindow == nil || b.ActiveWindow == nil:
		return false
	}
	return a.ActiveWindow.Equal(*b.ActiveWindow)
}
