package domain

import (
	"context"
	"time"
)

// PrayerTimeSource returns ordered prayer events for a date range.
// Implementations may fail or serve stale data; callers fall back to the
// last persisted schedule.
type PrayerTimeSource interface {
	// Events returns all prayer events with from <= time < to, ordered by time.
	Events(ctx context.Context, from, to time.Time) ([]PrayerEvent, error)
}

// EnforcementAuthority is the OS-level subsystem that actually restricts
// application usage. It enforces a hard cap on concurrently monitored
// intervals; whether apps are actually blocked right now flows back
// asynchronously and is fed to the state machine by the caller.
type EnforcementAuthority interface {
	// Cap returns the maximum number of concurrently registered windows.
	Cap() int

	// Register replaces the registered window set. The slice is the full
	// desired subset, not a delta.
	Register(ctx context.Context, windows []BlockingWindow) error
}

// SpeechConfirmer reports whether spoken confirmation can be captured.
// The core never performs speech recognition itself; transcripts arrive as
// plain strings and are only compared.
type SpeechConfirmer interface {
	// Available returns nil when speech capture is grantable, or
	// ErrSpeechPermissionDenied when the permission was permanently denied.
	Available() error
}

// SharedStore is the durable key-value persistence layer visible to both
// the foreground process and the background monitor. Writes are full
// self-describing snapshots; there are no transactions across keys.
type SharedStore interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Set writes the value for key atomically.
	Set(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// NotificationScheduler accepts (time, prayer) pairs; fire-and-forget.
type NotificationScheduler interface {
	Schedule(ctx context.Context, notes []Notification) error
}

// Persister serializes windows and commitment state to the durable shared
// store. It is the only component that crosses the process boundary.
type Persister interface {
	// SaveSchedule persists the full schedule with a monotonically
	// increasing version stamp.
	SaveSchedule(set ScheduleSet) error

	// LoadSchedule returns the persisted schedule and its version stamp.
	// Returns ErrKeyNotFound when no schedule was ever saved.
	LoadSchedule() (ScheduleSet, int64, error)

	// SaveState persists the latest blocking-state snapshot.
	SaveState(state BlockingState) error

	// SaveEarlyUnlock records an early unlock for a window.
	SaveEarlyUnlock(rec EarlyUnlockRecord) error

	// ClearEarlyUnlock removes the record for a window key.
	ClearEarlyUnlock(key WindowKey) error

	// LoadEarlyUnlocks returns all live early-unlock records.
	LoadEarlyUnlocks() ([]EarlyUnlockRecord, error)

	// SaveStrictMode / LoadStrictMode persist the strict-mode gate.
	SaveStrictMode(cfg StrictModeConfig) error
	LoadStrictMode() (StrictModeConfig, error)

	// SaveContentFilter / LoadContentFilter persist the content-filter
	// commitment.
	SaveContentFilter(c ContentFilterCommitment) error
	LoadContentFilter() (ContentFilterCommitment, error)
}

// ProcessManager handles OS process liveness checks.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// CurrentPID returns the current process PID.
	CurrentPID() int
}

// ProcessRegistry provides discovery between the foreground app process and
// the background monitor. Implementation: hidden JSON file with flock.
type ProcessRegistry interface {
	// Register saves the current process PID under its role.
	Register(p Process) error

	// UpdateHeartbeat updates the timestamp for liveness checks.
	UpdateHeartbeat(role ProcessRole) error

	// IsPartnerAlive checks if the other process is running via PID.
	IsPartnerAlive(role ProcessRole) (bool, error)

	// Snapshot returns the full registry state (for status commands).
	// Returns (nil, nil) when nothing was ever registered.
	Snapshot() (*RegistryEntry, error)

	// Clear removes the registry (for clean restart).
	Clear() error
}
