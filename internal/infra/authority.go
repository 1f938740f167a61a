package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abduljabar5/khushood/internal/domain"
)

// Durable store keys owned by the authority bridge. The OS screen-time
// extension polls the registered windows and writes confirmation back.
const (
	KeyRegisteredWindows  = "registered_windows"
	KeyAuthorityConfirmed = "authority_confirmed"
)

// DefaultRegistrationCap is the platform's hard limit on concurrently
// monitored intervals.
const DefaultRegistrationCap = 20

type registeredWindowsRecord struct {
	Version int64          `json:"version"`
	Windows []windowRecord `json:"windows"`
}

type confirmationRecord struct {
	Version            int64 `json:"version"`
	Blocked            bool  `json:"blocked"`
	ObservedAtEpochSec int64 `json:"observed_at_epoch_seconds"`
}

// StoreAuthority bridges the enforcement authority across the process
// boundary: window registrations are written to the shared store for the
// OS extension, and the extension's "apps actually blocked" report is read
// back from the store. The core never enforces anything itself.
type StoreAuthority struct {
	mu      sync.Mutex
	store   domain.SharedStore
	cap     int
	version int64
}

// NewStoreAuthority creates a store-bridged enforcement authority.
func NewStoreAuthority(store domain.SharedStore, cap int) *StoreAuthority {
	if cap <= 0 {
		cap = DefaultRegistrationCap
	}
	return &StoreAuthority{store: store, cap: cap}
}

// Cap returns the registration cap.
func (a *StoreAuthority) Cap() int {
	return a.cap
}

// Register replaces the registered window set in the shared store.
func (a *StoreAuthority) Register(ctx context.Context, windows []domain.BlockingWindow) error {
	if len(windows) > a.cap {
		return fmt.Errorf("registration exceeds cap: %d > %d", len(windows), a.cap)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var prev registeredWindowsRecord
	if data, err := a.store.Get(KeyRegisteredWindows); err == nil {
		_ = json.Unmarshal(data, &prev)
	}
	version := a.version
	if prev.Version > version {
		version = prev.Version
	}
	version++

	rec := registeredWindowsRecord{
		Version: version,
		Windows: make([]windowRecord, 0, len(windows)),
	}
	for _, w := range windows {
		rec.Windows = append(rec.Windows, toWindowRecord(w))
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := a.store.Set(KeyRegisteredWindows, data); err != nil {
		return fmt.Errorf("failed to write registration: %w", err)
	}

	a.version = version
	return nil
}

// Registered returns the window set currently visible to the extension.
func (a *StoreAuthority) Registered() (domain.ScheduleSet, error) {
	data, err := a.store.Get(KeyRegisteredWindows)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rec registeredWindowsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt registration record: %w", err)
	}

	set := make(domain.ScheduleSet, 0, len(rec.Windows))
	for _, wr := range rec.Windows {
		w, err := fromWindowRecord(wr)
		if err != nil {
			return nil, err
		}
		set = append(set, w)
	}
	return set, nil
}

// ReadConfirmation returns the extension's latest blocking report. A
// missing record means the extension has not reported yet.
func (a *StoreAuthority) ReadConfirmation() (blocked bool, observedAt time.Time, err error) {
	data, err := a.store.Get(KeyAuthorityConfirmed)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, err
	}

	var rec confirmationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, time.Time{}, fmt.Errorf("corrupt confirmation record: %w", err)
	}
	return rec.Blocked, time.Unix(rec.ObservedAtEpochSec, 0).UTC(), nil
}

// WriteConfirmation records a blocking report. In production only the OS
// extension writes this; exposed for the simulated authority and tests.
func (a *StoreAuthority) WriteConfirmation(blocked bool, observedAt time.Time) error {
	var prev confirmationRecord
	if data, err := a.store.Get(KeyAuthorityConfirmed); err == nil {
		_ = json.Unmarshal(data, &prev)
	}

	rec := confirmationRecord{
		Version:            prev.Version + 1,
		Blocked:            blocked,
		ObservedAtEpochSec: observedAt.Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.store.Set(KeyAuthorityConfirmed, data)
}

// Ensure StoreAuthority implements domain.EnforcementAuthority.
var _ domain.EnforcementAuthority = (*StoreAuthority)(nil)
