// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PrayerName identifies one of the five daily prayers.
type PrayerName string

const (
	Fajr    PrayerName = "fajr"
	Dhuhr   PrayerName = "dhuhr"
	Asr     PrayerName = "asr"
	Maghrib PrayerName = "maghrib"
	Isha    PrayerName = "isha"
)

// AllPrayers returns the five prayers in daily order.
func AllPrayers() []PrayerName {
	return []PrayerName{Fajr, Dhuhr, Asr, Maghrib, Isha}
}

// ParsePrayerName converts a string to a PrayerName (case-insensitive).
func ParsePrayerName(s string) (PrayerName, error) {
	name := PrayerName(strings.ToLower(strings.TrimSpace(s)))
	switch name {
	case Fajr, Dhuhr, Asr, Maghrib, Isha:
		return name, nil
	}
	return "", fmt.Errorf("unknown prayer name %q", s)
}

// PrayerEvent is a single prayer occurrence supplied by the prayer-time source.
type PrayerEvent struct {
	Name PrayerName
	Time time.Time
}

// dayFormat is the calendar-day component of a WindowKey.
const dayFormat = "2006-01-02"

// WindowKey identifies a blocking window by prayer and calendar day.
// Rebuilding a schedule from the same prayer events yields the same keys,
// which is what makes schedule construction idempotent.
type WindowKey struct {
	Prayer PrayerName `json:"prayer"`
	Day    string     `json:"day"` // local calendar day of the window start, "2006-01-02"
}

func (k WindowKey) String() string {
	return string(k.Prayer) + "@" + k.Day
}

// BlockingWindow is a scheduled interval during which applications are blocked.
// The window starts Buffer before the prayer time and lasts Duration.
type BlockingWindow struct {
	Prayer   PrayerName
	Start    time.Time
	Duration time.Duration
	Buffer   time.Duration
}

// End returns the instant the window naturally ends.
func (w BlockingWindow) End() time.Time {
	return w.Start.Add(w.Duration)
}

// Key returns the (prayer, calendar day) identity of the window.
func (w BlockingWindow) Key() WindowKey {
	return WindowKey{Prayer: w.Prayer, Day: w.Start.Format(dayFormat)}
}

// Contains reports whether t falls within [Start, End).
func (w BlockingWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// Expired reports whether t is at or past the window end.
func (w BlockingWindow) Expired(t time.Time) bool {
	return !t.Before(w.End())
}

// Equal reports whether two windows are identical.
func (w BlockingWindow) Equal(o BlockingWindow) bool {
	return w.Prayer == o.Prayer && w.Start.Equal(o.Start) &&
		w.Duration == o.Duration && w.Buffer == o.Buffer
}

// ScheduleSet is an ordered, non-overlapping sequence of blocking windows.
type ScheduleSet []BlockingWindow

// Sort orders the set by window start (stable, then by prayer name).
func (s ScheduleSet) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].Start.Equal(s[j].Start) {
			return s[i].Start.Before(s[j].Start)
		}
		return s[i].Prayer < s[j].Prayer
	})
}

// CurrentAt returns the window containing now, if any.
func (s ScheduleSet) CurrentAt(now time.Time) (BlockingWindow, bool) {
	for _, w := range s {
		if w.Contains(now) {
			return w, true
		}
		if w.Start.After(now) {
			break // sorted, nothing later can contain now
		}
	}
	return BlockingWindow{}, false
}

// NextAfter returns the first window starting after now, if any.
func (s ScheduleSet) NextAfter(now time.Time) (BlockingWindow, bool) {
	for _, w := range s {
		if w.Start.After(now) {
			return w, true
		}
	}
	return BlockingWindow{}, false
}

// Unexpired returns the subset of windows that have not yet ended at now,
// preserving order.
func (s ScheduleSet) Unexpired(now time.Time) ScheduleSet {
	out := make(ScheduleSet, 0, len(s))
	for _, w := range s {
		if !w.Expired(now) {
			out = append(out, w)
		}
	}
	return out
}

// Validate checks the set invariants: sorted by start, no duplicate keys,
// and no overlap between consecutive windows.
func (s ScheduleSet) Validate() error {
	seen := make(map[WindowKey]struct{}, len(s))
	for i, w := range s {
		key := w.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate window for %s", key)
		}
		seen[key] = struct{}{}

		if i == 0 {
			continue
		}
		prev := s[i-1]
		if w.Start.Before(prev.Start) {
			return fmt.Errorf("windows out of order at index %d", i)
		}
		if w.Start.Before(prev.End()) {
			return fmt.Errorf("window %s overlaps previous window %s", key, prev.Key())
		}
	}
	return nil
}

// Equal reports whether two sets contain identical windows in the same order.
func (s ScheduleSet) Equal(o ScheduleSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Phase is the lifecycle phase of the blocking state machine.
// A window that reaches its natural end resolves directly to Idle or
// Scheduled within the same reconcile; expiry is never a resting phase.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseScheduled     Phase = "scheduled"
	PhaseBlocking      Phase = "blocking"
	PhaseEarlyUnlocked Phase = "early_unlocked"
)

// BlockingState is the process-wide live blocking state. It is owned
// exclusively by the state machine; everything else reads snapshots.
type BlockingState struct {
	Phase                 Phase
	IsScheduled           bool
	IsCurrentlyBlocking   bool
	AppsActuallyBlocked   bool // only ever set from the enforcement authority
	IsEarlyUnlockedActive bool
	ActiveWindow          *BlockingWindow
	LastReconciledAt      time.Time
}

// EarlyUnlockRecord marks that a window was ended early. At most one record
// may ever exist per window key.
type EarlyUnlockRecord struct {
	Window WindowKey
	UsedAt time.Time
}

// StrictModeConfig gates early unlocks behind a spoken phrase.
type StrictModeConfig struct {
	Enabled        bool
	RequiredPhrase string
}

// ContentFilterCommitment is the delayed-disable commitment device.
// Enabling is instantaneous; disabling matures 48 hours after the request
// and may be cancelled any time before that.
type ContentFilterCommitment struct {
	Enabled            bool
	DisableRequestedAt *time.Time
	DisableEffectiveAt *time.Time
}

// DisablePending reports whether a disable request is awaiting maturation.
func (c ContentFilterCommitment) DisablePending() bool {
	return c.DisableRequestedAt != nil && c.DisableEffectiveAt != nil
}

// Matured reports whether a pending disable request has reached its
// effective time.
func (c ContentFilterCommitment) Matured(now time.Time) bool {
	return c.DisablePending() && !now.Before(*c.DisableEffectiveAt)
}

// TimeUntilDisable returns the remaining maturation time, or false when no
// disable request is pending.
func (c ContentFilterCommitment) TimeUntilDisable(now time.Time) (time.Duration, bool) {
	if !c.DisablePending() {
		return 0, false
	}
	remaining := c.DisableEffectiveAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Notification is a (time, prayer) pair handed to the external notification
// scheduler verbatim.
type Notification struct {
	FireAt time.Time
	Prayer PrayerName
}

// ProcessRole identifies one of the two cooperating device processes.
type ProcessRole string

const (
	RoleApp     ProcessRole = "app"     // foreground application process
	RoleMonitor ProcessRole = "monitor" // background monitoring process
)

// Process describes a running process registered for mutual discovery.
type Process struct {
	PID        int
	Role       ProcessRole
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry stores the state of both processes for mutual discovery.
// Persisted as a single self-describing snapshot, last writer wins.
type RegistryEntry struct {
	Version       int    `json:"version"`
	AppPID        int    `json:"app_pid"`
	MonitorPID    int    `json:"monitor_pid"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
