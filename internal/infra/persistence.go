package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abduljabar5/khushood/internal/domain"
)

// Durable store keys shared across the process boundary. The background
// monitor and the foreground app read the same flat, versioned records.
const (
	KeySchedule      = "schedule"
	KeyBlockingState = "blocking_state"
	KeyEarlyUnlocks  = "early_unlocks"
	KeyStrictMode    = "strict_mode"
	KeyContentFilter = "content_filter"
	KeyNotifications = "notifications"
)

// windowRecord is the flat wire form of a blocking window.
type windowRecord struct {
	Name              string `json:"name"`
	StartEpochSeconds int64  `json:"start_epoch_seconds"`
	DurationSeconds   int64  `json:"duration_seconds"`
	BufferSeconds     int64  `json:"buffer_seconds"`
}

func toWindowRecord(w domain.BlockingWindow) windowRecord {
	return windowRecord{
		Name:              string(w.Prayer),
		StartEpochSeconds: w.Start.Unix(),
		DurationSeconds:   int64(w.Duration / time.Second),
		BufferSeconds:     int64(w.Buffer / time.Second),
	}
}

func fromWindowRecord(r windowRecord) (domain.BlockingWindow, error) {
	prayer, err := domain.ParsePrayerName(r.Name)
	if err != nil {
		return domain.BlockingWindow{}, err
	}
	return domain.BlockingWindow{
		Prayer:   prayer,
		Start:    time.Unix(r.StartEpochSeconds, 0).UTC(),
		Duration: time.Duration(r.DurationSeconds) * time.Second,
		Buffer:   time.Duration(r.BufferSeconds) * time.Second,
	}, nil
}

type scheduleRecord struct {
	Version int64          `json:"version"`
	Windows []windowRecord `json:"windows"`
}

type stateRecord struct {
	Version               int64         `json:"version"`
	Phase                 string        `json:"phase"`
	IsScheduled           bool          `json:"is_scheduled"`
	IsCurrentlyBlocking   bool          `json:"is_currently_blocking"`
	AppsActuallyBlocked   bool          `json:"apps_actually_blocked"`
	IsEarlyUnlockedActive bool          `json:"is_early_unlocked_active"`
	ActiveWindow          *windowRecord `json:"active_window,omitempty"`
	LastReconciledAt      int64         `json:"last_reconciled_at"`
}

type earlyUnlockRecord struct {
	Prayer          string `json:"prayer"`
	Day             string `json:"day"`
	UsedAtEpochSecs int64  `json:"used_at_epoch_seconds"`
}

type earlyUnlocksRecord struct {
	Version int64               `json:"version"`
	Records []earlyUnlockRecord `json:"records"`
}

type strictModeRecord struct {
	Version        int64  `json:"version"`
	Enabled        bool   `json:"enabled"`
	RequiredPhrase string `json:"required_phrase"`
}

type contentFilterRecord struct {
	Version            int64  `json:"version"`
	Enabled            bool   `json:"enabled"`
	DisableRequestedAt *int64 `json:"disable_requested_at,omitempty"`
	DisableEffectiveAt *int64 `json:"disable_effective_at,omitempty"`
}

type notificationsRecord struct {
	Version       int64                `json:"version"`
	Notifications []notificationRecord `json:"notifications"`
}

type notificationRecord struct {
	FireAtEpochSeconds int64  `json:"fire_at_epoch_seconds"`
	Prayer             string `json:"prayer"`
}

// PersistenceAdapter implements domain.Persister over a SharedStore. Every
// record carries a monotonically increasing version stamp so the other
// process can detect "changed" without comparing payloads.
type PersistenceAdapter struct {
	mu       sync.Mutex
	store    domain.SharedStore
	versions map[string]int64
}

// NewPersistenceAdapter creates a persistence adapter over store.
func NewPersistenceAdapter(store domain.SharedStore) *PersistenceAdapter {
	return &PersistenceAdapter{
		store:    store,
		versions: make(map[string]int64),
	}
}

// nextVersion returns a version stamp strictly greater than any this
// adapter has issued or observed for the key.
func (p *PersistenceAdapter) nextVersion(key string, observed int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.versions[key]
	if observed > v {
		v = observed
	}
	v++
	p.versions[key] = v
	return v
}

func (p *PersistenceAdapter) loadJSON(key string, out any) error {
	data, err := p.store.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("corrupt record %q: %w", key, err)
	}
	return nil
}

func (p *PersistenceAdapter) saveJSON(key string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.store.Set(key, data)
}

// SaveSchedule persists the full schedule with a fresh version stamp.
func (p *PersistenceAdapter) SaveSchedule(set domain.ScheduleSet) error {
	var prev scheduleRecord
	_ = p.loadJSON(KeySchedule, &prev) // missing or corrupt just means version 0

	rec := scheduleRecord{
		Version: p.nextVersion(KeySchedule, prev.Version),
		Windows: make([]windowRecord, 0, len(set)),
	}
	for _, w := range set {
		rec.Windows = append(rec.Windows, toWindowRecord(w))
	}
	return p.saveJSON(KeySchedule, rec)
}

// LoadSchedule returns the persisted schedule and its version stamp.
func (p *PersistenceAdapter) LoadSchedule() (domain.ScheduleSet, int64, error) {
	var rec scheduleRecord
	if err := p.loadJSON(KeySchedule, &rec); err != nil {
		return nil, 0, err
	}

	set := make(domain.ScheduleSet, 0, len(rec.Windows))
	for _, wr := range rec.Windows {
		w, err := fromWindowRecord(wr)
		if err != nil {
			return nil, 0, err
		}
		set = append(set, w)
	}
	set.Sort()
	return set, rec.Version, nil
}

// SaveState persists the latest blocking-state snapshot.
func (p *PersistenceAdapter) SaveState(state domain.BlockingState) error {
	var prev stateRecord
	_ = p.loadJSON(KeyBlockingState, &prev)

	rec := stateRecord{
		Version:               p.nextVersion(KeyBlockingState, prev.Version),
		Phase:                 string(state.Phase),
		IsScheduled:           state.IsScheduled,
		IsCurrentlyBlocking:   state.IsCurrentlyBlocking,
		AppsActuallyBlocked:   state.AppsActuallyBlocked,
		IsEarlyUnlockedActive: state.IsEarlyUnlockedActive,
		LastReconciledAt:      state.LastReconciledAt.Unix(),
	}
	if state.ActiveWindow != nil {
		wr := toWindowRecord(*state.ActiveWindow)
		rec.ActiveWindow = &wr
	}
	return p.saveJSON(KeyBlockingState, rec)
}

// LoadState returns the persisted blocking-state snapshot (used by the
// foreground status surface; the machine itself always re-derives).
func (p *PersistenceAdapter) LoadState() (domain.BlockingState, error) {
	var rec stateRecord
	if err := p.loadJSON(KeyBlockingState, &rec); err != nil {
		return domain.BlockingState{}, err
	}

	state := domain.BlockingState{
		Phase:                 domain.Phase(rec.Phase),
		IsScheduled:           rec.IsScheduled,
		IsCurrentlyBlocking:   rec.IsCurrentlyBlocking,
		AppsActuallyBlocked:   rec.AppsActuallyBlocked,
		IsEarlyUnlockedActive: rec.IsEarlyUnlockedActive,
		LastReconciledAt:      time.Unix(rec.LastReconciledAt, 0).UTC(),
	}
	if rec.ActiveWindow != nil {
		w, err := fromWindowRecord(*rec.ActiveWindow)
		if err != nil {
			return domain.BlockingState{}, err
		}
		state.ActiveWindow = &w
	}
	return state, nil
}

// SaveEarlyUnlock adds a record to the early-unlock snapshot.
func (p *PersistenceAdapter) SaveEarlyUnlock(rec domain.EarlyUnlockRecord) error {
	existing, err := p.LoadEarlyUnlocks()
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		return err
	}

	for _, r := range existing {
		if r.Window == rec.Window {
			return nil // already recorded
		}
	}
	existing = append(existing, rec)
	return p.saveEarlyUnlocks(existing)
}

// ClearEarlyUnlock removes the record for a window key.
func (p *PersistenceAdapter) ClearEarlyUnlock(key domain.WindowKey) error {
	existing, err := p.LoadEarlyUnlocks()
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil
		}
		return err
	}

	kept := existing[:0]
	for _, r := range existing {
		if r.Window != key {
			kept = append(kept, r)
		}
	}
	return p.saveEarlyUnlocks(kept)
}

// LoadEarlyUnlocks returns all live early-unlock records.
func (p *PersistenceAdapter) LoadEarlyUnlocks() ([]domain.EarlyUnlockRecord, error) {
	var rec earlyUnlocksRecord
	if err := p.loadJSON(KeyEarlyUnlocks, &rec); err != nil {
		return nil, err
	}

	out := make([]domain.EarlyUnlockRecord, 0, len(rec.Records))
	for _, r := range rec.Records {
		prayer, err := domain.ParsePrayerName(r.Prayer)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.EarlyUnlockRecord{
			Window: domain.WindowKey{Prayer: prayer, Day: r.Day},
			UsedAt: time.Unix(r.UsedAtEpochSecs, 0).UTC(),
		})
	}
	return out, nil
}

func (p *PersistenceAdapter) saveEarlyUnlocks(records []domain.EarlyUnlockRecord) error {
	var prev earlyUnlocksRecord
	_ = p.loadJSON(KeyEarlyUnlocks, &prev)

	rec := earlyUnlocksRecord{
		Version: p.nextVersion(KeyEarlyUnlocks, prev.Version),
		Records: make([]earlyUnlockRecord, 0, len(records)),
	}
	for _, r := range records {
		rec.Records = append(rec.Records, earlyUnlockRecord{
			Prayer:          string(r.Window.Prayer),
			Day:             r.Window.Day,
			UsedAtEpochSecs: r.UsedAt.Unix(),
		})
	}
	return p.saveJSON(KeyEarlyUnlocks, rec)
}

// SaveStrictMode persists the strict-mode gate.
func (p *PersistenceAdapter) SaveStrictMode(cfg domain.StrictModeConfig) error {
	var prev strictModeRecord
	_ = p.loadJSON(KeyStrictMode, &prev)

	return p.saveJSON(KeyStrictMode, strictModeRecord{
		Version:        p.nextVersion(KeyStrictMode, prev.Version),
		Enabled:        cfg.Enabled,
		RequiredPhrase: cfg.RequiredPhrase,
	})
}

// LoadStrictMode returns the persisted strict-mode gate.
func (p *PersistenceAdapter) LoadStrictMode() (domain.StrictModeConfig, error) {
	var rec strictModeRecord
	if err := p.loadJSON(KeyStrictMode, &rec); err != nil {
		return domain.StrictModeConfig{}, err
	}
	return domain.StrictModeConfig{
		Enabled:        rec.Enabled,
		RequiredPhrase: rec.RequiredPhrase,
	}, nil
}

// SaveContentFilter persists the content-filter commitment.
func (p *PersistenceAdapter) SaveContentFilter(c domain.ContentFilterCommitment) error {
	var prev contentFilterRecord
	_ = p.loadJSON(KeyContentFilter, &prev)

	rec := contentFilterRecord{
		Version: p.nextVersion(KeyContentFilter, prev.Version),
		Enabled: c.Enabled,
	}
	if c.DisableRequestedAt != nil {
		v := c.DisableRequestedAt.Unix()
		rec.DisableRequestedAt = &v
	}
	if c.DisableEffectiveAt != nil {
		v := c.DisableEffectiveAt.Unix()
		rec.DisableEffectiveAt = &v
	}
	return p.saveJSON(KeyContentFilter, rec)
}

// LoadContentFilter returns the persisted content-filter commitment.
func (p *PersistenceAdapter) LoadContentFilter() (domain.ContentFilterCommitment, error) {
	var rec contentFilterRecord
	if err := p.loadJSON(KeyContentFilter, &rec); err != nil {
		return domain.ContentFilterCommitment{}, err
	}

	c := domain.ContentFilterCommitment{Enabled: rec.Enabled}
	if rec.DisableRequestedAt != nil {
		t := time.Unix(*rec.DisableRequestedAt, 0).UTC()
		c.DisableRequestedAt = &t
	}
	if rec.DisableEffectiveAt != nil {
		t := time.Unix(*rec.DisableEffectiveAt, 0).UTC()
		c.DisableEffectiveAt = &t
	}
	return c, nil
}

// SaveNotifications persists the (fireAt, prayer) pairs for the platform
// notification scheduler.
func (p *PersistenceAdapter) SaveNotifications(notes []domain.Notification) error {
	var prev notificationsRecord
	_ = p.loadJSON(KeyNotifications, &prev)

	rec := notificationsRecord{
		Version:       p.nextVersion(KeyNotifications, prev.Version),
		Notifications: make([]notificationRecord, 0, len(notes)),
	}
	for _, n := range notes {
		rec.Notifications = append(rec.Notifications, notificationRecord{
			FireAtEpochSeconds: n.FireAt.Unix(),
			Prayer:             string(n.Prayer),
		})
	}
	return p.saveJSON(KeyNotifications, rec)
}

// Ensure PersistenceAdapter implements domain.Persister.
var _ domain.Persister = (*PersistenceAdapter)(nil)
