// Package daemon implements the background monitor process.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
	"github.com/abduljabar5/khushood/internal/schedule"
	"github.com/abduljabar5/khushood/internal/usecase"
)

// ConfirmationSource reads the enforcement authority's latest blocking
// report. Implementation: the store-bridged authority.
type ConfirmationSource interface {
	ReadConfirmation() (blocked bool, observedAt time.Time, err error)
}

// ScheduleCache loads the last durably persisted schedule. Implementation:
// the persistence adapter over the shared store.
type ScheduleCache interface {
	LoadSchedule() (domain.ScheduleSet, int64, error)
}

// ChangeNotifier is implemented by prayer-time sources that can report
// regeneration, e.g. a timetable re-exported after a location change.
type ChangeNotifier interface {
	ModifiedSince(t time.Time) (bool, error)
}

// MonitorConfig holds monitor daemon configuration.
type MonitorConfig struct {
	ReconcileInterval  time.Duration // how often to reconcile blocking state
	CommitmentInterval time.Duration // how often to check commitment maturation
	RefreshInterval    time.Duration // how often to check the rolling registration
	HeartbeatInterval  time.Duration // how often to update the registry heartbeat
	ScheduleAhead      time.Duration // how far ahead to fetch prayer events
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ReconcileInterval:  1 * time.Second,
		CommitmentInterval: 1 * time.Minute,
		RefreshInterval:    1 * time.Minute,
		HeartbeatInterval:  30 * time.Second,
		ScheduleAhead:      120 * 24 * time.Hour,
	}
}

// Monitor is the background daemon. It keeps the blocking state machine
// reconciled against wall-clock time and the authority's confirmation,
// rolls the window registration forward as windows expire, matures
// commitment requests, and refetches prayer events when the schedule
// horizon runs low.
type Monitor struct {
	config       MonitorConfig
	machine      *usecase.Machine
	rolling      *schedule.RollingStore
	guard        *usecase.Guard
	registry     domain.ProcessRegistry
	source       domain.PrayerTimeSource
	notifier     domain.NotificationScheduler
	confirmation ConfirmationSource
	cache        ScheduleCache
	build        schedule.BuildConfig
	logger       *zap.Logger

	lastSync time.Time
}

// NewMonitor creates a monitor daemon.
func NewMonitor(
	config MonitorConfig,
	machine *usecase.Machine,
	rolling *schedule.RollingStore,
	guard *usecase.Guard,
	registry domain.ProcessRegistry,
	source domain.PrayerTimeSource,
	notifier domain.NotificationScheduler,
	confirmation ConfirmationSource,
	cache ScheduleCache,
	build schedule.BuildConfig,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		config:       config,
		machine:      machine,
		rolling:      rolling,
		guard:        guard,
		registry:     registry,
		source:       source,
		notifier:     notifier,
		confirmation: confirmation,
		cache:        cache,
		build:        build,
		logger:       logger,
	}
}

// Run starts the monitor loop. This blocks until context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	proc := domain.Process{
		PID:       processPID(),
		Role:      domain.RoleMonitor,
		StartedAt: time.Now(),
	}
	if err := m.registry.Register(proc); err != nil {
		m.logger.Error("failed to register monitor", zap.Error(err))
		return err
	}

	m.logger.Info("monitor started", zap.Int("pid", proc.PID))

	// Full sync on startup: fetch events, rebuild, register, reconcile.
	if err := m.syncSchedule(ctx, time.Now()); err != nil {
		m.logger.Warn("initial schedule sync failed", zap.Error(err))
	}
	m.reconcile(time.Now())

	reconcileTicker := time.NewTicker(m.config.ReconcileInterval)
	commitmentTicker := time.NewTicker(m.config.CommitmentInterval)
	refreshTicker := time.NewTicker(m.config.RefreshInterval)
	heartbeatTicker := time.NewTicker(m.config.HeartbeatInterval)

	defer func() {
		reconcileTicker.Stop()
		commitmentTicker.Stop()
		refreshTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()

		case now := <-reconcileTicker.C:
			m.reconcile(now)

		case now := <-commitmentTicker.C:
			if m.guard.CheckContentFilter(now) {
				m.logger.Info("content filter disable matured")
			}

		case now := <-refreshTicker.C:
			m.refresh(ctx, now)

		case <-heartbeatTicker.C:
			if err := m.registry.UpdateHeartbeat(domain.RoleMonitor); err != nil {
				m.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// reconcile reads the authority's latest report and feeds it to the state
// machine. The machine treats a report with no current window as stale.
func (m *Monitor) reconcile(now time.Time) {
	blocked, observedAt, err := m.confirmation.ReadConfirmation()
	if err != nil {
		m.logger.Warn("failed to read authority confirmation", zap.Error(err))
		m.machine.Reconcile(now)
		return
	}
	m.machine.SetAuthorityConfirmed(blocked, observedAt, now)
}

// refresh rolls the registration forward and refetches prayer events when
// the schedule horizon runs low or the source has been regenerated since
// the last sync (e.g. a timetable re-exported after a location change).
func (m *Monitor) refresh(ctx context.Context, now time.Time) {
	if m.rolling.HorizonLow(now) || m.sourceChanged() {
		if err := m.syncSchedule(ctx, now); err != nil {
			m.logger.Warn("schedule sync failed", zap.Error(err))
		}
		return
	}

	if m.rolling.NeedsRefresh(now) {
		if err := m.rolling.Refresh(ctx, now); err != nil {
			m.logger.Warn("rolling refresh failed", zap.Error(err))
		}
	}
}

// sourceChanged reports whether the prayer-time source was regenerated
// after the last successful sync. Sources that cannot report change never
// force a resync.
func (m *Monitor) sourceChanged() bool {
	cn, ok := m.source.(ChangeNotifier)
	if !ok || m.lastSync.IsZero() {
		return false
	}
	changed, err := cn.ModifiedSince(m.lastSync)
	if err != nil {
		m.logger.Warn("failed to check source for changes", zap.Error(err))
		return false
	}
	if changed {
		m.logger.Info("prayer time source changed, resyncing schedule")
	}
	return changed
}

// syncSchedule fetches fresh prayer events, rebuilds the schedule, and
// installs it. Rebuilding from the same events yields the same windows, so
// calling this repeatedly is harmless. When the source is unavailable the
// previously installed schedule stays in effect; with nothing installed
// yet, the last persisted schedule is restored instead, so a restart with
// the source down still enforces the cached windows.
func (m *Monitor) syncSchedule(ctx context.Context, now time.Time) error {
	events, err := m.source.Events(ctx, now, now.Add(m.config.ScheduleAhead))
	if err != nil {
		if len(m.rolling.Full().Unexpired(now)) > 0 {
			m.logger.Warn("prayer events unavailable, keeping current schedule", zap.Error(err))
			return nil
		}
		if restoreErr := m.restoreCached(ctx, now); restoreErr == nil {
			m.logger.Warn("prayer events unavailable, restored persisted schedule", zap.Error(err))
			return nil
		}
		return err
	}

	set := schedule.Build(events, m.build)
	if err := m.rolling.Replace(ctx, set, now); err != nil {
		return err
	}
	m.lastSync = now

	// Notifications are fire-and-forget: the platform owns delivery.
	notes := schedule.Notifications(set)
	if err := m.notifier.Schedule(ctx, notes); err != nil {
		m.logger.Warn("failed to schedule notifications", zap.Error(err))
	}

	m.logger.Info("schedule synced",
		zap.Int("events", len(events)),
		zap.Int("windows", len(set)))
	return nil
}

// restoreCached installs the last persisted schedule into the rolling
// store. Fails when no cache is wired, nothing was ever persisted, or
// every persisted window has already expired.
func (m *Monitor) restoreCached(ctx context.Context, now time.Time) error {
	if m.cache == nil {
		return domain.ErrScheduleUnavailable
	}
	set, version, err := m.cache.LoadSchedule()
	if err != nil {
		return err
	}
	live := set.Unexpired(now)
	if len(live) == 0 {
		return domain.ErrScheduleUnavailable
	}
	if err := m.rolling.Replace(ctx, live, now); err != nil {
		return err
	}
	m.logger.Info("restored persisted schedule",
		zap.Int64("version", version),
		zap.Int("windows", len(live)))
	return nil
}
