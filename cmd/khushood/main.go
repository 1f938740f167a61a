// Package main is the CLI entry point for khushood.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abduljabar5/khushood/internal/daemon"
	"github.com/abduljabar5/khushood/internal/domain"
	"github.com/abduljabar5/khushood/internal/infra"
	"github.com/abduljabar5/khushood/internal/schedule"
	"github.com/abduljabar5/khushood/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "khushood",
	Short: "Prayer-time focus - blocks distracting apps around prayer times",
	Long: `khushood schedules blocking windows around the five daily prayers and
keeps distracting applications blocked while each window is active.
A background monitor keeps the schedule rolling and the blocking state
honest against the platform's enforcement report.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start protection (launches the background monitor)",
	Long: `Starts the background monitor. The monitor builds the blocking schedule
from the prayer timetable, registers the soonest windows with the
enforcement authority, and reconciles the blocking state every second.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check protection status",
	Long:  `Shows the monitor's liveness, the current blocking state, and the commitment settings.`,
	RunE:  runStatus,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "List upcoming blocking windows",
	RunE:  runSchedule,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "End the current blocking window early",
	Long: `Ends the current blocking window before its natural end. Only available
once the configured offset into the window has passed, and at most once
per window. With strict mode on, the commitment phrase must be spoken;
pass the transcript with --phrase.`,
	RunE: runUnlock,
}

var strictCmd = &cobra.Command{
	Use:   "strict on|off",
	Short: "Toggle strict mode (spoken phrase required for early unlock)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrict,
}

var filterCmd = &cobra.Command{
	Use:   "filter enable|request-disable|cancel-disable|status",
	Short: "Manage the content filter commitment",
	Long: `The content filter enables instantly but disables only 48 hours after a
disable request. The request can be cancelled any time before it matures.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilter,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when spawning the monitor
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	dataDir      string
	unlockPhrase string
	jsonOutput   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Data directory")
	unlockCmd.Flags().StringVar(&unlockPhrase, "phrase", "", "Spoken-phrase transcript (required in strict mode)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(strictCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".khushood"
	}
	return filepath.Join(home, ".khushood")
}

// components wires the full dependency graph over the data directory.
// Schedule, state and notifications live in the plain file store; the
// commitment and early-unlock records live in the encrypted store.
type components struct {
	store     domain.SharedStore
	persister *infra.PersistenceAdapter
	secret    *infra.PersistenceAdapter
	encrypted *infra.EncryptedStore
	authority *infra.StoreAuthority
	rolling   *schedule.RollingStore
	machine   *usecase.Machine
	guard     *usecase.Guard
	unlocker  *usecase.UnlockController
	registry  domain.ProcessRegistry
	source    domain.PrayerTimeSource
	notifier  domain.NotificationScheduler
}

func buildComponents(logger *zap.Logger) (*components, error) {
	store, err := infra.NewFileStore(filepath.Join(dataDir, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open shared store: %w", err)
	}
	persister := infra.NewPersistenceAdapter(store)

	key, err := infra.NewFileKeyProvider(dataDir).EnsureKey()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare encryption key: %w", err)
	}
	encrypted, err := infra.NewEncryptedStore(dataDir, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted store: %w", err)
	}
	secret := infra.NewPersistenceAdapter(encrypted)

	authority := infra.NewStoreAuthority(store, infra.DefaultRegistrationCap)
	rolling := schedule.NewRollingStore(schedule.DefaultRollingConfig(), authority, persister, logger)
	machine := usecase.NewMachine(usecase.DefaultMachineConfig(), rolling, secret, logger)
	guard := usecase.NewGuard(infra.NewStoreSpeech(store), secret, logger)
	unlocker := usecase.NewUnlockController(usecase.DefaultUnlockConfig(), machine, guard, logger)

	pm := infra.NewProcessManager()

	return &components{
		store:     store,
		persister: persister,
		secret:    secret,
		encrypted: encrypted,
		authority: authority,
		rolling:   rolling,
		machine:   machine,
		guard:     guard,
		unlocker:  unlocker,
		registry:  infra.NewFileRegistry(dataDir, pm),
		source:    infra.NewTimetableSource(filepath.Join(dataDir, "timetable.json")),
		notifier:  infra.NewStoreNotifier(persister, logger),
	}, nil
}

func (c *components) close() {
	_ = c.encrypted.Close()
	_ = c.store.Close()
}

func runStart(cmd *cobra.Command, args []string) error {
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(dataDir, pm)

	// Check if the monitor is already running
	if entry, _ := registry.Snapshot(); entry != nil && pm.IsRunning(entry.MonitorPID) {
		fmt.Println("khushood is already running")
		return nil
	}

	if err := daemon.StartMonitor(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	// Register the foreground app and give the monitor a moment to come up
	if err := registry.Register(domain.Process{
		PID:        pm.CurrentPID(),
		Role:       domain.RoleApp,
		StartedAt:  time.Now(),
		AppVersion: Version,
	}); err != nil {
		fmt.Printf("Warning: could not register app process: %v\n", err)
	}
	time.Sleep(500 * time.Millisecond)

	fmt.Println("khushood started")
	fmt.Println("The monitor is running in the background.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.close()

	pm := infra.NewProcessManager()

	fmt.Println("\n=== khushood Status ===")

	entry, err := c.registry.Snapshot()
	if err != nil || entry == nil || !pm.IsRunning(entry.MonitorPID) {
		fmt.Println("Monitor: NOT RUNNING")
		fmt.Println("\nRun 'khushood start' to enable protection.")
	} else {
		fmt.Printf("Monitor: running (pid %d)\n", entry.MonitorPID)
		if entry.LastHeartbeat > 0 {
			lastBeat := time.Unix(entry.LastHeartbeat, 0)
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
		}
	}

	state, err := c.persister.LoadState()
	if err == nil {
		fmt.Printf("\nPhase: %s\n", state.Phase)
		if state.ActiveWindow != nil {
			w := state.ActiveWindow
			fmt.Printf("Window: %s %s - %s\n", w.Prayer,
				w.Start.Local().Format("15:04"), w.End().Local().Format("15:04"))
		}
		if state.IsCurrentlyBlocking {
			fmt.Println("Apps: BLOCKED")
		}
	}

	strict := c.guard.StrictMode()
	fmt.Printf("\nStrict mode: %v\n", strict.Enabled)

	filter := c.guard.ContentFilter()
	fmt.Printf("Content filter: %v\n", filter.Enabled)
	if remaining, pending := filter.TimeUntilDisable(time.Now()); pending {
		fmt.Printf("Filter disable matures in: %s\n", remaining.Round(time.Minute))
	}

	fmt.Println("=======================")
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.close()

	set, _, err := c.persister.LoadSchedule()
	if err != nil {
		fmt.Println("No schedule yet. Start the monitor with 'khushood start'.")
		return nil
	}

	now := time.Now()
	upcoming := set.Unexpired(now)
	registered := make(map[domain.WindowKey]bool)
	if reg, err := c.authority.Registered(); err == nil {
		for _, w := range reg {
			registered[w.Key()] = true
		}
	}

	fmt.Println("\n=== Upcoming Blocking Windows ===")
	for _, w := range upcoming {
		marker := " "
		if registered[w.Key()] {
			marker = "*"
		}
		fmt.Printf("%s %-8s %s  %s - %s\n", marker, w.Prayer,
			w.Start.Local().Format("Mon Jan 02"),
			w.Start.Local().Format("15:04"),
			w.End().Local().Format("15:04"))
	}
	fmt.Printf("\n%d windows, * = registered with the enforcement authority\n", len(upcoming))
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.close()

	now := time.Now()
	c.machine.Reconcile(now)

	rec, err := c.unlocker.EarlyUnlock(now, unlockPhrase)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoActiveWindow):
			fmt.Println("No blocking window is active right now.")
		case errors.Is(err, domain.ErrNotBlocking):
			fmt.Println("Apps are not being blocked yet; nothing to unlock.")
		case errors.Is(err, domain.ErrUnlockTooEarly):
			if remaining, terr := c.unlocker.TimeUntilEarlyUnlock(now); terr == nil {
				fmt.Printf("Too early. Unlock available in %s.\n", remaining.Round(time.Second))
			} else {
				fmt.Println("Too early to unlock.")
			}
		case errors.Is(err, domain.ErrEarlyUnlockUsed):
			fmt.Println("This window was already unlocked early.")
		case errors.Is(err, domain.ErrStrictModeLocked):
			fmt.Println("Strict mode is on: speak the commitment phrase and pass it with --phrase.")
		default:
			return err
		}
		return nil
	}

	fmt.Printf("Unlocked %s early at %s.\n", rec.Window.Prayer, rec.UsedAt.Local().Format("15:04:05"))
	return nil
}

func runStrict(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.close()

	switch args[0] {
	case "on":
		if err := c.guard.SetStrictMode(true); err != nil {
			if errors.Is(err, domain.ErrSpeechPermissionDenied) {
				fmt.Println("Cannot enable strict mode: speech recognition permission is denied.")
				fmt.Println("Grant the permission in system settings and try again.")
				return nil
			}
			return err
		}
		fmt.Println("Strict mode enabled. Early unlocks now require the spoken phrase.")
	case "off":
		if err := c.guard.SetStrictMode(false); err != nil {
			return err
		}
		fmt.Println("Strict mode disabled.")
	default:
		return fmt.Errorf("expected 'on' or 'off', got %q", args[0])
	}
	return nil
}

func runFilter(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.close()

	now := time.Now()
	switch args[0] {
	case "enable":
		c.guard.EnableContentFilter()
		fmt.Println("Content filter enabled.")

	case "request-disable":
		effective, err := c.guard.RequestContentFilterDisable(now)
		if err != nil {
			if errors.Is(err, domain.ErrFilterNotEnabled) {
				fmt.Println("Content filter is not enabled.")
				return nil
			}
			return err
		}
		fmt.Printf("Disable requested. The filter stays on until %s.\n",
			effective.Local().Format("Mon Jan 02 15:04"))
		fmt.Println("Cancel any time before then with 'khushood filter cancel-disable'.")

	case "cancel-disable":
		if err := c.guard.CancelContentFilterDisable(); err != nil {
			if errors.Is(err, domain.ErrNoDisablePending) {
				fmt.Println("No disable request is pending.")
				return nil
			}
			return err
		}
		fmt.Println("Disable request cancelled. The filter stays on.")

	case "status":
		filter := c.guard.ContentFilter()
		fmt.Printf("Content filter: %v\n", filter.Enabled)
		if remaining, pending := filter.TimeUntilDisable(now); pending {
			fmt.Printf("Disable matures in: %s\n", remaining.Round(time.Minute))
		}

	default:
		return fmt.Errorf("expected enable, request-disable, cancel-disable or status, got %q", args[0])
	}
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	monitor := daemon.NewMonitor(
		daemon.DefaultMonitorConfig(),
		c.machine,
		c.rolling,
		c.guard,
		c.registry,
		c.source,
		c.notifier,
		c.authority,
		c.persister,
		schedule.DefaultBuildConfig(),
		logger,
	)
	return monitor.Run(ctx)
}

func createLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	logPath := filepath.Join(dataDir, "khushood.log")
	config.OutputPaths = []string{logPath}
	config.ErrorOutputPaths = []string{logPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("khushood %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
