package usecase

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
)

// UnlockConfig holds early-unlock tuning.
type UnlockConfig struct {
	// Offset is how long into a window the user must wait before ending it
	// early. Product has not fixed this value, so it stays configurable.
	Offset time.Duration
}

// DefaultUnlockConfig returns default early-unlock configuration.
func DefaultUnlockConfig() UnlockConfig {
	return UnlockConfig{
		Offset: 5 * time.Minute,
	}
}

// UnlockController computes early-unlock eligibility and performs the
// unlock under the commitment-guard constraints. At most one early unlock
// is possible per window.
type UnlockController struct {
	cfg     UnlockConfig
	machine *Machine
	guard   *Guard
	logger  *zap.Logger
}

// NewUnlockController creates an early-unlock controller.
func NewUnlockController(cfg UnlockConfig, machine *Machine, guard *Guard, logger *zap.Logger) *UnlockController {
	return &UnlockController{
		cfg:     cfg,
		machine: machine,
		guard:   guard,
		logger:  logger,
	}
}

// TimeUntilEarlyUnlock returns the time remaining until early unlock
// becomes eligible for the current window. Zero or negative means eligible
// now. Returns ErrNoActiveWindow when no window is current.
func (c *UnlockController) TimeUntilEarlyUnlock(now time.Time) (time.Duration, error) {
	state := c.machine.ForceCheck(now)

	if state.ActiveWindow == nil || !state.ActiveWindow.Contains(now) {
		return 0, domain.ErrNoActiveWindow
	}

	eligibleAt := state.ActiveWindow.Start.Add(c.cfg.Offset)
	return eligibleAt.Sub(now), nil
}

// EarlyUnlock ends the current window early. The window must be in a
// confirmed blocking state, the wait offset must have elapsed, strict mode
// (when enabled) must receive a matching transcript, and the unlock must
// not have been used for this window before. Every rejected path fails
// with a distinct error rather than a silent no-op.
func (c *UnlockController) EarlyUnlock(now time.Time, transcript string) (domain.EarlyUnlockRecord, error) {
	state := c.machine.ForceCheck(now)

	if state.ActiveWindow == nil || !state.ActiveWindow.Contains(now) {
		return domain.EarlyUnlockRecord{}, domain.ErrNoActiveWindow
	}
	window := *state.ActiveWindow

	if state.Phase == domain.PhaseEarlyUnlocked {
		return domain.EarlyUnlockRecord{}, domain.ErrEarlyUnlockUsed
	}
	if state.Phase != domain.PhaseBlocking {
		return domain.EarlyUnlockRecord{}, domain.ErrNotBlocking
	}

	if remaining := window.Start.Add(c.cfg.Offset).Sub(now); remaining > 0 {
		return domain.EarlyUnlockRecord{}, fmt.Errorf("%w: %s remaining",
			domain.ErrUnlockTooEarly, remaining.Round(time.Second))
	}

	if err := c.guard.AuthorizeEarlyUnlock(transcript); err != nil {
		return domain.EarlyUnlockRecord{}, err
	}

	rec, err := c.machine.MarkEarlyUnlocked(window.Key(), now)
	if err != nil {
		return domain.EarlyUnlockRecord{}, err
	}

	c.logger.Info("early unlock granted",
		zap.String("window", rec.Window.String()),
		zap.Time("window_end", window.End()))
	return rec, nil
}
