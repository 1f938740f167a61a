package usecase

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
)

// DisableMaturation is how long a content-filter disable request must age
// before it takes effect. There is deliberately no way to shorten it.
const DisableMaturation = 48 * time.Hour

// DefaultRequiredPhrase is the spoken phrase strict mode matches against
// when none was configured.
const DefaultRequiredPhrase = "I choose to end this block early"

// Guard implements the two commitment devices layered on top of the state
// machine: strict mode (spoken-phrase gate on early unlocks) and the
// content-filter commitment (instant enable, 48-hour matured disable).
// Both exist to make reversal slower or harder than the impulse that would
// cause it.
type Guard struct {
	mu        sync.Mutex
	speech    domain.SpeechConfirmer
	persister domain.Persister
	logger    *zap.Logger

	strict domain.StrictModeConfig
	filter domain.ContentFilterCommitment
}

// NewGuard creates a commitment guard, restoring persisted device state.
// persister may be nil (persistence disabled, used in tests).
func NewGuard(speech domain.SpeechConfirmer, persister domain.Persister, logger *zap.Logger) *Guard {
	g := &Guard{
		speech:    speech,
		persister: persister,
		logger:    logger,
		strict:    domain.StrictModeConfig{RequiredPhrase: DefaultRequiredPhrase},
	}

	if persister != nil {
		if strict, err := persister.LoadStrictMode(); err == nil {
			if strict.RequiredPhrase == "" {
				strict.RequiredPhrase = DefaultRequiredPhrase
			}
			g.strict = strict
		}
		if filter, err := persister.LoadContentFilter(); err == nil {
			g.filter = filter
		}
	}

	return g
}

// --- Strict mode ---

// SetStrictMode toggles the strict-mode gate. Enabling requires the speech
// capability to be grantable; a permanent permission denial surfaces as
// ErrSpeechPermissionDenied so the caller can route the user to system
// settings. Disabling is immediate and unrestricted.
func (g *Guard) SetStrictMode(enabled bool) error {
	if enabled {
		if err := g.speech.Available(); err != nil {
			return fmt.Errorf("cannot enable strict mode: %w", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.strict.Enabled = enabled
	g.saveStrictLocked()

	g.logger.Info("strict mode toggled", zap.Bool("enabled", enabled))
	return nil
}

// StrictMode returns the current strict-mode configuration.
func (g *Guard) StrictMode() domain.StrictModeConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.strict
}

// ConfirmPhrase reports whether the transcript matches the required phrase.
// The match is case-insensitive, whitespace-normalized containment.
func (g *Guard) ConfirmPhrase(transcript string) bool {
	g.mu.Lock()
	phrase := g.strict.RequiredPhrase
	g.mu.Unlock()

	return strings.Contains(normalizeText(transcript), normalizeText(phrase))
}

// AuthorizeEarlyUnlock gates an early-unlock attempt. With strict mode off
// it always passes; with strict mode on it requires a matching transcript
// and fails loudly otherwise.
func (g *Guard) AuthorizeEarlyUnlock(transcript string) error {
	g.mu.Lock()
	enabled := g.strict.Enabled
	g.mu.Unlock()

	if !enabled {
		return nil
	}
	if !g.ConfirmPhrase(transcript) {
		return domain.ErrStrictModeLocked
	}
	return nil
}

// --- Content-filter commitment ---

// EnableContentFilter turns the filter on immediately and unconditionally,
// clearing any pending disable request.
func (g *Guard) EnableContentFilter() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.filter = domain.ContentFilterCommitment{Enabled: true}
	g.saveFilterLocked()

	g.logger.Info("content filter enabled")
}

// RequestContentFilterDisable records a disable request that matures after
// 48 hours. A request while one is already pending is idempotent: the
// original maturation time is kept. Returns the effective time.
func (g *Guard) RequestContentFilterDisable(now time.Time) (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.filter.Enabled {
		return time.Time{}, domain.ErrFilterNotEnabled
	}
	if g.filter.DisablePending() {
		return *g.filter.DisableEffectiveAt, nil
	}

	requested := now
	effective := now.Add(DisableMaturation)
	g.filter.DisableRequestedAt = &requested
	g.filter.DisableEffectiveAt = &effective
	g.saveFilterLocked()

	g.logger.Info("content filter disable requested",
		zap.Time("effective_at", effective))
	return effective, nil
}

// CancelContentFilterDisable clears a pending disable request. Cancelling
// when nothing is pending returns ErrNoDisablePending; a later re-request
// restarts the full maturation clock.
func (g *Guard) CancelContentFilterDisable() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.filter.DisablePending() {
		return domain.ErrNoDisablePending
	}

	g.filter.DisableRequestedAt = nil
	g.filter.DisableEffectiveAt = nil
	g.saveFilterLocked()

	g.logger.Info("content filter disable request cancelled")
	return nil
}

// TimeUntilContentFilterDisable returns the remaining maturation time, or
// false when no disable request is pending.
func (g *Guard) TimeUntilContentFilterDisable(now time.Time) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.TimeUntilDisable(now)
}

// CheckContentFilter observes maturation and flips the filter off once the
// effective time has passed. This is the only path that ever disables the
// filter; it runs on the monitor's slow tick so it works even while the
// app is backgrounded. Returns true when the filter was flipped.
func (g *Guard) CheckContentFilter(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.filter.Matured(now) {
		return false
	}

	g.filter = domain.ContentFilterCommitment{Enabled: false}
	g.saveFilterLocked()

	g.logger.Info("content filter disable matured, filter now off")
	return true
}

// ContentFilter returns the current content-filter commitment state.
func (g *Guard) ContentFilter() domain.ContentFilterCommitment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter
}

func (g *Guard) saveStrictLocked() {
	if g.persister == nil {
		return
	}
	if err := g.persister.SaveStrictMode(g.strict); err != nil {
		g.logger.Warn("failed to persist strict mode", zap.Error(err))
	}
}

func (g *Guard) saveFilterLocked() {
	if g.persister == nil {
		return
	}
	if err := g.persister.SaveContentFilter(g.filter); err != nil {
		g.logger.Warn("failed to persist content filter", zap.Error(err))
	}
}

// normalizeText lowercases and collapses all whitespace runs to single
// spaces for phrase comparison.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
