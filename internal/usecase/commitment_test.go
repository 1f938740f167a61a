package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
)

func newTestGuard(speech domain.SpeechConfirmer) *Guard {
	return NewGuard(speech, nil, zap.NewNop())
}

// TestSetStrictMode_EnableRequiresSpeechPermission verifies the distinct
// permission-denied error surfaces instead of a silent no-op
func TestSetStrictMode_EnableRequiresSpeechPermission(t *testing.T) {
	guard := newTestGuard(&mockSpeech{availableErr: domain.ErrSpeechPermissionDenied})

	err := guard.SetStrictMode(true)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSpeechPermissionDenied)
	assert.False(t, guard.StrictMode().Enabled)
}

// TestSetStrictMode_DisableIsUnrestricted verifies disabling never checks
// the speech capability
func TestSetStrictMode_DisableIsUnrestricted(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	require.NoError(t, guard.SetStrictMode(true))

	// Permission is revoked after enabling; disable must still work
	guard.speech = &mockSpeech{availableErr: domain.ErrSpeechPermissionDenied}
	err := guard.SetStrictMode(false)

	require.NoError(t, err)
	assert.False(t, guard.StrictMode().Enabled)
}

// TestConfirmPhrase_NormalizedContainment verifies the match rules
func TestConfirmPhrase_NormalizedContainment(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})

	assert.True(t, guard.ConfirmPhrase("I choose to end this block early"))
	assert.True(t, guard.ConfirmPhrase("okay fine, I CHOOSE to end   this block early, happy now"))
	assert.True(t, guard.ConfirmPhrase("\ti choose\nto end this block early\n"))
	assert.False(t, guard.ConfirmPhrase("i choose to end this block"))
	assert.False(t, guard.ConfirmPhrase(""))
}

// TestAuthorizeEarlyUnlock_PassesWhenStrictOff verifies no gate without
// strict mode
func TestAuthorizeEarlyUnlock_PassesWhenStrictOff(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})

	assert.NoError(t, guard.AuthorizeEarlyUnlock(""))
}

// TestAuthorizeEarlyUnlock_StrictModeLocked verifies the distinct error
func TestAuthorizeEarlyUnlock_StrictModeLocked(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	require.NoError(t, guard.SetStrictMode(true))

	err := guard.AuthorizeEarlyUnlock("something else entirely")

	assert.ErrorIs(t, err, domain.ErrStrictModeLocked)
	assert.NoError(t, guard.AuthorizeEarlyUnlock("i choose to end this block early"))
}

// TestContentFilter_EnableIsImmediate verifies the asymmetry's fast half
func TestContentFilter_EnableIsImmediate(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})

	guard.EnableContentFilter()

	filter := guard.ContentFilter()
	assert.True(t, filter.Enabled)
	assert.False(t, filter.DisablePending())
}

// TestContentFilter_DisableMaturesAfter48Hours verifies the slow half
func TestContentFilter_DisableMaturesAfter48Hours(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	guard.EnableContentFilter()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	effective, err := guard.RequestContentFilterDisable(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(48*time.Hour), effective)

	// Still enabled right after the request
	assert.True(t, guard.ContentFilter().Enabled)

	// Periodic checks before maturation change nothing
	assert.False(t, guard.CheckContentFilter(now.Add(time.Hour)))
	assert.False(t, guard.CheckContentFilter(now.Add(47*time.Hour)))
	assert.True(t, guard.ContentFilter().Enabled)

	remaining, pending := guard.TimeUntilContentFilterDisable(now.Add(47 * time.Hour))
	assert.True(t, pending)
	assert.Equal(t, time.Hour, remaining)

	// At maturation the periodic check flips the filter off
	assert.True(t, guard.CheckContentFilter(now.Add(48*time.Hour)))
	filter := guard.ContentFilter()
	assert.False(t, filter.Enabled)
	assert.False(t, filter.DisablePending())
}

// TestContentFilter_DisableRequiresEnabled verifies the loud rejection
func TestContentFilter_DisableRequiresEnabled(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	_, err := guard.RequestContentFilterDisable(now)

	assert.ErrorIs(t, err, domain.ErrFilterNotEnabled)
}

// TestContentFilter_CancelBeforeMaturation verifies cancellation clears the
// request with no further effect
func TestContentFilter_CancelBeforeMaturation(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	guard.EnableContentFilter()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	_, err := guard.RequestContentFilterDisable(now)
	require.NoError(t, err)
	require.NoError(t, guard.CancelContentFilterDisable())

	// Even long past the original maturation time, nothing flips
	assert.False(t, guard.CheckContentFilter(now.Add(100*time.Hour)))
	assert.True(t, guard.ContentFilter().Enabled)

	_, pending := guard.TimeUntilContentFilterDisable(now)
	assert.False(t, pending)
}

// TestContentFilter_CancelWithoutPendingFails verifies the distinct error
func TestContentFilter_CancelWithoutPendingFails(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	guard.EnableContentFilter()

	err := guard.CancelContentFilterDisable()

	assert.ErrorIs(t, err, domain.ErrNoDisablePending)
}

// TestContentFilter_ReRequestAfterCancelRestartsClock verifies the full
// maturation period applies again
func TestContentFilter_ReRequestAfterCancelRestartsClock(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	guard.EnableContentFilter()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	_, err := guard.RequestContentFilterDisable(now)
	require.NoError(t, err)
	require.NoError(t, guard.CancelContentFilterDisable())

	// Re-request 40 hours later: matures 48h from the new request
	later := now.Add(40 * time.Hour)
	effective, err := guard.RequestContentFilterDisable(later)
	require.NoError(t, err)
	assert.Equal(t, later.Add(48*time.Hour), effective)

	assert.False(t, guard.CheckContentFilter(now.Add(48*time.Hour)))
	assert.True(t, guard.CheckContentFilter(later.Add(48*time.Hour)))
}

// TestContentFilter_RepeatRequestKeepsOriginalClock verifies a pending
// request is not extended by asking again
func TestContentFilter_RepeatRequestKeepsOriginalClock(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	guard.EnableContentFilter()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	first, err := guard.RequestContentFilterDisable(now)
	require.NoError(t, err)

	second, err := guard.RequestContentFilterDisable(now.Add(10 * time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestContentFilter_EnableClearsPendingDisable verifies re-enabling wipes
// the pending request
func TestContentFilter_EnableClearsPendingDisable(t *testing.T) {
	guard := newTestGuard(&mockSpeech{})
	guard.EnableContentFilter()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	_, err := guard.RequestContentFilterDisable(now)
	require.NoError(t, err)

	guard.EnableContentFilter()

	assert.False(t, guard.ContentFilter().DisablePending())
	assert.False(t, guard.CheckContentFilter(now.Add(72*time.Hour)))
	assert.True(t, guard.ContentFilter().Enabled)
}
