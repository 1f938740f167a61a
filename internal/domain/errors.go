package domain

import "errors"

// Commitment-device guarantees must be loud when a bypass is attempted, so
// every rejected operation has a distinct sentinel the caller can errors.Is.
var (
	// ErrNoActiveWindow is returned when an operation requires a window to
	// be current and none is.
	ErrNoActiveWindow = errors.New("no active blocking window")

	// ErrNotBlocking is returned when the current window has not been
	// confirmed as blocking by the enforcement authority yet.
	ErrNotBlocking = errors.New("current window is not in a confirmed blocking state")

	// ErrUnlockTooEarly is returned when the early-unlock wait offset has
	// not elapsed yet.
	ErrUnlockTooEarly = errors.New("early unlock not yet eligible for this window")

	// ErrEarlyUnlockUsed is returned on a second early-unlock attempt for
	// the same window.
	ErrEarlyUnlockUsed = errors.New("early unlock already used for this window")

	// ErrStrictModeLocked is returned when strict mode is enabled and no
	// matching spoken phrase was supplied.
	ErrStrictModeLocked = errors.New("strict mode requires a matching spoken phrase")

	// ErrSpeechPermissionDenied is returned when speech recognition was
	// permanently denied by the user, so strict mode cannot be enabled.
	ErrSpeechPermissionDenied = errors.New("speech recognition permission denied")

	// ErrNotificationPermissionDenied is returned when notification
	// scheduling was denied at the OS level.
	ErrNotificationPermissionDenied = errors.New("notification permission denied")

	// ErrFilterNotEnabled is returned when a disable is requested for a
	// content filter that is not enabled.
	ErrFilterNotEnabled = errors.New("content filter is not enabled")

	// ErrNoDisablePending is returned when cancelling a content-filter
	// disable request that does not exist.
	ErrNoDisablePending = errors.New("no content filter disable request pending")

	// ErrScheduleUnavailable is returned when the prayer-time source failed
	// and no cached schedule exists to fall back on.
	ErrScheduleUnavailable = errors.New("no prayer schedule available")

	// ErrKeyNotFound is returned by the shared store for a missing key.
	ErrKeyNotFound = errors.New("key not found in shared store")
)
