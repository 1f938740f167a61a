package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduljabar5/khushood/internal/domain"
)

func dayEvents(day time.Time) []domain.PrayerEvent {
	return []domain.PrayerEvent{
		{Name: domain.Fajr, Time: day.Add(5*time.Hour + 30*time.Minute)},
		{Name: domain.Dhuhr, Time: day.Add(12*time.Hour + 15*time.Minute)},
		{Name: domain.Asr, Time: day.Add(15*time.Hour + 45*time.Minute)},
		{Name: domain.Maghrib, Time: day.Add(18*time.Hour + 50*time.Minute)},
		{Name: domain.Isha, Time: day.Add(20*time.Hour + 20*time.Minute)},
	}
}

// TestBuild_WindowGeometry verifies buffer and duration placement.
func TestBuild_WindowGeometry(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	events := []domain.PrayerEvent{
		{Name: domain.Fajr, Time: day.Add(5*time.Hour + 30*time.Minute)},
	}
	cfg := BuildConfig{
		Enabled:  map[domain.PrayerName]bool{domain.Fajr: true},
		Buffer:   10 * time.Minute,
		Duration: 20 * time.Minute,
	}

	set := Build(events, cfg)

	require.Len(t, set, 1)
	assert.Equal(t, day.Add(5*time.Hour+20*time.Minute), set[0].Start)
	assert.Equal(t, day.Add(5*time.Hour+40*time.Minute), set[0].End())
	assert.Equal(t, domain.Fajr, set[0].Prayer)
}

// TestBuild_FiltersDisabledPrayers verifies per-prayer enablement
func TestBuild_FiltersDisabledPrayers(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	cfg := DefaultBuildConfig()
	cfg.Enabled[domain.Dhuhr] = false
	cfg.Enabled[domain.Asr] = false

	set := Build(dayEvents(day), cfg)

	require.Len(t, set, 3)
	for _, w := range set {
		assert.NotEqual(t, domain.Dhuhr, w.Prayer)
		assert.NotEqual(t, domain.Asr, w.Prayer)
	}
}

// TestBuild_Idempotent verifies identical inputs yield identical sets
func TestBuild_Idempotent(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	events := dayEvents(day)
	cfg := DefaultBuildConfig()

	first := Build(events, cfg)
	second := Build(events, cfg)

	assert.True(t, first.Equal(second))
}

// TestBuild_DeduplicatesByPrayerDay verifies last-write-wins on duplicates
func TestBuild_DeduplicatesByPrayerDay(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	events := []domain.PrayerEvent{
		{Name: domain.Fajr, Time: day.Add(5*time.Hour + 30*time.Minute)},
		// Re-fetched event for the same prayer-day with an adjusted time
		{Name: domain.Fajr, Time: day.Add(5*time.Hour + 31*time.Minute)},
	}

	set := Build(events, DefaultBuildConfig())

	require.Len(t, set, 1)
	assert.Equal(t, day.Add(5*time.Hour+21*time.Minute), set[0].Start)
}

// TestBuild_SortedAndNonOverlapping verifies the ScheduleSet invariants
func TestBuild_SortedAndNonOverlapping(t *testing.T) {
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	var events []domain.PrayerEvent
	// A week of events appended out of order
	for d := 6; d >= 0; d-- {
		events = append(events, dayEvents(start.AddDate(0, 0, d))...)
	}

	set := Build(events, DefaultBuildConfig())

	require.Len(t, set, 35)
	require.NoError(t, set.Validate())
	for i := 1; i < len(set); i++ {
		assert.False(t, set[i].Start.Before(set[i-1].End()),
			"window %d overlaps window %d", i, i-1)
	}
}

// TestBuild_EmptyEvents verifies behavior with no events
func TestBuild_EmptyEvents(t *testing.T) {
	set := Build(nil, DefaultBuildConfig())

	assert.Empty(t, set)
	assert.NoError(t, set.Validate())
}

// TestNotifications verifies one notification per window at window start
func TestNotifications(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	set := Build(dayEvents(day), DefaultBuildConfig())

	notes := Notifications(set)

	require.Len(t, notes, len(set))
	for i, n := range notes {
		assert.Equal(t, set[i].Start, n.FireAt)
		assert.Equal(t, set[i].Prayer, n.Prayer)
	}
}
