// Package schedule builds and maintains prayer-time blocking schedules.
package schedule

import (
	"time"

	"github.com/abduljabar5/khushood/internal/domain"
)

// BuildConfig controls how prayer events are turned into blocking windows.
type BuildConfig struct {
	Enabled  map[domain.PrayerName]bool // prayers that produce windows
	Buffer   time.Duration              // window starts this long before the prayer
	Duration time.Duration              // total window length
}

// DefaultBuildConfig enables all five prayers with a 10 minute buffer and
// 30 minute windows.
func DefaultBuildConfig() BuildConfig {
	enabled := make(map[domain.PrayerName]bool, 5)
	for _, p := range domain.AllPrayers() {
		enabled[p] = true
	}
	return BuildConfig{
		Enabled:  enabled,
		Buffer:   10 * time.Minute,
		Duration: 30 * time.Minute,
	}
}

// Build maps prayer events to an ordered, deduplicated ScheduleSet.
// Pure and deterministic: identical inputs yield identical sets, and
// duplicate (prayer, day) events resolve last-write-wins so rebuilding with
// updated settings replaces rather than appends.
func Build(events []domain.PrayerEvent, cfg BuildConfig) domain.ScheduleSet {
	byKey := make(map[domain.WindowKey]int, len(events))
	set := make(domain.ScheduleSet, 0, len(events))

	for _, ev := range events {
		if !cfg.Enabled[ev.Name] {
			continue
		}
		w := domain.BlockingWindow{
			Prayer:   ev.Name,
			Start:    ev.Time.Add(-cfg.Buffer),
			Duration: cfg.Duration,
			Buffer:   cfg.Buffer,
		}
		if i, ok := byKey[w.Key()]; ok {
			set[i] = w
			continue
		}
		byKey[w.Key()] = len(set)
		set = append(set, w)
	}

	set.Sort()
	return set
}

// Notifications derives the (fireAt, prayer) pairs handed to the external
// notification scheduler. One notification fires at each window start.
func Notifications(set domain.ScheduleSet) []domain.Notification {
	notes := make([]domain.Notification, 0, len(set))
	for _, w := range set {
		notes = append(notes, domain.Notification{FireAt: w.Start, Prayer: w.Prayer})
	}
	return notes
}
