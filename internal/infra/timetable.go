package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/abduljabar5/khushood/internal/domain"
)

// TimetableSource implements domain.PrayerTimeSource from a JSON timetable
// file exported by the companion app's prayer-time calculator. Astronomical
// computation and location resolution happen upstream; this source only
// reads what was exported for the device's location.
//
// File format: {"days": {"2026-08-24": {"fajr": "2026-08-24T05:30:00+03:00", ...}}}
type TimetableSource struct {
	path string
}

type timetableFile struct {
	Days map[string]map[string]string `json:"days"`
}

// NewTimetableSource creates a timetable-backed prayer-time source.
func NewTimetableSource(path string) *TimetableSource {
	return &TimetableSource{path: path}
}

// Events returns all prayer events with from <= time < to, ordered by time.
// Missing days inside the range are tolerated (the exporter may lag); a
// range with no covered days at all returns ErrScheduleUnavailable.
func (s *TimetableSource) Events(ctx context.Context, from, to time.Time) ([]domain.PrayerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timetable: %w", err)
	}

	var file timetableFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("corrupt timetable: %w", err)
	}

	// Day bounds are calendar days in from's location, not UTC days: a
	// prayer inside [from, to) may belong to the local day before from.
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())

	var events []domain.PrayerEvent
	covered := false
	for day, prayers := range file.Days {
		dayStart, err := time.ParseInLocation("2006-01-02", day, from.Location())
		if err != nil {
			return nil, fmt.Errorf("bad timetable day %q: %w", day, err)
		}
		if dayStart.Before(fromDay.AddDate(0, 0, -1)) || !dayStart.Before(to) {
			continue
		}
		covered = true

		for name, stamp := range prayers {
			prayer, err := domain.ParsePrayerName(name)
			if err != nil {
				return nil, fmt.Errorf("bad timetable entry for %s: %w", day, err)
			}
			at, err := time.Parse(time.RFC3339, stamp)
			if err != nil {
				return nil, fmt.Errorf("bad timetable time for %s %s: %w", day, name, err)
			}
			if at.Before(from) || !at.Before(to) {
				continue
			}
			events = append(events, domain.PrayerEvent{Name: prayer, Time: at})
		}
	}

	if !covered {
		return nil, fmt.Errorf("timetable covers no days in range: %w", domain.ErrScheduleUnavailable)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})
	return events, nil
}

// ModifiedSince reports whether the timetable file was rewritten after t,
// e.g. re-exported by the companion app for a new location. A missing file
// is an error; callers treat it as "no change known".
func (s *TimetableSource) ModifiedSince(t time.Time) (bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to stat timetable: %w", err)
	}
	return info.ModTime().After(t), nil
}

// Ensure TimetableSource implements domain.PrayerTimeSource.
var _ domain.PrayerTimeSource = (*TimetableSource)(nil)
