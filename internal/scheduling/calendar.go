package scheduling

import (
	"strings"
	"time"

	"postflow/internal/config"
)

// Calendar answers which hours are best for a platform on a given weekday.
type Calendar struct {
	platforms map[string]config.Platform
	ladder    []int
}

// NewCalendar snapshots the platform rankings and brand ladder from cfg.
func NewCalendar(cfg *config.Config) *Calendar {
	return &Calendar{
		platforms: cfg.Platforms,
		ladder:    append([]int(nil), cfg.Scheduling.Ladder...),
	}
}

// RankedHours returns the platform's hours for weekday, best first. A weekday
// override replaces the default ranking. Unknown platforms fall back to the
// ladder.
func (c *Calendar) RankedHours(platform string, weekday time.Weekday) []int {
	entry, ok := c.platforms[strings.ToLower(platform)]
	if !ok || len(entry.Hours) == 0 {
		return c.Ladder()
	}
	for day, hours := range entry.Weekdays {
		if parsed, ok := config.ParseWeekday(day); ok && parsed == weekday && len(hours) > 0 {
			return append([]int(nil), hours...)
		}
	}
	return append([]int(nil), entry.Hours...)
}

// Ladder returns the brand-wide fallback hours in order.
func (c *Calendar) Ladder() []int {
	return append([]int(nil), c.ladder...)
}
