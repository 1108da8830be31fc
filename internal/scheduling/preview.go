package scheduling

import (
	"fmt"
	"time"
)

// PlatformPreview shows where a platform would land if scheduled now.
type PlatformPreview struct {
	Platform string
	Hours    []int
	Next     time.Time
}

// Preview summarizes a brand's schedule inputs for operators.
type Preview struct {
	Brand     string
	Timezone  string
	Policy    string
	Now       time.Time
	Ladder    []int
	Platforms []PlatformPreview
}

// Describe returns the schedule inputs for brand without claiming anything.
// Next is the platform's first ranked hour still ahead, today or tomorrow.
func (p *Planner) Describe(brandName string) (Preview, error) {
	brand, ok := p.cfg.Brand(brandName)
	if !ok {
		return Preview{}, fmt.Errorf("unknown brand %q", brandName)
	}
	loc, err := p.cfg.BrandLocation(brandName)
	if err != nil {
		return Preview{}, err
	}
	now := p.now().In(loc)
	preview := Preview{
		Brand:    brandName,
		Timezone: loc.String(),
		Policy:   p.cfg.BrandPolicy(brandName),
		Now:      now,
		Ladder:   p.calendar.Ladder(),
	}
	today := startOfDay(now)
	for _, platform := range brand.Platforms {
		entry := PlatformPreview{
			Platform: platform,
			Hours:    p.calendar.RankedHours(platform, today.Weekday()),
		}
		entry.Next = p.nextRanked(platform, today, now)
		preview.Platforms = append(preview.Platforms, entry)
	}
	return preview, nil
}

func (p *Planner) nextRanked(platform string, today, now time.Time) time.Time {
	for offset := 0; offset < 2; offset++ {
		day := today.AddDate(0, 0, offset)
		for _, hour := range p.calendar.RankedHours(platform, day.Weekday()) {
			if start := slotStart(day, hour, now.Location()); start.After(now) {
				return start
			}
		}
	}
	return time.Time{}
}
