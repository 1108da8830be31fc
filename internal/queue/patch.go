package queue

import (
	"encoding/json"
	"fmt"
)

// Patch lists the record fields a transition or annotation writes. Nil fields
// are left untouched; pointers to empty strings clear the column.
type Patch struct {
	SynthesisJobID    *string
	SynthesisVideoURL *string
	CaptionJobID      *string
	StyledURL         *string
	FinalAssetURL     *string
	LastError         *string

	Schedule        []ScheduleDecision
	replaceSchedule bool
}

// Set returns a pointer to v for use in Patch literals.
func Set(v string) *string {
	return &v
}

// WithSchedule returns a copy of p that replaces the stored schedule decisions.
func (p Patch) WithSchedule(decisions []ScheduleDecision) Patch {
	p.Schedule = decisions
	p.replaceSchedule = true
	return p
}

// Empty reports whether the patch writes nothing.
func (p Patch) Empty() bool {
	return p.SynthesisJobID == nil && p.SynthesisVideoURL == nil && p.CaptionJobID == nil &&
		p.StyledURL == nil && p.FinalAssetURL == nil && p.LastError == nil && !p.replaceSchedule
}

func (p Patch) assignments() ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, nullableString(*value))
	}
	add("synthesis_job_id", p.SynthesisJobID)
	add("synthesis_video_url", p.SynthesisVideoURL)
	add("caption_job_id", p.CaptionJobID)
	add("styled_url", p.StyledURL)
	add("final_asset_url", p.FinalAssetURL)
	add("last_error", p.LastError)
	if p.replaceSchedule {
		if len(p.Schedule) == 0 {
			sets = append(sets, "schedule_json = NULL")
		} else {
			encoded, err := json.Marshal(p.Schedule)
			if err != nil {
				return nil, nil, fmt.Errorf("encode schedule: %w", err)
			}
			sets = append(sets, "schedule_json = ?")
			args = append(args, string(encoded))
		}
	}
	return sets, args, nil
}
