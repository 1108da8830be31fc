package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, brand, content_id, title, caption, script, presenter, video_index, status, synthesis_job_id, synthesis_video_url, caption_job_id, styled_url, final_asset_url, schedule_json, retry_count, last_error, failed_stage, created_at, status_changed_at, updated_at"

const contentColumns = "id, brand, title, body, quality_score, feed_source, source_url, locked_by, locked_at, processed, created_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id                int64
		brand             string
		contentID         sql.NullInt64
		title             string
		caption           string
		script            string
		presenter         sql.NullString
		videoIndex        int
		statusStr         string
		synthesisJobID    sql.NullString
		synthesisVideoURL sql.NullString
		captionJobID      sql.NullString
		styledURL         sql.NullString
		finalAssetURL     sql.NullString
		scheduleJSON      sql.NullString
		retryCount        int
		lastError         sql.NullString
		failedStage       sql.NullString
		createdRaw        string
		statusChangedRaw  string
		updatedRaw        string
	)

	if err := scanner.Scan(
		&id,
		&brand,
		&contentID,
		&title,
		&caption,
		&script,
		&presenter,
		&videoIndex,
		&statusStr,
		&synthesisJobID,
		&synthesisVideoURL,
		&captionJobID,
		&styledURL,
		&finalAssetURL,
		&scheduleJSON,
		&retryCount,
		&lastError,
		&failedStage,
		&createdRaw,
		&statusChangedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:                id,
		Brand:             brand,
		ContentID:         contentID.Int64,
		Title:             title,
		Caption:           caption,
		Script:            script,
		Presenter:         presenter.String,
		VideoIndex:        videoIndex,
		Status:            Status(statusStr),
		SynthesisJobID:    synthesisJobID.String,
		SynthesisVideoURL: synthesisVideoURL.String,
		CaptionJobID:      captionJobID.String,
		StyledURL:         styledURL.String,
		FinalAssetURL:     finalAssetURL.String,
		RetryCount:        retryCount,
		LastError:         lastError.String,
		FailedStage:       Status(failedStage.String),
	}
	if scheduleJSON.Valid && scheduleJSON.String != "" {
		if err := json.Unmarshal([]byte(scheduleJSON.String), &item.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule for workflow %d: %w", id, err)
		}
	}
	var err error
	if item.CreatedAt, err = parseTimeString(createdRaw); err != nil {
		return nil, fmt.Errorf("parse created_at for workflow %d: %w", id, err)
	}
	if item.StatusChangedAt, err = parseTimeString(statusChangedRaw); err != nil {
		return nil, fmt.Errorf("parse status_changed_at for workflow %d: %w", id, err)
	}
	if item.UpdatedAt, err = parseTimeString(updatedRaw); err != nil {
		return nil, fmt.Errorf("parse updated_at for workflow %d: %w", id, err)
	}
	return item, nil
}

func scanContent(scanner interface{ Scan(dest ...any) error }) (*ContentItem, error) {
	var (
		item       ContentItem
		feedSource sql.NullString
		sourceURL  sql.NullString
		lockedBy   sql.NullString
		lockedAt   sql.NullString
		processed  int
		createdRaw string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.Brand,
		&item.Title,
		&item.Body,
		&item.QualityScore,
		&feedSource,
		&sourceURL,
		&lockedBy,
		&lockedAt,
		&processed,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	item.FeedSource = feedSource.String
	item.SourceURL = sourceURL.String
	item.LockedBy = lockedBy.String
	item.Processed = processed != 0
	if lockedAt.Valid && lockedAt.String != "" {
		if ts, err := parseTimeString(lockedAt.String); err == nil {
			item.LockedAt = &ts
		}
	}
	created, err := parseTimeString(createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for content %d: %w", item.ID, err)
	}
	item.CreatedAt = created
	return &item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
