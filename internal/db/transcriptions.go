package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voice-memo/backend/internal/db/models"
)

// ErrEmptyContent is returned when a transcription is created without any
// transcript text. A record never exists with empty content.
var ErrEmptyContent = errors.New("transcription content must not be empty")

// CreateTranscription inserts a new record in processing state and returns it.
func (d *Database) CreateTranscription(content string, segments []models.SpeakerSegment, duration float64) (*models.Transcription, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if duration < 0 {
		duration = 0
	}
	if segments == nil {
		segments = []models.SpeakerSegment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal speaker segments: %w", err)
	}

	t := &models.Transcription{
		ID:              uuid.New().String(),
		Content:         content,
		SpeakerSegments: segments,
		Duration:        duration,
		Status:          models.StatusProcessing,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	_, err = d.db.Exec(`
		INSERT INTO transcriptions (id, content, speaker_segments, duration, summary, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', ?, ?, ?)`,
		t.ID, t.Content, string(segmentsJSON), t.Duration, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transcription: %w", err)
	}
	return t, nil
}

// GetTranscription loads a record by ID. Returns ErrNotFound if it does not exist.
func (d *Database) GetTranscription(id string) (*models.Transcription, error) {
	t := &models.Transcription{}
	var segmentsJSON string
	err := d.db.QueryRow(`
		SELECT id, content, speaker_segments, duration, summary, status, created_at, updated_at
		FROM transcriptions WHERE id = ?`, id,
	).Scan(&t.ID, &t.Content, &segmentsJSON, &t.Duration, &t.Summary, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(segmentsJSON), &t.SpeakerSegments); err != nil {
		return nil, fmt.Errorf("unmarshal speaker segments: %w", err)
	}
	if t.SpeakerSegments == nil {
		t.SpeakerSegments = []models.SpeakerSegment{}
	}
	return t, nil
}

// CompleteTranscription transitions a record to completed and sets its
// summary, only if it is still processing. Returns false (and no error) when
// the record is already terminal or gone, so duplicate job executions are
// harmless no-ops.
func (d *Database) CompleteTranscription(id, summary string) (bool, error) {
	return d.transition(id, models.StatusCompleted, summary)
}

// FailTranscription transitions a record to failed, only if it is still
// processing. The summary stays empty. Same no-op semantics as
// CompleteTranscription.
func (d *Database) FailTranscription(id string) (bool, error) {
	return d.transition(id, models.StatusFailed, "")
}

// transition is a single-statement compare-and-set: status and summary move
// together or not at all, so a concurrent reader never sees a half-written
// record.
func (d *Database) transition(id string, status models.TranscriptionStatus, summary string) (bool, error) {
	res, err := d.db.Exec(`
		UPDATE transcriptions SET status = ?, summary = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, summary, time.Now(), id, models.StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("transition transcription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// StuckTranscriptionIDs returns IDs of records still processing that were
// created before the cutoff. Used by the reconciliation sweep to re-trigger
// summary jobs that were lost between record creation and dispatch.
func (d *Database) StuckTranscriptionIDs(cutoff time.Time) ([]string, error) {
	rows, err := d.db.Query(
		"SELECT id FROM transcriptions WHERE status = ? AND created_at < ? ORDER BY created_at ASC",
		models.StatusProcessing, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
