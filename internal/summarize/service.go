package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/voice-memo/backend/internal/db"
	"github.com/voice-memo/backend/internal/db/models"
	"github.com/voice-memo/backend/internal/job"
)

// RecordStore is the slice of the record store the summary task needs.
type RecordStore interface {
	GetTranscription(id string) (*models.Transcription, error)
	CompleteTranscription(id, summary string) (bool, error)
	FailTranscription(id string) (bool, error)
}

// Summarizer produces a summary for a transcript. Client satisfies this.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Service runs summary generation jobs and converges transcription records
// to a terminal state. It holds the record only by ID and all transitions
// are conditional on the record still processing, so a duplicate or late
// execution is a no-op rather than a corruption.
type Service struct {
	store      RecordStore
	summarizer Summarizer
}

func NewService(store RecordStore, summarizer Summarizer) *Service {
	return &Service{store: store, summarizer: summarizer}
}

// HandleJob processes a summary job. Outcomes:
//   - record gone or already terminal: no-op
//   - empty content: completed with an empty summary (the transcript record
//     itself is still valid, there is just nothing to summarize)
//   - summary produced (remote or fallback): completed with that summary
//   - aborted mid-run (job cancelled, store unreachable): completed without
//     a summary when a usable transcript exists, failed only when it does not
func (s *Service) HandleJob(ctx context.Context, j *job.Job, updateProgress func(float64)) error {
	var params job.SummarizeParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}

	rec, err := s.store.GetTranscription(params.TranscriptionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			log.Printf("[summarize] transcription %s no longer exists, skipping", params.TranscriptionID)
			return nil
		}
		return fmt.Errorf("load transcription: %w", err)
	}
	if rec.Status.Terminal() {
		log.Printf("[summarize] transcription %s already %s, skipping", rec.ID, rec.Status)
		return nil
	}

	updateProgress(0.1)

	summary, err := s.summarizer.Summarize(ctx, rec.Content)
	if err != nil {
		s.abort(rec)
		return fmt.Errorf("summarize: %w", err)
	}

	updateProgress(0.9)

	applied, err := s.store.CompleteTranscription(rec.ID, summary)
	if err != nil {
		return fmt.Errorf("complete transcription: %w", err)
	}
	if !applied {
		log.Printf("[summarize] transcription %s reached a terminal state concurrently", rec.ID)
	}

	updateProgress(1.0)
	return nil
}

// abort gives the record a terminal state after an interrupted run. A record
// with a readable transcript still surfaces as completed; failed is reserved
// for records with no usable content.
func (s *Service) abort(rec *models.Transcription) {
	if strings.TrimSpace(rec.Content) != "" {
		if _, err := s.store.CompleteTranscription(rec.ID, ""); err != nil {
			log.Printf("[summarize] failed to complete %s after abort: %v", rec.ID, err)
		}
		return
	}
	if _, err := s.store.FailTranscription(rec.ID); err != nil {
		log.Printf("[summarize] failed to mark %s failed after abort: %v", rec.ID, err)
	}
}
