// Package poll implements the reader side of the transcription status
// contract: a bounded polling loop over the status endpoint that terminates
// on a terminal status or a fixed attempt budget. Status is a monotonic
// terminal read, so a completion landing between two polls is never missed.
package poll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/voice-memo/backend/internal/db/models"
)

const (
	defaultInterval    = 2 * time.Second
	defaultMaxAttempts = 10
)

// ErrTimeout is returned when the attempt budget is exhausted without the
// record reaching a terminal status.
var ErrTimeout = errors.New("timed out waiting for transcription")

// ErrFailed is returned when the record failed with no usable transcript.
var ErrFailed = errors.New("transcription failed with no transcript")

// ErrNotFound is returned by fetchers when the record does not exist.
var ErrNotFound = errors.New("transcription not found")

// Status is the record projection returned by the status endpoint.
type Status struct {
	ID              string                     `json:"id"`
	Content         string                     `json:"content"`
	SpeakerSegments []models.SpeakerSegment    `json:"speaker_segments"`
	Duration        float64                    `json:"duration"`
	Summary         string                     `json:"summary"`
	Status          models.TranscriptionStatus `json:"status"`
}

// FetchFunc performs one status check.
type FetchFunc func(ctx context.Context, id string) (*Status, error)

// Result is a renderable outcome. Degraded means the record failed but a
// transcript exists, so the reader shows the transcript instead of an error;
// Summary may be empty either way and renders as unavailable.
type Result struct {
	Status   *Status
	Degraded bool
}

// Waiter polls a transcription until it is terminal or attempts run out.
type Waiter struct {
	Fetch       FetchFunc
	Interval    time.Duration // default 2s
	MaxAttempts int           // default 10
}

// Wait runs the polling loop. It sleeps between attempts, never after the
// last one, so the timeout fires right after the final check.
func (w *Waiter) Wait(ctx context.Context, id string) (*Result, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	maxAttempts := w.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st, err := w.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}

		switch st.Status {
		case models.StatusCompleted:
			return &Result{Status: st}, nil
		case models.StatusFailed:
			if strings.TrimSpace(st.Content) != "" {
				return &Result{Status: st, Degraded: true}, nil
			}
			return nil, ErrFailed
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, ErrTimeout
}
