package job

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/voice-memo/backend/internal/db"
	"github.com/voice-memo/backend/internal/db/models"
)

func TestSweepReenqueuesStuckTranscription(t *testing.T) {
	database, err := db.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer database.Close()

	q := NewJobQueue(database.DB())
	defer q.Stop()

	// Converge the record the way the real summary handler would
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		var params SummarizeParams
		if err := json.Unmarshal(j.Params, &params); err != nil {
			return err
		}
		_, err := database.CompleteTranscription(params.TranscriptionID, "swept summary")
		return err
	})

	// A record whose summary job was lost before dispatch
	rec, err := database.CreateTranscription("orphaned content", nil, 0)
	if err != nil {
		t.Fatalf("CreateTranscription: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	sweeper := NewSweeper(q, database, time.Hour, 0)
	sweeper.Sweep()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := database.GetTranscription(rec.ID)
		if err != nil {
			t.Fatalf("GetTranscription: %v", err)
		}
		if got.Status == models.StatusCompleted {
			if got.Summary != "swept summary" {
				t.Errorf("summary = %q", got.Summary)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("record never converged, status %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSweepSkipsRecordsWithActiveJobs(t *testing.T) {
	database, err := db.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer database.Close()

	q := NewJobQueue(database.DB())
	defer q.Stop()

	block := make(chan struct{})
	defer close(block)
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		<-block
		return nil
	})

	rec, err := database.CreateTranscription("content", nil, 0)
	if err != nil {
		t.Fatalf("CreateTranscription: %v", err)
	}
	if _, err := q.Enqueue(JobSummarize, rec.ID, SummarizeParams{TranscriptionID: rec.ID}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	sweeper := NewSweeper(q, database, time.Hour, 0)
	sweeper.Sweep()

	jobs, err := q.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("got %d jobs, want 1 (no duplicate for an active record)", len(jobs))
	}
}
