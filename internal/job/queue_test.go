package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/voice-memo/backend/internal/db"
)

func testQueue(t *testing.T) *JobQueue {
	t.Helper()
	database, err := db.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	q := NewJobQueue(database.DB())
	t.Cleanup(q.Stop)
	return q
}

func waitForStatus(t *testing.T, q *JobQueue, id string, want JobStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := q.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if j.Status == want {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	j, _ := q.GetJob(id)
	t.Fatalf("job %s never reached %s (last status %s)", id, want, j.Status)
	return nil
}

func TestEnqueueAndProcess(t *testing.T) {
	q := testQueue(t)

	handled := make(chan string, 1)
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		var params SummarizeParams
		if err := json.Unmarshal(j.Params, &params); err != nil {
			return err
		}
		updateProgress(0.5)
		handled <- params.TranscriptionID
		return nil
	})

	j, err := q.Enqueue(JobSummarize, "rec-1", SummarizeParams{TranscriptionID: "rec-1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.Status != StatusPending {
		t.Errorf("status = %s, want pending", j.Status)
	}

	select {
	case got := <-handled:
		if got != "rec-1" {
			t.Errorf("handler got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}

	done := waitForStatus(t, q, j.ID, StatusCompleted)
	if done.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0", done.Progress)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestHandlerErrorFailsJobAndRetryRequeues(t *testing.T) {
	q := testQueue(t)

	attempts := 0
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		attempts++
		if attempts == 1 {
			return errors.New("provider exploded")
		}
		return nil
	})

	j, err := q.Enqueue(JobSummarize, "rec-1", SummarizeParams{TranscriptionID: "rec-1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	failed := waitForStatus(t, q, j.ID, StatusFailed)
	if failed.Error != "provider exploded" {
		t.Errorf("error = %q", failed.Error)
	}

	if err := q.RetryJob(j.ID); err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	waitForStatus(t, q, j.ID, StatusCompleted)
}

func TestRetryRejectsActiveJob(t *testing.T) {
	q := testQueue(t)

	block := make(chan struct{})
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		<-block
		return nil
	})

	j, _ := q.Enqueue(JobSummarize, "rec-1", SummarizeParams{TranscriptionID: "rec-1"})
	waitForStatus(t, q, j.ID, StatusRunning)

	if err := q.RetryJob(j.ID); err == nil {
		t.Error("expected RetryJob to reject a running job")
	}
	close(block)
}

func TestHasActiveJob(t *testing.T) {
	q := testQueue(t)

	block := make(chan struct{})
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		<-block
		return nil
	})

	active, err := q.HasActiveJob(JobSummarize, "rec-1")
	if err != nil {
		t.Fatalf("HasActiveJob: %v", err)
	}
	if active {
		t.Error("active job reported before enqueue")
	}

	j, _ := q.Enqueue(JobSummarize, "rec-1", SummarizeParams{TranscriptionID: "rec-1"})

	active, err = q.HasActiveJob(JobSummarize, "rec-1")
	if err != nil {
		t.Fatalf("HasActiveJob: %v", err)
	}
	if !active {
		t.Error("active job not reported")
	}

	close(block)
	waitForStatus(t, q, j.ID, StatusCompleted)

	active, _ = q.HasActiveJob(JobSummarize, "rec-1")
	if active {
		t.Error("completed job still reported active")
	}
}

func TestStartupResetsStaleRunningJobs(t *testing.T) {
	database, err := db.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	// A row left running by a process that died mid-job
	_, err = database.DB().Exec(`
		INSERT INTO jobs (id, type, status, record_id, params, progress, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		"stale-1", JobSummarize, StatusRunning, "rec-1", `{"transcription_id":"rec-1"}`, time.Now(),
	)
	if err != nil {
		t.Fatalf("insert stale job: %v", err)
	}

	q := NewJobQueue(database.DB())
	t.Cleanup(q.Stop)

	// The reset happens before the constructor returns, so the row can no
	// longer claim the dead process's worker.
	j, err := q.GetJob("stale-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status == StatusRunning {
		t.Errorf("stale running job not reset, status = %s", j.Status)
	}
}

func TestRunningJobSurvivesStartupRecovery(t *testing.T) {
	q := testQueue(t)

	block := make(chan struct{})
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		<-block
		return nil
	})

	j, err := q.Enqueue(JobSummarize, "rec-1", SummarizeParams{TranscriptionID: "rec-1"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForStatus(t, q, j.ID, StatusRunning)

	// Recovery only touches rows from a previous process; a job that went
	// running after construction must never be demoted back to pending.
	time.Sleep(50 * time.Millisecond)
	got, err := q.GetJob(j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("running job demoted to %s", got.Status)
	}

	close(block)
	waitForStatus(t, q, j.ID, StatusCompleted)
}

func TestCancelRunningJob(t *testing.T) {
	q := testQueue(t)

	block := make(chan struct{})
	q.RegisterHandler(JobSummarize, func(ctx context.Context, j *Job, updateProgress func(float64)) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-block:
			return nil
		}
	})

	j, _ := q.Enqueue(JobSummarize, "rec-1", SummarizeParams{TranscriptionID: "rec-1"})
	waitForStatus(t, q, j.ID, StatusRunning)

	if err := q.CancelJob(j.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	waitForStatus(t, q, j.ID, StatusCancelled)
	close(block)
}
