package job

import (
	"context"
	"log"
	"time"
)

// StuckLister finds transcription records that never reached a terminal
// state. Implemented by the db package.
type StuckLister interface {
	StuckTranscriptionIDs(cutoff time.Time) ([]string, error)
}

// Sweeper periodically reconciles the queue with the record store: persisted
// pending jobs that missed the dispatch channel are re-queued, and records
// stuck in processing with no live summary job get a fresh one. Record
// creation and job scheduling are not transactional, so this pass is what
// guarantees every processing record eventually converges to a terminal
// state.
type Sweeper struct {
	queue    *JobQueue
	store    StuckLister
	interval time.Duration
	minAge   time.Duration
}

func NewSweeper(queue *JobQueue, store StuckLister, interval, minAge time.Duration) *Sweeper {
	return &Sweeper{queue: queue, store: store, interval: interval, minAge: minAge}
}

// Run sweeps until the context is cancelled. Call in a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep performs one reconciliation pass.
func (s *Sweeper) Sweep() {
	s.queue.requeuePending()

	// minAge keeps the sweep from racing a job that was just enqueued
	cutoff := time.Now().Add(-s.minAge)
	ids, err := s.store.StuckTranscriptionIDs(cutoff)
	if err != nil {
		log.Printf("[sweep] failed to list stuck transcriptions: %v", err)
		return
	}

	for _, id := range ids {
		active, err := s.queue.HasActiveJob(JobSummarize, id)
		if err != nil {
			log.Printf("[sweep] failed to check jobs for %s: %v", id, err)
			continue
		}
		if active {
			continue
		}
		if _, err := s.queue.Enqueue(JobSummarize, id, SummarizeParams{TranscriptionID: id}); err != nil {
			log.Printf("[sweep] failed to re-enqueue summary for %s: %v", id, err)
			continue
		}
		log.Printf("[sweep] re-enqueued summary job for stuck transcription %s", id)
	}
}
