package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/voice-memo/backend/internal/db"
	"github.com/voice-memo/backend/internal/db/models"
	"github.com/voice-memo/backend/internal/job"
	"github.com/voice-memo/backend/internal/transcribe"
)

// Transcriber converts raw audio bytes into a transcript with diarized
// segments. Implemented by the Deepgram client.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*transcribe.Result, error)
}

type TranscriptionHandler struct {
	database    *db.Database
	transcriber Transcriber
	queue       *job.JobQueue
	maxUpload   int64
}

func NewTranscriptionHandler(database *db.Database, transcriber Transcriber, queue *job.JobQueue, maxUpload int64) *TranscriptionHandler {
	return &TranscriptionHandler{
		database:    database,
		transcriber: transcriber,
		queue:       queue,
		maxUpload:   maxUpload,
	}
}

// ProcessAudio ingests an uploaded audio blob: one synchronous transcription
// call, then a new record in processing state with a summary job scheduled.
// On any provider error no record is created.
func (h *TranscriptionHandler) ProcessAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("audio")
	if err != nil {
		jsonError(w, "no audio file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "failed to read audio file", http.StatusBadRequest)
		return
	}
	if len(audio) == 0 {
		jsonError(w, "no audio file provided", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)

	result, err := h.transcriber.Transcribe(r.Context(), audio, contentType)
	if err != nil {
		var provErr *transcribe.ProviderError
		if errors.As(err, &provErr) {
			jsonError(w, provErr.Error(), http.StatusBadGateway)
			return
		}
		jsonError(w, "transcription failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.createAndSchedule(w, result.Text, result.Segments, duration)
}

type createRequest struct {
	Content         string                  `json:"content"`
	SpeakerSegments []models.SpeakerSegment `json:"speaker_segments"`
	Duration        float64                 `json:"duration"`
}

// Create makes a record from already-transcribed text, no provider call.
// The record still goes through the summary pipeline.
func (h *TranscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.createAndSchedule(w, req.Content, req.SpeakerSegments, req.Duration)
}

func (h *TranscriptionHandler) createAndSchedule(w http.ResponseWriter, content string, segments []models.SpeakerSegment, duration float64) {
	rec, err := h.database.CreateTranscription(content, segments, duration)
	if err != nil {
		if errors.Is(err, db.ErrEmptyContent) {
			jsonError(w, "transcription content is empty", http.StatusUnprocessableEntity)
			return
		}
		jsonError(w, "failed to create transcription: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Best-effort dispatch: the record exists either way, and the sweep
	// re-triggers summary jobs for records stuck in processing.
	if _, err := h.queue.Enqueue(job.JobSummarize, rec.ID, job.SummarizeParams{TranscriptionID: rec.ID}); err != nil {
		log.Printf("[transcriptions] failed to schedule summary for %s: %v", rec.ID, err)
		jsonError(w, "transcription created but summary scheduling failed", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]string{"id": rec.ID}, http.StatusCreated)
}

// Get returns the full record projection. Readers poll this until the
// status turns terminal; status and summary always move together.
func (h *TranscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		jsonError(w, "missing transcription ID", http.StatusBadRequest)
		return
	}

	rec, err := h.database.GetTranscription(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			jsonError(w, "transcription not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load transcription", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, rec, http.StatusOK)
}
