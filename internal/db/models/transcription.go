package models

import "time"

// TranscriptionStatus is the lifecycle state of a transcription record.
type TranscriptionStatus string

const (
	StatusProcessing TranscriptionStatus = "processing"
	StatusCompleted  TranscriptionStatus = "completed"
	StatusFailed     TranscriptionStatus = "failed"
)

// Terminal reports whether no further status transitions are permitted.
func (s TranscriptionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SpeakerSegment is one diarized utterance attributed to a speaker.
type SpeakerSegment struct {
	Speaker int     `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Transcription is one audio-to-text-to-summary lifecycle.
// Summary is empty until the summary job transitions the record out of
// processing; after that both fields are immutable.
type Transcription struct {
	ID              string              `json:"id"`
	Content         string              `json:"content"`
	SpeakerSegments []SpeakerSegment    `json:"speaker_segments"`
	Duration        float64             `json:"duration"`
	Summary         string              `json:"summary"`
	Status          TranscriptionStatus `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}
