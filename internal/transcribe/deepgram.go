package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/voice-memo/backend/internal/db/models"
)

const deepgramListenURL = "https://api.deepgram.com/v1/listen"

// ProviderError is a non-success or malformed response from the speech
// provider. Ingestion surfaces it to the caller without retrying.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("deepgram API error (status %d): %s", e.StatusCode, e.Message)
}

// Result is the transcript extracted from one provider call. Segments may be
// empty when the provider returned no utterances; diarization is best-effort.
type Result struct {
	Text       string
	Segments   []models.SpeakerSegment
	Confidence float64
}

// KeyResolver returns the current Deepgram API key. Resolved per call so
// settings changes apply without a restart.
type KeyResolver func() string

// Client transcribes raw audio via the Deepgram listen API.
type Client struct {
	BaseURL    string
	resolveKey KeyResolver
	httpClient *http.Client
}

func NewClient(resolveKey KeyResolver) *Client {
	return &Client{
		BaseURL:    deepgramListenURL,
		resolveKey: resolveKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// listenResponse is the subset of Deepgram's response the pipeline consumes.
// Typed up front so a malformed payload fails here rather than producing
// null-valued fields downstream.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Speaker    int     `json:"speaker"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe sends the audio bytes to the provider once and extracts the
// transcript and diarized utterances. A single attempt per ingestion.
func (c *Client) Transcribe(ctx context.Context, audio []byte, contentType string) (*Result, error) {
	apiKey := c.resolveKey()
	if apiKey == "" {
		return nil, fmt.Errorf("Deepgram API key not configured")
	}

	query := url.Values{}
	query.Set("punctuate", "true")
	query.Set("diarize", "true")
	query.Set("utterances", "true")
	query.Set("smart_format", "true")

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"?"+query.Encode(), bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Token "+apiKey)
	httpReq.Header.Set("Content-Type", contentType)

	log.Printf("[deepgram] transcribing %d bytes (%s)", len(audio), contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var parsed listenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "unparseable response: " + err.Error()}
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: "malformed response: no transcript alternatives"}
	}
	alt := parsed.Results.Channels[0].Alternatives[0]

	segments := make([]models.SpeakerSegment, 0, len(parsed.Results.Utterances))
	for _, u := range parsed.Results.Utterances {
		segments = append(segments, models.SpeakerSegment{
			Speaker: u.Speaker,
			Start:   u.Start,
			End:     u.End,
			Text:    u.Transcript,
		})
	}

	return &Result{
		Text:       alt.Transcript,
		Segments:   segments,
		Confidence: alt.Confidence,
	}, nil
}
