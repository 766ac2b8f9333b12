package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

const systemPrompt = "You are a helpful assistant that summarizes conversations. " +
	"Provide a concise summary highlighting key points, decisions, and action items."

const (
	maxSummaryTokens = 500
	requestTimeout   = 90 * time.Second
	maxAttempts      = 3
	retryBackoff     = 2 * time.Second
)

// CredentialResolver returns the current OpenAI API key and summary model.
// Resolved per call so settings changes apply without a restart.
type CredentialResolver func() (apiKey, model string)

// Client produces a summary for a transcript. It never fails the caller on
// provider trouble: any non-success response, empty result, or missing
// credential resolves to the local fallback summary instead. The only error
// it returns is cancellation of the caller's context, so a summarization
// hiccup can never block the pipeline from reaching a terminal state.
type Client struct {
	BaseURL     string
	resolveCred CredentialResolver
	httpClient  *http.Client
}

func NewClient(resolveCred CredentialResolver) *Client {
	return &Client{
		BaseURL:     openAIChatURL,
		resolveCred: resolveCred,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// Summarize returns a summary of the text. Empty text yields an empty
// summary; a missing credential yields the fallback summary without any
// network call. Transient provider errors (429/5xx, transport failures,
// per-request timeout) are retried with backoff a bounded number of times,
// then resolve to the fallback; permanent 4xx errors go straight to it.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	apiKey, model := c.resolveCred()
	if apiKey == "" {
		return FallbackSummary(text), nil
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		summary, err := c.request(ctx, apiKey, model, text)
		if err == nil {
			if summary == "" {
				return FallbackSummary(text), nil
			}
			return summary, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isTransient(err) {
			log.Printf("[summarize] provider error, using fallback: %v", err)
			return FallbackSummary(text), nil
		}
		log.Printf("[summarize] attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}

	log.Printf("[summarize] provider unavailable after %d attempts, using fallback", maxAttempts)
	return FallbackSummary(text), nil
}

// statusError carries the provider's HTTP status for retry classification.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("OpenAI API error (status %d): %s", e.code, e.body)
}

// isTransient reports whether the error is worth retrying: rate limits,
// server errors, and transport failures. Other 4xx are permanent.
func isTransient(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

func (c *Client) request(ctx context.Context, apiKey, model, text string) (string, error) {
	reqBody := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": "Please summarize this conversation:\n\n" + text},
		},
		"max_tokens": maxSummaryTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(rctx, "POST", c.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("OpenAI API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode, body: string(body)}
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
