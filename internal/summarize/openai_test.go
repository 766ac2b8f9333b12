package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func staticCreds(key, model string) CredentialResolver {
	return func() (string, string) { return key, model }
}

func chatCompletion(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestSummarizeNoCredentialUsesFallback(t *testing.T) {
	c := NewClient(staticCreds("", "gpt-4o"))
	c.BaseURL = "http://127.0.0.1:0" // must never be called

	got, err := c.Summarize(context.Background(), "One. Two. Three. Four.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "One. Two. Three." {
		t.Errorf("got %q, want fallback summary", got)
	}
}

func TestSummarizeEmptyTextReturnsEmpty(t *testing.T) {
	c := NewClient(staticCreds("sk-test", "gpt-4o"))
	c.BaseURL = "http://127.0.0.1:0"

	got, err := c.Summarize(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty summary for empty text", got)
	}
}

func TestSummarizeSuccess(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write([]byte(chatCompletion("A concise summary.")))
	}))
	defer srv.Close()

	c := NewClient(staticCreds("sk-test", "gpt-4o"))
	c.BaseURL = srv.URL

	got, err := c.Summarize(context.Background(), "Long conversation text.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "A concise summary." {
		t.Errorf("got %q", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotModel != "gpt-4o" {
		t.Errorf("model = %q", gotModel)
	}
}

func TestSummarizePermanentErrorFallsBackImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c := NewClient(staticCreds("sk-bad", "gpt-4o"))
	c.BaseURL = srv.URL

	got, err := c.Summarize(context.Background(), "First. Second. Third. Fourth.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "First. Second. Third." {
		t.Errorf("got %q, want fallback summary", got)
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1 (4xx is not retried)", calls)
	}
}

func TestSummarizeRetriesTransientError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		w.Write([]byte(chatCompletion("Recovered summary.")))
	}))
	defer srv.Close()

	c := NewClient(staticCreds("sk-test", "gpt-4o"))
	c.BaseURL = srv.URL

	got, err := c.Summarize(context.Background(), "Some text.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Recovered summary." {
		t.Errorf("got %q", got)
	}
	if calls != 2 {
		t.Errorf("provider called %d times, want 2", calls)
	}
}

func TestSummarizeEmptyChoicesFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(staticCreds("sk-test", "gpt-4o"))
	c.BaseURL = srv.URL

	got, err := c.Summarize(context.Background(), "Alpha. Beta. Gamma. Delta.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Alpha. Beta. Gamma." {
		t.Errorf("got %q, want fallback summary", got)
	}
}

func TestSummarizeCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletion("too late")))
	}))
	defer srv.Close()

	c := NewClient(staticCreds("sk-test", "gpt-4o"))
	c.BaseURL = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Summarize(ctx, "Some text.")
	if err == nil || !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("err = %v, want context cancellation", err)
	}
}
