package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestComplete_ReturnsAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad request: %v", err)
		}
		msgs := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("expected system+user messages, got %d", len(msgs))
		}
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Stealth addresses keep payments private.  "}}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	got, err := o.Complete(context.Background(), "you are a payments assistant", "what is a stealth address?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Stealth addresses keep payments private." {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestComplete_EmptyChoicesMeansNoAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	got, err := o.Complete(context.Background(), "sys", "hi")
	if err != nil {
		t.Fatalf("empty choices is not an error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty answer, got %q", got)
	}
}

func TestComplete_TruncatesLongAnswers(t *testing.T) {
	long := strings.Repeat("word ", 400)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": long}}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	got, err := o.Complete(context.Background(), "sys", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > maxReplyChars {
		t.Fatalf("answer not truncated: %d chars", len(got))
	}
}
