package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mosarlab/graphrag/internal/core/ports"
)

func TestCompleteSendsSystemAndUserMessages(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)
	}))
	defer server.Close()

	client := New(server.URL, "test-key", Options{ChatModel: "gpt-4o"})
	got, err := client.Complete(context.Background(), "system prompt", "user prompt",
		ports.CompletionOptions{Temperature: 0.3, MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Complete() = %q", got)
	}

	if len(captured.Messages) != 2 {
		t.Fatalf("messages = %+v, want system + user", captured.Messages)
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "system prompt" {
		t.Errorf("system message = %+v", captured.Messages[0])
	}
	if captured.Temperature != 0.3 || captured.MaxTokens != 100 {
		t.Errorf("options = temp %v max %d", captured.Temperature, captured.MaxTokens)
	}
}

func TestCompleteIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "", Options{})
	_, err := client.Complete(context.Background(), "", "question", ports.CompletionOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected response body in error, got %v", err)
	}
}

func TestEmbedQueryDegradesToZeroVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	client := New(server.URL, "", Options{EmbedDimension: 8})
	vec, err := client.EmbedQuery(context.Background(), "some text")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v, want degraded success", err)
	}
	if len(vec) != 8 {
		t.Fatalf("vector length = %d, want the configured dimension", len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("vec[%d] = %v, want zero", i, v)
		}
	}
}

func TestEmbedQueryReturnsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"embedding":[0.25,0.5,0.75]}]}`)
	}))
	defer server.Close()

	client := New(server.URL, "", Options{})
	vec, err := client.EmbedQuery(context.Background(), "some text")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.5 {
		t.Fatalf("vector = %v", vec)
	}
}

func TestStreamDeliversDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := New(server.URL, "", Options{})
	chunks, err := client.Stream(context.Background(), "sys", "user", ports.CompletionOptions{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
	}
	if b.String() != "Hello" {
		t.Errorf("streamed text = %q", b.String())
	}
}

func TestStreamSetupErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(server.URL, "", Options{})
	_, err := client.Stream(context.Background(), "", "user", ports.CompletionOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unauthorized") {
		t.Errorf("err = %v", err)
	}
}
