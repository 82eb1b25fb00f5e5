package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/models"
	"github.com/voicelinehq/voiceline/internal/services"
)

func newTestLLM(t *testing.T, baseURL string) *services.LLM {
	t.Helper()

	llm, err := services.NewLLM(config.OpenAIConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewLLM returned error: %v", err)
	}

	return llm
}

func TestNewLLMRequiresAPIKey(t *testing.T) {
	_, err := services.NewLLM(config.OpenAIConfig{BaseURL: "http://localhost"}, zap.NewNop().Sugar())
	if !errors.Is(err, services.ErrAPIKeyRequired) {
		t.Fatalf("expected ErrAPIKeyRequired, got %v", err)
	}
}

func TestGenerateSendsSystemPromptFirst(t *testing.T) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	var got struct {
		Model       string    `json:"model"`
		Messages    []message `json:"messages"`
		Temperature float64   `json:"temperature"`
		MaxTokens   int       `json:"max_tokens"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Sure, one moment."}}]}`)
	}))
	defer server.Close()

	llm := newTestLLM(t, server.URL)

	reply, err := llm.Generate(context.Background(), services.GenerateRequest{
		SystemPrompt: "You are a receptionist.",
		Turns: []models.Turn{
			{Role: models.RoleUser, Content: "Book me in for Tuesday."},
		},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if reply != "Sure, one moment." {
		t.Errorf("reply = %q", reply)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "You are a receptionist." {
		t.Errorf("first message = %+v, want the system prompt", got.Messages[0])
	}
	if got.Messages[1].Role != "user" {
		t.Errorf("second message role = %q, want user", got.Messages[1].Role)
	}
	if got.MaxTokens != 150 {
		t.Errorf("max_tokens = %d, want the fixed reply budget 150", got.MaxTokens)
	}
	if got.Temperature != 0.7 {
		t.Errorf("temperature = %v, want default 0.7", got.Temperature)
	}
}

func TestGenerateEmptyContentIsNotAnError(t *testing.T) {
	bodies := []string{
		`{"choices":[{"message":{"role":"assistant","content":""}}]}`,
		`{"choices":[]}`,
	}

	for _, body := range bodies {
		body := body
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))

		llm := newTestLLM(t, server.URL)
		reply, err := llm.Generate(context.Background(), services.GenerateRequest{
			Turns: []models.Turn{{Role: models.RoleUser, Content: "hello"}},
		})
		server.Close()

		if err != nil {
			t.Errorf("body %s: unexpected error %v", body, err)
		}
		if reply != "" {
			t.Errorf("body %s: reply = %q, want empty", body, reply)
		}
	}
}

func TestGenerateProviderFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":{"code":"upstream_down","message":"model unavailable"}}`)
	}))
	defer server.Close()

	llm := newTestLLM(t, server.URL)

	_, err := llm.Generate(context.Background(), services.GenerateRequest{
		Turns: []models.Turn{{Role: models.RoleUser, Content: "hello"}},
	})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Errorf("error %q does not carry the provider message", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want exactly 1 (no retries)", got)
	}
}

func sseBody(fragments []string) string {
	var b strings.Builder
	for _, fragment := range fragments {
		chunk, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]any{"content": fragment}}},
		})
		fmt.Fprintf(&b, "data: %s\n\n", chunk)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestGenerateStreamingDeliversFragmentsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !payload.Stream {
			t.Errorf("expected stream:true request, err=%v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody([]string{"Hel", "lo", ""}))
	}))
	defer server.Close()

	llm := newTestLLM(t, server.URL)

	var delivered []string
	err := llm.GenerateStreaming(context.Background(), services.GenerateRequest{
		Turns: []models.Turn{{Role: models.RoleUser, Content: "hi"}},
	}, func(fragment string) {
		delivered = append(delivered, fragment)
	})
	if err != nil {
		t.Fatalf("GenerateStreaming returned error: %v", err)
	}

	// the empty trailing fragment is suppressed
	want := []string{"Hel", "lo"}
	if len(delivered) != len(want) {
		t.Fatalf("delivered %v, want %v", delivered, want)
	}
	for i := range want {
		if delivered[i] != want[i] {
			t.Fatalf("delivered %v, want %v", delivered, want)
		}
	}
}

func TestStreamRecvEOFAfterDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody([]string{"only"}))
	}))
	defer server.Close()

	llm := newTestLLM(t, server.URL)

	stream, err := llm.Stream(context.Background(), services.GenerateRequest{
		Turns: []models.Turn{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	defer stream.Close()

	fragment, err := stream.Recv()
	if err != nil || fragment != "only" {
		t.Fatalf("first Recv = (%q, %v)", fragment, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
			t.Fatalf("Recv after done = %v, want io.EOF", err)
		}
	}
}

func TestGenerateStreamingProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	llm := newTestLLM(t, server.URL)

	err := llm.GenerateStreaming(context.Background(), services.GenerateRequest{
		Turns: []models.Turn{{Role: models.RoleUser, Content: "hi"}},
	}, func(string) {
		t.Error("no fragments expected on provider failure")
	})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"late"}}]}`)
	}))
	defer server.Close()

	llm := newTestLLM(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.Generate(ctx, services.GenerateRequest{
		Turns: []models.Turn{{Role: models.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected ErrProvider from cancelled call, got %v", err)
	}
	// the cause stays in the chain so handlers can map timeouts separately
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in the chain, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := services.EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
	if got := services.EstimateTokens("abcd"); got != 1 {
		t.Errorf("EstimateTokens(4 chars) = %d, want 1", got)
	}
	if got := services.EstimateTokens("abcde"); got != 2 {
		t.Errorf("EstimateTokens(5 chars) = %d, want 2", got)
	}

	// runes, not bytes
	if got := services.EstimateTokens("日本語です"); got != 2 {
		t.Errorf("EstimateTokens(5 runes) = %d, want 2", got)
	}

	// monotonic non-decreasing in input length
	prev := 0
	text := ""
	for i := 0; i < 64; i++ {
		text += "x"
		cur := services.EstimateTokens(text)
		if cur < prev {
			t.Fatalf("EstimateTokens decreased at length %d: %d -> %d", i+1, prev, cur)
		}
		prev = cur
	}
}
