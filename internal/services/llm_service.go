package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/voicelinehq/voiceline/config"
	"github.com/voicelinehq/voiceline/internal/models"
)

const (
	// replyTokenBudget caps completion length. Voice replies must stay short
	// enough to synthesise and speak inside the turn latency target.
	replyTokenBudget = 150

	defaultTemperature = 0.7
)

// ErrAPIKeyRequired is returned at construction when no provider credential
// is configured.
var ErrAPIKeyRequired = errors.New("services: provider api key is required")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatAPIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatAPIChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string            `json:"id"`
	Choices []chatAPIChoice   `json:"choices"`
	Error   *providerAPIError `json:"error,omitempty"`
}

type chatStreamDelta struct {
	Content string `json:"content"`
}

type chatStreamChoice struct {
	Delta        chatStreamDelta `json:"delta"`
	FinishReason string          `json:"finish_reason"`
}

type chatStreamChunk struct {
	Choices []chatStreamChoice `json:"choices"`
	Error   *providerAPIError  `json:"error,omitempty"`
}

// GenerateRequest carries the inputs of one completion: the ordered
// conversation so far, the agent's persona prompt, and an optional
// temperature (0 means the default).
type GenerateRequest struct {
	Turns        []models.Turn
	SystemPrompt string
	Temperature  float64
}

// LLM produces agent replies through an OpenAI-compatible chat completion
// API. The handle holds no per-call state and is safe to share across
// concurrent requests.
type LLM struct {
	baseURL string
	model   string
	apiKey  string
	client  httpDoer
	logger  *zap.SugaredLogger
}

// NewLLM validates the provider credential and returns a configured service.
func NewLLM(cfg config.OpenAIConfig, logger *zap.SugaredLogger) (*LLM, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &LLM{
		baseURL: base,
		model:   model,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  newDefaultHTTPClient(),
		logger:  logger,
	}, nil
}

func (s *LLM) buildPayload(req GenerateRequest, stream bool) chatAPIRequest {
	messages := make([]chatMessage, 0, len(req.Turns)+1)
	if prompt := strings.TrimSpace(req.SystemPrompt); prompt != "" {
		messages = append(messages, chatMessage{Role: string(models.RoleSystem), Content: prompt})
	}
	for _, turn := range req.Turns {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	return chatAPIRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   replyTokenBudget,
		Stream:      stream,
	}
}

func (s *LLM) newRequest(ctx context.Context, payload chatAPIRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+s.apiKey)
	request.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		request.Header.Set("Accept", "text/event-stream")
	}

	return request, nil
}

func (s *LLM) fail(err error) error {
	s.logger.Errorw("chat completion failed", "model", s.model, "error", err)
	return err
}

// Generate requests one complete reply. It returns the reply text, or the
// empty string when the provider answers without content; that is a valid
// outcome, not an error.
func (s *LLM) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	request, err := s.newRequest(ctx, s.buildPayload(req, false))
	if err != nil {
		return "", err
	}

	response, err := s.client.Do(request)
	if err != nil {
		// %w on err keeps context.DeadlineExceeded visible to status mapping
		return "", s.fail(fmt.Errorf("%w: call chat api: %w", ErrProvider, err))
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", s.fail(fmt.Errorf("%w: read chat response: %w", ErrProvider, err))
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", s.fail(buildProviderError(response.StatusCode, respBody))
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", s.fail(fmt.Errorf("%w: decode chat response: %v", ErrProvider, err))
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", s.fail(fmt.Errorf("%w: %s", ErrProvider, apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return "", nil
	}

	return apiResp.Choices[0].Message.Content, nil
}

// CompletionStream yields reply fragments in provider order. It is finite
// and not restartable; Close releases the underlying connection.
type CompletionStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv returns the next non-empty fragment, or io.EOF once the provider
// signals completion.
func (cs *CompletionStream) Recv() (string, error) {
	if cs.done {
		return "", io.EOF
	}

	for cs.scanner.Scan() {
		line := strings.TrimSpace(cs.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			cs.done = true
			return "", io.EOF
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			cs.done = true
			return "", fmt.Errorf("%w: decode stream chunk: %v", ErrProvider, err)
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			cs.done = true
			return "", fmt.Errorf("%w: %s", ErrProvider, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		// empty fragments are suppressed, not delivered
		if fragment := chunk.Choices[0].Delta.Content; fragment != "" {
			return fragment, nil
		}
	}

	cs.done = true
	if err := cs.scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: read stream: %w", ErrProvider, err)
	}

	return "", io.EOF
}

func (cs *CompletionStream) Close() error {
	cs.done = true
	return cs.body.Close()
}

// Stream issues the completion in streaming mode and hands back a lazy
// fragment stream. The request context stays attached to the connection, so
// cancelling it aborts generation mid-flight.
func (s *LLM) Stream(ctx context.Context, req GenerateRequest) (*CompletionStream, error) {
	request, err := s.newRequest(ctx, s.buildPayload(req, true))
	if err != nil {
		return nil, err
	}

	response, err := s.client.Do(request)
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: call chat api: %w", ErrProvider, err))
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		response.Body.Close()
		return nil, s.fail(buildProviderError(response.StatusCode, respBody))
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &CompletionStream{body: response.Body, scanner: scanner}, nil
}

// GenerateStreaming delivers fragments to onChunk in arrival order and does
// not return until the provider signals completion. Fragments already
// delivered are not retracted when the stream fails part-way.
func (s *LLM) GenerateStreaming(ctx context.Context, req GenerateRequest, onChunk func(string)) error {
	stream, err := s.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return s.fail(err)
		}

		onChunk(fragment)
	}
}

// EstimateTokens approximates the provider tokenizer as one token per four
// characters, rounded up. It is meant for cheap local budget checks, not as
// a substitute for provider-reported usage.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	return (utf8.RuneCountInString(text) + 3) / 4
}
