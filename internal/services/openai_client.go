package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const providerHTTPTimeout = 20 * time.Second

// ErrProvider marks transport or provider-side failures of the chat
// completion API. Callers needing resilience retry above this layer; the
// service itself never does.
var ErrProvider = errors.New("services: provider error")

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type providerAPIError struct {
	Code    string `json:"code,omitempty"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

type providerErrorEnvelope struct {
	Error *providerAPIError `json:"error,omitempty"`
}

func newDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: providerHTTPTimeout}
}

func decodeProviderError(body []byte) *providerAPIError {
	if len(body) == 0 {
		return nil
	}

	var envelope providerErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}

func buildProviderError(statusCode int, body []byte) error {
	if apiErr := decodeProviderError(body); apiErr != nil {
		if apiErr.Code != "" && apiErr.Message != "" {
			return fmt.Errorf("%w (%d, %s): %s", ErrProvider, statusCode, apiErr.Code, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%w (%d): %s", ErrProvider, statusCode, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("%w (%d, %s)", ErrProvider, statusCode, apiErr.Code)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("%w (%d): %s", ErrProvider, statusCode, snippet)
}
