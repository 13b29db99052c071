// Copyright 2026 The Flightdeck Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Chat is the interface for chat completion backends. Implementations
// translate between the canonical types in this package and a
// vendor's wire format.
type Chat interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)
}

// ProviderError is returned when the backend responds with a non-200
// status. The turn loop inspects it to distinguish retryable rate
// limits (429) from malformed requests (400); every other status is
// fatal and propagates.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "rate_limit_error", "invalid_request_error").
	Type string

	// Message is the human-readable error description.
	Message string

	// Headers are the raw response headers. 429 responses may carry
	// rate-limit ceiling headers worth learning from.
	Headers http.Header
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports whether the error is a rate limit response
// (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// IsInvalidRequest reports whether the error is a malformed-request
// response (HTTP 400). The turn loop aborts the mission immediately
// on these: retrying an invalid conversation cannot succeed.
func (err *ProviderError) IsInvalidRequest() bool {
	return err.StatusCode == http.StatusBadRequest
}

// AsProviderError unwraps err to a *ProviderError if one is in its
// chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var providerError *ProviderError
	if errors.As(err, &providerError) {
		return providerError, true
	}
	return nil, false
}

// doProviderRequest marshals wireRequest as JSON, POSTs it to
// endpoint, and returns the HTTP response. Non-200 statuses become a
// *ProviderError with the response headers attached.
//
// On success the caller is responsible for closing the response body.
// On error the body is already closed.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint string, wireRequest any, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// readProviderError parses an error response body in the common
// provider error format: {"error":{"type":"...","message":"..."}}.
// Extra fields in the error object (OpenAI's "code" and "param") are
// silently ignored.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	providerError := &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Headers:    httpResponse.Header,
	}

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		providerError.Type = wireError.Error.Type
		providerError.Message = wireError.Error.Message
		return providerError
	}

	providerError.Message = string(body)
	return providerError
}
