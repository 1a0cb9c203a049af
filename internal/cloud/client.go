// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/vaultchat/internal/model"
)

// Configuration constants for the Messages API.
const (
	// DefaultBaseURL is the base URL of the Anthropic API.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"

	// DefaultMaxTokens bounds the reply length when none is configured.
	DefaultMaxTokens = 4096

	// DefaultMaxRetries is the default number of retry attempts for transient errors.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the base delay for exponential backoff.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	userAgent = "vaultchat/0.1.0"
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// No client timeout; callers bound requests through the context.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrOverloaded indicates the API is temporarily overloaded.
	ErrOverloaded = errors.New("API overloaded")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidRequest indicates the API rejected the request body.
	ErrInvalidRequest = errors.New("invalid request")
)

// APIError is an error response from the Messages API.
type APIError struct {
	Type      string
	Message   string
	Status    int
	RequestID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error [%s] (HTTP %d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// Unwrap maps the HTTP status to one of the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrAuthFailed
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status == 529 || e.Type == "overloaded_error":
		return ErrOverloaded
	case e.Status == http.StatusNotFound:
		return ErrModelNotFound
	case e.Status == http.StatusBadRequest:
		return ErrInvalidRequest
	}
	return nil
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// messagesRequest is the body of POST /v1/messages.
type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []model.Message `json:"messages"`
}

// Usage reports token counts for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// messagesResponse is the body of a successful reply.
type messagesResponse struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Role       string            `json:"role"`
	Content    []json.RawMessage `json:"content"`
	StopReason string            `json:"stop_reason"`
	Usage      Usage             `json:"usage"`
}

type apiErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string

	// Model is an alias from Models or a full model ID.
	Model     string
	MaxTokens int

	MaxRetries     int
	RetryBaseDelay time.Duration

	// RequestsPerMinute caps outgoing requests. Zero means unlimited.
	RequestsPerMinute int

	// HTTPClient overrides the shared pooled client.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client sends conversations to the Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	maxRetries int
	retryBase  time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client. A client without an API key is valid, but
// Complete fails with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		model:      ResolveModel(cfg.Model),
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBaseDelay,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.retryBase <= 0 {
		c.retryBase = DefaultRetryBaseDelay
	}
	if c.httpClient == nil {
		c.httpClient = sharedHTTPClient
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	c.limiter = rate.NewLimiter(limit, 1)
	return c
}

// Model returns the resolved model ID.
func (c *Client) Model() string {
	return c.model
}

// IsConfigured returns true if the client has an API key configured.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// KeyFingerprint identifies the API key in logs without exposing it.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// Complete sends the conversation and returns the assistant's reply.
//
// Rate-limited, overloaded and 5xx responses are retried with exponential
// backoff, honoring Retry-After. Context cancellation is returned as is.
func (c *Client) Complete(ctx context.Context, messages []model.Message) (model.Message, error) {
	if !c.IsConfigured() {
		return model.Message{}, ErrNotConfigured
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  model.ForWire(messages),
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	requestID := uuid.NewString()
	logger := c.logger.With(
		zap.String("request_id", requestID),
		zap.String("model", c.model),
		zap.String("key", c.KeyFingerprint()))

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, lastErr)
			logger.Debug("retrying completion",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return model.Message{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.Message{}, ctxErr
			}
			// The limiter refuses waits that would outlast the deadline
			return model.Message{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}

		resp, err := c.do(ctx, requestID, body, logger)
		if err == nil {
			logger.Info("completion received",
				zap.String("stop_reason", resp.StopReason),
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens))
			return toMessage(resp), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Message{}, ctxErr
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return model.Message{}, err
		}
		lastErr = err
	}

	return model.Message{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs a single request.
func (c *Client) do(ctx context.Context, requestID string, body []byte, logger *zap.Logger) (*messagesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", APIVersion)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("user-agent", userAgent)
	req.Header.Set("x-request-id", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Headers and bodies are never logged; they carry the key and user content
	logger.Debug("API response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp, data)
	}

	var out messagesResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// newAPIError builds the error for a non-200 response. A Retry-After
// header wraps it in a retryAfterError; errors.As still reaches *APIError.
func newAPIError(resp *http.Response, body []byte) error {
	apiErr := &APIError{
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get("request-id"),
	}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Type = parsed.Error.Type
		apiErr.Message = parsed.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}

	if secs, err := strconv.Atoi(resp.Header.Get("retry-after")); err == nil && secs >= 0 {
		return &retryAfterError{APIError: apiErr, after: time.Duration(secs) * time.Second}
	}
	return apiErr
}

// retryAfterError carries a server-suggested delay alongside the API error.
type retryAfterError struct {
	*APIError
	after time.Duration
}

// Unwrap exposes the API error to errors.As.
func (e *retryAfterError) Unwrap() error {
	return e.APIError
}

// backoff returns the delay before the given attempt.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	delay := c.retryBase * time.Duration(1<<uint(attempt-1))
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.after > delay {
		delay = ra.after
	}
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// toMessage decodes reply content into an assistant message.
func toMessage(resp *messagesResponse) model.Message {
	blocks := make([]model.Block, 0, len(resp.Content))
	for _, raw := range resp.Content {
		blocks = append(blocks, model.CoerceBlock(raw))
	}
	return model.NewMessage(model.RoleAssistant, blocks...)
}
