package projectapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/gema-groupwork/internal/middleware"
	"github.com/noah-isme/gema-groupwork/internal/observability"
)

// APIKeyHeader carries the shared secret expected by the project service.
const APIKeyHeader = "X-Edx-Api-Key"

// DefaultTimeout bounds every outbound call. There is no retry at this layer.
const DefaultTimeout = 20 * time.Second

// Config configures the project service client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	DryRun  bool
}

// Client is a typed wrapper over the project service JSON API.
type Client struct {
	baseURL *url.URL
	apiKey  string
	dryRun  bool
	http    *http.Client
	logger  zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// New constructs a client. Outbound requests are traced through an otelhttp transport.
func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" && !cfg.DryRun {
		return nil, errors.New("project api base url is required")
	}
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid project api base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := &Client{
		baseURL: parsed,
		apiKey:  cfg.APIKey,
		dryRun:  cfg.DryRun,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "project_api").Logger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// DryRun reports whether calls are short-circuited.
func (c *Client) DryRun() bool {
	return c.dryRun
}

func (c *Client) resolve(path string, query url.Values) string {
	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return c.baseURL.ResolveReference(ref).String()
}

// send performs one request and returns the raw response body. endpoint is the path template used
// as the metrics label. In dry-run mode it returns an empty JSON object without touching the network.
func (c *Client) send(ctx context.Context, method, endpoint, target string, payload any) ([]byte, error) {
	if c.dryRun {
		return []byte("{}"), nil
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, c.fail(method, endpoint, &APIError{Message: "encode request", Err: err})
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, c.fail(method, endpoint, &APIError{Message: "build request", Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	if correlationID := middleware.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationHeader, correlationID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ProjectAPILatency().WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProjectAPIRequests().WithLabelValues(method, endpoint, "transport_error").Inc()
		return nil, c.fail(method, endpoint, &APIError{Message: "transport error", Err: err})
	}
	defer resp.Body.Close()

	observability.ProjectAPIRequests().WithLabelValues(method, endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(method, endpoint, &APIError{Code: resp.StatusCode, Message: "read response", Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Code:    resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
		var parsed map[string]any
		if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
			apiErr.Body = parsed
			if detail, ok := parsed["detail"].(string); ok && detail != "" {
				apiErr.Message = detail
			}
		}
		return nil, c.fail(method, endpoint, apiErr)
	}

	return raw, nil
}

func (c *Client) fail(method, endpoint string, apiErr *APIError) error {
	event := c.logger.Error()
	if apiErr.Code == http.StatusConflict || apiErr.Code == http.StatusNotFound {
		event = c.logger.Warn()
	}
	event.Err(apiErr.Err).
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", apiErr.Code).
		Str("message", apiErr.Message).
		Msg("project api call failed")
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	raw, err := c.send(ctx, http.MethodGet, endpoint, c.resolve(path, query), nil)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint, path string, payload, out any) error {
	raw, err := c.send(ctx, http.MethodPost, endpoint, c.resolve(path, nil), payload)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func (c *Client) putJSON(ctx context.Context, endpoint, path string, payload, out any) error {
	raw, err := c.send(ctx, http.MethodPut, endpoint, c.resolve(path, nil), payload)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

// deleteResource issues a DELETE. The response body is ignored.
func (c *Client) deleteResource(ctx context.Context, endpoint, path string) error {
	_, err := c.send(ctx, http.MethodDelete, endpoint, c.resolve(path, nil), nil)
	return err
}

func decode(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &APIError{Message: "decode response", Err: err}
	}
	return nil
}

// listEnvelope is the paged shape some list endpoints answer with.
type listEnvelope[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// decodeList accepts either a bare JSON array or a {"results": [...]} envelope.
func decodeList[T any](raw []byte) ([]T, *string, error) {
	trimmed := bytes.TrimSpace(raw)
	items := make([]T, 0)
	if len(trimmed) == 0 {
		return items, nil, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, &APIError{Message: "decode list", Err: err}
		}
		return items, nil, nil
	}

	var envelope listEnvelope[T]
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, nil, &APIError{Message: "decode list", Err: err}
	}
	if envelope.Results != nil {
		items = envelope.Results
	}
	if envelope.Next != nil && strings.TrimSpace(*envelope.Next) == "" {
		envelope.Next = nil
	}
	return items, envelope.Next, nil
}

// maxListPages bounds how many next cursors a single listing follows.
const maxListPages = 1000

// getList fetches a listing and follows next cursors until the last page.
func getList[T any](ctx context.Context, c *Client, endpoint, path string, query url.Values) ([]T, error) {
	items := make([]T, 0)
	target := c.resolve(path, query)
	for pages := 0; target != ""; pages++ {
		if pages >= maxListPages {
			return nil, &APIError{Message: fmt.Sprintf("%s paging exceeded %d pages", endpoint, maxListPages)}
		}

		raw, err := c.send(ctx, http.MethodGet, endpoint, target, nil)
		if err != nil {
			return nil, err
		}
		page, next, err := decodeList[T](raw)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)

		target = ""
		if next != nil {
			target = c.followNext(*next)
			if target == "" {
				c.logger.Warn().Str("endpoint", endpoint).Str("next", *next).Msg("ignoring unparseable next cursor")
			}
		}
	}
	return items, nil
}
