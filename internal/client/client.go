package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/muurk/forcedmode/internal/api"
	"github.com/muurk/forcedmode/internal/history"
)

const (
	// DefaultServer is used when neither --server nor FORCEDMODE_SERVER is set
	DefaultServer = "http://127.0.0.1:8080"

	// EnvServer names the environment variable holding the server URL
	EnvServer = "FORCEDMODE_SERVER"

	// DefaultTimeout is the default HTTP request timeout. An orchestration
	// includes the operate delay, so this is generous.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryDelay is the initial delay between Busy retries
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 10 * time.Second

	// maxErrorBody bounds how much of an error response is read
	maxErrorBody = 64 << 10
)

// Client talks to a forcedmode server.
type Client struct {
	// BaseURL is the server URL (e.g., "http://127.0.0.1:8080")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is how many times Orchestrate retries a retryable failure.
	// Zero means a single attempt.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// Dialer opens the event stream
	Dialer *websocket.Dialer
}

// New creates a client for the server at baseURL. An empty baseURL means
// DefaultServer; a bare host:port gets an http:// scheme.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultServer
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: DefaultTimeout},
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
		Dialer:        websocket.DefaultDialer,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Orchestrate asks the server to run the sequence once. Failures that show
// no run was started (device busy, connection never made) are retried with
// exponential backoff up to MaxRetries times. Anything else is returned at
// once: a timeout or a 5xx may come after the server already drove the
// device, and resending would run the sequence twice. onRetry, if non-nil,
// is told about each retry before the wait.
func (c *Client) Orchestrate(ctx context.Context, onRetry func(attempt int, wait time.Duration, err error)) (*history.Run, error) {
	var lastErr error
	delay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, delay, lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(delay):
			}

			delay *= 2
			if delay > c.MaxRetryDelay {
				delay = c.MaxRetryDelay
			}
		}

		run, err := c.orchestrateAttempt(ctx)
		if err == nil {
			return run, nil
		}
		lastErr = err

		if !notStarted(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) orchestrateAttempt(ctx context.Context) (*history.Run, error) {
	var run history.Run
	if err := c.do(ctx, http.MethodPost, api.PathOrchestrate, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Device returns the slot status.
func (c *Client) Device(ctx context.Context) (*api.DeviceStatus, error) {
	var st api.DeviceStatus
	if err := c.do(ctx, http.MethodGet, api.PathDevice, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Runs returns up to limit recent runs, newest first, with the server's
// per-outcome totals.
func (c *Client) Runs(ctx context.Context, limit int) (*api.RunListResponse, error) {
	path := api.PathRuns
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.RunListResponse
	if err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns the server's health report.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	var h api.Health
	if err := c.do(ctx, http.MethodGet, api.PathHealth, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

type requestIDKey struct{}

// WithRequestID makes every request made with ctx carry id as its
// X-Request-ID, so the caller can pick its own run out of the event stream.
// Without it each request gets a fresh uuid.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// do performs one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return NewNetworkError("failed to create request", c.BaseURL, err)
	}
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	req.Header.Set(api.HeaderRequestID, requestID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		cErr := NewNetworkError(fmt.Sprintf("%s %s failed", method, path), c.BaseURL, err)
		cErr.RequestID = requestID
		return cErr
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp, requestID)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewParseError("failed to parse JSON response", err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, requestID string) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var er api.ErrorResponse
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		message = er.Error
		if er.Details != "" {
			message += ": " + er.Details
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	cErr := NewStatusError(resp.StatusCode, message)
	cErr.Server = c.BaseURL
	cErr.RequestID = requestID
	if id := resp.Header.Get(api.HeaderRequestID); id != "" {
		cErr.RequestID = id
	}
	cErr.Run = er.Run
	return cErr
}

// EventStream is a subscription to the server's event stream.
type EventStream struct {
	conn *websocket.Conn
}

// Events subscribes to the server's event stream. Close the stream when done;
// cancelling ctx only bounds the handshake.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	u := c.eventsURL()
	conn, resp, err := c.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			return nil, c.statusError(resp, "")
		}
		return nil, NewNetworkError("event stream connection failed", c.BaseURL, err)
	}
	return &EventStream{conn: conn}, nil
}

func (c *Client) eventsURL() string {
	base := c.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + api.PathEvents
}

// Next blocks until the next event arrives or the stream ends.
func (s *EventStream) Next() (api.Event, error) {
	var ev api.Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		return api.Event{}, err
	}
	return ev, nil
}

// Close ends the subscription.
func (s *EventStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
