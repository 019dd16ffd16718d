// Package client is the Go client for the todo API: request/response calls
// guarded by a circuit breaker, and a self-healing change-event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
)

const todosPath = "/api/todos"

type Options struct {
	BaseURL string
	Token   string

	// Timeout bounds request/response calls. The event stream has none.
	Timeout time.Duration

	// Breaker trips after MaxFailures consecutive failures and tries again
	// after BreakerTimeout.
	MaxFailures    int
	BreakerTimeout time.Duration

	// RequestsPerSecond throttles request/response calls; zero disables it.
	RequestsPerSecond float64

	// Resubscription backoff bounds.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// StreamIdleTimeout drops a stream that has been silent this long.
	StreamIdleTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 5
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 30 * time.Second
	}
	if o.StreamIdleTimeout <= 0 {
		o.StreamIdleTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	sse     *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	limiter *rate.Limiter // nil when throttling is disabled
	backoff backoff
	idle    time.Duration
	logger  *slog.Logger
}

func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", opts.BaseURL)
	}
	opts.setDefaults()
	logger := opts.Logger

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	// Same transport, no overall timeout: the stream is long-lived.
	sse := &http.Client{Transport: httpClient.Transport}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "todo-api",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= opts.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    httpClient,
		sse:     sse,
		breaker: cb,
		limiter: limiter,
		backoff: backoff{min: opts.MinBackoff, max: opts.MaxBackoff},
		idle:    opts.StreamIdleTimeout,
		logger:  logger,
	}, nil
}

// CreateRequest is the body of POST /api/todos.
type CreateRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	IsCompleted bool           `json:"isCompleted,omitempty"`
	Priority    model.Priority `json:"priority,omitempty"`
	Deadline    *string        `json:"deadline,omitempty"`
	AssignedTo  []string       `json:"assignedTo,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// UpdateRequest is a partial update. Nil fields are not sent; ClearDeadline
// sends an explicit null deadline.
type UpdateRequest struct {
	Title         *string
	Description   *string
	IsCompleted   *bool
	Priority      *model.Priority
	Deadline      *string
	ClearDeadline bool
	AssignedTo    *[]string
	Tags          *[]string
}

func (u UpdateRequest) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if u.Title != nil {
		m["title"] = *u.Title
	}
	if u.Description != nil {
		m["description"] = *u.Description
	}
	if u.IsCompleted != nil {
		m["isCompleted"] = *u.IsCompleted
	}
	if u.Priority != nil {
		m["priority"] = *u.Priority
	}
	switch {
	case u.ClearDeadline:
		m["deadline"] = nil
	case u.Deadline != nil:
		m["deadline"] = *u.Deadline
	}
	if u.AssignedTo != nil {
		m["assignedTo"] = *u.AssignedTo
	}
	if u.Tags != nil {
		m["tags"] = *u.Tags
	}
	return json.Marshal(m)
}

// List fetches the caller's todos matching f.
func (c *Client) List(ctx context.Context, f model.Filter) ([]model.Todo, error) {
	path := todosPath
	if q := query.Encode(f).Encode(); q != "" {
		path += "?" + q
	}
	var todos []model.Todo
	if err := c.do(ctx, http.MethodGet, path, nil, &todos); err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []model.Todo{}
	}
	return todos, nil
}

func (c *Client) Get(ctx context.Context, id string) (model.Todo, error) {
	var todo model.Todo
	err := c.do(ctx, http.MethodGet, todoPath(id), nil, &todo)
	return todo, err
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (model.Todo, error) {
	var todo model.Todo
	err := c.do(ctx, http.MethodPost, todosPath, req, &todo)
	return todo, err
}

func (c *Client) Update(ctx context.Context, id string, req UpdateRequest) (model.Todo, error) {
	var todo model.Todo
	err := c.do(ctx, http.MethodPut, todoPath(id), req, &todo)
	return todo, err
}

// Delete removes a todo and returns the deleted record.
func (c *Client) Delete(ctx context.Context, id string) (model.Todo, error) {
	var resp struct {
		Todo model.Todo `json:"todo"`
	}
	err := c.do(ctx, http.MethodDelete, todoPath(id), nil, &resp)
	return resp.Todo, err
}

func todoPath(id string) string {
	return todosPath + "/" + url.PathEscape(id)
}

// do sends one request through the breaker. Only transport failures and 5xx
// responses count against the breaker; a 4xx is a healthy server saying no.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return resp, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}
