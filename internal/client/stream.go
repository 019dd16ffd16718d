package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	sse "github.com/tmaxmax/go-sse"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

const (
	eventsPath      = todosPath + "/events"
	changeEventType = "change"
	maxEventSize    = 1 << 20
)

var errStreamClosed = errors.New("event stream closed by server")

// Subscribe follows the caller's change feed until ctx is done. Events are
// delivered in stream order. After any failed or lost connection it
// reconnects with backoff, and every successful open after the first attempt
// sends on resync, because events missed while disconnected are not
// replayed. Both channels are closed when ctx is done.
func (c *Client) Subscribe(ctx context.Context) (<-chan model.ChangeEvent, <-chan struct{}) {
	events := make(chan model.ChangeEvent, 16)
	resync := make(chan struct{}, 1)

	go func() {
		defer close(resync)
		defer close(events)

		tried := false
		attempt := 0
		for {
			err := c.stream(ctx, events, func() {
				if tried {
					select {
					case resync <- struct{}{}:
					default:
					}
				}
				attempt = 0
			})
			tried = true
			if ctx.Err() != nil {
				return
			}

			delay := c.backoff.delay(attempt)
			attempt++
			c.logger.Warn("change feed disconnected",
				"error", err,
				"retry_in", delay.String(),
			)

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}()

	return events, resync
}

// stream runs one connection until it fails. onOpen is called once the
// server has accepted the subscription.
func (c *Client) stream(ctx context.Context, events chan<- model.ChangeEvent, onOpen func()) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := c.newRequest(ctx, http.MethodGet, eventsPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.sse.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	onOpen()

	errIdle := fmt.Errorf("%w: no data for %s", ErrUnavailable, c.idle)
	watchdog := time.AfterFunc(c.idle, func() { cancel(errIdle) })
	defer watchdog.Stop()

	// Heartbeats are comments and never surface as events, so liveness is
	// measured on raw bytes.
	body := &activityReader{r: resp.Body, touch: func() { watchdog.Reset(c.idle) }}

	for ev, err := range sse.Read(body, &sse.ReadConfig{MaxEventSize: maxEventSize}) {
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if ev.Type != "" && ev.Type != changeEventType {
			continue
		}
		if err := c.dispatch(ctx, events, ev.Data); err != nil {
			return err
		}
	}

	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return errStreamClosed
}

type activityReader struct {
	r     io.Reader
	touch func()
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.touch()
	}
	return n, err
}

func (c *Client) dispatch(ctx context.Context, events chan<- model.ChangeEvent, data string) error {
	var ev model.ChangeEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil || !ev.Valid() {
		c.logger.Warn("skipping malformed change event", "error", err)
		return nil
	}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
