package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sse "github.com/tmaxmax/go-sse"

	"github.com/jaekwang-park/todo-sync/internal/feed"
	"github.com/jaekwang-park/todo-sync/internal/middleware"
	"github.com/jaekwang-park/todo-sync/internal/model"
)

const (
	DefaultHeartbeat = 25 * time.Second

	// ChangeEventType names the SSE event carrying a model.ChangeEvent.
	ChangeEventType = "change"
)

// Subscriber is the read side of the change feed.
type Subscriber interface {
	Subscribe(ctx context.Context, match feed.Predicate) <-chan model.ChangeEvent
}

// EventsHandler streams the caller's change events as Server-Sent Events.
type EventsHandler struct {
	feed      Subscriber
	heartbeat time.Duration
	logger    *slog.Logger
}

func NewEventsHandler(sub Subscriber, heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{feed: sub, heartbeat: heartbeat, logger: logger}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		h.logger.ErrorContext(ctx, "event stream not supported",
			"request_id", middleware.RequestIDFromContext(ctx),
			"error", err,
		)
		WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming unsupported")
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events := h.feed.Subscribe(ctx, feed.OwnedBy(middleware.GetUserID(r)))

	if err := send(sess, comment("connected")); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Dropped by the broker; the client reconnects and re-fetches.
				return
			}
			msg, err := changeMessage(ev)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode change event", "error", err)
				continue
			}
			if err := send(sess, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := send(sess, comment("ping")); err != nil {
				return
			}
		}
	}
}

func changeMessage(ev model.ChangeEvent) (*sse.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	msg := &sse.Message{Type: sse.Type(ChangeEventType)}
	msg.AppendData(string(data))
	return msg, nil
}

func comment(text string) *sse.Message {
	msg := &sse.Message{}
	msg.AppendComment(text)
	return msg
}

func send(sess *sse.Session, msg *sse.Message) error {
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}
