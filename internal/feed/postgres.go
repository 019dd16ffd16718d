package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

// Channel is the PostgreSQL notification channel carrying change events.
const Channel = "todo_changes"

// maxPayload stays below the 8000 byte NOTIFY limit.
const maxPayload = 7900

// PGNotifier publishes change events with pg_notify so every instance
// listening on Channel sees them.
type PGNotifier struct {
	db *sql.DB
}

func NewPGNotifier(db *sql.DB) *PGNotifier {
	return &PGNotifier{db: db}
}

func (n *PGNotifier) Publish(ctx context.Context, ev model.ChangeEvent) error {
	payload, err := encodePayload(ev)
	if err != nil {
		return err
	}
	if _, err := n.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, payload); err != nil {
		return fmt.Errorf("failed to notify %s: %w", Channel, err)
	}
	return nil
}

// encodePayload marshals ev, dropping the todo body when it would not fit in
// a notification. Listeners hydrate such events from the store.
func encodePayload(ev model.ChangeEvent) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode change event: %w", err)
	}
	if len(b) <= maxPayload {
		return string(b), nil
	}
	slim := ev
	slim.Todo = nil
	b, err = json.Marshal(slim)
	if err != nil {
		return "", fmt.Errorf("failed to encode change event: %w", err)
	}
	return string(b), nil
}

// TodoLoader reads a single owned todo; repository.TodoRepository satisfies it.
type TodoLoader interface {
	GetByID(ctx context.Context, ownerID, todoID string) (model.Todo, error)
}

// Publisher accepts change events. Broker, PGNotifier and Metered implement it.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

// PGListener relays notifications from Channel into a local publisher.
type PGListener struct {
	dsn    string
	pub    Publisher
	loader TodoLoader
	logger *slog.Logger
}

// NewPGListener relays into pub, normally the local Broker.
func NewPGListener(dsn string, pub Publisher, loader TodoLoader, logger *slog.Logger) *PGListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGListener{dsn: dsn, pub: pub, loader: loader, logger: logger}
}

// Run listens until ctx is done.
func (l *PGListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn("feed listener connection attempt failed", "error", err)
		case pq.ListenerEventDisconnected:
			l.logger.Warn("feed listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			l.logger.Info("feed listener reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(Channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	l.logger.Info("feed listener started", "channel", Channel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications sent meanwhile are lost and
			// clients recover through their own resubscribe and re-fetch.
			if n == nil {
				continue
			}
			l.relay(ctx, n.Extra)
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				l.logger.Warn("feed listener ping failed", "error", err)
			}
		}
	}
}

func (l *PGListener) relay(ctx context.Context, payload string) {
	var ev model.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		l.logger.Error("failed to decode notification", "error", err)
		return
	}

	if ev.Todo == nil && ev.Type != model.ChangeDeleted && l.loader != nil {
		todo, err := l.loader.GetByID(ctx, ev.OwnerID, ev.ID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				l.logger.Error("failed to hydrate change event", "todo_id", ev.ID, "error", err)
			}
			return
		}
		ev.Todo = &todo
	}

	if !ev.Valid() {
		l.logger.Warn("ignoring malformed change event", "type", string(ev.Type), "todo_id", ev.ID)
		return
	}
	if err := l.pub.Publish(ctx, ev); err != nil {
		l.logger.Error("failed to relay change event", "error", err)
	}
}
