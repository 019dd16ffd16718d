// Package view drives a live, filtered todo list: it fetches the list for the
// current filter, folds in change-feed events, and applies edits
// optimistically.
//
// All state is owned by the Run loop. Other methods hand work to the loop
// and never touch state directly.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/jaekwang-park/todo-sync/internal/client"
	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
	"github.com/jaekwang-park/todo-sync/internal/reconcile"
)

var (
	ErrStopped        = errors.New("view: not running")
	ErrAlreadyRunning = errors.New("view: already running")
	ErrUnknownTodo    = errors.New("view: todo not in list")
)

// Backend is the remote API. *client.Client satisfies it.
type Backend interface {
	List(ctx context.Context, f model.Filter) ([]model.Todo, error)
	Create(ctx context.Context, req client.CreateRequest) (model.Todo, error)
	Update(ctx context.Context, id string, req client.UpdateRequest) (model.Todo, error)
	Delete(ctx context.Context, id string) (model.Todo, error)
	Subscribe(ctx context.Context) (<-chan model.ChangeEvent, <-chan struct{})
}

// Snapshot is an immutable copy of what the view shows.
type Snapshot struct {
	Todos   []model.Todo
	Filter  model.Filter
	Query   string // Filter encoded as URL query parameters
	Sort    reconcile.SortConfig
	Loading bool
	Live    bool // change feed open
	Pending int  // unconfirmed optimistic edits
	Err     error
}

type View struct {
	backend Backend
	logger  *slog.Logger

	cmds      chan command
	fetches   chan fetchResult
	mutations chan mutationResult
	updates   chan Snapshot
	stopped   chan struct{}
	running   atomic.Bool

	mu   sync.RWMutex
	snap Snapshot
}

type Option func(*state)

// WithFilter sets the filter used by the first fetch.
func WithFilter(f model.Filter) Option {
	return func(s *state) { s.filter = f }
}

func WithSort(sc reconcile.SortConfig) Option {
	return func(s *state) { s.sort = sc }
}

func New(backend Backend, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		backend:   backend,
		logger:    logger,
		cmds:      make(chan command),
		fetches:   make(chan fetchResult),
		mutations: make(chan mutationResult),
		updates:   make(chan Snapshot, 1),
		stopped:   make(chan struct{}),
		snap:      Snapshot{Sort: reconcile.DefaultSort(), Todos: []model.Todo{}},
	}
}

// Snapshot returns the latest published state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// Updates delivers snapshots as they change. Only the latest unread
// snapshot is kept.
func (v *View) Updates() <-chan Snapshot {
	return v.updates
}

// Run owns the view until ctx is done. It fetches for the initial filter,
// opens the change feed once that fetch completes, and closes the feed on
// return. Run may be called once.
func (v *View) Run(ctx context.Context, opts ...Option) error {
	if !v.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(v.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &state{
		sort: reconcile.DefaultSort(),
		rec:  reconcile.New(),
	}
	for _, o := range opts {
		o(st)
	}

	v.fetch(ctx, st)
	v.publish(st)

	var (
		events <-chan model.ChangeEvent
		resync <-chan struct{}
	)

	for {
		select {
		case <-ctx.Done():
			if st.cancelFetch != nil {
				st.cancelFetch()
			}
			return ctx.Err()

		case cmd := <-v.cmds:
			err := cmd.run(ctx, st)
			v.publish(st)
			cmd.done <- err
			continue

		case res := <-v.fetches:
			if res.seq != st.seq {
				continue
			}
			st.finishFetch(res)
			if !st.live {
				events, resync = v.backend.Subscribe(ctx)
				st.live = true
			}

		case ev, ok := <-events:
			if !ok {
				events, st.live = nil, false
				break
			}
			st.applyEvent(ev)

		case _, ok := <-resync:
			if !ok {
				resync = nil
				break
			}
			v.logger.Info("change feed reconnected, refetching")
			v.fetch(ctx, st)

		case res := <-v.mutations:
			st.finishMutation(res)
		}
		v.publish(st)
	}
}

func (v *View) publish(st *state) {
	snap := st.snapshot()

	v.mu.Lock()
	v.snap = snap
	v.mu.Unlock()

	select {
	case <-v.updates:
	default:
	}
	v.updates <- snap
}

// fetch starts a List call for the current filter. Any in-flight fetch is
// cancelled and its result will carry a stale seq.
func (v *View) fetch(ctx context.Context, st *state) {
	if st.cancelFetch != nil {
		st.cancelFetch()
	}
	st.seq++
	st.loading = true
	st.racing = nil

	seq, f := st.seq, st.filter
	fctx, cancel := context.WithCancel(ctx)
	st.cancelFetch = cancel

	go func() {
		todos, err := v.backend.List(fctx, f)
		select {
		case v.fetches <- fetchResult{seq: seq, todos: todos, err: err}:
		case <-ctx.Done():
		}
	}()
}

// exec runs fn on the Run loop and waits for its result.
func (v *View) exec(ctx context.Context, fn func(ctx context.Context, st *state) error) error {
	cmd := command{run: fn, done: make(chan error, 1)}
	select {
	case v.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-v.stopped:
		return ErrStopped
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-v.stopped:
		return ErrStopped
	}
}

// SetFilter replaces the filter and re-fetches. Responses to earlier
// filters are discarded.
func (v *View) SetFilter(ctx context.Context, f model.Filter) error {
	return v.exec(ctx, func(runCtx context.Context, st *state) error {
		st.filter = f
		v.fetch(runCtx, st)
		return nil
	})
}

// SetFilterQuery is SetFilter for URL-encoded criteria, as found in
// Snapshot.Query.
func (v *View) SetFilterQuery(ctx context.Context, raw string) error {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", query.ErrInvalidFilter, err)
	}
	f, err := query.ParseFilter(values)
	if err != nil {
		return err
	}
	return v.SetFilter(ctx, f)
}

func (v *View) SetSort(ctx context.Context, sc reconcile.SortConfig) error {
	if !sc.Key.IsValid() {
		return fmt.Errorf("view: unknown sort key %q", sc.Key)
	}
	return v.exec(ctx, func(_ context.Context, st *state) error {
		st.sort = sc
		return nil
	})
}

// ToggleSort sorts by key, flipping direction if key is already active.
func (v *View) ToggleSort(ctx context.Context, key reconcile.SortKey) error {
	if !key.IsValid() {
		return fmt.Errorf("view: unknown sort key %q", key)
	}
	return v.exec(ctx, func(_ context.Context, st *state) error {
		st.sort = st.sort.Toggle(key)
		return nil
	})
}

// Refresh re-fetches for the current filter.
func (v *View) Refresh(ctx context.Context) error {
	return v.exec(ctx, func(runCtx context.Context, st *state) error {
		v.fetch(runCtx, st)
		return nil
	})
}
