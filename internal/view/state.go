package view

import (
	"context"

	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
	"github.com/jaekwang-park/todo-sync/internal/reconcile"
)

type command struct {
	run  func(ctx context.Context, st *state) error
	done chan error
}

type fetchResult struct {
	seq   uint64
	todos []model.Todo
	err   error
}

// state is touched only by the Run loop.
type state struct {
	filter      model.Filter
	sort        reconcile.SortConfig
	rec         *reconcile.Reconciler
	seq         uint64
	cancelFetch context.CancelFunc
	loading     bool
	live        bool
	pending     int
	err         error

	// events applied while the current fetch was in flight
	racing []model.ChangeEvent
}

// finishFetch applies the current fetch. On failure the previous list stays.
// Events that arrived while the fetch was in flight are re-applied on top of
// the fetched list, since it may predate them.
func (st *state) finishFetch(res fetchResult) {
	st.loading = false
	if st.cancelFetch != nil {
		st.cancelFetch()
		st.cancelFetch = nil
	}
	racing := st.racing
	st.racing = nil
	if res.err != nil {
		st.err = res.err
		return
	}
	st.err = nil
	st.rec.Replace(res.todos)
	for _, ev := range racing {
		st.rec.Apply(ev)
	}
}

func (st *state) applyEvent(ev model.ChangeEvent) {
	st.rec.Apply(ev)
	if st.loading {
		st.racing = append(st.racing, ev)
	}
}

func (st *state) snapshot() Snapshot {
	f := st.filter
	var keep func(model.Todo) bool
	if !f.IsEmpty() {
		keep = f.Matches
	}
	return Snapshot{
		Todos:   st.rec.View(st.sort, keep),
		Filter:  f,
		Query:   query.Encode(f).Encode(),
		Sort:    st.sort,
		Loading: st.loading,
		Live:    st.live,
		Pending: st.pending,
		Err:     st.err,
	}
}
