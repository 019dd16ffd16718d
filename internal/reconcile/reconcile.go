// Package reconcile keeps a local todo list in step with a change feed.
//
// A Reconciler is not safe for concurrent use; the view loop owns it.
package reconcile

import (
	"cmp"
	"slices"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

type entry struct {
	todo model.Todo
	seq  uint64
}

// Reconciler holds todos by id and remembers the order each id was first
// seen, which breaks sort ties.
type Reconciler struct {
	entries map[string]entry
	next    uint64
}

func New() *Reconciler {
	return &Reconciler{entries: make(map[string]entry)}
}

// Replace discards the current contents and loads todos, in order.
func (r *Reconciler) Replace(todos []model.Todo) {
	r.entries = make(map[string]entry, len(todos))
	r.next = 0
	for _, t := range todos {
		r.upsert(t)
	}
}

// Apply folds one change event into the list. Inserts and updates are
// upserts, so a replayed or out-of-order event never duplicates a row.
// Deleting an unknown id is a no-op.
func (r *Reconciler) Apply(ev model.ChangeEvent) {
	switch ev.Type {
	case model.ChangeInserted, model.ChangeUpdated:
		if ev.Todo != nil {
			r.upsert(*ev.Todo)
		}
	case model.ChangeDeleted:
		delete(r.entries, ev.ID)
	}
}

func (r *Reconciler) upsert(t model.Todo) {
	if t.ID == "" {
		return
	}
	e, ok := r.entries[t.ID]
	if !ok {
		e.seq = r.next
		r.next++
	}
	e.todo = t.Clone()
	r.entries[t.ID] = e
}

func (r *Reconciler) Get(id string) (model.Todo, bool) {
	e, ok := r.entries[id]
	if !ok {
		return model.Todo{}, false
	}
	return e.todo.Clone(), true
}

func (r *Reconciler) Len() int {
	return len(r.entries)
}

// View returns the todos accepted by keep, sorted by s. A nil keep accepts
// everything. The result is freshly built on every call.
func (r *Reconciler) View(s SortConfig, keep func(model.Todo) bool) []model.Todo {
	picked := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if keep == nil || keep(e.todo) {
			picked = append(picked, e)
		}
	}

	slices.SortFunc(picked, func(a, b entry) int {
		if c := s.compare(a.todo, b.todo); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]model.Todo, len(picked))
	for i, e := range picked {
		out[i] = e.todo.Clone()
	}
	return out
}
