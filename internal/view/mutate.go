package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jaekwang-park/todo-sync/internal/client"
	"github.com/jaekwang-park/todo-sync/internal/model"
)

type mutationKind int

const (
	mutationUpdate mutationKind = iota
	mutationDelete
	mutationCreate
)

// mutationResult reports a server response for an optimistic edit. prior is
// the record as it was before the edit was applied locally.
type mutationResult struct {
	kind  mutationKind
	id    string
	prior model.Todo
	todo  model.Todo
	err   error
}

// finishMutation confirms or rolls back one optimistic edit.
func (st *state) finishMutation(res mutationResult) {
	if res.kind != mutationCreate {
		st.pending--
	}

	if res.err == nil {
		st.err = nil
		switch res.kind {
		case mutationUpdate:
			st.rec.Apply(model.Updated(res.todo))
		case mutationCreate:
			st.rec.Apply(model.Inserted(res.todo))
		}
		return
	}

	gone := errors.Is(res.err, client.ErrNotFound)
	switch res.kind {
	case mutationUpdate:
		if gone {
			st.rec.Apply(model.Deleted(res.id, res.prior.OwnerID))
		} else if _, ok := st.rec.Get(res.id); ok {
			st.rec.Apply(model.Updated(res.prior))
		}
		st.err = fmt.Errorf("update %q: %w", res.prior.Title, res.err)
	case mutationDelete:
		if !gone {
			st.rec.Apply(model.Inserted(res.prior))
		}
		st.err = fmt.Errorf("delete %q: %w", res.prior.Title, res.err)
	case mutationCreate:
		st.err = fmt.Errorf("create: %w", res.err)
	}
}

func (v *View) report(ctx context.Context, res mutationResult) {
	select {
	case v.mutations <- res:
	case <-ctx.Done():
	}
}

// ToggleComplete flips a todo's completion locally and confirms it with the
// server in the background. A rejected edit is rolled back and surfaced in
// Snapshot.Err.
func (v *View) ToggleComplete(ctx context.Context, id string) error {
	return v.exec(ctx, func(runCtx context.Context, st *state) error {
		prior, ok := st.rec.Get(id)
		if !ok {
			return ErrUnknownTodo
		}
		next := prior.Clone()
		next.IsCompleted = !prior.IsCompleted
		st.rec.Apply(model.Updated(next))
		st.pending++

		done := next.IsCompleted
		go func() {
			todo, err := v.backend.Update(runCtx, id, client.UpdateRequest{IsCompleted: &done})
			v.report(runCtx, mutationResult{kind: mutationUpdate, id: id, prior: prior, todo: todo, err: err})
		}()
		return nil
	})
}

// Update applies a partial edit locally and confirms it with the server in
// the background. The server's record replaces the local one on success; a
// rejected edit is rolled back and surfaced in Snapshot.Err.
func (v *View) Update(ctx context.Context, id string, req client.UpdateRequest) error {
	return v.exec(ctx, func(runCtx context.Context, st *state) error {
		prior, ok := st.rec.Get(id)
		if !ok {
			return ErrUnknownTodo
		}
		st.rec.Apply(model.Updated(applyUpdate(prior, req)))
		st.pending++

		go func() {
			todo, err := v.backend.Update(runCtx, id, req)
			v.report(runCtx, mutationResult{kind: mutationUpdate, id: id, prior: prior, todo: todo, err: err})
		}()
		return nil
	})
}

// applyUpdate is the local guess at the server's result. Values the server
// would reject are applied as given and rolled back when it does.
func applyUpdate(t model.Todo, req client.UpdateRequest) model.Todo {
	next := t.Clone()
	if req.Title != nil {
		next.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.IsCompleted != nil {
		next.IsCompleted = *req.IsCompleted
	}
	if req.Priority != nil {
		next.Priority = *req.Priority
	}
	switch {
	case req.ClearDeadline:
		next.Deadline = nil
	case req.Deadline != nil:
		if d, ok := parseDeadline(*req.Deadline); ok {
			next.Deadline = &d
		}
	}
	if req.AssignedTo != nil {
		next.AssignedTo = append([]string{}, (*req.AssignedTo)...)
	}
	if req.Tags != nil {
		next.Tags = append([]string{}, (*req.Tags)...)
	}
	return next
}

func parseDeadline(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Delete removes a todo locally and confirms it with the server in the
// background. A rejected delete restores the todo.
func (v *View) Delete(ctx context.Context, id string) error {
	return v.exec(ctx, func(runCtx context.Context, st *state) error {
		prior, ok := st.rec.Get(id)
		if !ok {
			return ErrUnknownTodo
		}
		st.rec.Apply(model.Deleted(id, prior.OwnerID))
		st.pending++

		go func() {
			_, err := v.backend.Delete(runCtx, id)
			v.report(runCtx, mutationResult{kind: mutationDelete, id: id, prior: prior, err: err})
		}()
		return nil
	})
}

// Create adds a todo once the server has assigned its id.
func (v *View) Create(ctx context.Context, req client.CreateRequest) error {
	return v.exec(ctx, func(runCtx context.Context, _ *state) error {
		go func() {
			todo, err := v.backend.Create(runCtx, req)
			v.report(runCtx, mutationResult{kind: mutationCreate, id: todo.ID, todo: todo, err: err})
		}()
		return nil
	})
}
