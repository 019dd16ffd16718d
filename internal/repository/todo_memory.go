package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
)

// MemoryTodoRepository keeps todos in process memory. It follows the same
// scoping and ordering rules as the PostgreSQL repository.
type MemoryTodoRepository struct {
	mu    sync.RWMutex
	todos map[string]model.Todo
	now   func() time.Time
}

func NewMemoryTodo() *MemoryTodoRepository {
	return &MemoryTodoRepository{
		todos: make(map[string]model.Todo),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryTodoRepository) Create(_ context.Context, todo model.Todo) (model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	t := todo.Clone()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.AssignedTo = nonNil(t.AssignedTo)
	t.Tags = nonNil(t.Tags)

	r.todos[t.ID] = t
	return t.Clone(), nil
}

func (r *MemoryTodoRepository) GetByID(_ context.Context, ownerID, todoID string) (model.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.todos[todoID]
	if !ok || t.OwnerID != ownerID {
		return model.Todo{}, fmt.Errorf("todo %s: %w", todoID, sql.ErrNoRows)
	}
	return t.Clone(), nil
}

func (r *MemoryTodoRepository) Update(_ context.Context, todo model.Todo) (model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.todos[todo.ID]
	if !ok || existing.OwnerID != todo.OwnerID {
		return model.Todo{}, fmt.Errorf("todo %s: %w", todo.ID, sql.ErrNoRows)
	}

	t := todo.Clone()
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = r.now()
	t.AssignedTo = nonNil(t.AssignedTo)
	t.Tags = nonNil(t.Tags)

	r.todos[t.ID] = t
	return t.Clone(), nil
}

func (r *MemoryTodoRepository) Delete(_ context.Context, ownerID, todoID string) (model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.todos[todoID]
	if !ok || t.OwnerID != ownerID {
		return model.Todo{}, fmt.Errorf("todo %s: %w", todoID, sql.ErrNoRows)
	}
	delete(r.todos, todoID)
	return t, nil
}

func (r *MemoryTodoRepository) List(_ context.Context, q query.Query) ([]model.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	todos := []model.Todo{}
	for _, t := range r.todos {
		if q.Match(t) {
			todos = append(todos, t.Clone())
		}
	}

	sort.Slice(todos, func(i, j int) bool {
		if !todos[i].CreatedAt.Equal(todos[j].CreatedAt) {
			return todos[i].CreatedAt.After(todos[j].CreatedAt)
		}
		return todos[i].ID < todos[j].ID
	})
	return todos, nil
}

var _ TodoRepository = (*MemoryTodoRepository)(nil)
