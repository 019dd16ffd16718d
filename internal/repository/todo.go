package repository

import (
	"context"

	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
)

// TodoRepository persists todos. Every method except Create is scoped by
// owner; a missing or foreign row is reported as sql.ErrNoRows.
type TodoRepository interface {
	Create(ctx context.Context, todo model.Todo) (model.Todo, error)
	GetByID(ctx context.Context, ownerID, todoID string) (model.Todo, error)
	Update(ctx context.Context, todo model.Todo) (model.Todo, error)
	Delete(ctx context.Context, ownerID, todoID string) (model.Todo, error)
	List(ctx context.Context, q query.Query) ([]model.Todo, error)
}
