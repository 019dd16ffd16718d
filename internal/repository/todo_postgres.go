package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
)

const todoColumns = `id, owner_id, title, description, is_completed, priority, deadline, assigned_to, tags, created_at, updated_at`

type PostgresTodoRepository struct {
	db *sql.DB
}

func NewPostgresTodo(db *sql.DB) *PostgresTodoRepository {
	return &PostgresTodoRepository{db: db}
}

func (r *PostgresTodoRepository) Create(ctx context.Context, todo model.Todo) (model.Todo, error) {
	q := `
		INSERT INTO todos (owner_id, title, description, is_completed, priority, deadline, assigned_to, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + todoColumns

	row := r.db.QueryRowContext(ctx, q,
		todo.OwnerID, todo.Title, todo.Description, todo.IsCompleted, todo.Priority,
		todo.Deadline, pq.Array(nonNil(todo.AssignedTo)), pq.Array(nonNil(todo.Tags)),
	)

	return scanTodo(row)
}

func (r *PostgresTodoRepository) GetByID(ctx context.Context, ownerID, todoID string) (model.Todo, error) {
	q := `SELECT ` + todoColumns + ` FROM todos WHERE id = $1 AND owner_id = $2`

	row := r.db.QueryRowContext(ctx, q, todoID, ownerID)
	return scanTodo(row)
}

func (r *PostgresTodoRepository) Update(ctx context.Context, todo model.Todo) (model.Todo, error) {
	q := `
		UPDATE todos
		SET title = $1, description = $2, is_completed = $3, priority = $4, deadline = $5,
		    assigned_to = $6, tags = $7, updated_at = now()
		WHERE id = $8 AND owner_id = $9
		RETURNING ` + todoColumns

	row := r.db.QueryRowContext(ctx, q,
		todo.Title, todo.Description, todo.IsCompleted, todo.Priority, todo.Deadline,
		pq.Array(nonNil(todo.AssignedTo)), pq.Array(nonNil(todo.Tags)),
		todo.ID, todo.OwnerID,
	)

	return scanTodo(row)
}

func (r *PostgresTodoRepository) Delete(ctx context.Context, ownerID, todoID string) (model.Todo, error) {
	q := `DELETE FROM todos WHERE id = $1 AND owner_id = $2 RETURNING ` + todoColumns

	row := r.db.QueryRowContext(ctx, q, todoID, ownerID)
	return scanTodo(row)
}

func (r *PostgresTodoRepository) List(ctx context.Context, q query.Query) ([]model.Todo, error) {
	stmt, args := q.SQL(`SELECT ` + todoColumns + ` FROM todos`)

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := []model.Todo{}
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}

	return todos, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTodo(row scannable) (model.Todo, error) {
	var (
		t        model.Todo
		priority string
		deadline sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.IsCompleted, &priority,
		&deadline, pq.Array(&t.AssignedTo), pq.Array(&t.Tags), &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return model.Todo{}, fmt.Errorf("failed to scan todo: %w", err)
	}
	t.Priority = model.Priority(priority)
	if deadline.Valid {
		d := deadline.Time
		t.Deadline = &d
	}
	t.AssignedTo = nonNil(t.AssignedTo)
	t.Tags = nonNil(t.Tags)
	return t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ensure compile-time interface compliance
var _ TodoRepository = (*PostgresTodoRepository)(nil)
