package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
	"github.com/jaekwang-park/todo-sync/internal/repository"
)

// Publisher receives a change event after every committed write.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

// parseDeadline parses an RFC3339 timestamp or a YYYY-MM-DD date (midnight UTC).
// Returns nil if input is nil.
func parseDeadline(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("%w: invalid deadline format, expected RFC3339 or YYYY-MM-DD", ErrValidation)
}

func parsePriority(p model.Priority) (model.Priority, error) {
	if p == "" {
		return model.PriorityMedium, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("%w: priority must be one of low, medium, high", ErrValidation)
	}
	return p, nil
}

// normalizeList trims entries, drops blanks and duplicates, and never returns nil.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type CreateTodoInput struct {
	Title       string
	Description string
	IsCompleted bool
	Priority    model.Priority
	Deadline    *string // RFC3339 or YYYY-MM-DD
	AssignedTo  []string
	Tags        []string
}

// UpdateTodoInput carries a partial update. Nil fields are left untouched;
// ClearDeadline removes the deadline.
type UpdateTodoInput struct {
	Title         *string
	Description   *string
	IsCompleted   *bool
	Priority      *model.Priority
	Deadline      *string
	ClearDeadline bool
	AssignedTo    *[]string
	Tags          *[]string
}

type TodoService struct {
	repo   repository.TodoRepository
	pub    Publisher
	logger *slog.Logger
}

func NewTodoService(repo repository.TodoRepository, pub Publisher, logger *slog.Logger) *TodoService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TodoService{repo: repo, pub: pub, logger: logger}
}

func (s *TodoService) List(ctx context.Context, ownerID string, filter model.Filter) ([]model.Todo, error) {
	todos, err := s.repo.List(ctx, query.ForOwner(ownerID, filter))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list todos: %w", ErrStoreUnavailable, err)
	}
	if todos == nil {
		todos = []model.Todo{}
	}
	return todos, nil
}

func (s *TodoService) Create(ctx context.Context, ownerID string, input CreateTodoInput) (model.Todo, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.Todo{}, fmt.Errorf("%w: title is required", ErrValidation)
	}

	priority, err := parsePriority(input.Priority)
	if err != nil {
		return model.Todo{}, err
	}

	deadline, err := parseDeadline(input.Deadline)
	if err != nil {
		return model.Todo{}, err
	}

	todo := model.Todo{
		OwnerID:     ownerID,
		Title:       title,
		Description: input.Description,
		IsCompleted: input.IsCompleted,
		Priority:    priority,
		Deadline:    deadline,
		AssignedTo:  normalizeList(input.AssignedTo),
		Tags:        normalizeList(input.Tags),
	}

	created, err := s.repo.Create(ctx, todo)
	if err != nil {
		return model.Todo{}, fmt.Errorf("%w: failed to create todo: %w", ErrStoreUnavailable, err)
	}

	s.publish(ctx, model.Inserted(created))
	return created, nil
}

func (s *TodoService) GetByID(ctx context.Context, ownerID, todoID string) (model.Todo, error) {
	return s.load(ctx, ownerID, todoID)
}

func (s *TodoService) Update(ctx context.Context, ownerID, todoID string, input UpdateTodoInput) (model.Todo, error) {
	existing, err := s.load(ctx, ownerID, todoID)
	if err != nil {
		return model.Todo{}, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return model.Todo{}, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		existing.Title = title
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.IsCompleted != nil {
		existing.IsCompleted = *input.IsCompleted
	}
	if input.Priority != nil {
		if !input.Priority.IsValid() {
			return model.Todo{}, fmt.Errorf("%w: priority must be one of low, medium, high", ErrValidation)
		}
		existing.Priority = *input.Priority
	}
	if input.ClearDeadline {
		existing.Deadline = nil
	} else if input.Deadline != nil {
		deadline, err := parseDeadline(input.Deadline)
		if err != nil {
			return model.Todo{}, err
		}
		existing.Deadline = deadline
	}
	if input.AssignedTo != nil {
		existing.AssignedTo = normalizeList(*input.AssignedTo)
	}
	if input.Tags != nil {
		existing.Tags = normalizeList(*input.Tags)
	}

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Todo{}, ErrNotFound
		}
		return model.Todo{}, fmt.Errorf("%w: failed to update todo: %w", ErrStoreUnavailable, err)
	}

	s.publish(ctx, model.Updated(updated))
	return updated, nil
}

func (s *TodoService) Delete(ctx context.Context, ownerID, todoID string) (model.Todo, error) {
	if _, err := uuid.Parse(todoID); err != nil {
		return model.Todo{}, ErrNotFound
	}

	deleted, err := s.repo.Delete(ctx, ownerID, todoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Todo{}, ErrNotFound
		}
		return model.Todo{}, fmt.Errorf("%w: failed to delete todo: %w", ErrStoreUnavailable, err)
	}

	s.publish(ctx, model.Deleted(deleted.ID, deleted.OwnerID))
	return deleted, nil
}

// load fetches an owned todo. Malformed ids cannot exist and are reported as
// not found rather than reaching the store.
func (s *TodoService) load(ctx context.Context, ownerID, todoID string) (model.Todo, error) {
	if _, err := uuid.Parse(todoID); err != nil {
		return model.Todo{}, ErrNotFound
	}

	todo, err := s.repo.GetByID(ctx, ownerID, todoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Todo{}, ErrNotFound
		}
		return model.Todo{}, fmt.Errorf("%w: failed to get todo: %w", ErrStoreUnavailable, err)
	}
	return todo, nil
}

func (s *TodoService) publish(ctx context.Context, ev model.ChangeEvent) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish change event",
			"type", string(ev.Type),
			"todo_id", ev.ID,
			"error", err,
		)
	}
}
