package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jaekwang-park/todo-sync/internal/middleware"
	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/query"
	"github.com/jaekwang-park/todo-sync/internal/service"
)

type TodoHandler struct {
	svc    *service.TodoService
	logger *slog.Logger
}

func NewTodoHandler(svc *service.TodoService, logger *slog.Logger) *TodoHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TodoHandler{svc: svc, logger: logger}
}

// Routes registers the todo endpoints on r. The caller mounts it under
// /api/todos behind the auth middleware.
func (h *TodoHandler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGetByID)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

func (h *TodoHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	filter, err := query.ParseFilter(r.URL.Query())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	todos, err := h.svc.List(r.Context(), userID, filter)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, todos)
}

// createTodoRequest carries no owner; identity comes from the token only.
type createTodoRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IsCompleted bool     `json:"isCompleted"`
	Priority    string   `json:"priority"`
	Deadline    *string  `json:"deadline,omitempty"`
	AssignedTo  []string `json:"assignedTo"`
	Tags        []string `json:"tags"`
}

func (h *TodoHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req createTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := service.CreateTodoInput{
		Title:       req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		Priority:    model.Priority(req.Priority),
		Deadline:    req.Deadline,
		AssignedTo:  req.AssignedTo,
		Tags:        req.Tags,
	}

	todo, err := h.svc.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, todo)
}

func (h *TodoHandler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	todo, err := h.svc.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, todo)
}

// updateTodoRequest ignores id, ownerId and createdAt. Deadline is raw so an
// explicit null can be told apart from an absent key.
type updateTodoRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	IsCompleted *bool           `json:"isCompleted"`
	Priority    *string         `json:"priority"`
	Deadline    json.RawMessage `json:"deadline"`
	AssignedTo  *[]string       `json:"assignedTo"`
	Tags        *[]string       `json:"tags"`
}

func (h *TodoHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	var req updateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := service.UpdateTodoInput{
		Title:       req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		AssignedTo:  req.AssignedTo,
		Tags:        req.Tags,
	}
	if req.Priority != nil {
		p := model.Priority(*req.Priority)
		input.Priority = &p
	}
	if len(req.Deadline) > 0 {
		if bytes.Equal(bytes.TrimSpace(req.Deadline), []byte("null")) {
			input.ClearDeadline = true
		} else {
			var s string
			if err := json.Unmarshal(req.Deadline, &s); err != nil {
				WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "deadline must be a string or null")
				return
			}
			input.Deadline = &s
		}
	}

	todo, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, todo)
}

type deleteTodoResponse struct {
	Message string     `json:"message"`
	Todo    model.Todo `json:"todo"`
}

func (h *TodoHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	todo, err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, deleteTodoResponse{Message: "todo deleted", Todo: todo})
}
