package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jaekwang-park/todo-sync/internal/model"
)

func TestTodoHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			body:       `{"title":"Buy groceries","description":"Milk","priority":"high","deadline":"2025-03-01","tags":["home"]}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "empty title",
			body:       `{"title":"","description":"Milk"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "bad priority",
			body:       `{"title":"x","priority":"urgent"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "invalid json",
			body:       `{invalid`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			w := api.do(t, "user-1", http.MethodPost, "/api/todos", tt.body)
			expectStatus(t, w, tt.wantStatus)

			if tt.wantCode != "" {
				if got := decodeError(t, w).Error.Code; got != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, got)
				}
				return
			}

			todo := decodeTodo(t, w)
			if todo.ID == "" {
				t.Error("expected generated id")
			}
			if todo.OwnerID != "user-1" {
				t.Errorf("expected owner user-1, got %s", todo.OwnerID)
			}
			if todo.Priority != model.PriorityHigh {
				t.Errorf("expected priority high, got %s", todo.Priority)
			}
			if todo.Deadline == nil {
				t.Error("expected deadline to be set")
			}
		})
	}
}

func TestTodoHandler_CreateIgnoresClientOwner(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, "user-1", http.MethodPost, "/api/todos", `{"title":"x","ownerId":"user-2"}`)
	expectStatus(t, w, http.StatusCreated)

	if got := decodeTodo(t, w).OwnerID; got != "user-1" {
		t.Errorf("expected owner from token, got %s", got)
	}
}

func TestTodoHandler_List(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, model.Todo{OwnerID: "user-1", Title: "Pay rent", Priority: model.PriorityHigh})
	api.seed(t, model.Todo{OwnerID: "user-1", Title: "Walk dog", Priority: model.PriorityLow, IsCompleted: true})
	api.seed(t, model.Todo{OwnerID: "user-2", Title: "Pay rent too", Priority: model.PriorityHigh})

	tests := []struct {
		name      string
		query     string
		wantTitle []string
	}{
		{name: "all owned", query: "", wantTitle: []string{"Walk dog", "Pay rent"}},
		{name: "search", query: "?search=RENT", wantTitle: []string{"Pay rent"}},
		{name: "priority", query: "?priority=low", wantTitle: []string{"Walk dog"}},
		{name: "completed", query: "?completed=false", wantTitle: []string{"Pay rent"}},
		{name: "no match", query: "?search=nothing", wantTitle: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, "user-1", http.MethodGet, "/api/todos"+tt.query, "")
			expectStatus(t, w, http.StatusOK)

			var todos []model.Todo
			if err := json.NewDecoder(w.Body).Decode(&todos); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if todos == nil {
				t.Fatal("expected a JSON array, got null")
			}
			if len(todos) != len(tt.wantTitle) {
				t.Fatalf("expected %d todos, got %d", len(tt.wantTitle), len(todos))
			}
			want := make(map[string]bool, len(tt.wantTitle))
			for _, title := range tt.wantTitle {
				want[title] = true
			}
			for i, todo := range todos {
				if !want[todo.Title] {
					t.Errorf("todos[%d]: unexpected %q", i, todo.Title)
				}
				if todo.OwnerID != "user-1" {
					t.Errorf("todos[%d]: leaked todo of %s", i, todo.OwnerID)
				}
			}
		})
	}
}

func TestTodoHandler_ListInvalidFilter(t *testing.T) {
	api := newTestAPI(t)
	for _, q := range []string{"?priority=urgent", "?completed=maybe", "?deadline=soon"} {
		t.Run(q, func(t *testing.T) {
			w := api.do(t, "user-1", http.MethodGet, "/api/todos"+q, "")
			expectStatus(t, w, http.StatusBadRequest)
			if got := decodeError(t, w).Error.Code; got != "INVALID_FILTER" {
				t.Errorf("expected INVALID_FILTER, got %s", got)
			}
		})
	}
}

func TestTodoHandler_GetByID(t *testing.T) {
	api := newTestAPI(t)
	todo := api.seed(t, model.Todo{OwnerID: "user-1", Title: "Mine", Priority: model.PriorityMedium})

	t.Run("found", func(t *testing.T) {
		w := api.do(t, "user-1", http.MethodGet, "/api/todos/"+todo.ID, "")
		expectStatus(t, w, http.StatusOK)
		if got := decodeTodo(t, w).Title; got != "Mine" {
			t.Errorf("expected title Mine, got %s", got)
		}
	})

	t.Run("other owner", func(t *testing.T) {
		w := api.do(t, "user-2", http.MethodGet, "/api/todos/"+todo.ID, "")
		expectStatus(t, w, http.StatusNotFound)
		if got := decodeError(t, w).Error.Code; got != "NOT_FOUND" {
			t.Errorf("expected NOT_FOUND, got %s", got)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		w := api.do(t, "user-1", http.MethodGet, "/api/todos/not-a-uuid", "")
		expectStatus(t, w, http.StatusNotFound)
	})
}

func TestTodoHandler_Update(t *testing.T) {
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		userID     string
		body       string
		wantStatus int
		check      func(t *testing.T, got model.Todo)
	}{
		{
			name:       "partial update keeps other fields",
			userID:     "user-1",
			body:       `{"isCompleted":true}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, got model.Todo) {
				if !got.IsCompleted {
					t.Error("expected completed")
				}
				if got.Title != "Original" {
					t.Errorf("expected title unchanged, got %s", got.Title)
				}
				if got.Deadline == nil || !got.Deadline.Equal(deadline) {
					t.Errorf("expected deadline unchanged, got %v", got.Deadline)
				}
			},
		},
		{
			name:       "explicit null clears deadline",
			userID:     "user-1",
			body:       `{"deadline":null}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, got model.Todo) {
				if got.Deadline != nil {
					t.Errorf("expected deadline cleared, got %v", got.Deadline)
				}
			},
		},
		{
			name:       "immutable fields ignored",
			userID:     "user-1",
			body:       `{"id":"x","ownerId":"user-2","title":"Renamed"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, got model.Todo) {
				if got.OwnerID != "user-1" {
					t.Errorf("expected owner unchanged, got %s", got.OwnerID)
				}
				if got.Title != "Renamed" {
					t.Errorf("expected title Renamed, got %s", got.Title)
				}
			},
		},
		{
			name:       "empty title rejected",
			userID:     "user-1",
			body:       `{"title":"  "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "deadline of wrong type",
			userID:     "user-1",
			body:       `{"deadline":42}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "other owner",
			userID:     "user-2",
			body:       `{"title":"Hijack"}`,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			todo := api.seed(t, model.Todo{
				OwnerID:  "user-1",
				Title:    "Original",
				Priority: model.PriorityMedium,
				Deadline: &deadline,
			})

			w := api.do(t, tt.userID, http.MethodPut, "/api/todos/"+todo.ID, tt.body)
			expectStatus(t, w, tt.wantStatus)
			if tt.check != nil {
				tt.check(t, decodeTodo(t, w))
			}
		})
	}
}

func TestTodoHandler_Delete(t *testing.T) {
	api := newTestAPI(t)
	todo := api.seed(t, model.Todo{OwnerID: "user-1", Title: "Doomed", Priority: model.PriorityLow})

	w := api.do(t, "user-2", http.MethodDelete, "/api/todos/"+todo.ID, "")
	expectStatus(t, w, http.StatusNotFound)

	w = api.do(t, "user-1", http.MethodDelete, "/api/todos/"+todo.ID, "")
	expectStatus(t, w, http.StatusOK)

	var resp struct {
		Message string     `json:"message"`
		Todo    model.Todo `json:"todo"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Message != "todo deleted" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if resp.Todo.ID != todo.ID {
		t.Errorf("expected deleted todo %s, got %s", todo.ID, resp.Todo.ID)
	}

	w = api.do(t, "user-1", http.MethodDelete, "/api/todos/"+todo.ID, "")
	expectStatus(t, w, http.StatusNotFound)
}
