package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jaekwang-park/todo-sync/internal/http/handler"
	"github.com/jaekwang-park/todo-sync/internal/middleware"
	"github.com/jaekwang-park/todo-sync/internal/model"
	"github.com/jaekwang-park/todo-sync/internal/repository"
	"github.com/jaekwang-park/todo-sync/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testAPI mounts the todo routes the same way the server does, minus auth.
type testAPI struct {
	repo   *repository.MemoryTodoRepository
	router chi.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo := repository.NewMemoryTodo()
	svc := service.NewTodoService(repo, nil, testLogger())

	r := chi.NewRouter()
	r.Route("/api/todos", handler.NewTodoHandler(svc, testLogger()).Routes)
	return &testAPI{repo: repo, router: r}
}

func (a *testAPI) do(t *testing.T, userID, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req = req.WithContext(middleware.SetUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) seed(t *testing.T, todo model.Todo) model.Todo {
	t.Helper()
	created, err := a.repo.Create(context.Background(), todo)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return created
}

func decodeTodo(t *testing.T, w *httptest.ResponseRecorder) model.Todo {
	t.Helper()
	var todo model.Todo
	if err := json.NewDecoder(w.Body).Decode(&todo); err != nil {
		t.Fatalf("failed to decode todo: %v", err)
	}
	return todo
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	return resp
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

var _ http.Handler = (*handler.EventsHandler)(nil)
