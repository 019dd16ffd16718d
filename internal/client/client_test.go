package client_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaekwang-park/todo-sync/internal/client"
	"github.com/jaekwang-park/todo-sync/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, srv *httptest.Server, mod ...func(*client.Options)) *client.Client {
	t.Helper()
	opts := client.Options{
		BaseURL:           srv.URL,
		Token:             "tok",
		MaxFailures:       2,
		BreakerTimeout:    time.Minute,
		MinBackoff:        5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		StreamIdleTimeout: time.Second,
		Logger:            testLogger(),
	}
	for _, m := range mod {
		m(&opts)
	}
	c, err := client.New(opts)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := client.New(client.Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestList_EncodesFilterAndToken(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []model.Todo{{ID: "t1", Title: "Pay rent"}})
	}))
	defer srv.Close()

	completed := false
	todos, err := newClient(t, srv).List(context.Background(), model.Filter{
		Priority:  model.PriorityHigh,
		Completed: &completed,
	})
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "Pay rent", todos[0].Title)
	assert.Equal(t, "completed=false&priority=high", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		wantErr error
	}{
		{name: "not found", status: http.StatusNotFound, code: "NOT_FOUND", wantErr: client.ErrNotFound},
		{name: "unauthenticated", status: http.StatusUnauthorized, code: "UNAUTHENTICATED", wantErr: client.ErrUnauthenticated},
		{name: "invalid filter", status: http.StatusBadRequest, code: "INVALID_FILTER", wantErr: client.ErrInvalidRequest},
		{name: "store unavailable", status: http.StatusInternalServerError, code: "STORE_UNAVAILABLE", wantErr: client.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeEnvelope(w, tt.status, tt.code, "nope")
			}))
			defer srv.Close()

			_, err := newClient(t, srv).Get(context.Background(), "t1")
			require.ErrorIs(t, err, tt.wantErr)

			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	}))
	defer srv.Close()

	c := newClient(t, srv)
	for i := 0; i < 5; i++ {
		_, err := c.Get(context.Background(), "t1")
		require.ErrorIs(t, err, client.ErrNotFound)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "store unavailable")
	}))
	defer srv.Close()

	c := newClient(t, srv)
	for i := 0; i < 4; i++ {
		_, err := c.Get(context.Background(), "t1")
		require.ErrorIs(t, err, client.ErrUnavailable)
	}
	assert.Equal(t, int32(2), calls.Load(), "breaker should stop calling after two failures")
}

func TestUpdate_SendsOnlySetFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/todos/t1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, model.Todo{ID: "t1", IsCompleted: true})
	}))
	defer srv.Close()

	done := true
	got, err := newClient(t, srv).Update(context.Background(), "t1", client.UpdateRequest{
		IsCompleted:   &done,
		ClearDeadline: true,
	})
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)

	assert.Len(t, body, 2)
	assert.Equal(t, true, body["isCompleted"])
	v, ok := body["deadline"]
	assert.True(t, ok, "deadline key should be present")
	assert.Nil(t, v)
}

func TestDelete_ReturnsDeletedTodo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeJSON(w, http.StatusOK, map[string]any{"message": "todo deleted", "todo": model.Todo{ID: "t1"}})
	}))
	defer srv.Close()

	got, err := newClient(t, srv).Delete(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
}

func TestCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusCreated, model.Todo{ID: "t1", Title: req.Title, Priority: req.Priority})
	}))
	defer srv.Close()

	got, err := newClient(t, srv).Create(context.Background(), client.CreateRequest{Title: "Walk dog", Priority: model.PriorityLow})
	require.NoError(t, err)
	assert.Equal(t, "Walk dog", got.Title)
	assert.Equal(t, model.PriorityLow, got.Priority)
}
