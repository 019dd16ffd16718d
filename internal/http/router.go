package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/jaekwang-park/todo-sync/internal/http/handler"
	"github.com/jaekwang-park/todo-sync/internal/middleware"
	"github.com/jaekwang-park/todo-sync/internal/service"
	"github.com/jaekwang-park/todo-sync/internal/telemetry"
)

type RouterDeps struct {
	TodoService *service.TodoService
	Feed        handler.Subscriber
	Auth        *middleware.Auth
	Store       handler.Pinger
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
	CORSOrigins []string
	Heartbeat   time.Duration
}

func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Tracing(deps.Metrics),
		middleware.Logging(logger),
	)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", middleware.HeaderRequestID},
			ExposedHeaders: []string{middleware.HeaderRequestID},
			MaxAge:         300,
		}))
	}

	// Outside /api so load balancer health checks need no token.
	r.Method(http.MethodGet, "/health", handler.NewHealthHandler(deps.Store))

	todos := handler.NewTodoHandler(deps.TodoService, logger)
	events := handler.NewEventsHandler(deps.Feed, deps.Heartbeat, logger)

	r.Route("/api/todos", func(r chi.Router) {
		r.Use(deps.Auth.Middleware)
		r.Method(http.MethodGet, "/events", events)
		todos.Routes(r)
	})

	return r
}
