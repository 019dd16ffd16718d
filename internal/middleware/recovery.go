package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR envelope. If the
// handler already started the response it is left as is. http.ErrAbortHandler
// is re-raised so the server can drop the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newResponseRecorder(w)

			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger.ErrorContext(r.Context(), "panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
					"stack", string(debug.Stack()),
				)

				if rec.wroteHeader {
					return
				}
				if encErr := writeErrorJSON(rec, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"); encErr != nil {
					logger.Error("failed to write recovery response", "error", encErr)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
