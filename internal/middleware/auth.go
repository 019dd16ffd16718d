package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

// ErrUnauthenticated is returned by a TokenVerifier that rejects a token.
// Any other error is treated as a verification outage.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenVerifier resolves a bearer token to a caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Auth struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

func NewAuth(verifier TokenVerifier, logger *slog.Logger) (*Auth, error) {
	if verifier == nil {
		return nil, fmt.Errorf("middleware: TokenVerifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{verifier: verifier, logger: logger}, nil
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path.Clean(r.URL.Path) == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeAuthError(w, "missing or malformed bearer token")
			return
		}

		userID, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				a.logger.ErrorContext(r.Context(), "token verification failed",
					"request_id", RequestIDFromContext(r.Context()),
					"error", err,
				)
			}
			writeAuthError(w, "invalid or expired token")
			return
		}
		if userID == "" {
			writeAuthError(w, "invalid or expired token")
			return
		}

		ctx := SetUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	_ = writeErrorJSON(w, http.StatusUnauthorized, "UNAUTHENTICATED", message)
}

// DevVerifier accepts any non-empty token as the caller identity.
// For local development only.
type DevVerifier struct{}

func (DevVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}

var _ TokenVerifier = DevVerifier{}
