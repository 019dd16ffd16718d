package middleware_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jaekwang-park/todo-sync/internal/middleware"
)

func signedToken(t *testing.T, privKey *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(privKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func jwksServer(t *testing.T, kid string, privKey *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(privKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privKey.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// verifierFunc adapts a function to middleware.TokenVerifier.
type verifierFunc func(ctx context.Context, token string) (string, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error.Code
}

func TestNewAuth_RequiresVerifier(t *testing.T) {
	if _, err := middleware.NewAuth(nil, nil); err == nil {
		t.Fatal("expected error without verifier")
	}
}

func TestAuth_Middleware(t *testing.T) {
	verifier := verifierFunc(func(_ context.Context, token string) (string, error) {
		switch token {
		case "good":
			return "user-1", nil
		case "outage":
			return "", errors.New("jwks endpoint unreachable")
		default:
			return "", middleware.ErrUnauthenticated
		}
	})

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantUserID string
		wantCalled bool
	}{
		{name: "valid token", path: "/api/todos", header: "Bearer good", wantStatus: http.StatusOK, wantUserID: "user-1", wantCalled: true},
		{name: "missing header", path: "/api/todos", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/api/todos", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "empty token", path: "/api/todos", header: "Bearer   ", wantStatus: http.StatusUnauthorized},
		{name: "rejected token", path: "/api/todos", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{name: "verifier outage", path: "/api/todos", header: "Bearer outage", wantStatus: http.StatusUnauthorized},
		{name: "health is exempt", path: "/health", wantStatus: http.StatusOK, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			auth, err := middleware.NewAuth(verifier, slog.New(slog.NewTextHandler(&logBuf, nil)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			called := false
			var capturedUserID string
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				capturedUserID = middleware.GetUserID(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			auth.Middleware(inner).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("expected handler called=%v, got %v", tt.wantCalled, called)
			}
			if capturedUserID != tt.wantUserID {
				t.Errorf("expected userID=%q, got %q", tt.wantUserID, capturedUserID)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if code := decodeErrorCode(t, w); code != "UNAUTHENTICATED" {
					t.Errorf("expected code UNAUTHENTICATED, got %q", code)
				}
			}
			if tt.name == "verifier outage" && !bytes.Contains(logBuf.Bytes(), []byte("token verification failed")) {
				t.Error("expected verifier outage to be logged")
			}
		})
	}
}

func TestDevVerifier(t *testing.T) {
	id, err := middleware.DevVerifier{}.Verify(context.Background(), "alice")
	if err != nil || id != "alice" {
		t.Errorf("expected alice, got %q (%v)", id, err)
	}
	if _, err := (middleware.DevVerifier{}).Verify(context.Background(), ""); !errors.Is(err, middleware.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestJWTVerifier(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	const (
		kid      = "kid-1"
		issuer   = "https://cognito-idp.ap-northeast-1.amazonaws.com/pool"
		clientID = "app-client"
	)
	srv := jwksServer(t, kid, privKey)
	verifier := middleware.NewJWTVerifier(middleware.NewJWKSClient(srv.URL), issuer, clientID)

	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":       "sub-123",
			"iss":       issuer,
			"client_id": clientID,
			"token_use": "access",
			"exp":       time.Now().Add(time.Hour).Unix(),
		}
	}
	with := func(k string, v any) jwt.MapClaims {
		c := valid()
		if v == nil {
			delete(c, k)
		} else {
			c[k] = v
		}
		return c
	}

	tests := []struct {
		name    string
		token   string
		wantSub string
		wantErr bool
	}{
		{name: "access token", token: signedToken(t, privKey, kid, valid()), wantSub: "sub-123"},
		{name: "id token audience", token: signedToken(t, privKey, kid, jwt.MapClaims{
			"sub": "sub-123", "iss": issuer, "aud": clientID, "exp": time.Now().Add(time.Hour).Unix(),
		}), wantSub: "sub-123"},
		{name: "expired", token: signedToken(t, privKey, kid, with("exp", time.Now().Add(-time.Hour).Unix())), wantErr: true},
		{name: "missing exp", token: signedToken(t, privKey, kid, with("exp", nil)), wantErr: true},
		{name: "wrong issuer", token: signedToken(t, privKey, kid, with("iss", "https://evil.example.com")), wantErr: true},
		{name: "wrong client", token: signedToken(t, privKey, kid, with("client_id", "other")), wantErr: true},
		{name: "missing sub", token: signedToken(t, privKey, kid, with("sub", nil)), wantErr: true},
		{name: "wrong key", token: signedToken(t, otherKey, kid, valid()), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := verifier.Verify(context.Background(), tt.token)
			if tt.wantErr {
				if !errors.Is(err, middleware.ErrUnauthenticated) {
					t.Fatalf("expected ErrUnauthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sub != tt.wantSub {
				t.Errorf("expected sub %q, got %q", tt.wantSub, sub)
			}
		})
	}
}

func TestJWTVerifier_KeySetOutage(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	verifier := middleware.NewJWTVerifier(middleware.NewJWKSClient(srv.URL), "iss", "")
	token := signedToken(t, privKey, "kid", jwt.MapClaims{"sub": "x", "iss": "iss", "exp": time.Now().Add(time.Hour).Unix()})

	// A repeated attempt during the outage is still an outage, not a bad token.
	for i := 0; i < 2; i++ {
		_, err = verifier.Verify(context.Background(), token)
		if !errors.Is(err, middleware.ErrKeySetUnavailable) {
			t.Fatalf("attempt %d: expected ErrKeySetUnavailable, got %v", i+1, err)
		}
		if errors.Is(err, middleware.ErrUnauthenticated) {
			t.Errorf("attempt %d: outage must not be reported as a rejected token", i+1)
		}
	}
}

func TestCognitoURLs(t *testing.T) {
	if got, want := middleware.CognitoIssuer("us-east-1", "pool"), "https://cognito-idp.us-east-1.amazonaws.com/pool"; got != want {
		t.Errorf("issuer = %q, want %q", got, want)
	}
	if got, want := middleware.CognitoJWKSURL("us-east-1", "pool"), fmt.Sprintf("%s/.well-known/jwks.json", middleware.CognitoIssuer("us-east-1", "pool")); got != want {
		t.Errorf("jwks url = %q, want %q", got, want)
	}
}
