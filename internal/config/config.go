package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var validEnvs = map[string]bool{
	"local": true,
	"alpha": true,
	"beta":  true,
	"prod":  true,
}

const (
	VerifierJWKS    = "jwks"
	VerifierCognito = "cognito"

	StorePostgres = "postgres"
	StoreMemory   = "memory"

	FeedLocal    = "local"
	FeedPostgres = "postgres"
)

type Config struct {
	ServerPort   string
	AppEnv       string
	AuthDevMode  bool
	AuthVerifier string
	LogLevel     string
	LogFormat    string
	Store        string
	FeedMode     string
	CORSOrigins  []string
	DB           DBConfig
	Cognito      CognitoConfig
	Telemetry    TelemetryConfig
}

func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid SERVER_PORT %q: %w", c.ServerPort, err)
	}
	if !validEnvs[c.AppEnv] {
		return fmt.Errorf("invalid APP_ENV %q: must be one of local, alpha, beta, prod", c.AppEnv)
	}
	if c.AuthDevMode && c.AppEnv != "local" {
		return fmt.Errorf("AUTH_DEV_MODE must not be enabled in %s environment", c.AppEnv)
	}
	if !c.AuthDevMode {
		switch c.AuthVerifier {
		case VerifierJWKS:
			if c.Cognito.UserPoolID == "" {
				return fmt.Errorf("COGNITO_USER_POOL_ID is required when AUTH_DEV_MODE is disabled")
			}
			if c.Cognito.AppClientID == "" {
				return fmt.Errorf("COGNITO_APP_CLIENT_ID is required when AUTH_DEV_MODE is disabled")
			}
		case VerifierCognito:
		default:
			return fmt.Errorf("invalid AUTH_VERIFIER %q: must be one of jwks, cognito", c.AuthVerifier)
		}
	}
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("invalid STORE %q: must be one of postgres, memory", c.Store)
	}
	if c.Store == StoreMemory && c.AppEnv != "local" {
		return fmt.Errorf("STORE=memory must not be used in %s environment", c.AppEnv)
	}
	switch c.FeedMode {
	case FeedLocal:
	case FeedPostgres:
		if c.Store != StorePostgres {
			return fmt.Errorf("FEED_MODE=postgres requires STORE=postgres")
		}
	default:
		return fmt.Errorf("invalid FEED_MODE %q: must be one of local, postgres", c.FeedMode)
	}
	if c.Telemetry.Enabled && c.Telemetry.Exporter == "otlp" && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("TELEMETRY_ENDPOINT is required when TELEMETRY_EXPORTER is otlp")
	}
	return nil
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     d.Name,
		RawQuery: fmt.Sprintf("sslmode=%s", url.QueryEscape(d.SSLMode)),
	}
	return u.String()
}

type CognitoConfig struct {
	Region      string
	UserPoolID  string
	AppClientID string
}

type TelemetryConfig struct {
	Enabled     bool
	Exporter    string
	Endpoint    string
	ServiceName string
}

func Load() Config {
	return Config{
		ServerPort:   envOrDefault("SERVER_PORT", "8080"),
		AppEnv:       envOrDefault("APP_ENV", "local"),
		AuthDevMode:  envBool("AUTH_DEV_MODE"),
		AuthVerifier: strings.ToLower(envOrDefault("AUTH_VERIFIER", VerifierJWKS)),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		LogFormat:    envOrDefault("LOG_FORMAT", "json"),
		Store:        strings.ToLower(envOrDefault("STORE", StorePostgres)),
		FeedMode:     strings.ToLower(envOrDefault("FEED_MODE", FeedLocal)),
		CORSOrigins:  splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		DB: DBConfig{
			Host:     envOrDefault("DB_HOST", "localhost"),
			Port:     envOrDefault("DB_PORT", "5432"),
			User:     envOrDefault("DB_USER", "todo"),
			Password: envOrDefault("DB_PASSWORD", "todo"),
			Name:     envOrDefault("DB_NAME", "todo"),
			SSLMode:  envOrDefault("DB_SSLMODE", "disable"),
		},
		Cognito: CognitoConfig{
			Region:      envOrDefault("COGNITO_REGION", "ap-northeast-1"),
			UserPoolID:  os.Getenv("COGNITO_USER_POOL_ID"),
			AppClientID: os.Getenv("COGNITO_APP_CLIENT_ID"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     envBool("TELEMETRY_ENABLED"),
			Exporter:    strings.ToLower(envOrDefault("TELEMETRY_EXPORTER", "stdout")),
			Endpoint:    os.Getenv("TELEMETRY_ENDPOINT"),
			ServiceName: envOrDefault("SERVICE_NAME", "todo-sync"),
		},
	}
}

// LoadDotEnv seeds the environment from the given .env files (default
// ".env"). Variables already set win; missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string) bool {
	return strings.EqualFold(envOrDefault(key, "false"), "true")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
