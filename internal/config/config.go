package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the dispatch gateway.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration

	MeshBridgeURL string
	ChunkSize     int

	// Responder node ids by emergency category. Empty means the category
	// routes to every configured responder; no responders at all means
	// dispatches broadcast on the channel.
	ResponderPolice string
	ResponderFire   string
	ResponderEMS    string

	InferMode   string
	InferURL    string
	InferAPIKey string
	InferModel  string

	AuditLogPath string
	DatabaseURL  string

	TriageTimeout    time.Duration
	MenuTimeout      time.Duration
	LockoutDuration  time.Duration
	WatchdogInterval time.Duration

	QueueDepth    int
	Workers       int
	InferTimeout  time.Duration
	TriageHistory int
	ChatWindow    int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "operator"),
		ShutdownTimeout:  15 * time.Second,

		MeshBridgeURL: envOrDefault("MESH_BRIDGE_URL", "ws://127.0.0.1:4403"),
		ChunkSize:     180,

		ResponderPolice: stringsTrimSpace("OPERATOR_RESPONDER_POLICE"),
		ResponderFire:   stringsTrimSpace("OPERATOR_RESPONDER_FIRE"),
		ResponderEMS:    stringsTrimSpace("OPERATOR_RESPONDER_EMS"),

		InferMode:   envOrDefault("INFER_ADAPTER_MODE", "auto"),
		InferURL:    stringsTrimSpace("INFER_HTTP_URL"),
		InferAPIKey: stringsTrimSpace("INFER_API_KEY"),
		InferModel:  envOrDefault("INFER_MODEL", "local-operator"),

		AuditLogPath: envOrDefault("AUDIT_LOG_PATH", "operator_audit.jsonl"),
		DatabaseURL:  stringsTrimSpace("DATABASE_URL"),

		TriageTimeout:    10 * time.Minute,
		MenuTimeout:      2 * time.Minute,
		LockoutDuration:  120 * time.Minute,
		WatchdogInterval: 30 * time.Second,

		QueueDepth:    15,
		Workers:       2,
		InferTimeout:  30 * time.Second,
		TriageHistory: 12,
		ChatWindow:    4,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TriageTimeout, err = durationFromEnv("OPERATOR_TRIAGE_TIMEOUT", cfg.TriageTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MenuTimeout, err = durationFromEnv("OPERATOR_MENU_TIMEOUT", cfg.MenuTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LockoutDuration, err = durationFromEnv("OPERATOR_LOCKOUT_DURATION", cfg.LockoutDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.WatchdogInterval, err = durationFromEnv("OPERATOR_WATCHDOG_INTERVAL", cfg.WatchdogInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.InferTimeout, err = durationFromEnv("INFER_TIMEOUT", cfg.InferTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.QueueDepth, err = intFromEnv("OPERATOR_QUEUE_DEPTH", cfg.QueueDepth)
	if err != nil {
		return Config{}, err
	}
	cfg.Workers, err = intFromEnv("OPERATOR_WORKERS", cfg.Workers)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkSize, err = intFromEnv("OPERATOR_CHUNK_SIZE", cfg.ChunkSize)
	if err != nil {
		return Config{}, err
	}
	cfg.TriageHistory, err = intFromEnv("OPERATOR_TRIAGE_HISTORY", cfg.TriageHistory)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatWindow, err = intFromEnv("OPERATOR_CHAT_WINDOW", cfg.ChatWindow)
	if err != nil {
		return Config{}, err
	}

	if cfg.QueueDepth <= 0 {
		return Config{}, fmt.Errorf("OPERATOR_QUEUE_DEPTH must be positive")
	}
	if cfg.Workers <= 0 {
		return Config{}, fmt.Errorf("OPERATOR_WORKERS must be positive")
	}
	if cfg.ChunkSize < 30 {
		return Config{}, fmt.Errorf("OPERATOR_CHUNK_SIZE must be at least 30")
	}
	if cfg.TriageHistory <= 2 {
		return Config{}, fmt.Errorf("OPERATOR_TRIAGE_HISTORY must be greater than 2")
	}
	if cfg.TriageTimeout < time.Minute {
		return Config{}, fmt.Errorf("OPERATOR_TRIAGE_TIMEOUT must be at least 1m")
	}
	if cfg.MenuTimeout < 10*time.Second {
		return Config{}, fmt.Errorf("OPERATOR_MENU_TIMEOUT must be at least 10s")
	}
	if cfg.LockoutDuration < time.Minute {
		return Config{}, fmt.Errorf("OPERATOR_LOCKOUT_DURATION must be at least 1m")
	}
	switch cfg.InferMode {
	case "auto", "http", "mock":
	default:
		return Config{}, fmt.Errorf("INFER_ADAPTER_MODE must be auto, http, or mock")
	}

	return cfg, nil
}

// Responders lists the distinct configured responder node ids in a stable
// order: police, fire, ems, deduplicated.
func (c Config) Responders() []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range []string{c.ResponderPolice, c.ResponderFire, c.ResponderEMS} {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
