package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	AdminToken  string
	LogFormat   string // "json" or "text"

	// Notification delivery. When disabled, sends are a quiet success.
	NotifyEnabled bool
	NotifyFrom    string
	SMTPAddr      string // host:port of the mail relay

	// Reference agent settings (cmd/agent).
	DispatcherURL string
	AgentAuth     string
	PollSeconds   int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

func Load() (Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Env:           getenv("APP_ENV", "development"),
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		NotifyEnabled: getenvBool("NOTIFY_ENABLED", false),
		NotifyFrom:    getenv("NOTIFY_FROM", "yarad@localhost"),
		SMTPAddr:      getenv("SMTP_ADDR", "localhost:25"),
		DispatcherURL: getenv("DISPATCHER_URL", "http://localhost:8080"),
		AgentAuth:     os.Getenv("AGENT_AUTH"),
		PollSeconds:   getenvInt("POLL_SECONDS", 5),
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}
