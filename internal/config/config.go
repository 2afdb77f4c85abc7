package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by PAPER_AGENT_ENV (or .env by default),
// then the matching .secret sidecar if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("PAPER_AGENT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// StoreBackend selects the catalog backend: postgres or sqlite.
// Defaults to sqlite.
func StoreBackend() string {
	b := os.Getenv("STORE_BACKEND")
	if b == "" {
		return "sqlite"
	}
	return b
}

func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "data/catalog.db"
	}
	return p
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "anthropic"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "openai":
		return OpenAIAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return AnthropicAPIKey()
	}
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, local, mock. local and mock both use the hash embedder.
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "local"
	}
	return p
}

func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "openai":
		return OpenAIAPIKey()
	default:
		return ""
	}
}

func AgentConfigDir() string {
	d := os.Getenv("AGENT_CONFIG_DIR")
	if d == "" {
		return filepath.Join("config", "agents")
	}
	return d
}

// EventsDir is where per-session event files live.
func EventsDir() string {
	d := os.Getenv("EVENTS_DIR")
	if d == "" {
		return filepath.Join(os.TempDir(), "paper-agent-events")
	}
	return d
}

func StructuredLogDir() string {
	d := os.Getenv("STRUCTURED_LOG_DIR")
	if d == "" {
		return filepath.Join("logs", "structured")
	}
	return d
}

// LLMMaxRetries is the number of attempts per LLM call. Defaults to 3.
func LLMMaxRetries() int {
	n, err := strconv.Atoi(os.Getenv("LLM_MAX_RETRIES"))
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// LLMRequestsPerSecond caps outgoing LLM calls. 0 means unlimited.
func LLMRequestsPerSecond() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("LLM_REQUESTS_PER_SECOND"), 64)
	if err != nil || rps < 0 {
		return 0
	}
	return rps
}

// SessionTTL is how long an idle session is kept in memory. Defaults to 24h.
func SessionTTL() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SESSION_TTL"))
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// MaxHopsPerTurn bounds agent steps inside one user turn. Defaults to 8.
func MaxHopsPerTurn() int {
	n, err := strconv.Atoi(os.Getenv("MAX_HOPS_PER_TURN"))
	if err != nil || n <= 0 {
		return 8
	}
	return n
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
