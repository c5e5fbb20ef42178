package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gardener-chat-be/pkg/store"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Ai       AIConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port               string `validate:"required,numeric"`
	Environment        string `validate:"oneof=development production test"`
	LogFilePath        string `validate:"required"`
	ChatLogFilePath    string `validate:"required"`
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	// Connection is optional. Without it the transcript archive is disabled.
	Connection string
}

type AuthConfig struct {
	JWTSecret string `validate:"required"`
}

type AIConfig struct {
	LLMProvider   string        `validate:"oneof=ollama gemini"`
	LLMModel      string        `validate:"required"`
	OllamaBaseURL string        `validate:"required_if=LLMProvider ollama"`
	GeminiAPIKey  string        `validate:"required_if=LLMProvider gemini"`
	Timeout       time.Duration `validate:"gt=0"`
}

type ChatConfig struct {
	WorkerPoolSize   int           `validate:"min=1,max=1024"`
	TaskQueueSize    int           `validate:"min=1"`
	SendBufferSize   int           `validate:"min=1"`
	HeartbeatTimeout time.Duration `validate:"gt=0"`
	ReapInterval     time.Duration `validate:"gt=0"`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8080"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			ChatLogFilePath:    getEnv("CHAT_LOG_FILE_PATH", "logs/chat.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:4200"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			GeminiAPIKey:  getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Timeout:       getEnvAsDuration("AI_TIMEOUT", 30*time.Second),
		},
		Chat: ChatConfig{
			WorkerPoolSize:   getEnvAsInt("CHAT_WORKER_POOL_SIZE", 10),
			TaskQueueSize:    getEnvAsInt("CHAT_TASK_QUEUE_SIZE", 256),
			SendBufferSize:   getEnvAsInt("CHAT_SEND_BUFFER_SIZE", 256),
			HeartbeatTimeout: getEnvAsDuration("CHAT_HEARTBEAT_TIMEOUT", 60*time.Second),
			ReapInterval:     getEnvAsDuration("CHAT_REAP_INTERVAL", 60*time.Second),
		},
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", store.ErrConfiguration, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
