package config

import (
	"errors"
	"testing"
	"time"

	"gardener-chat-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{
			Port:            "8080",
			Environment:     "test",
			LogFilePath:     "logs/app.log",
			ChatLogFilePath: "logs/chat.log",
		},
		Auth: AuthConfig{JWTSecret: "secret"},
		Ai: AIConfig{
			LLMProvider:   "ollama",
			LLMModel:      "llama3",
			OllamaBaseURL: "http://localhost:11434",
			Timeout:       30 * time.Second,
		},
		Chat: ChatConfig{
			WorkerPoolSize:   10,
			TaskQueueSize:    256,
			SendBufferSize:   256,
			HeartbeatTimeout: time.Minute,
			ReapInterval:     time.Minute,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Chat.WorkerPoolSize = 0 }, wantErr: true},
		{name: "zero queue", mutate: func(c *Config) { c.Chat.TaskQueueSize = 0 }, wantErr: true},
		{name: "zero heartbeat timeout", mutate: func(c *Config) { c.Chat.HeartbeatTimeout = 0 }, wantErr: true},
		{name: "negative reap interval", mutate: func(c *Config) { c.Chat.ReapInterval = -time.Second }, wantErr: true},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Ai.LLMProvider = "openai" }, wantErr: true},
		{name: "gemini without key", mutate: func(c *Config) { c.Ai.LLMProvider = "gemini" }, wantErr: true},
		{
			name: "gemini with key",
			mutate: func(c *Config) {
				c.Ai.LLMProvider = "gemini"
				c.Ai.GeminiAPIKey = "key"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, store.ErrConfiguration))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_GO", "45s")
	t.Setenv("TEST_DURATION_SECS", "90")
	t.Setenv("TEST_DURATION_BAD", "soon")

	assert.Equal(t, 45*time.Second, getEnvAsDuration("TEST_DURATION_GO", time.Minute))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("TEST_DURATION_SECS", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDuration("TEST_DURATION_BAD", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDuration("TEST_DURATION_UNSET", time.Minute))
}
