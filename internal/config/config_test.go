package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LIVE_TOP_N", "")
	t.Setenv("LIVE_CONCURRENCY", "")
	t.Setenv("INCLUDE_BLOG_CONTEXT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg := FromEnv()

	assert.Equal(t, 5, cfg.LiveTopN)
	assert.Equal(t, 3, cfg.LiveConcurrency)
	assert.False(t, cfg.IncludeBlogContext)
	assert.Equal(t, "kcglobed_pdfs", cfg.PDFCollection)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LIVE_FETCH_TIMEOUT", "15s")
	t.Setenv("INCLUDE_BLOG_CONTEXT", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://kcglobed.com, https://app.kcglobed.com")
	t.Setenv("LIVE_FETCH_RPS", "2.5")

	cfg := FromEnv()

	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, 15*time.Second, cfg.LiveFetchTimeout)
	assert.True(t, cfg.IncludeBlogContext)
	assert.Equal(t, []string{"https://kcglobed.com", "https://app.kcglobed.com"}, cfg.CORSAllowedOrigins)
	assert.InDelta(t, 2.5, cfg.LiveFetchRPS, 1e-9)
}

func TestValidate(t *testing.T) {
	base := Config{
		LLMProvider:     "gemini",
		GeminiAPIKey:    "key",
		HistoryBackend:  "memory",
		LiveConcurrency: 3,
		LiveTopN:        5,
	}
	require.NoError(t, base.Validate())

	missingKey := base
	missingKey.GeminiAPIKey = ""
	assert.ErrorContains(t, missingKey.Validate(), "GEMINI_API_KEY")

	openai := base
	openai.LLMProvider = "openai"
	assert.ErrorContains(t, openai.Validate(), "OPENAI_API_KEY")

	badBackend := base
	badBackend.HistoryBackend = "redis"
	assert.Error(t, badBackend.Validate())

	badConcurrency := base
	badConcurrency.LiveConcurrency = 0
	assert.Error(t, badConcurrency.Validate())
}
