package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/cli/config"
)

func TestGemini_Configure(t *testing.T) {
	t.Run("returns nil client when project ID is empty", func(t *testing.T) {
		cfg := config.NewGeminiForTest("", "us-central1")
		client, err := cfg.Configure(t.Context())
		gt.NoError(t, err)
		gt.Value(t, client).Nil()
	})

	t.Run("returns flags", func(t *testing.T) {
		cfg := config.NewGeminiForTest("", "")
		flags := cfg.Flags()
		gt.Value(t, len(flags)).Equal(3)
	})
}

func TestLLM_Client(t *testing.T) {
	t.Run("gemini requires project", func(t *testing.T) {
		cfg := config.NewLLMForTest(config.ProviderGemini, "", *config.NewGeminiForTest("", "us-central1"))
		_, err := cfg.Client(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("openai requires api key", func(t *testing.T) {
		cfg := config.NewLLMForTest(config.ProviderOpenAI, "", config.Gemini{})
		_, err := cfg.Client(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.NewLLMForTest("bard", "", config.Gemini{})
		_, err := cfg.Client(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}
