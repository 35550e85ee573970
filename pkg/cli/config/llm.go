package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/service/llm"
	"github.com/urfave/cli/v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// LLM selects the generation provider and tunes the generator wrapped around it
type LLM struct {
	provider           string
	gemini             Gemini
	openaiAPIKey       string
	openaiModel        string
	embeddingDimension int
	maxAttempts        int
	rateLimit          float64
}

func (x *LLM) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Language model provider (gemini, openai)",
			Category:    "LLM",
			Value:       ProviderGemini,
			Sources:     cli.EnvVars("TAXAGENT_LLM_PROVIDER"),
			Destination: &x.provider,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("TAXAGENT_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI model name (provider default when empty)",
			Category:    "LLM",
			Sources:     cli.EnvVars("TAXAGENT_OPENAI_MODEL"),
			Destination: &x.openaiModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector dimension stored in index snapshots",
			Category:    "LLM",
			Value:       model.DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("TAXAGENT_EMBEDDING_DIMENSION"),
			Destination: &x.embeddingDimension,
		},
		&cli.IntFlag{
			Name:        "llm-max-attempts",
			Usage:       "Attempts per generation call before giving up",
			Category:    "LLM",
			Value:       llm.DefaultMaxAttempts,
			Sources:     cli.EnvVars("TAXAGENT_LLM_MAX_ATTEMPTS"),
			Destination: &x.maxAttempts,
		},
		&cli.Float64Flag{
			Name:        "llm-rate-limit",
			Usage:       "Maximum generation calls per second (0 for unlimited)",
			Category:    "LLM",
			Sources:     cli.EnvVars("TAXAGENT_LLM_RATE_LIMIT"),
			Destination: &x.rateLimit,
		},
	}
	return append(flags, x.gemini.Flags()...)
}

func (x LLM) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("provider", x.provider),
		slog.Int("embedding_dimension", x.embeddingDimension),
		slog.Int("max_attempts", x.maxAttempts),
		slog.Float64("rate_limit", x.rateLimit),
		slog.Int("openai_api_key.len", len(x.openaiAPIKey)),
	}
	attrs = append(attrs, x.gemini.LogAttrs()...)
	return slog.GroupValue(attrs...)
}

// Client creates the LLM client of the selected provider
func (x *LLM) Client(ctx context.Context) (gollem.LLMClient, error) {
	switch x.provider {
	case ProviderGemini:
		client, err := x.gemini.Configure(ctx)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, goerr.Wrap(ErrInvalidConfig, "gemini-project is required when using gemini provider")
		}
		return client, nil

	case ProviderOpenAI:
		if x.openaiAPIKey == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "openai-api-key is required when using openai provider")
		}
		var opts []openai.Option
		if x.openaiModel != "" {
			opts = append(opts, openai.WithModel(x.openaiModel))
		}
		client, err := openai.New(ctx, x.openaiAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid llm provider", goerr.V(ValueKey, x.provider))
	}
}

// Generator creates the retrying generator around the configured client
func (x *LLM) Generator(ctx context.Context) (*llm.Generator, error) {
	client, err := x.Client(ctx)
	if err != nil {
		return nil, err
	}

	opts := []llm.Option{
		llm.WithEmbeddingDimension(x.embeddingDimension),
		llm.WithMaxAttempts(x.maxAttempts),
	}
	if x.rateLimit > 0 {
		opts = append(opts, llm.WithRateLimit(x.rateLimit, 1))
	}

	gen, err := llm.New(client, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create generator")
	}
	return gen, nil
}
