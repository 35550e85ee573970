package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxAttempts    = 3
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 8 * time.Second
	defaultEmbedBatchSize = 64
)

// Generator wraps an LLM client with retry, rate limiting and structured output
type Generator struct {
	client         gollem.LLMClient
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	dimension      int
	embedBatchSize int
	limiter        *rate.Limiter
}

// Option is a functional option for Generator configuration
type Option func(*Generator)

// WithMaxAttempts sets how many times a failed call is attempted in total
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial and maximum retry delay
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(g *Generator) {
		g.baseDelay = base
		g.maxDelay = maxDelay
	}
}

// WithEmbeddingDimension sets the embedding vector length
func WithEmbeddingDimension(dim int) Option {
	return func(g *Generator) {
		if dim > 0 {
			g.dimension = dim
		}
	}
}

// WithEmbedBatchSize sets how many texts are embedded per request
func WithEmbedBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.embedBatchSize = n
		}
	}
}

// WithRateLimit caps requests per second to the LLM service. Zero disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Generator) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// New creates a Generator for the provided LLM client
func New(client gollem.LLMClient, opts ...Option) (*Generator, error) {
	if client == nil {
		return nil, goerr.New("LLM client is required")
	}

	g := &Generator{
		client:         client,
		maxAttempts:    DefaultMaxAttempts,
		baseDelay:      defaultBaseDelay,
		maxDelay:       defaultMaxDelay,
		dimension:      model.DefaultEmbeddingDimension,
		embedBatchSize: defaultEmbedBatchSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dimension returns the embedding vector length
func (g *Generator) Dimension() int {
	return g.dimension
}

// Generate returns free text for the prompt
func (g *Generator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	var text string
	err := g.retry(ctx, "generate", func(ctx context.Context) error {
		opts := []gollem.SessionOption{}
		if systemPrompt != "" {
			opts = append(opts, gollem.WithSessionSystemPrompt(systemPrompt))
		}

		resp, err := g.generate(ctx, prompt, opts...)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(strings.Join(resp.Texts, "\n"))
		if text == "" {
			return goerr.New("empty response from LLM")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// GenerateJSON generates output constrained by schema and decodes it into out.
// Malformed output counts as a failed attempt and is retried.
func (g *Generator) GenerateJSON(ctx context.Context, systemPrompt string, schema *gollem.Parameter, prompt string, out any) error {
	return g.retry(ctx, "generate_json", func(ctx context.Context) error {
		opts := []gollem.SessionOption{
			gollem.WithSessionContentType(gollem.ContentTypeJSON),
			gollem.WithSessionResponseSchema(schema),
		}
		if systemPrompt != "" {
			opts = append(opts, gollem.WithSessionSystemPrompt(systemPrompt))
		}

		resp, err := g.generate(ctx, prompt, opts...)
		if err != nil {
			return err
		}
		if len(resp.Texts) == 0 {
			return goerr.New("empty response from LLM")
		}

		raw := strings.Join(resp.Texts, "")
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", raw))
		}
		return nil
	})
}

func (g *Generator) generate(ctx context.Context, prompt string, opts ...gollem.SessionOption) (*gollem.Response, error) {
	session, err := g.client.NewSession(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.Generate(ctx, []gollem.Input{gollem.Text(prompt)})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content from LLM")
	}
	if resp == nil {
		return nil, goerr.New("nil response from LLM")
	}
	return resp, nil
}

// Embed returns one embedding per text, in order
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += g.embedBatchSize {
		end := min(start+g.embedBatchSize, len(texts))
		batch := texts[start:end]

		var vectors [][]float64
		err := g.retry(ctx, "embed", func(ctx context.Context) error {
			v, err := g.client.GenerateEmbedding(ctx, g.dimension, batch)
			if err != nil {
				return goerr.Wrap(err, "failed to generate embedding")
			}
			if len(v) != len(batch) {
				return goerr.New("embedding count mismatch",
					goerr.V("expected", len(batch)), goerr.V("actual", len(v)))
			}
			vectors = v
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, vec := range vectors {
			f := make([]float32, len(vec))
			for i, v := range vec {
				f[i] = float32(v)
			}
			result = append(result, f)
		}
	}

	return result, nil
}

func (g *Generator) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	logger := logging.From(ctx)
	delay := g.baseDelay

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return goerr.Wrap(err, "rate limiter wait aborted", goerr.V("op", op))
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return goerr.Wrap(ctx.Err(), "generation aborted", goerr.V("op", op))
		}

		logger.Warn("LLM call failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", g.maxAttempts,
			"error", lastErr,
		)

		if attempt == g.maxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "generation aborted", goerr.V("op", op))
		}
		delay = min(delay*2, g.maxDelay)
	}

	return goerr.Wrap(model.ErrGenerationService, "LLM call failed after retries",
		goerr.V("op", op),
		goerr.V(model.AttemptKey, g.maxAttempts),
		goerr.V("cause", lastErr.Error()),
	)
}
