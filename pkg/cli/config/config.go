package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/taxagent/pkg/agent/reasoning"
	"github.com/secmon-lab/taxagent/pkg/service/index"
	"github.com/secmon-lab/taxagent/pkg/service/router"
	"github.com/secmon-lab/taxagent/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// AppConfig represents the corpus and tuning configuration
type AppConfig struct {
	Corpus CorpusConfig `toml:"corpus"`
	Index  IndexConfig  `toml:"index"`
	Router RouterConfig `toml:"router"`
	Agent  AgentConfig  `toml:"agent"`
}

// CorpusConfig locates the documents and the tax data table
type CorpusConfig struct {
	DocumentsDir  string   `toml:"documents_dir"`
	Extensions    []string `toml:"extensions"`
	TablePath     string   `toml:"table_path"`
	TableRequired bool     `toml:"table_required"`
}

// IndexConfig tunes chunking, description and retrieval
type IndexConfig struct {
	ChunkSize         int `toml:"chunk_size"`
	ChunkOverlap      int `toml:"chunk_overlap"`
	DescriptionTokens int `toml:"description_tokens"`
	TopK              int `toml:"top_k"`
}

// RouterConfig tunes sub-question dispatch
type RouterConfig struct {
	MaxConcurrency      int     `toml:"max_concurrency"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// AgentConfig tunes the reasoning loop
type AgentConfig struct {
	MaxIterations int    `toml:"max_iterations"`
	Timeout       string `toml:"timeout"`
}

// DefaultAppConfig returns the configuration used when no file is given
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Corpus: CorpusConfig{
			DocumentsDir: "data/markdown",
			Extensions:   []string{".md"},
			TablePath:    "data/tax_data.csv",
		},
		Index: IndexConfig{
			ChunkSize:         index.DefaultChunkSize,
			ChunkOverlap:      index.DefaultChunkOverlap,
			DescriptionTokens: index.DefaultDescriptionTokens,
			TopK:              index.DefaultTopK,
		},
		Router: RouterConfig{
			MaxConcurrency:      router.DefaultMaxConcurrency,
			SimilarityThreshold: router.DefaultSimilarityThreshold,
		},
		Agent: AgentConfig{
			MaxIterations: reasoning.DefaultMaxIterations,
		},
	}
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	switch {
	case a.Corpus.DocumentsDir == "":
		return goerr.Wrap(ErrInvalidConfig, "documents directory is required", goerr.V(FieldKey, "corpus.documents_dir"))
	case a.Corpus.TableRequired && a.Corpus.TablePath == "":
		return goerr.Wrap(ErrInvalidConfig, "table path is required when table is required", goerr.V(FieldKey, "corpus.table_path"))
	case a.Index.ChunkSize <= 0:
		return goerr.Wrap(ErrInvalidConfig, "chunk size must be positive", goerr.V(FieldKey, "index.chunk_size"), goerr.V(ValueKey, a.Index.ChunkSize))
	case a.Index.ChunkOverlap < 0 || a.Index.ChunkOverlap >= a.Index.ChunkSize:
		return goerr.Wrap(ErrInvalidConfig, "chunk overlap must be in [0, chunk_size)", goerr.V(FieldKey, "index.chunk_overlap"), goerr.V(ValueKey, a.Index.ChunkOverlap))
	case a.Index.TopK <= 0:
		return goerr.Wrap(ErrInvalidConfig, "top_k must be positive", goerr.V(FieldKey, "index.top_k"), goerr.V(ValueKey, a.Index.TopK))
	case a.Router.MaxConcurrency <= 0:
		return goerr.Wrap(ErrInvalidConfig, "max_concurrency must be positive", goerr.V(FieldKey, "router.max_concurrency"), goerr.V(ValueKey, a.Router.MaxConcurrency))
	case a.Router.SimilarityThreshold <= 0 || a.Router.SimilarityThreshold > 1:
		return goerr.Wrap(ErrInvalidConfig, "similarity_threshold must be in (0, 1]", goerr.V(FieldKey, "router.similarity_threshold"), goerr.V(ValueKey, a.Router.SimilarityThreshold))
	case a.Agent.MaxIterations <= 0:
		return goerr.Wrap(ErrInvalidConfig, "max_iterations must be positive", goerr.V(FieldKey, "agent.max_iterations"), goerr.V(ValueKey, a.Agent.MaxIterations))
	}

	if _, err := a.AgentTimeout(); err != nil {
		return err
	}
	return nil
}

// AgentTimeout parses the per-question timeout. Empty means no limit.
func (a *AppConfig) AgentTimeout() (time.Duration, error) {
	if a.Agent.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Agent.Timeout)
	if err != nil || d < 0 {
		return 0, goerr.Wrap(ErrInvalidConfig, "invalid agent timeout", goerr.V(FieldKey, "agent.timeout"), goerr.V(ValueKey, a.Agent.Timeout))
	}
	return d, nil
}

// IndexOptions converts the index section to store options
func (a *AppConfig) IndexOptions() []index.Option {
	return []index.Option{
		index.WithChunkSize(a.Index.ChunkSize),
		index.WithChunkOverlap(a.Index.ChunkOverlap),
		index.WithDescriptionTokens(a.Index.DescriptionTokens),
		index.WithTopK(a.Index.TopK),
	}
}

// UsecaseOptions converts the tuning sections to orchestrator options
func (a *AppConfig) UsecaseOptions() []usecase.Option {
	timeout, _ := a.AgentTimeout()
	return []usecase.Option{
		usecase.WithIndexOptions(a.IndexOptions()...),
		usecase.WithRouterOptions(
			router.WithMaxConcurrency(a.Router.MaxConcurrency),
			router.WithSimilarityThreshold(a.Router.SimilarityThreshold),
		),
		usecase.WithAgentOptions(
			reasoning.WithMaxIterations(a.Agent.MaxIterations),
			reasoning.WithTimeout(timeout),
		),
	}
}

// LoadAppConfiguration loads the configuration from a TOML file on top of the defaults
func LoadAppConfiguration(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path), goerr.V("cause", err.Error()))
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return cfg, nil
}

// Corpus holds CLI flags that locate the documents and the table. Flags that
// are explicitly set override the configuration file.
type Corpus struct {
	configPath    string
	documentsDir  string
	tablePath     string
	tableRequired bool
	maxIterations int
}

func (x *Corpus) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "TOML configuration file",
			Category:    "Corpus",
			Sources:     cli.EnvVars("TAXAGENT_CONFIG"),
			Destination: &x.configPath,
		},
		&cli.StringFlag{
			Name:        "documents-dir",
			Usage:       "Directory of markdown tax documents",
			Category:    "Corpus",
			Sources:     cli.EnvVars("TAXAGENT_DOCUMENTS_DIR"),
			Destination: &x.documentsDir,
		},
		&cli.StringFlag{
			Name:        "table-path",
			Usage:       "Tax data CSV file",
			Category:    "Corpus",
			Sources:     cli.EnvVars("TAXAGENT_TABLE_PATH"),
			Destination: &x.tablePath,
		},
		&cli.BoolFlag{
			Name:        "table-required",
			Usage:       "Fail when the tax data CSV is missing",
			Category:    "Corpus",
			Sources:     cli.EnvVars("TAXAGENT_TABLE_REQUIRED"),
			Destination: &x.tableRequired,
		},
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "Maximum reasoning steps per question",
			Category:    "Corpus",
			Sources:     cli.EnvVars("TAXAGENT_MAX_ITERATIONS"),
			Destination: &x.maxIterations,
		},
	}
}

// isSetFunc reports whether a flag was set explicitly
type isSetFunc func(name string) bool

// Load builds the AppConfig from the optional file and explicitly set flags
func (x *Corpus) Load(c *cli.Command) (*AppConfig, error) {
	return x.load(c.IsSet)
}

func (x *Corpus) load(isSet isSetFunc) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if x.configPath != "" {
		loaded, err := LoadAppConfiguration(x.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if isSet("documents-dir") {
		cfg.Corpus.DocumentsDir = x.documentsDir
	}
	if isSet("table-path") {
		cfg.Corpus.TablePath = x.tablePath
	}
	if isSet("table-required") {
		cfg.Corpus.TableRequired = x.tableRequired
	}
	if isSet("max-iterations") {
		cfg.Agent.MaxIterations = x.maxIterations
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
