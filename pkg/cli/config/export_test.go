package config

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{
		projectID: projectID,
		location:  location,
	}
}

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, openaiAPIKey string, gemini Gemini) *LLM {
	return &LLM{
		provider:     provider,
		openaiAPIKey: openaiAPIKey,
		gemini:       gemini,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, dir, bucket, projectID string) *Repository {
	return &Repository{backend: backend, dir: dir, bucket: bucket, projectID: projectID}
}

// NewCorpusForTest creates a Corpus config for testing purposes
func NewCorpusForTest(configPath, documentsDir, tablePath string, maxIterations int) *Corpus {
	return &Corpus{
		configPath:    configPath,
		documentsDir:  documentsDir,
		tablePath:     tablePath,
		maxIterations: maxIterations,
	}
}

// LoadCorpus exposes Corpus.load with an explicit set-flag predicate
func LoadCorpus(x *Corpus, isSet func(name string) bool) (*AppConfig, error) {
	return x.load(isSet)
}

// NewSentryForTest creates a Sentry config for testing purposes
func NewSentryForTest(dsn, env string) *Sentry {
	return &Sentry{dsn: dsn, env: env}
}
