package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// ErrInvalidBenchmark is returned when the benchmark input lacks required columns
	ErrInvalidBenchmark = goerr.New("invalid benchmark input")

	// ErrInvalidConfig is returned when a required collaborator is missing
	ErrInvalidConfig = goerr.New("invalid orchestrator config")
)

// Context keys for error values
const (
	QuestionKey = "question"
	LineKey     = "line"
)
