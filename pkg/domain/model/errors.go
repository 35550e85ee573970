package model

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors shared by the retrieval, routing and agent layers
var (
	// ErrIndexLoad means a persisted snapshot is corrupt or schema-incompatible
	ErrIndexLoad = goerr.New("failed to load index snapshot")

	// ErrSnapshotNotFound is returned by snapshot stores when no snapshot exists for a key
	ErrSnapshotNotFound = goerr.New("index snapshot not found")

	// ErrDocumentNotFound is returned by document sources for unknown documents
	ErrDocumentNotFound = goerr.New("document not found")

	// ErrNoAnswer means every sub-question of a routed query failed
	ErrNoAnswer = goerr.New("no sub-question produced an answer")

	// ErrTableQuery means a generated table query could not be evaluated against the schema
	ErrTableQuery = goerr.New("table query failed")

	// ErrTableNotFound means the tabular source file is absent
	ErrTableNotFound = goerr.New("tabular source not found")

	// ErrDuplicateTool is returned when a tool name is registered twice
	ErrDuplicateTool = goerr.New("duplicate tool name")

	// ErrUnknownTool is returned when resolving a name that is not registered
	ErrUnknownTool = goerr.New("unknown tool")

	// ErrRegistrySealed is returned when registering into a registry that is already in use
	ErrRegistrySealed = goerr.New("tool registry is sealed")

	// ErrNoTools means no tool could be made available for answering
	ErrNoTools = goerr.New("no tools available")

	// ErrGenerationService means the language-generation collaborator failed or returned malformed output
	ErrGenerationService = goerr.New("generation service failed")
)

// Context keys for error values
const (
	DocumentIDKey = "document_id"
	ToolNameKey   = "tool_name"
	ColumnKey     = "column"
	AttemptKey    = "attempt"
)
