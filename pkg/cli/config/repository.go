package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/interfaces"
	"github.com/secmon-lab/taxagent/pkg/repository/file"
	"github.com/secmon-lab/taxagent/pkg/repository/firestore"
	"github.com/secmon-lab/taxagent/pkg/repository/gcs"
	"github.com/secmon-lab/taxagent/pkg/repository/memory"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	BackendFile      = "file"
	BackendMemory    = "memory"
	BackendGCS       = "gcs"
	BackendFirestore = "firestore"
)

// Repository holds CLI flags for the index snapshot backend
type Repository struct {
	backend    string
	dir        string
	bucket     string
	prefix     string
	projectID  string
	databaseID string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Index snapshot backend (file, memory, gcs or firestore)",
			Category:    "Repository",
			Value:       BackendFile,
			Sources:     cli.EnvVars("TAXAGENT_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "index-dir",
			Usage:       "Directory for index snapshots (file backend)",
			Category:    "Repository",
			Value:       "data/indexes",
			Sources:     cli.EnvVars("TAXAGENT_INDEX_DIR"),
			Destination: &r.dir,
		},
		&cli.StringFlag{
			Name:        "gcs-bucket",
			Usage:       "Cloud Storage bucket (gcs backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("TAXAGENT_GCS_BUCKET"),
			Destination: &r.bucket,
		},
		&cli.StringFlag{
			Name:        "snapshot-prefix",
			Usage:       "Object prefix (gcs) or collection prefix (firestore) for snapshots",
			Category:    "Repository",
			Sources:     cli.EnvVars("TAXAGENT_SNAPSHOT_PREFIX"),
			Destination: &r.prefix,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("TAXAGENT_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("TAXAGENT_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("dir", r.dir),
		slog.String("bucket", r.bucket),
		slog.String("prefix", r.prefix),
		slog.String("project_id", r.projectID),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// Configure initializes the snapshot store of the configured backend. The
// returned closer releases its client and is never nil.
func (r *Repository) Configure(ctx context.Context) (interfaces.SnapshotStore, func(), error) {
	noop := func() {}

	switch r.backend {
	case BackendFile:
		store, err := file.New(r.dir)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to initialize file snapshot store")
		}
		logging.Default().Info("Using file snapshot store", "dir", r.dir)
		return store, noop, nil

	case BackendMemory:
		logging.Default().Info("Using in-memory snapshot store (indexes are rebuilt every run)")
		return memory.New(), noop, nil

	case BackendGCS:
		if r.bucket == "" {
			return nil, nil, goerr.Wrap(ErrInvalidConfig, "gcs-bucket is required when using gcs backend")
		}
		store, err := gcs.New(ctx, r.bucket, gcs.WithPrefix(r.prefix))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to initialize gcs snapshot store")
		}
		logging.Default().Info("Using Cloud Storage snapshot store", "bucket", r.bucket, "prefix", r.prefix)
		return store, func() { _ = store.Close() }, nil

	case BackendFirestore:
		if r.projectID == "" {
			return nil, nil, goerr.Wrap(ErrInvalidConfig, "firestore-project-id is required when using firestore backend")
		}
		store, err := firestore.New(ctx, r.projectID, r.databaseID, firestore.WithCollectionPrefix(r.prefix))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to initialize firestore snapshot store")
		}
		logging.Default().Info("Using Firestore snapshot store",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, goerr.Wrap(ErrInvalidConfig, "invalid repository backend", goerr.V(ValueKey, r.backend))
	}
}
