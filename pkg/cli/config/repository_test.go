package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/cli/config"
)

func TestRepository_Configure(t *testing.T) {
	t.Run("file backend", func(t *testing.T) {
		store, closer, err := config.NewRepositoryForTest(config.BackendFile, t.TempDir(), "", "").Configure(t.Context())
		gt.NoError(t, err).Required()
		defer closer()
		gt.Value(t, store).NotNil()
	})

	t.Run("memory backend", func(t *testing.T) {
		store, closer, err := config.NewRepositoryForTest(config.BackendMemory, "", "", "").Configure(t.Context())
		gt.NoError(t, err).Required()
		defer closer()
		gt.Value(t, store).NotNil()
	})

	t.Run("gcs requires bucket", func(t *testing.T) {
		_, _, err := config.NewRepositoryForTest(config.BackendGCS, "", "", "").Configure(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("firestore requires project", func(t *testing.T) {
		_, _, err := config.NewRepositoryForTest(config.BackendFirestore, "", "", "").Configure(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := config.NewRepositoryForTest("s3", "", "", "").Configure(t.Context())
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}
