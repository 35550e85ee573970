package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/cli/config"
)

func TestSentry_Configure(t *testing.T) {
	t.Run("disabled without dsn", func(t *testing.T) {
		closer, err := config.NewSentryForTest("", "").Configure("dev")
		gt.NoError(t, err).Required()
		gt.Value(t, closer).NotNil()
		closer()
	})

	t.Run("malformed dsn", func(t *testing.T) {
		_, err := config.NewSentryForTest("not a dsn", "test").Configure("dev")
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}
