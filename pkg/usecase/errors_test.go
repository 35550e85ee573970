package usecase_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/usecase"
)

func TestErrors_ErrorsAreDistinct(t *testing.T) {
	gt.Value(t, usecase.ErrInvalidBenchmark).NotNil()
	gt.Value(t, usecase.ErrInvalidConfig).NotNil()
	gt.Bool(t, errors.Is(usecase.ErrInvalidBenchmark, usecase.ErrInvalidConfig)).False()
}
