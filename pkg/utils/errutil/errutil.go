package errutil

import (
	"context"
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
)

// Handle logs the error with a message and returns it unchanged.
// goerr values and stacks are included so the failing document or tool can be traced.
// When a Sentry client is configured the error is reported as well.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	report(ctx, err, ge, msg)
	return err
}

func report(ctx context.Context, err error, ge *goerr.Error, msg string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("handler", msg)
		if ge != nil {
			scope.SetContext("goerr", ge.Values())
		}
		hub.CaptureException(err)
	})
}
