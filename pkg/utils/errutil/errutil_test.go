package errutil_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/utils/errutil"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
)

func TestHandle(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	t.Run("nil error", func(t *testing.T) {
		gt.NoError(t, errutil.Handle(ctx, nil, "noop"))
		gt.Value(t, buf.Len()).Equal(0)
	})

	t.Run("goerr values are logged", func(t *testing.T) {
		buf.Reset()
		src := goerr.New("index build failed", goerr.V("document_id", "Form1040"))
		err := errutil.Handle(ctx, src, "failed to ask")
		gt.Bool(t, errors.Is(err, src)).True()
		gt.String(t, buf.String()).Contains("Form1040")
		gt.String(t, buf.String()).Contains("failed to ask")
	})

	t.Run("plain error", func(t *testing.T) {
		buf.Reset()
		_ = errutil.Handle(ctx, errors.New("plain"), "oops")
		gt.String(t, buf.String()).Contains("plain")
	})
}

func TestHandle_Sentry(t *testing.T) {
	var events []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://public@sentry.invalid/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			events = append(events, event)
			return nil
		},
	})
	gt.NoError(t, err).Required()

	hub := sentry.NewHub(client, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), hub)

	src := goerr.New("snapshot save failed", goerr.V("document_id", "USC26"))
	gt.Bool(t, errors.Is(errutil.Handle(ctx, src, "failed to index documents"), src)).True()

	gt.Array(t, events).Length(1).Required()
	gt.Value(t, events[0].Tags["handler"]).Equal("failed to index documents")
	gt.Array(t, events[0].Exception).Longer(0).Required()
	gt.Value(t, events[0].Exception[len(events[0].Exception)-1].Value).Equal("snapshot save failed")
}
