package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/agent/tool"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

func echoTool(name string) gollem.Tool {
	return tool.NewQueryTool(name, "echoes "+name, func(ctx context.Context, query string) (string, error) {
		return name + ":" + query, nil
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and resolve", func(t *testing.T) {
		r := tool.NewRegistry()
		gt.NoError(t, r.Register(echoTool("W2"))).Required()
		gt.NoError(t, r.Register(echoTool("Form1040"))).Required()

		got, err := r.Resolve("W2")
		gt.NoError(t, err).Required()
		gt.Value(t, got.Spec().Name).Equal("W2")

		gt.Value(t, r.Names()).Equal([]string{"Form1040", "W2"})
		list := r.List()
		gt.Array(t, list).Length(2)
		gt.Value(t, list[0]).Equal(model.ToolDescriptor{Name: "Form1040", Description: "echoes Form1040"})
		gt.Value(t, r.Len()).Equal(2)
	})

	t.Run("duplicate name", func(t *testing.T) {
		r := tool.NewRegistry()
		gt.NoError(t, r.Register(echoTool("W2"))).Required()
		gt.Error(t, r.Register(echoTool("W2"))).Is(model.ErrDuplicateTool)
	})

	t.Run("unknown name", func(t *testing.T) {
		r := tool.NewRegistry()
		_, err := r.Resolve("Form1099")
		gt.Error(t, err).Is(model.ErrUnknownTool)
	})

	t.Run("sealed registry rejects registration", func(t *testing.T) {
		r := tool.NewRegistry()
		r.Seal()
		gt.Error(t, r.Register(echoTool("W2"))).Is(model.ErrRegistrySealed)
	})

	t.Run("empty name", func(t *testing.T) {
		r := tool.NewRegistry()
		gt.Error(t, r.Register(echoTool(" ")))
	})
}

func TestInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer", func(t *testing.T) {
		answer, err := tool.Invoke(ctx, echoTool("W2"), "box 1?")
		gt.NoError(t, err).Required()
		gt.Value(t, answer).Equal("W2:box 1?")
	})

	t.Run("propagates tool error", func(t *testing.T) {
		failing := tool.NewQueryTool("broken", "", func(ctx context.Context, query string) (string, error) {
			return "", errors.New("index unavailable")
		})
		_, err := tool.Invoke(ctx, failing, "q")
		gt.Error(t, err)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		_, err := tool.Invoke(ctx, echoTool("W2"), "")
		gt.Error(t, err).Contains("query is required")
		gt.Value(t, goerr.Values(err)[model.ToolNameKey]).Equal(any("W2"))
	})
}

func TestUpdate(t *testing.T) {
	var got []string
	ctx := tool.WithUpdate(context.Background(), func(ctx context.Context, msg string) {
		got = append(got, msg)
	})

	tool.Update(ctx, "Consulting Form1040")
	tool.Update(context.Background(), "dropped")
	gt.Value(t, got).Equal([]string{"Consulting Form1040"})
}
