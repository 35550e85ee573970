package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/agent/reasoning"
	"github.com/secmon-lab/taxagent/pkg/agent/tool"
	"github.com/secmon-lab/taxagent/pkg/cli/config"
	"github.com/secmon-lab/taxagent/pkg/service/document"
	"github.com/secmon-lab/taxagent/pkg/usecase"
	"github.com/secmon-lab/taxagent/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// appFlags groups the flags shared by every command that talks to the corpus
type appFlags struct {
	corpus config.Corpus
	llm    config.LLM
	repo   config.Repository
}

func (x *appFlags) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, x.corpus.Flags()...)
	flags = append(flags, x.llm.Flags()...)
	flags = append(flags, x.repo.Flags()...)
	return flags
}

// environment is everything a command needs to build use cases
type environment struct {
	app *config.AppConfig
	uc  usecase.Config
}

// configure resolves flags into use case collaborators. The returned closer
// releases the snapshot store client.
func (x *appFlags) configure(ctx context.Context, c *cli.Command) (*environment, func(), error) {
	appCfg, err := x.corpus.Load(c)
	if err != nil {
		return nil, nil, err
	}

	logging.Default().Debug("configuration loaded",
		"llm", x.llm,
		"repository", x.repo,
		"documents_dir", appCfg.Corpus.DocumentsDir,
		"table_path", appCfg.Corpus.TablePath,
	)

	source, err := document.NewDirectorySource(appCfg.Corpus.DocumentsDir,
		document.WithExtensions(appCfg.Corpus.Extensions...))
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open documents directory")
	}

	gen, err := x.llm.Generator(ctx)
	if err != nil {
		return nil, nil, err
	}

	snapshots, closer, err := x.repo.Configure(ctx)
	if err != nil {
		return nil, nil, err
	}

	return &environment{
		app: appCfg,
		uc: usecase.Config{
			Source:        source,
			Snapshots:     snapshots,
			Generator:     gen,
			TablePath:     appCfg.Corpus.TablePath,
			TableRequired: appCfg.Corpus.TableRequired,
		},
	}, closer, nil
}

// orchestrator builds the orchestrator for ask, chat and bench
func (x *appFlags) orchestrator(ctx context.Context, c *cli.Command) (*usecase.Orchestrator, func(), error) {
	env, closer, err := x.configure(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	o, err := usecase.New(ctx, env.uc, env.app.UsecaseOptions()...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return o, closer, nil
}

var (
	answerColor   = color.New(color.FgGreen, color.Bold)
	progressColor = color.New(color.FgHiBlack)
	warnColor     = color.New(color.FgYellow)
	labelColor    = color.New(color.FgCyan)
)

// withProgress prints tool progress lines to w while the agent works
func withProgress(ctx context.Context, w io.Writer) context.Context {
	return tool.WithUpdate(ctx, func(ctx context.Context, message string) {
		_, _ = progressColor.Fprintf(w, "  %s\n", message)
	})
}

func printAnswer(w io.Writer, res *reasoning.Result, showTrace bool) {
	if showTrace {
		printTrace(w, res)
	}
	if res.Exhausted {
		_, _ = warnColor.Fprintf(w, "(stopped after %d steps)\n", res.Iterations)
	}
	_, _ = answerColor.Fprintln(w, res.Answer)
}

func printTrace(w io.Writer, res *reasoning.Result) {
	for _, s := range res.Trace.Steps {
		_, _ = labelColor.Fprintf(w, "Step %d\n", s.Index)
		if s.Thought != "" {
			_, _ = fmt.Fprintf(w, "  Thought: %s\n", s.Thought)
		}
		if s.ToolName == "" {
			continue
		}
		_, _ = fmt.Fprintf(w, "  Action: %s\n", s.ToolName)
		_, _ = fmt.Fprintf(w, "  Action Input: %s\n", s.ToolInput)
		observation := strings.ReplaceAll(s.Observation, "\n", "\n    ")
		if s.Failed {
			_, _ = warnColor.Fprintf(w, "  Observation: %s\n", observation)
		} else {
			_, _ = fmt.Fprintf(w, "  Observation: %s\n", observation)
		}
	}
}
