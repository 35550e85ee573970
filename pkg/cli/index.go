package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/usecase"
	"github.com/secmon-lab/taxagent/pkg/utils/errutil"
	"github.com/urfave/cli/v3"
)

func cmdIndex() *cli.Command {
	var flags appFlags
	var rebuild bool

	return &cli.Command{
		Name:  "index",
		Usage: "Build or refresh the index snapshot of every document",
		Flags: append(flags.Flags(),
			&cli.BoolFlag{
				Name:        "rebuild",
				Usage:       "Rebuild every snapshot even when a valid one exists",
				Destination: &rebuild,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			env, closer, err := flags.configure(ctx, c)
			if err != nil {
				return errutil.Handle(ctx, err, "failed to set up")
			}
			defer closer()

			reports, err := usecase.IndexDocuments(ctx, env.uc, rebuild, env.app.IndexOptions()...)
			if err != nil {
				return errutil.Handle(ctx, err, "failed to index documents")
			}

			if failed := printIndexReports(c.Root().Writer, reports); failed > 0 {
				return goerr.New("some documents could not be indexed", goerr.V("failed", failed))
			}
			return nil
		},
	}
}

// printIndexReports prints one line per document and returns the number of failures
func printIndexReports(w io.Writer, reports []usecase.IndexReport) int {
	var failed int
	for _, r := range reports {
		if r.Err != nil {
			failed++
			_, _ = warnColor.Fprintf(w, "✗ %s: %v\n", r.Document.Name, r.Err)
			continue
		}
		_, _ = answerColor.Fprintf(w, "✓ %s", r.Document.Name)
		_, _ = fmt.Fprintf(w, " (%d chunks) %s\n", r.Chunks, r.Description)
	}
	_, _ = fmt.Fprintf(w, "%d documents, %d failed\n", len(reports), failed)
	return failed
}
