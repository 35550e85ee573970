package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/utils/errutil"
	"github.com/urfave/cli/v3"
)

func cmdAsk() *cli.Command {
	var flags appFlags
	var showTrace bool

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a single question",
		ArgsUsage: "<question>",
		Flags: append(flags.Flags(),
			&cli.BoolFlag{
				Name:        "trace",
				Usage:       "Print every reasoning step before the answer",
				Sources:     cli.EnvVars("TAXAGENT_TRACE"),
				Destination: &showTrace,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.New("question is required")
			}

			o, closer, err := flags.orchestrator(ctx, c)
			if err != nil {
				return errutil.Handle(ctx, err, "failed to set up")
			}
			defer closer()

			w := c.Root().Writer
			res, err := o.AskWithTrace(withProgress(ctx, w), question)
			if err != nil {
				return errutil.Handle(ctx, err, "failed to answer")
			}
			printAnswer(w, res, showTrace)
			return nil
		},
	}
}
