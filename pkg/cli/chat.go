package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/agent/reasoning"
	"github.com/secmon-lab/taxagent/pkg/utils/errutil"
	"github.com/urfave/cli/v3"
)

func cmdChat() *cli.Command {
	var flags appFlags
	var showTrace bool

	return &cli.Command{
		Name:  "chat",
		Usage: "Answer questions interactively (type exit or quit to leave)",
		Flags: append(flags.Flags(),
			&cli.BoolFlag{
				Name:        "trace",
				Usage:       "Print every reasoning step before the answer",
				Sources:     cli.EnvVars("TAXAGENT_TRACE"),
				Destination: &showTrace,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			o, closer, err := flags.orchestrator(ctx, c)
			if err != nil {
				return errutil.Handle(ctx, err, "failed to set up")
			}
			defer closer()

			return chatLoop(ctx, o, c.Root().Reader, c.Root().Writer, showTrace)
		},
	}
}

// asker is the part of the orchestrator the chat loop needs
type asker interface {
	AskWithTrace(ctx context.Context, question string) (*reasoning.Result, error)
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit":
		return true
	}
	return false
}

// chatLoop reads one question per line until EOF or an exit command
func chatLoop(ctx context.Context, o asker, r io.Reader, w io.Writer, showTrace bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		_, _ = labelColor.Fprint(w, "Question: ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isExit(line) {
			_, _ = fmt.Fprintln(w, "Bye.")
			return nil
		}

		res, err := o.AskWithTrace(withProgress(ctx, w), line)
		if err != nil {
			return errutil.Handle(ctx, err, "failed to answer")
		}
		printAnswer(w, res, showTrace)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read question")
	}
	_, _ = fmt.Fprintln(w)
	return nil
}
