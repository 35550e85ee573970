package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/usecase"
	"github.com/secmon-lab/taxagent/pkg/utils/errutil"
	"github.com/secmon-lab/taxagent/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdBench() *cli.Command {
	var flags appFlags
	var input, output string
	var concurrency int

	return &cli.Command{
		Name:  "bench",
		Usage: "Evaluate answers against a CSV of questions and expected answers",
		Flags: append(flags.Flags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "CSV with Query and Expected Answer columns",
				Required:    true,
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Results CSV",
				Value:       "evaluation_results.csv",
				Destination: &output,
			},
			&cli.IntFlag{
				Name:        "concurrency",
				Usage:       "Questions evaluated at once",
				Value:       1,
				Destination: &concurrency,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cases, err := readBenchmarkCases(input)
			if err != nil {
				return errutil.Handle(ctx, err, "failed to read benchmark input")
			}

			o, closer, err := flags.orchestrator(ctx, c)
			if err != nil {
				return errutil.Handle(ctx, err, "failed to set up")
			}
			defer closer()

			w := c.Root().Writer
			report, err := o.Benchmark(ctx, cases,
				usecase.WithBenchmarkConcurrency(concurrency),
				usecase.WithBenchmarkProgress(func(done, total int, r usecase.BenchmarkResult) {
					mark := answerColor.Sprint("✓")
					if !r.Correct {
						mark = warnColor.Sprint("✗")
					}
					_, _ = fmt.Fprintf(w, "[%d/%d] %s %s\n", done, total, mark, r.Query)
				}),
			)
			if err != nil {
				return errutil.Handle(ctx, err, "benchmark failed")
			}

			if err := writeBenchmarkResults(output, report); err != nil {
				return errutil.Handle(ctx, err, "failed to write benchmark results")
			}

			_, _ = labelColor.Fprintf(w, "Accuracy: %.2f (%d/%d)\n", report.Accuracy, report.Correct, report.Total)
			_, _ = fmt.Fprintf(w, "Detailed results saved to %s\n", output)
			return nil
		},
	}
}

func readBenchmarkCases(path string) ([]usecase.BenchmarkCase, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open benchmark input", goerr.V("path", path))
	}
	defer safe.Close(context.Background(), f)

	return usecase.ReadBenchmarkCases(f)
}

func writeBenchmarkResults(path string, report *usecase.BenchmarkReport) error {
	// #nosec G304 - path is expected to be provided by CLI argument
	f, err := os.Create(path)
	if err != nil {
		return goerr.Wrap(err, "failed to create benchmark output", goerr.V("path", path))
	}

	if err := usecase.WriteBenchmarkResults(f, report); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return goerr.Wrap(err, "failed to close benchmark output", goerr.V("path", path))
	}
	return nil
}
