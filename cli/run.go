package cli

// This file contains the run command: it executes a test selection and
// streams per-test results the way a test-explorer UI would consume them.

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/ctestx/ctestx/adapter"
	"github.com/ctestx/ctestx/model"
)

// adapterHooks wires run notifications to the terminal.
func adapterHooks(streamOutput bool, onResult func(model.TestResult)) adapter.RunHooks {
	hooks := adapter.RunHooks{OnResult: onResult}
	if streamOutput {
		hooks.OnOutput = func(id, line string) {
			fmt.Println(line)
		}
	}
	return hooks
}

func (a *App) run(ctx *cli.Context) error {
	adp, _, err := a.newAdapter(ctx)
	if err != nil {
		return err
	}

	tree, err := adp.Load(ctx.Context)
	if err != nil {
		return err
	}

	ids := ctx.Args().Slice()
	total := len(ids)
	if total == 0 {
		total = len(tree.Tests())
	}
	if total == 0 {
		fmt.Println("No tests found")
		return nil
	}

	streamOutput := ctx.Bool("output")
	var bar *progressbar.ProgressBar
	if !streamOutput {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Running tests"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	// First interrupt cancels the run; in-flight processes get a
	// termination request and the remainder is retired.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		if _, ok := <-interrupt; ok {
			a.logger.Info().Msg("Cancelling test run")
			adp.Cancel()
		}
	}()

	var mu sync.Mutex
	var results []model.TestResult
	hooks := adapterHooks(streamOutput, func(result model.TestResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, result)
		if bar != nil {
			_ = bar.Add(1)
		}
	})

	if err := adp.Run(ctx.Context, ids, hooks); err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	signal.Stop(interrupt)
	close(interrupt)

	return printSummary(results)
}

func printSummary(results []model.TestResult) error {
	var passed, failed, errored, retired int

	fmt.Println()
	for _, result := range results {
		switch result.Outcome {
		case model.OutcomePassed:
			passed++
			fmt.Printf("%s %s  [%s]\n", color.GreenString("✓"), result.ID, result.Duration)
		case model.OutcomeFailed:
			failed++
			fmt.Printf("%s %s  [%s]\n", color.RedString("✗"), result.ID, result.Duration)
			for _, d := range result.Decorations {
				fmt.Printf("    %s:%d: %s\n", d.File, d.Line, d.Message)
			}
		case model.OutcomeErrored:
			errored++
			fmt.Printf("%s %s: %s\n", color.RedString("!"), result.ID, result.Message)
		case model.OutcomeRetired:
			retired++
			fmt.Printf("%s %s (cancelled)\n", color.YellowString("-"), result.ID)
		}
	}

	fmt.Printf("\n%s  %s",
		color.GreenString("passed: %d", passed),
		color.RedString("failed: %d", failed))
	if errored > 0 {
		fmt.Printf("  %s", color.RedString("errored: %d", errored))
	}
	if retired > 0 {
		fmt.Printf("  %s", color.YellowString("retired: %d", retired))
	}
	fmt.Println()

	if failed+errored > 0 {
		return fmt.Errorf("%d test(s) did not pass", failed+errored)
	}
	return nil
}
