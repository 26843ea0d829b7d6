package cli

// This file contains the debug command: it prints the launch configuration
// a debugger-launch subsystem would receive for one test.

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ctestx/ctestx/debug"
)

func (a *App) debug(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return fmt.Errorf("a test id is required")
	}

	adp, _, err := a.newAdapter(ctx)
	if err != nil {
		return err
	}
	if _, err := adp.Load(ctx.Context); err != nil {
		return err
	}

	// Without --launch the adapter falls back to the configured debugConfig
	// file, then to the built-in default.
	var base debug.LaunchConfig
	if launchPath := ctx.String("launch"); launchPath != "" {
		data, err := os.ReadFile(launchPath)
		if err != nil {
			return fmt.Errorf("failed to read launch configuration: %w", err)
		}
		if err := json.Unmarshal(data, &base); err != nil {
			return fmt.Errorf("failed to parse launch configuration: %w", err)
		}
	}

	launch, ok := adp.Debug(ctx.Context, id, base)
	if !ok {
		a.logger.Warn().Str("test", id).Msg("Test not found")
		return nil
	}

	output, err := json.MarshalIndent(launch, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
