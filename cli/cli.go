package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/ctestx/ctestx/adapter"
	"github.com/ctestx/ctestx/config"
)

const AppName = "ctestx"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Discover and run CTest tests the way a test-explorer UI would",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:  "workspace",
					Usage: "Workspace folder substituted for ${workspaceFolder}",
					Value: ".",
				},
				&cli.StringFlag{
					Name:  "config",
					Usage: "Settings file (default: <workspace>/" + config.DefaultConfigFile + ")",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "Load the test manifest and print the suite tree",
		Action: app.list,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run all tests, or only the named ones",
		ArgsUsage: "[test id ...]",
		Action:    app.run,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "output",
				Usage: "Stream runner output while tests execute",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "debug",
		Usage:     "Print the debug launch configuration for one test",
		ArgsUsage: "<test id>",
		Action:    app.debug,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "launch",
				Usage: "JSON file with the base launch configuration to merge into (overrides debugConfig)",
			},
		},
	})

	return app
}

// SetVersion sets the version information for the CLI
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// Run runs the CLI application
func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// newAdapter builds the workspace adapter from the global flags.
func (a *App) newAdapter(ctx *cli.Context) (*adapter.Adapter, *config.Settings, error) {
	workspace, err := filepath.Abs(ctx.String("workspace"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve workspace folder: %w", err)
	}

	configPath := ctx.String("config")
	if configPath == "" {
		configPath = filepath.Join(workspace, config.DefaultConfigFile)
	}
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	a.logger.Debug().
		Str("workspace", workspace).
		Str("config", configPath).
		Msg("Creating workspace adapter")

	return adapter.New(a.logger, settings, workspace, nil), settings, nil
}
