package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/ithil/pensieve/internal"
	pkgconfig "github.com/ithil/pensieve/pkg/config"
)

var version = "dev"

// loadConfig reads the config file when present and applies the
// --collection override.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if p := cmd.String("collection"); p != "" {
		cfg.Collection.Path = p
	}
	return cfg, nil
}

func options(cfg *internal.Config, logs io.Writer) []internal.Option {
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithLogOutput(logs),
		internal.WithVersion(version),
	}
}

// openEnv opens the collection for a one-shot command. Logs are discarded
// unless --verbose is set.
func openEnv(ctx context.Context, cmd *cli.Command) (*internal.Env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	var logs io.Writer = io.Discard
	if cmd.Bool("verbose") {
		logs = os.Stderr
	}
	return internal.Open(ctx, options(cfg, logs)...)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, options(cfg, os.Stdout)...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, options(cfg, os.Stderr)...)
}

func main() {
	cmd := &cli.Command{
		Name:    "pensieve",
		Usage:   "File-backed note graph with stacks, sidecar relations, templates and ports",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.yaml, .toml or .json)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("PENSIEVE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "collection",
				Aliases: []string{"C"},
				Usage:   "Directory inside the collection (overrides the config file)",
				Sources: cli.EnvVars("PENSIEVE_COLLECTION"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Write logs of one-shot commands to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the filesystem watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			initCommand(),
			linkCommand(),
			unlinkCommand(),
			moveLinkCommand(),
			moveCommand(),
			renameCommand(),
			deleteCommand(),
			sendCommand(),
			dateCommand(),
			templateCommand(),
			portCommand(),
			checkCommand(),
			commitCommand(),
			reindexCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.Red("Error: %v", err)
		slog.Debug("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
