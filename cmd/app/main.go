package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mdimport/internal"
	"github.com/starford/mdimport/internal/index"
	"github.com/starford/mdimport/internal/mcpserver"
	"github.com/starford/mdimport/internal/storage"
	pkgconfig "github.com/starford/mdimport/pkg/config"
)

// loadConfig reads the config file and applies client flag overrides. The
// serve command requires the file; the client commands fall back to
// defaults when it is absent.
func loadConfig(cmd *cli.Command, required bool) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	load := pkgconfig.LoadOptional[internal.Config]
	if required {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if v := cmd.String("url"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := cmd.String("token"); v != "" {
		cfg.Client.Token = v
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.App.HTTP.Port = int(port)
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol.
	slog.SetDefault(internal.NewLogger(os.Stderr, cfg.App.LogLevel))

	src, err := storage.NewFS(cfg.Import.ScanRoot)
	if err != nil {
		return fmt.Errorf("init scan root: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	return mcpserver.New(src, db).ServeStdio()
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Usage:   "Base URL of the import server, overrides client.base_url",
			Sources: cli.EnvVars("MDIMPORT_URL"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Bearer token for the import server, overrides client.token",
			Sources: cli.EnvVars("MDIMPORT_TOKEN"),
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "mdimport",
		Usage:  "Import Markdown files with frontmatter into an article store",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the import server",
				Action: serve,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "HTTP port, overrides app.http.port",
						Sources: cli.EnvVars("APP_PORT"),
					},
				},
			},
			{
				Name:      "scan",
				Usage:     "Parse a directory locally and report what would be imported",
				ArgsUsage: "<dir>",
				Action:    scanCommand,
			},
			{
				Name:      "import",
				Usage:     "Scan a directory, submit valid files and follow the task",
				ArgsUsage: "<dir>",
				Action:    importCommand,
				Flags:     append(importFlags(), clientFlags()...),
			},
			{
				Name:      "progress",
				Usage:     "Show the progress of a task",
				ArgsUsage: "<taskId>",
				Action:    progressCommand,
				Flags:     clientFlags(),
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a running task",
				ArgsUsage: "<taskId>",
				Action:    cancelCommand,
				Flags:     clientFlags(),
			},
			{
				Name:   "history",
				Usage:  "List recently submitted tasks",
				Action: historyCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the import tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
