package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/sagerenn/lexis/internal/app"
	"github.com/sagerenn/lexis/internal/config"
	"github.com/sagerenn/lexis/internal/observability"
)

const (
	// ExitNoMatch is returned by search and lookup when nothing matches.
	ExitNoMatch = 1
	// ExitUsage is returned for bad arguments.
	ExitUsage = 2
)

func main() {
	_ = godotenv.Load()
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lexis",
		Usage: "Search and manage offline dictionaries.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "read settings from `FILE`",
				EnvVars: []string{"LEXIS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "keep installed dictionaries in `DIR`",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "cache remote catalogs in `DIR`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log `LEVEL` written to stderr (debug, info, warn, error)",
				Value: "error",
			},
		},
		Commands: []*cli.Command{
			searchCommand,
			lookupCommand,
			importCommand,
			removeCommand,
			enableCommand,
			disableCommand,
			listCommand,
			formatsCommand,
			catalogCommand,
			serveCommand,
			versionCommand,
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if d := c.String("data-dir"); d != "" {
		cfg.DataDir = d
	}
	if d := c.String("cache-dir"); d != "" {
		cfg.CacheDir = d
	}
	return cfg, config.Validate(cfg)
}

// openApp loads the configuration and opens every enabled dictionary. Logs go
// to stderr so command output stays clean.
func openApp(c *cli.Context) (*app.App, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log := observability.NewWithWriter(c.App.ErrWriter, c.String("log-level"))
	return app.New(cfg, log)
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the content bridge until interrupted",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		log := observability.NewWithWriter(c.App.ErrWriter, cfg.Log.Level)
		a, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx, func(addr string) {
			fmt.Fprintf(c.App.Writer, "listening on http://%s\n", addr)
		})
	},
}
