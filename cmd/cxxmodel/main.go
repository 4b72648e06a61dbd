package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dejo1307/cxxmodel/internal/config"
	"github.com/dejo1307/cxxmodel/internal/engine"
	"github.com/dejo1307/cxxmodel/internal/project"
	"github.com/dejo1307/cxxmodel/internal/server"
)

var version = "dev"

func main() {
	// MCP uses stdout for JSON-RPC; all logging goes to stderr.
	log.SetDefault(log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true}))

	app := &cli.App{
		Name:    "cxxmodel",
		Usage:   "Incremental C/C++ declaration model with an MCP interface",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.yaml or .toml)",
				Value:   "cxxmodel.yaml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Override the number of parse workers",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "parse",
				Usage:  "Parse all projects once and write the model",
				Action: parseCommand,
			},
			{
				Name:  "serve",
				Usage: "Run the MCP server over stdio",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "load",
						Usage: "Parse all projects in the background on startup",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Follow file changes (defaults to watch.enabled)",
					},
				},
				Action: serveCommand,
			},
			{
				Name:   "watch",
				Usage:  "Parse all projects, then follow file changes and save after each batch",
				Action: watchCommand,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal("cxxmodel failed", "err", err)
	}
}

// loadConfig reads the config named by --config, falling back to defaults
// when the file does not exist, and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("config not found, using defaults", "path", path)
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	if n := c.Int("workers"); n > 0 {
		cfg.Workers = n
	}
	level := cfg.Log.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	if level != "" {
		lvl, err := log.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		log.SetLevel(lvl)
	}
	return cfg, nil
}

// startEngine builds and starts an engine, restoring any saved model.
func startEngine(ctx context.Context, c *cli.Context) (*engine.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	eng.Start(ctx)
	if ok, err := eng.Restore(); err != nil {
		log.Warn("ignoring saved model", "err", err)
	} else if ok {
		log.Info("restored saved model", "declarations", eng.Store().Count())
	}
	return eng, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func parseCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	eng, err := startEngine(ctx, c)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.LoadAll(ctx); err != nil {
		return err
	}
	if err := eng.AwaitIdle(ctx); err != nil {
		return err
	}
	if err := eng.Save(); err != nil {
		return err
	}

	st := eng.Stats()
	fmt.Fprintf(os.Stderr, "\nModel complete:\n")
	fmt.Fprintf(os.Stderr, "  Repository:    %s\n", eng.RepoPath())
	fmt.Fprintf(os.Stderr, "  Projects:      %d\n", st.Projects)
	fmt.Fprintf(os.Stderr, "  Files:         %d (%d parsed, %d unchanged, %d failed)\n", st.Files, st.Parsed, st.Skipped, st.Failed)
	fmt.Fprintf(os.Stderr, "  Declarations:  %d\n", st.Declarations)
	fmt.Fprintf(os.Stderr, "  Output:        %s\n", eng.OutputDir())
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	eng, err := startEngine(ctx, c)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv, err := server.New(eng, version)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	watch := eng.Config().Watch.Enabled || c.Bool("watch")
	if c.Bool("load") || watch {
		go func() {
			if err := eng.LoadAll(ctx); err != nil {
				log.Error("loading projects", "err", err)
				return
			}
			if !watch {
				return
			}
			if err := eng.Watch(ctx); err != nil {
				log.Error("watcher stopped", "err", err)
			}
		}()
	}
	return srv.Run(ctx)
}

func watchCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	eng, err := startEngine(ctx, c)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Save after each batch of work drains a project.
	finished := make(chan struct{}, 1)
	eng.Scheduler().OnProjectFinished(func(*project.Project) {
		select {
		case finished <- struct{}{}:
		default:
		}
	})

	if err := eng.LoadAll(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Watch(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-finished:
			}
			if err := eng.AwaitIdle(gctx); err != nil {
				return nil
			}
			if err := eng.Save(); err != nil {
				log.Error("saving model", "err", err)
				continue
			}
			log.Info("model saved", "declarations", eng.Store().Count())
		}
	})
	return g.Wait()
}
