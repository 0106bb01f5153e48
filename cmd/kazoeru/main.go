// Package main is the kazoeru CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kazoeru/internal/cli"
	"github.com/hyperjump/kazoeru/internal/config"
	"github.com/hyperjump/kazoeru/internal/extract"
	"github.com/hyperjump/kazoeru/internal/indexer"
	"github.com/hyperjump/kazoeru/internal/keyword"
	"github.com/hyperjump/kazoeru/internal/metrics"
	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/server"
	"github.com/hyperjump/kazoeru/internal/stats"
	"github.com/hyperjump/kazoeru/internal/storage"
	"github.com/hyperjump/kazoeru/internal/watcher"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
	"github.com/hyperjump/kazoeru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kazoeru/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if neither exists the
// built-in defaults are used, resolved against the current directory.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	for _, candidate := range []string{filepath.Join(cwd, "config.yaml"), defaultConfigPath} {
		if _, statErr := os.Stat(candidate); statErr == nil {
			cfg, loadErr := config.Load(candidate)
			if loadErr != nil {
				return nil, "", loadErr
			}
			return cfg, candidate, nil
		}
	}
	return config.Default(cwd), "", nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	var err error
	switch command := args[0]; command {
	case "run":
		err = runRun(ctx, args[1:], stdout, stderr)
	case "build":
		err = runBuild(ctx, args[1:], stdout, stderr)
	case "stats":
		err = runStats(ctx, args[1:], stdout, stderr)
	case "status":
		err = runStatus(ctx, args[1:], stdout, stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "watch":
		err = runWatch(ctx, args[1:], stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "kazoeru version %s\n", version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 1
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

var errUsage = errors.New("usage")

// options holds the flags shared by every command that touches an index.
type options struct {
	config   *string
	debug    *bool
	location *string
	engine   *string
	output   *string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *options) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs, &options{
		config:   fs.String("config", defaultConfigPath, "config file path"),
		debug:    fs.Bool("debug", false, "enable debug logging"),
		location: fs.String("index", "", "index location (overrides index.location)"),
		engine:   fs.String("engine", "", "storage engine: "+strings.Join(storage.EngineNames(), ", ")),
		output:   fs.String("output", "text", "output format: text, compact, json"),
	}
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

// setup loads the config, applies flag overrides and an optional source
// argument, and builds the logger.
func (o *options) setup(source string, verbose bool) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(*o.config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if source != "" {
		if cfg.Index.Source, err = filepath.Abs(source); err != nil {
			return nil, nil, err
		}
	}
	if *o.location != "" {
		if cfg.Index.Location, err = filepath.Abs(*o.location); err != nil {
			return nil, nil, err
		}
	}
	if *o.engine != "" {
		cfg.Index.Engine = *o.engine
	}
	debug := cfg.Debug || *o.debug

	var logger *zap.Logger
	if debug || verbose {
		logger, err = utils.NewLogger(debug)
	} else {
		logger, err = utils.NewQuietLogger()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("source", cfg.Index.Source),
		zap.String("location", cfg.Index.Location),
		zap.String("engine", cfg.Index.Engine))
	return cfg, logger, nil
}

// Components holds the wired pipeline for one configuration.
type Components struct {
	Engine  storage.Engine
	Builder *indexer.Builder
	Stats   *stats.Extractor
	Metrics *metrics.Metrics
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	engine, err := storage.NewEngine(cfg.Index.Engine)
	if err != nil {
		return nil, err
	}
	analyzer, err := keyword.NewBleveAnalyzer(cfg.Analysis.Analyzer,
		keyword.WithPositions(cfg.Analysis.PositionsOrDefault()))
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	builder := indexer.NewBuilder(engine, analyzer,
		indexer.WithLogger(logger),
		indexer.WithMetrics(m),
		indexer.WithExtractor(extract.NewExtractor(extract.WithRichFormats(cfg.Index.RichFormats))),
		indexer.WithExtensions(cfg.Index.Extensions))
	return &Components{
		Engine:  engine,
		Builder: builder,
		Stats:   stats.NewExtractor(engine, stats.WithLogger(logger), stats.WithMetrics(m)),
		Metrics: m,
	}, nil
}

// runRun builds a fresh index of the source and prints its statistics.
func runRun(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("run", stderr)
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*opts.output)
	if err != nil {
		return err
	}
	cfg, logger, err := opts.setup(fs.Arg(0), false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	if _, err := c.Builder.Build(ctx, models.Create, cfg.Index.Source, cfg.Index.Location); err != nil {
		return err
	}
	s, err := c.Stats.Extract(ctx, cfg.Index.Location)
	if err != nil {
		return err
	}
	return cli.WriteStatistics(stdout, s, format)
}

func runBuild(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("build", stderr)
	mode := fs.String("mode", "", "build mode: create, skip, update (overrides index.mode)")
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*opts.output)
	if err != nil {
		return err
	}
	cfg, logger, err := opts.setup(fs.Arg(0), false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if *mode != "" {
		cfg.Index.Mode = *mode
	}
	buildMode, err := cfg.Index.BuildMode()
	if err != nil {
		return err
	}

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	res, err := c.Builder.Build(ctx, buildMode, cfg.Index.Source, cfg.Index.Location)
	if err != nil {
		return err
	}
	return cli.WriteBuildResult(stdout, res, format)
}

func runStats(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("stats", stderr)
	term := fs.String("term", "", "report a single term")
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*opts.output)
	if err != nil {
		return err
	}
	cfg, logger, err := opts.setup("", false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	if *term != "" {
		ts, ok, err := c.Stats.Term(ctx, cfg.Index.Location, *term)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: term %q not found", apperrors.ErrDocumentNotFound, *term)
		}
		return cli.WriteTermStatistics(stdout, ts, format)
	}
	s, err := c.Stats.Extract(ctx, cfg.Index.Location)
	if err != nil {
		return err
	}
	return cli.WriteStatistics(stdout, s, format)
}

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("status", stderr)
	if err := parse(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*opts.output)
	if err != nil {
		return err
	}
	cfg, logger, err := opts.setup("", false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, err := storage.NewEngine(cfg.Index.Engine)
	if err != nil {
		return err
	}
	st, err := stats.ReadStatus(ctx, engine, cfg.Index.Location)
	if err != nil {
		return err
	}
	return cli.WriteStatus(stdout, st, format)
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs, opts := newFlagSet("serve", stderr)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, logger, err := opts.setup("", true)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	serve(gctx, g, cfg, c, logger)
	return g.Wait()
}

// serve runs the HTTP server in g until ctx is done.
func serve(ctx context.Context, g *errgroup.Group, cfg *config.Config, c *Components, logger *zap.Logger) {
	srv := server.NewServer(c.Engine, cfg.Index.Location, &cfg.Server, logger, c.Metrics)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
}

func runWatch(ctx context.Context, args []string, stderr io.Writer) error {
	fs, opts := newFlagSet("watch", stderr)
	withServer := fs.Bool("serve", false, "also serve the HTTP API")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, logger, err := opts.setup(fs.Arg(0), true)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if inside(cfg.Index.Source, cfg.Index.Location) {
		return fmt.Errorf("%w: index location %s is inside the watched source %s",
			apperrors.ErrInvalidInput, cfg.Index.Location, cfg.Index.Source)
	}

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	update := func(ctx context.Context, ch watcher.Change) error {
		res, err := c.Builder.Build(ctx, models.UpdateIfExists, cfg.Index.Source, cfg.Index.Location)
		if err != nil {
			return err
		}
		if ch.Removed {
			if res.Removed, err = c.Builder.Prune(ctx, cfg.Index.Source, cfg.Index.Location); err != nil {
				return err
			}
		}
		logger.Info("index updated",
			zap.Int("changed_paths", len(ch.Paths)),
			zap.Int("added", res.Added),
			zap.Int("replaced", res.Replaced),
			zap.Int("removed", res.Removed))
		return nil
	}

	w := watcher.NewWatcher(cfg.Index.Source, cfg.Index.Extensions, update,
		watcher.WithLogger(logger),
		watcher.WithDebounce(cfg.Watch.Debounce))
	if err := w.Start(); err != nil {
		return err
	}
	// Catch up with whatever changed while nobody was watching.
	if err := update(ctx, watcher.Change{Removed: true}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if *withServer {
		serve(gctx, g, cfg, c, logger)
	}
	logger.Info("watching", zap.String("source", cfg.Index.Source), zap.String("location", cfg.Index.Location))
	return g.Wait()
}

// inside reports whether path is dir or below it.
func inside(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `kazoeru - term statistics over a document corpus

Usage:
  kazoeru run [flags] [source]     Build a fresh index and print its statistics
  kazoeru build [flags] [source]   Build or update the index
  kazoeru stats [flags]            Print document and term frequencies
  kazoeru status [flags]           Show index metadata and size
  kazoeru serve [flags]            Start the HTTP read API
  kazoeru watch [flags] [source]   Keep the index up to date as files change
  kazoeru version                  Show version
  kazoeru help                     Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml, then /usr/local/etc/kazoeru/config.yaml)
  --index string     Index location (overrides index.location)
  --engine string    Storage engine: sqlite or bolt (overrides index.engine)
  --output string    Output format: text, compact, or json (default: text)
  --debug            Enable debug logging

Build Flags:
  --mode string      create, skip, or update (overrides index.mode)

Stats Flags:
  --term string      Report a single term

Watch Flags:
  --serve            Also serve the HTTP API

Examples:
  kazoeru run ./docs
  kazoeru build --mode update ./docs
  kazoeru stats --term cat
  kazoeru stats --output json
  kazoeru status
  kazoeru watch --serve ./docs`)
}
