// ABOUTME: CLI entrypoint for storyteller with serve, tui, generate, and history modes.
// ABOUTME: Parses flags over the YAML config file, wires the engine, relay, and web server, and handles signals.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/2389-research/storyteller/reducer"
	"github.com/2389-research/storyteller/tui"
	"github.com/2389-research/storyteller/web"
	"golang.org/x/sync/errgroup"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

const (
	modeServe    = "serve"
	modeTUI      = "tui"
	modeGenerate = "generate"
	modeHistory  = "history"

	engineGPTScript = "gptscript"
	engineBuiltin   = "builtin"
)

// config holds all CLI configuration parsed from flags, the config file,
// and positional arguments.
type config struct {
	mode              string
	configPath        string
	addr              string
	storiesDir        string
	engine            string
	script            string
	model             string
	imageModel        string
	baseURL           string
	gptscriptBin      string
	illustrate        bool
	runTimeout        time.Duration
	maxConcurrentRuns int
	server            string
	story             string
	pages             int
	logFile           string
	journalPath       string
	limit             int
	showVersion       bool
}

func main() {
	loadDotEnvAuto()

	cfg, err := parseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		printHelp(os.Stdout, version)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if cfg.showVersion {
		fmt.Printf("storyteller %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseArgs parses the mode, flags, and config file. Flags set on the
// command line win over the config file, which wins over defaults.
func parseArgs(args []string) (config, error) {
	cfg := config{mode: modeServe}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cfg.mode = args[0]
		args = args[1:]
	}
	switch cfg.mode {
	case modeServe, modeTUI, modeGenerate, modeHistory:
	default:
		return config{}, fmt.Errorf("unknown mode %q (want serve, tui, generate, or history)", cfg.mode)
	}

	fs := flag.NewFlagSet("storyteller "+cfg.mode, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.configPath, "config", "", "Path to a YAML config file (default: $XDG_CONFIG_HOME/storyteller/config.yaml)")
	fs.StringVar(&cfg.addr, "addr", web.DefaultAddr, "Listen address for serve mode")
	fs.StringVar(&cfg.storiesDir, "stories-dir", reducer.DefaultStoriesPath, "Directory where stories are saved and served from")
	fs.StringVar(&cfg.engine, "engine", engineGPTScript, "Story engine: gptscript or builtin")
	fs.StringVar(&cfg.script, "script", "", "Script the relay runs (default: scripts/story-book.gpt)")
	fs.StringVar(&cfg.model, "model", "", "Chat model for the builtin engine")
	fs.StringVar(&cfg.imageModel, "image-model", "", "Image model for the builtin engine")
	fs.StringVar(&cfg.baseURL, "base-url", "", "Custom API base URL for the model provider")
	fs.StringVar(&cfg.gptscriptBin, "gptscript-bin", "", "Path to the gptscript executable")
	fs.BoolVar(&cfg.illustrate, "illustrate", false, "Illustrate pages with the builtin engine")
	fs.DurationVar(&cfg.runTimeout, "run-timeout", 0, "Upper bound for one story run (0: no limit)")
	fs.IntVar(&cfg.maxConcurrentRuns, "max-runs", 0, "Maximum simultaneous story runs (0: no limit)")
	fs.StringVar(&cfg.server, "server", "", "Relay base URL for tui and generate (default: run one in-process)")
	fs.StringVar(&cfg.story, "story", "", "Story prompt for generate mode")
	fs.IntVar(&cfg.pages, "pages", 0, "Number of pages to request (0: engine default)")
	fs.StringVar(&cfg.logFile, "log-file", "", "Write logs to this file in tui mode")
	fs.StringVar(&cfg.journalPath, "journal", "", "Run journal file (default: $XDG_DATA_HOME/storyteller/runs.jsonl, \"off\" disables)")
	fs.IntVar(&cfg.limit, "n", 20, "Number of runs to show in history mode (0: all)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if cfg.showVersion {
		return cfg, nil
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	path, required := cfg.configPath, cfg.configPath != ""
	if path == "" {
		p, err := defaultConfigPath()
		if err != nil {
			log.Printf("component=cli action=config_path err=%v", err)
		}
		path = p
	}
	if path != "" {
		fc, err := loadFileConfig(path, required)
		if err != nil {
			return config{}, err
		}
		if err := fc.apply(&cfg, set); err != nil {
			return config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	switch cfg.journalPath {
	case "":
		if p, err := defaultJournalPath(); err != nil {
			log.Printf("component=cli action=journal_path err=%v", err)
		} else {
			cfg.journalPath = p
		}
	case journalOff:
		cfg.journalPath = ""
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// validate checks values that flag parsing cannot.
func (c config) validate() error {
	switch c.engine {
	case engineGPTScript, engineBuiltin:
	default:
		return fmt.Errorf("unknown engine %q (want gptscript or builtin)", c.engine)
	}
	if c.pages < 0 || c.pages > tui.MaxPages {
		return fmt.Errorf("pages must be between 0 and %d, got %d", tui.MaxPages, c.pages)
	}
	if c.runTimeout < 0 {
		return fmt.Errorf("run timeout must not be negative")
	}
	if c.maxConcurrentRuns < 0 {
		return fmt.Errorf("max runs must not be negative")
	}
	if c.mode == modeGenerate && strings.TrimSpace(c.story) == "" {
		return fmt.Errorf("generate needs -story")
	}
	if c.limit < 0 {
		return fmt.Errorf("-n must not be negative")
	}
	return nil
}

// run dispatches to the appropriate mode based on the config.
// Returns an exit code: 0 for success, 1 for failure.
func run(cfg config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The credential is read once and handed to the engine.
	apiKey := os.Getenv("OPENAI_API_KEY")

	var err error
	switch cfg.mode {
	case modeServe:
		err = runServe(ctx, cfg, apiKey)
	case modeTUI:
		closeLog, logErr := redirectLog(cfg.logFile)
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", logErr)
			return 1
		}
		defer closeLog()
		err = runClient(ctx, cfg, apiKey, func(ctx context.Context, c *reducer.Client) error {
			return runTUI(ctx, c, cfg)
		})
	case modeGenerate:
		err = runClient(ctx, cfg, apiKey, func(ctx context.Context, c *reducer.Client) error {
			return runGenerate(ctx, c, cfg, os.Stdout)
		})
	case modeHistory:
		err = runHistory(cfg, os.Stdout)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// runServe starts the web server and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg config, apiKey string) error {
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "warning: OPENAI_API_KEY not set; story runs will fail at the model provider")
	}
	srv, cleanup, err := buildServer(cfg, apiKey)
	if err != nil {
		return err
	}
	defer cleanup()
	fmt.Fprintf(os.Stderr, "listening on http://%s\n", srv.Addr())
	return srv.ListenAndServe(ctx)
}

// runClient runs fn against the relay at cfg.server, or against an
// in-process server on a loopback port when no server is configured.
func runClient(ctx context.Context, cfg config, apiKey string, fn func(context.Context, *reducer.Client) error) error {
	if cfg.server != "" {
		return fn(ctx, reducer.NewClient(cfg.server, nil))
	}

	srv, cleanup, err := buildServer(cfg, apiKey)
	if err != nil {
		return err
	}
	defer cleanup()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		return srv.Serve(serveCtx, ln)
	})
	g.Go(func() error {
		defer stopServer()
		return fn(gctx, reducer.NewClient("http://"+ln.Addr().String(), nil))
	})
	return g.Wait()
}

// runTUI runs the interactive terminal client until the user quits.
func runTUI(ctx context.Context, client *reducer.Client, cfg config) error {
	model := tui.NewAppModel(ctx, client, cfg.storiesDir)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// redirectLog keeps log output off the alternate screen: it goes to path
// when set and is discarded otherwise.
func redirectLog(path string) (func(), error) {
	if path == "" {
		log.SetOutput(io.Discard)
		return func() {}, nil
	}
	f, err := tea.LogToFile(path, "storyteller")
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return func() { f.Close() }, nil
}
