package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"Chatdesk/internal/auth"
	"Chatdesk/internal/cache"
	"Chatdesk/internal/config"
	"Chatdesk/internal/feeds"
	"Chatdesk/internal/render"
	"Chatdesk/internal/telemetry"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdin, os.Stdout)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// terminal is the process's standard streams. stdin is buffered once so
// prompts and the REPL share one reader.
type terminal struct {
	in     *bufio.Reader
	inFile *os.File // nil when stdin is not a file
	out    io.Writer
}

func (t *terminal) interactive() bool {
	return t.inFile != nil && (isatty.IsTerminal(t.inFile.Fd()) || isatty.IsCygwinTerminal(t.inFile.Fd()))
}

func (t *terminal) colorOutput() bool {
	f, ok := t.out.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newApp(stdin io.Reader, stdout io.Writer) *cli.App {
	term := &terminal{in: bufio.NewReader(stdin), out: stdout}
	if f, ok := stdin.(*os.File); ok {
		term.inFile = f
	}

	return &cli.App{
		Name:      "chatdesk",
		Usage:     "Chat with LLM providers through the chat backend",
		Writer:    stdout,
		ErrWriter: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML config file",
				EnvVars: []string{"CHATDESK_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Backend base URL (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			chatCommand(term),
			registerCommand(term),
			loginCommand(term),
			logoutCommand(term),
			whoamiCommand(term),
			newsCommand(term),
			stocksCommand(term),
			weatherCommand(term),
			providersCommand(term),
		},
		DefaultCommand: "chat",
	}
}

// runtime holds what every command needs, built from the resolved config
type runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	httpClient *http.Client
	render     *render.Renderer
	term       *terminal

	keeper  *auth.Keeper
	closers []func()
}

func setup(c *cli.Context, term *terminal) (*runtime, error) {
	cfg, err := config.Load(c.String("config"), func(cfg *config.Config) {
		if c.IsSet("base-url") {
			cfg.BaseURL = c.String("base-url")
		}
		if c.Bool("debug") {
			cfg.Debug = true
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	rt := &runtime{cfg: cfg, term: term}

	prevLogger := slog.Default()
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt.logger = logger
	rt.closers = append(rt.closers, func() {
		slog.SetDefault(prevLogger)
		closeLog()
	})

	tracer, meter, cleanup, err := telemetry.InitTelemetry(c.Context, cfg.LogDir)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	rt.tracer, rt.meter = tracer, meter
	rt.closers = append(rt.closers, cleanup)

	durable, err := auth.OpenSQLiteStore(cfg.DBPath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	rt.keeper = auth.NewKeeper(durable, &auth.MemoryStore{})
	rt.closers = append(rt.closers, func() {
		if err := durable.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	})

	rt.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	rt.render = render.New(term.out, term.colorOutput(), nil)

	if cfg.Debug {
		logger.Debug("debug mode enabled", "base_url", cfg.BaseURL, "log_dir", cfg.LogDir)
	}
	return rt, nil
}

// Close runs cleanups in reverse order
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *runtime) authClient() *auth.Client {
	return auth.NewClient(rt.cfg.BaseURL, rt.httpClient, rt.logger, rt.tracer)
}

func (rt *runtime) feedsClient() *feeds.Client {
	return feeds.NewClient(rt.cfg.BaseURL,
		feeds.WithHTTPClient(rt.httpClient),
		feeds.WithCache(cache.New(rt.cfg.Feeds.CacheTTL)),
		feeds.WithLogger(rt.logger),
		feeds.WithTracer(rt.tracer),
	)
}

// credential returns the configured API key, else the stored login token
func (rt *runtime) credential() (string, error) {
	if rt.cfg.APIKey != "" {
		return rt.cfg.APIKey, nil
	}
	token, _, err := rt.keeper.Token()
	return token, err
}

// withRuntime adapts a command body that needs a runtime
func withRuntime(term *terminal, fn func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := setup(c, term)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(c, rt)
	}
}
