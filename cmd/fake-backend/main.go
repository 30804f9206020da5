// Command fake-backend serves the chat backend's HTTP surface with canned
// data, for local development and demos without provider credentials.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"Chatdesk/internal/fakebackend"
	"Chatdesk/internal/telemetry"

	"github.com/urfave/cli/v2"
)

var (
	addr      string
	apiKey    string
	providers string
	logDir    string
	debug     bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "fake-backend",
		Usage: "Serve a stand-in chat backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8000", Usage: "Listen address", Destination: &addr},
			&cli.StringFlag{Name: "api-key", Usage: "Require this x-api-key on /chat", EnvVars: []string{"FAKE_BACKEND_API_KEY"}, Destination: &apiKey},
			&cli.StringFlag{Name: "providers", Usage: "Comma-separated provider keys to serve", Destination: &providers},
			&cli.StringFlag{Name: "log-dir", Value: "logs", Usage: "Directory for the server log", Destination: &logDir},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Destination: &debug},
		},
		Action: serve,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	logger, closeLog, err := telemetry.InitLogger(logDir, debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	opts := fakebackend.Options{APIKey: apiKey, Logger: logger}
	for _, p := range strings.Split(providers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			opts.Providers = append(opts.Providers, p)
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           fakebackend.New(opts).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("fake backend listening", "addr", addr)
	fmt.Fprintf(c.App.Writer, "Fake backend listening on %s\n", addr)
	return runServer(c.Context, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
