package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"Chatdesk/internal/attach"
	"Chatdesk/internal/render"
	"Chatdesk/internal/session"
	"Chatdesk/internal/voice"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultGreeting opens a conversation when the caller asks for one
const DefaultGreeting = "Hello! I'm your AI assistant. Pick a provider with /provider and start chatting!"

// Options wires a ChatBot. Everything except BaseURL has a usable default.
type Options struct {
	BaseURL  string
	APIKey   string
	Provider string
	Session  session.Session
	// Greeting, when set, is the first message of the log, sent by the
	// system provider.
	Greeting string

	In  io.Reader
	Out io.Writer
	TTY bool

	HTTPClient  *http.Client
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
	VoiceEngine voice.Engine
	VoiceLocale string
	Attachments attach.Reader

	// RemoteProviders, when set, backs the provider list reported by the
	// backend in /providers.
	RemoteProviders func(ctx context.Context) ([]string, error)
}

// ChatBot is the interactive terminal session
type ChatBot struct {
	session    session.Session
	store      *session.Store
	selector   *Selector
	compose    *Compose
	dispatcher *Dispatcher
	voice      *voice.Adapter
	attach     attach.Reader
	render     *render.Renderer
	remote     func(ctx context.Context) ([]string, error)
	logger     *slog.Logger
	greeting   string

	in *bufio.Scanner

	renderMu sync.Mutex
	rendered int64 // highest message ID already printed
}

// lockedWriter serializes output from the REPL and from voice callbacks
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type alertFunc func(string)

func (f alertFunc) Alert(msg string) { f(msg) }

// NewChatBot creates a new ChatBot instance
func NewChatBot(opts Options) (*ChatBot, error) {
	if opts.In == nil || opts.Out == nil {
		return nil, errors.New("input and output are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Session.ID == "" {
		opts.Session = session.New()
	}
	if opts.Attachments == nil {
		opts.Attachments = attach.OSReader{}
	}

	cb := &ChatBot{
		session:  opts.Session,
		store:    session.NewStore(),
		selector: NewSelector(opts.Provider),
		compose:  &Compose{},
		attach:   opts.Attachments,
		remote:   opts.RemoteProviders,
		greeting: opts.Greeting,
		logger:   opts.Logger.With("session_id", opts.Session.ID),
		in:       bufio.NewScanner(opts.In),
	}
	cb.render = render.New(&lockedWriter{w: opts.Out}, opts.TTY, cb.selector.Label)

	d, err := NewDispatcher(DispatcherConfig{
		BaseURL:   opts.BaseURL,
		APIKey:    opts.APIKey,
		SessionID: cb.session.ID,
	}, cb.store, cb.selector, cb.compose,
		WithHTTPClient(opts.HTTPClient),
		WithLogger(cb.logger),
		WithTelemetry(opts.Tracer, opts.Meter),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	cb.dispatcher = d

	cb.voice = voice.NewAdapter(
		opts.VoiceEngine,
		voice.PermissionFunc(cb.askMicrophone),
		alertFunc(cb.render.Alert),
		cb.compose,
		opts.VoiceLocale,
		cb.logger,
	)

	cb.logger.Info("created chat session", "provider", opts.Provider)
	return cb, nil
}

// Store exposes the conversation log
func (cb *ChatBot) Store() *session.Store { return cb.store }

// Run reads input until /quit, end of input or ctx is done. New messages
// are printed as the store reports them.
func (cb *ChatBot) Run(ctx context.Context) error {
	updates := cb.store.Subscribe()

	cb.render.Info(fmt.Sprintf("=== Chatdesk === session %s", cb.session.ID))
	cb.render.Info(fmt.Sprintf("Provider: %s. Type /help for commands, /quit to exit.", cb.selector.ActiveLabel()))

	if cb.greeting != "" && cb.store.Len() == 0 {
		cb.store.Append(session.Message{
			Text:     cb.greeting,
			Sender:   session.SenderAssistant,
			Provider: session.ProviderSystem,
		})
	}
	cb.flush()

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cb.watch(watchCtx, updates)
	}()

	for ctx.Err() == nil {
		line, ok := cb.readLine()
		if !ok {
			break
		}

		input := strings.TrimSpace(line)
		if strings.HasPrefix(input, "/") {
			if quit := cb.handleCommand(ctx, input); quit {
				break
			}
			continue
		}

		if input == "" {
			// an empty line sends the pending draft, e.g. a voice transcript
			input = cb.compose.Text()
		}
		cb.submit(ctx, input)
	}

	cb.voice.Abort()
	stopWatch()
	wg.Wait()
	cb.flush()

	cb.logger.Info("chat session ended", "messages", cb.store.Len())
	cb.render.Info("Goodbye!")
	if err := cb.in.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func (cb *ChatBot) readLine() (string, bool) {
	if !cb.in.Scan() {
		return "", false
	}
	return cb.in.Text(), true
}

// submit sends text with the pending attachments. Attachments are consumed
// by the attempt whatever its outcome.
func (cb *ChatBot) submit(ctx context.Context, text string) {
	images := cb.compose.Images()
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return
	}

	cb.compose.SetText(text)
	cb.compose.ClearImages()
	if len(images) > 0 {
		cb.render.Info(fmt.Sprintf("Sending %d image(s)...", len(images)))
	}
	cb.render.Info(cb.selector.ActiveLabel() + " is thinking...")

	// The reply is printed by watch; waiting keeps the prompt below it.
	<-cb.dispatcher.SendAsync(ctx, text, images)
	cb.flush()
}

func (cb *ChatBot) watch(ctx context.Context, updates <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			cb.flush()
		}
	}
}

// flush prints assistant and error messages appended since the last flush.
// User messages were typed at the prompt and are only shown by /history.
func (cb *ChatBot) flush() {
	cb.renderMu.Lock()
	defer cb.renderMu.Unlock()

	for _, m := range cb.store.Snapshot() {
		if m.ID <= cb.rendered {
			continue
		}
		cb.rendered = m.ID
		if m.Sender == session.SenderUser {
			continue
		}
		cb.render.Message(m)
	}
}

func (cb *ChatBot) askMicrophone(ctx context.Context) error {
	cb.render.Info("Allow microphone access for voice input? [y/N]")
	line, ok := cb.readLine()
	if !ok {
		return errors.New("no answer")
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return errors.New("access was not granted")
	}
}

// handleCommand handles special commands
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) bool {
	parts := strings.Fields(cmd)
	arg := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return true

	case "/provider":
		if arg == "" {
			cb.render.Info("Usage: /provider <key>")
			return false
		}
		cb.selector.Select(arg)
		if !cb.selector.Known(arg) {
			cb.render.Alert(fmt.Sprintf("%q is not a listed provider; requests will use it as-is.", arg))
		}
		cb.logger.Info("switched provider", "provider", arg)
		cb.render.Info("Provider set to " + cb.selector.ActiveLabel())

	case "/providers":
		active := cb.selector.Active()
		for _, p := range cb.selector.Providers() {
			marker := "  "
			if p.Value == active {
				marker = "* "
			}
			cb.render.Info(fmt.Sprintf("%s%-10s %s", marker, p.Value, p.Label))
		}
		if cb.remote != nil {
			names, err := cb.remote(ctx)
			if err != nil {
				cb.render.Alert("Could not fetch the backend's provider list: " + err.Error())
			} else {
				cb.render.Info("Backend serves: " + strings.Join(names, ", "))
			}
		}

	case "/attach":
		if arg == "" {
			cb.render.Info("Usage: /attach <path|url>")
			return false
		}
		image, err := attach.Normalize(cb.attach, arg)
		if err != nil {
			cb.render.Alert("Could not attach image: " + err.Error())
			return false
		}
		cb.compose.Attach(image)
		cb.render.Info("Attached " + attach.Describe(image))

	case "/attachments":
		images := cb.compose.Images()
		if len(images) == 0 {
			cb.render.Info("No attachments.")
		}
		for i, image := range images {
			cb.render.Info(fmt.Sprintf("%d. %s", i+1, attach.Describe(image)))
		}

	case "/clear-attachments":
		cb.compose.ClearImages()
		cb.render.Info("Attachments cleared.")

	case "/voice":
		cb.captureVoice(ctx)

	case "/history":
		cb.render.History(cb.store.Snapshot())

	case "/session":
		cb.render.Info(fmt.Sprintf("Session:  %s", cb.session.ID))
		cb.render.Info(fmt.Sprintf("Started:  %s", cb.session.StartTime.Format("2006-01-02 15:04:05")))
		cb.render.Info(fmt.Sprintf("Provider: %s", cb.selector.ActiveLabel()))
		cb.render.Info(fmt.Sprintf("Messages: %d", cb.store.Len()))
		if last, ok := cb.store.Last(); ok {
			cb.render.Info(fmt.Sprintf("Last:     %s from %s", last.Timestamp.Format("15:04:05"), cb.selector.Label(last.Provider)))
		}

	case "/help":
		cb.render.Info("Available commands:")
		cb.render.Info("  /provider <key>       - Switch provider (openai|gemini|deepseek)")
		cb.render.Info("  /providers            - List providers")
		cb.render.Info("  /attach <path|url>    - Attach an image to the next message")
		cb.render.Info("  /attachments          - List pending attachments")
		cb.render.Info("  /clear-attachments    - Drop pending attachments")
		cb.render.Info("  /voice                - Dictate the next message")
		cb.render.Info("  /history              - Show the conversation")
		cb.render.Info("  /session              - Show session details")
		cb.render.Info("  /quit, /exit          - Exit")
		cb.render.Info("An empty line sends the pending draft.")

	default:
		cb.render.Alert(fmt.Sprintf("Unknown command: %s. Type /help for commands.", parts[0]))
	}
	return false
}

func (cb *ChatBot) captureVoice(ctx context.Context) {
	done := cb.voice.Capture(ctx)
	if cb.voice.State() == voice.Listening {
		cb.render.Info("Listening...")
	}

	select {
	case <-done:
	case <-ctx.Done():
		cb.voice.Abort()
		<-done
	}

	if draft := cb.compose.Text(); draft != "" {
		cb.render.Info("Draft: " + draft)
		cb.render.Info("Press Enter to send it, or type a new message.")
	}
}
