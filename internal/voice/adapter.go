// Package voice bridges a one-shot speech recognizer into the compose text.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// State is the capture lifecycle position
type State int

const (
	Idle State = iota
	RequestingPermission
	Listening
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestingPermission:
		return "requesting-permission"
	case Listening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Alerter surfaces blocking, user-facing failure notices
type Alerter interface {
	Alert(message string)
}

// TextSink receives the final transcript. It replaces the sink's contents.
type TextSink interface {
	SetText(text string)
}

// Adapter runs captures one at a time. Starting a capture aborts the
// previous one; that abort is never reported.
type Adapter struct {
	engine Engine
	perm   Permission
	alert  Alerter
	sink   TextSink
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	active Recognition
	gen    uint64
}

// NewAdapter creates an adapter. A nil engine means recognition is
// unsupported; a nil permission grants access.
func NewAdapter(engine Engine, perm Permission, alert Alerter, sink TextSink, locale string, logger *slog.Logger) *Adapter {
	if engine == nil {
		engine = Unsupported{}
	}
	if perm == nil {
		perm = AlwaysGrant
	}
	if logger == nil {
		logger = slog.Default()
	}
	if locale == "" {
		locale = "en-US"
	}
	return &Adapter{
		engine: engine,
		perm:   perm,
		alert:  alert,
		sink:   sink,
		opts:   Options{Locale: locale, MaxAlternatives: 1},
		logger: logger,
	}
}

// State returns the current lifecycle state
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Capture starts a new capture, aborting any capture in flight. It returns
// once listening has begun or the attempt has failed; the returned channel
// is closed when this capture is back to idle.
func (a *Adapter) Capture(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	a.mu.Lock()
	if a.active != nil {
		a.active.Abort()
		a.active = nil
	}
	a.gen++
	gen := a.gen
	a.state = RequestingPermission
	a.mu.Unlock()

	if !a.engine.Supported() {
		a.fail(gen, ErrUnsupported)
		close(done)
		return done
	}

	if err := a.perm.RequestMicrophone(ctx); err != nil {
		if !errors.Is(err, ErrPermissionDenied) {
			err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		a.fail(gen, err)
		close(done)
		return done
	}

	rec, err := a.engine.Start(ctx, a.opts)
	if err != nil {
		a.fail(gen, err)
		close(done)
		return done
	}

	a.mu.Lock()
	if a.gen != gen {
		// superseded while waiting for permission
		a.mu.Unlock()
		rec.Abort()
		close(done)
		return done
	}
	a.active = rec
	a.state = Listening
	a.mu.Unlock()

	a.logger.Info("voice capture started", "locale", a.opts.Locale)

	go func() {
		defer close(done)
		transcript, err := rec.Wait()

		a.mu.Lock()
		if a.gen == gen {
			a.active = nil
			a.state = Idle
		}
		a.mu.Unlock()

		switch {
		case errors.Is(err, ErrAborted):
			a.logger.Debug("voice capture aborted")
		case err != nil:
			a.logger.Warn("voice capture failed", "error", err)
			a.notify("Speech recognition error: " + err.Error())
		case strings.TrimSpace(transcript) == "":
			a.notify("Speech recognition error: " + ErrNoSpeech.Error())
		default:
			a.logger.Info("voice capture completed", "length", len(transcript))
			if a.sink != nil {
				a.sink.SetText(transcript)
			}
		}
	}()

	return done
}

// Abort stops the capture in flight, if any, without an alert.
func (a *Adapter) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != nil {
		a.active.Abort()
	}
}

func (a *Adapter) fail(gen uint64, err error) {
	a.mu.Lock()
	if a.gen == gen {
		a.state = Idle
	}
	a.mu.Unlock()

	a.logger.Warn("voice capture unavailable", "error", err)
	switch {
	case errors.Is(err, ErrUnsupported):
		a.notify("Speech recognition is not supported on this system.")
	case errors.Is(err, ErrPermissionDenied):
		a.notify("Microphone access is required for voice input: " + err.Error())
	default:
		a.notify("Speech recognition error: " + err.Error())
	}
}

func (a *Adapter) notify(message string) {
	if a.alert != nil {
		a.alert.Alert(message)
	}
}
