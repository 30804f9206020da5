package voice

import (
	"context"
	"errors"
)

var (
	ErrUnsupported      = errors.New("speech recognition is not supported")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrAborted          = errors.New("recognition aborted")
	ErrNoSpeech         = errors.New("no speech detected")
)

// Options configures one recognition. Captures are always single-utterance
// with final results only.
type Options struct {
	Locale          string
	MaxAlternatives int
}

// Engine is the host speech-to-text capability
type Engine interface {
	// Supported reports whether recognition is available at all
	Supported() bool
	// Start begins capturing one utterance
	Start(ctx context.Context, opts Options) (Recognition, error)
}

// Recognition is one in-flight capture
type Recognition interface {
	// Wait blocks until the final transcript or a failure. It returns
	// ErrAborted after Abort.
	Wait() (string, error)
	// Abort stops the capture. It does not block and is safe to call more
	// than once.
	Abort()
}

// Permission grants access to the microphone
type Permission interface {
	RequestMicrophone(ctx context.Context) error
}

// PermissionFunc adapts a function to Permission
type PermissionFunc func(ctx context.Context) error

func (f PermissionFunc) RequestMicrophone(ctx context.Context) error { return f(ctx) }

// AlwaysGrant grants microphone access without asking
var AlwaysGrant = PermissionFunc(func(context.Context) error { return nil })

// Unsupported is the engine used when no recognizer is configured
type Unsupported struct{}

func (Unsupported) Supported() bool { return false }

func (Unsupported) Start(context.Context, Options) (Recognition, error) {
	return nil, ErrUnsupported
}
