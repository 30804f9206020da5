package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const audioChunkSize = 3200 // 100ms of 16kHz 16-bit mono PCM

// AudioSource supplies the audio of one utterance
type AudioSource interface {
	Open() (io.ReadCloser, error)
}

// FileAudio streams audio from a file or device path
type FileAudio string

func (f FileAudio) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// ControlMessage is a text frame sent to the recognition endpoint
type ControlMessage struct {
	Type            string `json:"type"` // "start" or "stop"
	Locale          string `json:"locale,omitempty"`
	InterimResults  bool   `json:"interim_results"`
	MaxAlternatives int    `json:"max_alternatives,omitempty"`
	SingleUtterance bool   `json:"single_utterance"`
}

// ResultMessage is a text frame received from the recognition endpoint
type ResultMessage struct {
	Type       string  `json:"type"` // "partial", "final" or "error"
	Transcript string  `json:"transcript,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// WebSocketEngine streams audio to a websocket recognition endpoint
type WebSocketEngine struct {
	endpoint string
	audio    AudioSource
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

// NewWebSocketEngine creates an engine for endpoint. It reports itself
// unsupported when endpoint or audio is missing.
func NewWebSocketEngine(endpoint string, audio AudioSource, logger *slog.Logger) *WebSocketEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketEngine{
		endpoint: endpoint,
		audio:    audio,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (e *WebSocketEngine) Supported() bool {
	return e.endpoint != "" && e.audio != nil
}

// Start dials the endpoint, sends the start frame and begins streaming audio.
func (e *WebSocketEngine) Start(ctx context.Context, opts Options) (Recognition, error) {
	if !e.Supported() {
		return nil, ErrUnsupported
	}

	audio, err := e.audio.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio source: %w", err)
	}

	conn, _, err := e.dialer.DialContext(ctx, e.endpoint, nil)
	if err != nil {
		audio.Close()
		return nil, fmt.Errorf("failed to connect to recognizer: %w", err)
	}

	start := ControlMessage{
		Type:            "start",
		Locale:          opts.Locale,
		InterimResults:  false,
		MaxAlternatives: opts.MaxAlternatives,
		SingleUtterance: true,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		audio.Close()
		return nil, fmt.Errorf("failed to send start frame: %w", err)
	}

	rec := &wsRecognition{
		conn:   conn,
		audio:  audio,
		done:   make(chan struct{}),
		logger: e.logger,
	}
	go rec.stream()
	go rec.read()
	go func() {
		select {
		case <-ctx.Done():
			rec.Abort()
		case <-rec.done:
		}
	}()

	e.logger.Info("connected to recognizer", "endpoint", e.endpoint, "locale", opts.Locale)
	return rec, nil
}

type wsRecognition struct {
	conn   *websocket.Conn
	audio  io.ReadCloser
	done   chan struct{}
	logger *slog.Logger

	once       sync.Once
	aborted    atomic.Bool
	transcript string
	err        error
}

func (r *wsRecognition) Wait() (string, error) {
	<-r.done
	return r.transcript, r.err
}

func (r *wsRecognition) Abort() {
	r.aborted.Store(true)
	r.conn.Close()
}

// stream is the only writer after Start returns
func (r *wsRecognition) stream() {
	buf := make([]byte, audioChunkSize)
	for {
		select {
		case <-r.done:
			return
		default:
		}

		n, err := r.audio.Read(buf)
		if n > 0 {
			if werr := r.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				r.logger.Debug("audio stream write failed", "error", werr)
				return
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.finish("", fmt.Errorf("failed to read audio: %w", err))
			return
		}
	}

	if err := r.conn.WriteJSON(ControlMessage{Type: "stop"}); err != nil {
		r.logger.Debug("failed to send stop frame", "error", err)
	}
}

func (r *wsRecognition) read() {
	for {
		var msg ResultMessage
		if err := r.conn.ReadJSON(&msg); err != nil {
			r.finish("", fmt.Errorf("recognizer connection lost: %w", err))
			return
		}

		switch msg.Type {
		case "final":
			r.finish(msg.Transcript, nil)
			return
		case "error":
			r.finish("", errors.New(msg.Error))
			return
		default:
			// interim results are not requested; ignore anything else
		}
	}
}

func (r *wsRecognition) finish(transcript string, err error) {
	r.once.Do(func() {
		if r.aborted.Load() {
			transcript, err = "", ErrAborted
		}
		r.transcript = transcript
		r.err = err
		r.audio.Close()
		r.conn.Close()
		close(r.done)
	})
}
