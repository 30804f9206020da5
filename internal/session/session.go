package session

import (
	"time"

	"github.com/google/uuid"
)

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"

	// ProviderError marks assistant messages that report a failed exchange.
	ProviderError = "error"
	// ProviderSystem marks locally generated assistant messages such as the greeting.
	ProviderSystem = "system"
)

// Message represents a single chat message
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Provider  string    `json:"provider"`
	Images    []string  `json:"images,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsError reports whether the message carries a failed exchange.
func (m Message) IsError() bool {
	return m.Sender == SenderAssistant && m.Provider == ProviderError
}

// Session identifies one run of the client. It is created once at startup
// and never persisted.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
}

// New creates a session with a fresh random identifier.
func New() Session {
	return Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
	}
}
