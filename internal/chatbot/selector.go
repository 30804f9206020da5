package chatbot

import (
	"sync"

	"Chatdesk/internal/config"
	"Chatdesk/internal/session"
)

// Provider describes one selectable LLM provider
type Provider struct {
	Value string
	Label string
}

// DefaultProviders is the static provider set offered by the backend.
var DefaultProviders = []Provider{
	{Value: config.ProviderOpenAI, Label: "OpenAI GPT-3.5"},
	{Value: config.ProviderGemini, Label: "Gemini (Image + Text)"},
	{Value: config.ProviderDeepSeek, Label: "DeepSeek AI"},
}

// Labels for the non-selectable providers stamped on local messages
var reservedLabels = map[string]string{
	session.ProviderSystem: "System",
	session.ProviderError:  "Error",
}

// Selector holds the active provider. It never validates a selection:
// unknown values are kept and displayed as-is.
type Selector struct {
	mu        sync.RWMutex
	active    string
	providers []Provider
}

// NewSelector creates a selector with the given initial provider. With no
// providers it offers DefaultProviders.
func NewSelector(active string, providers ...Provider) *Selector {
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	return &Selector{
		active:    active,
		providers: append([]Provider(nil), providers...),
	}
}

// Select sets the active provider
func (s *Selector) Select(value string) {
	s.mu.Lock()
	s.active = value
	s.mu.Unlock()
}

// Active returns the active provider key
func (s *Selector) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Label returns the display label for value, or value itself when unknown.
func (s *Selector) Label(value string) string {
	if p, ok := s.lookup(value); ok {
		return p.Label
	}
	if label, ok := reservedLabels[value]; ok {
		return label
	}
	return value
}

// ActiveLabel returns the display label of the active provider
func (s *Selector) ActiveLabel() string {
	return s.Label(s.Active())
}

// Known reports whether value is one of the offered providers
func (s *Selector) Known(value string) bool {
	_, ok := s.lookup(value)
	return ok
}

// Providers returns the offered providers in display order
func (s *Selector) Providers() []Provider {
	return append([]Provider(nil), s.providers...)
}

func (s *Selector) lookup(value string) (Provider, bool) {
	for _, p := range s.providers {
		if p.Value == value {
			return p, true
		}
	}
	return Provider{}, false
}
