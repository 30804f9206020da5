package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Chatdesk/internal/backend"
	"Chatdesk/internal/session"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type dispatchFixture struct {
	d       *Dispatcher
	store   *session.Store
	sel     *Selector
	compose *Compose
}

func newFixture(t *testing.T, baseURL string, client *http.Client) dispatchFixture {
	t.Helper()
	store := session.NewStore()
	sel := NewSelector("openai")
	compose := &Compose{}

	opts := []DispatcherOption{}
	if client != nil {
		opts = append(opts, WithHTTPClient(client))
	}
	d, err := NewDispatcher(DispatcherConfig{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		SessionID: "sess-123",
	}, store, sel, compose, opts...)
	require.NoError(t, err)

	return dispatchFixture{d: d, store: store, sel: sel, compose: compose}
}

func TestSend_Success(t *testing.T) {
	var got backend.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "sess-123", r.URL.Query().Get("session_id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"Hi there","provider":"openai"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	f.compose.SetText("Hello")

	f.d.Send(context.Background(), "Hello", nil)

	assert.Equal(t, "openai", got.Provider)
	assert.Equal(t, "Hello", got.Message)
	assert.NotNil(t, got.Images)
	assert.Empty(t, got.Images)

	msgs := f.store.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, session.SenderUser, msgs[0].Sender)
	assert.Equal(t, "Hello", msgs[0].Text)
	assert.Equal(t, session.SenderAssistant, msgs[1].Sender)
	assert.Equal(t, "Hi there", msgs[1].Text)
	assert.Equal(t, "openai", msgs[1].Provider)
	assert.Less(t, msgs[0].ID, msgs[1].ID)

	assert.False(t, f.d.Busy())
	assert.Empty(t, f.compose.Text())
}

func TestSend_ResponseFieldsAreVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"  spaced  ","provider":"anthropic-claude"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	f.d.Send(context.Background(), "hi", nil)

	last, ok := f.store.Last()
	require.True(t, ok)
	assert.Equal(t, "  spaced  ", last.Text)
	assert.Equal(t, "anthropic-claude", last.Provider)
}

func TestSend_ImageOnly(t *testing.T) {
	var got backend.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response":"nice picture","provider":"openai"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	f.d.Send(context.Background(), "", []string{"data:image/png;base64,AAA"})

	msgs := f.store.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, ImagePlaceholder, msgs[0].Text)
	assert.NotEmpty(t, msgs[0].Text)
	assert.Equal(t, []string{"data:image/png;base64,AAA"}, msgs[0].Images)

	assert.Equal(t, []string{"data:image/png;base64,AAA"}, got.Images)
	assert.Equal(t, ImagePlaceholder, got.Message)
}

func TestSend_EmptyIsNoOp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	f.d.Send(context.Background(), "", nil)
	f.d.Send(context.Background(), "   \n\t", []string{})

	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, f.d.Busy())
}

func TestSend_NetworkRejection(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	f := newFixture(t, "http://backend.invalid", client)
	f.compose.SetText("ping")
	f.d.Send(context.Background(), "ping", nil)

	msgs := f.store.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ping", msgs[0].Text)
	assert.Equal(t, session.SenderAssistant, msgs[1].Sender)
	assert.Equal(t, session.ProviderError, msgs[1].Provider)
	assert.Contains(t, msgs[1].Text, "connection refused")
	assert.True(t, msgs[1].IsError())

	assert.False(t, f.d.Busy())
	assert.Empty(t, f.compose.Text())
}

func TestSend_StatusFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantText string
	}{
		{"detail string", http.StatusUnauthorized, `{"detail":"Invalid API key"}`, "Error: Invalid API key"},
		{"no body", http.StatusInternalServerError, ``, "Error: HTTP error! status: 500"},
		{"non-string detail", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"}]}`, "Error: HTTP error! status: 422"},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "Error: HTTP error! status: 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := newFixture(t, server.URL, nil)
			f.d.Send(context.Background(), "hello", nil)

			msgs := f.store.Snapshot()
			require.Len(t, msgs, 2)
			assert.Equal(t, session.ProviderError, msgs[1].Provider)
			assert.Equal(t, tt.wantText, msgs[1].Text)
		})
	}
}

func TestSend_ApplicationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	f.d.Send(context.Background(), "hello", nil)

	last, ok := f.store.Last()
	require.True(t, ok)
	assert.Equal(t, session.ProviderError, last.Provider)
	assert.Contains(t, last.Text, "model overloaded")
}

func TestExchange_ErrorClasses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	_, err := f.d.exchange(context.Background(), backend.ChatRequest{Provider: "openai", Message: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTeapot, statusErr.Code)

	broken := newFixture(t, "http://backend.invalid", &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	})})
	_, err = broken.d.exchange(context.Background(), backend.ChatRequest{Provider: "openai", Message: "x"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSendAsync_BusyAndOptimisticAppend(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"response":"done","provider":"openai"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	f.compose.SetText("slow question")

	done := f.d.SendAsync(context.Background(), "slow question", nil)

	// user message exists before the network call completes
	msgs := f.store.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, session.SenderUser, msgs[0].Sender)
	assert.True(t, f.d.Busy())
	assert.Equal(t, "slow question", f.compose.Text())

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("send did not complete")
	}

	assert.False(t, f.d.Busy())
	assert.Empty(t, f.compose.Text())
	assert.Equal(t, 2, f.store.Len())
}

func TestSendAsync_OverlappingSendsAreAccepted(t *testing.T) {
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Message == "first" {
			close(firstArrived)
			<-releaseFirst
		}
		w.Write([]byte(`{"response":"re: ` + req.Message + `","provider":"openai"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	ctx := context.Background()

	doneFirst := f.d.SendAsync(ctx, "first", nil)
	<-firstArrived
	doneSecond := f.d.SendAsync(ctx, "second", nil)

	<-doneSecond
	assert.True(t, f.d.Busy(), "first exchange still in flight")

	close(releaseFirst)
	<-doneFirst
	assert.False(t, f.d.Busy())

	var texts []string
	for _, m := range f.store.Snapshot() {
		texts = append(texts, m.Text)
	}
	// replies follow completion order
	assert.Equal(t, []string{"first", "second", "re: second", "re: first"}, texts)
}

func TestSend_UsesActiveProvider(t *testing.T) {
	var got backend.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"response":"ok","provider":"` + got.Provider + `"}`))
	}))
	defer server.Close()

	f := newFixture(t, server.URL, nil)
	f.sel.Select("mystery-llm")
	f.d.Send(context.Background(), "hi", nil)

	assert.Equal(t, "mystery-llm", got.Provider)
	assert.Equal(t, "mystery-llm", f.store.Snapshot()[0].Provider)
}

func TestNewDispatcher_Validation(t *testing.T) {
	store := session.NewStore()
	sel := NewSelector("openai")

	_, err := NewDispatcher(DispatcherConfig{SessionID: "s"}, store, sel, &Compose{})
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherConfig{BaseURL: "http://x"}, store, sel, &Compose{})
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherConfig{BaseURL: "http://x", SessionID: "s"}, nil, sel, &Compose{})
	assert.Error(t, err)
}
