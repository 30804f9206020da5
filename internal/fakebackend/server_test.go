package fakebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Chatdesk/internal/auth"
	"Chatdesk/internal/backend"
	"Chatdesk/internal/feeds"
	"Chatdesk/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(New(opts).Router())
	t.Cleanup(server.Close)
	return server
}

func postChat(t *testing.T, url, apiKey string, req backend.ChatRequest) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestChat_EchoesPerSessionTurns(t *testing.T) {
	server := setup(t, Options{APIKey: "secret"})

	for turn, want := range []string{"(turn 1)", "(turn 2)"} {
		resp, body := postChat(t, server.URL+"/chat?session_id=s1", "secret",
			backend.ChatRequest{Provider: "gemini", Message: "hi", Images: []string{}})
		require.Equal(t, http.StatusOK, resp.StatusCode, "turn %d", turn)

		var out backend.ChatResponse
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, "gemini", out.Provider)
		assert.Contains(t, out.Response, want)
		assert.Contains(t, out.Response, "hi")
	}

	_, body := postChat(t, server.URL+"/chat?session_id=s2", "secret",
		backend.ChatRequest{Provider: "gemini", Message: "hi"})
	assert.Contains(t, string(body), "(turn 1)", "sessions are counted separately")
}

func TestChat_Rejections(t *testing.T) {
	server := setup(t, Options{APIKey: "secret"})

	tests := []struct {
		name       string
		apiKey     string
		provider   string
		wantStatus int
		wantDetail string
	}{
		{"bad key", "wrong", "openai", http.StatusUnauthorized, "Invalid API key"},
		{"unknown provider", "secret", "mistral", http.StatusBadRequest, "Provider 'mistral' not supported."},
		{"provider outside the served set", "secret", "anthropic", http.StatusBadRequest, "Provider 'anthropic' not supported."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postChat(t, server.URL+"/chat?session_id=x", tt.apiKey,
				backend.ChatRequest{Provider: tt.provider, Message: "hello"})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var errResp backend.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			detail, ok := errResp.DetailString()
			assert.True(t, ok)
			assert.Equal(t, tt.wantDetail, detail)
		})
	}
}

func TestChat_CustomReplyAndImages(t *testing.T) {
	gotImages := make(chan []string, 1)
	server := setup(t, Options{Reply: func(provider, message string, images []string, turn int) string {
		gotImages <- images
		return "Hi there"
	}})

	_, body := postChat(t, server.URL+"/chat", "",
		backend.ChatRequest{Provider: "openai", Message: "image sent", Images: []string{"https://example.com/a.png"}})
	assert.JSONEq(t, `{"response":"Hi there","provider":"openai"}`, string(body))
	assert.Equal(t, []string{"https://example.com/a.png"}, <-gotImages)
}

func TestEchoReply(t *testing.T) {
	assert.Equal(t, "**openai** (turn 3): hey", EchoReply("openai", "hey", nil, 3))
	assert.Contains(t, EchoReply("gemini", "look", []string{"a", "b"}, 1), "received 2 image(s)")
}

func TestAuthFlow(t *testing.T) {
	server := setup(t, Options{})
	c := auth.NewClient(server.URL, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, "ada@example.com", "hunter2"))
	assert.EqualError(t, c.Register(ctx, "ADA@example.com", "other"), "Email already registered")

	_, err := c.Login(ctx, "ada@example.com", "wrong")
	assert.EqualError(t, err, "Invalid credentials")

	token, err := c.Login(ctx, "ada@example.com", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	me, err := c.Me(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", me.Email)

	_, err = c.Me(ctx, "not-a-token")
	assert.EqualError(t, err, "Invalid token")
}

func TestFeeds(t *testing.T) {
	server := setup(t, Options{})
	c := feeds.NewClient(server.URL)
	ctx := context.Background()

	news, err := c.News(ctx, feeds.NewsQuery{Country: "gb", Query: "AI"})
	require.NoError(t, err)
	require.NotEmpty(t, news.Headlines.Articles)
	assert.True(t, strings.HasPrefix(news.Headlines.Articles[0].Title, "AI: "))
	assert.Contains(t, news.Headlines.Articles[0].URL, "/gb/")

	stocks, err := c.Stocks(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, stocks.Items, 3)

	weather, err := c.Weather(ctx, "Oslo", "imperial")
	require.NoError(t, err)
	assert.Equal(t, "Oslo", weather.Current.Name)
	assert.InDelta(t, 65.1, weather.Current.Main.Temp, 0.1)
	assert.Len(t, weather.Forecast.List, 8)

	providers, err := c.Providers(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultProviders, providers)
}

func TestFeeds_Validation(t *testing.T) {
	server := setup(t, Options{})

	resp, err := http.Get(server.URL + "/weather/combined")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/news/stocks?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSpeech_TranscribesTextAudio(t *testing.T) {
	server := setup(t, Options{})
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/speech"

	path := filepath.Join(t.TempDir(), "utterance.txt")
	require.NoError(t, os.WriteFile(path, []byte("what's the weather in Oslo\n"), 0600))

	engine := voice.NewWebSocketEngine(endpoint, voice.FileAudio(path), nil)
	rec, err := engine.Start(context.Background(), voice.Options{Locale: "en-US", MaxAlternatives: 1})
	require.NoError(t, err)

	transcript, err := rec.Wait()
	require.NoError(t, err)
	assert.Equal(t, "what's the weather in Oslo", transcript)
}

func TestSpeech_EmptyAudioIsNoSpeech(t *testing.T) {
	server := setup(t, Options{})
	endpoint := "ws" + strings.TrimPrefix(server.URL, "http") + "/speech"

	path := filepath.Join(t.TempDir(), "silence.raw")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	rec, err := voice.NewWebSocketEngine(endpoint, voice.FileAudio(path), nil).Start(context.Background(), voice.Options{})
	require.NoError(t, err)

	_, err = rec.Wait()
	assert.EqualError(t, err, "no-speech")
}

func TestTextTranscriber(t *testing.T) {
	assert.Equal(t, "hello", TextTranscriber([]byte(" hello \n"), "en-US"))
	assert.Equal(t, "(2 bytes of audio)", TextTranscriber([]byte{0xff, 0xfe}, "en-US"))
}
