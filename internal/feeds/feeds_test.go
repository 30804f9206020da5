package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Chatdesk/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newsBody = `{
  "headlines": {"articles": [
    {"title": "Rates hold", "url": "https://example.com/a", "source": {"name": "Wire"}, "description": "Central bank pauses"}
  ]},
  "sources": {"sources": [{"name": "Wire", "url": "https://example.com", "category": "business"}]}
}`

const weatherBody = `{
  "current": {"name": "London", "main": {"temp": 11.6, "feels_like": 10.2, "humidity": 81, "pressure": 1012},
              "weather": [{"description": "light rain"}], "wind": {"speed": 4.1}, "sys": {"country": "GB"}},
  "forecast": {"list": [{"dt": 1700000000, "main": {"temp": 12}, "weather": [{"description": "overcast"}]}]}
}`

func TestNews_QueryAndDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news/combined", r.URL.Path)
		assert.Equal(t, "us", r.URL.Query().Get("country"))
		assert.Equal(t, "AI", r.URL.Query().Get("q"))
		assert.False(t, r.URL.Query().Has("category"), "empty fields are omitted")
		w.Write([]byte(newsBody))
	}))
	defer server.Close()

	news, err := NewClient(server.URL).News(context.Background(), NewsQuery{Country: "us", Query: "AI"})
	require.NoError(t, err)
	require.Len(t, news.Headlines.Articles, 1)
	assert.Equal(t, "Rates hold", news.Headlines.Articles[0].Title)
	assert.Equal(t, "Wire", news.Headlines.Articles[0].Source.Name)
	require.Len(t, news.Sources.Sources, 1)
	assert.Equal(t, "business", news.Sources.Sources[0].Category)
}

func TestStocks_Limit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news/stocks", r.URL.Path)
		assert.Equal(t, "15", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"items":[{"title":"Stocks rally","link":"https://example.com/s","published":"Mon"}]}`))
	}))
	defer server.Close()

	stocks, err := NewClient(server.URL).Stocks(context.Background(), 15)
	require.NoError(t, err)
	require.Len(t, stocks.Items, 1)
	assert.Equal(t, "Stocks rally", stocks.Items[0].Title)
}

func TestWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather/combined", r.URL.Path)
		assert.Equal(t, "São Paulo", r.URL.Query().Get("city"))
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))
		w.Write([]byte(weatherBody))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	weather, err := c.Weather(context.Background(), "São Paulo", "imperial")
	require.NoError(t, err)
	assert.Equal(t, "London", weather.Current.Name)
	assert.Equal(t, "light rain", weather.Current.Description())
	assert.Equal(t, 81, weather.Current.Main.Humidity)
	require.Len(t, weather.Forecast.List, 1)
	assert.Equal(t, "overcast", weather.Forecast.List[0].Description())

	_, err = c.Weather(context.Background(), " ", "metric")
	assert.Error(t, err)
}

func TestGetJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Missing OPENWEATHER_KEY", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Weather(context.Background(), "Paris", "metric")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.Contains(t, err.Error(), "Missing OPENWEATHER_KEY")
}

func TestGetJSON_CachesSuccessfulBodies(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithCache(cache.New(time.Minute)))
	for i := 0; i < 3; i++ {
		_, err := c.Stocks(context.Background(), 5)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err := c.Stocks(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "different query, different key")
}

func TestGetJSON_BadBodyNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithCache(cache.New(time.Minute)))
	_, err := c.Stocks(context.Background(), 1)
	require.Error(t, err)
	_, err = c.Stocks(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestPoller_FetchesImmediatelyThenTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		(&Poller{Interval: 10 * time.Millisecond}).Run(ctx, func(context.Context) error {
			if calls.Add(1) == 3 {
				cancel()
			}
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestPoller_ReportsErrorsAndContinues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var reported []error
	p := &Poller{
		Interval: 5 * time.Millisecond,
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			if len(reported) == 2 {
				cancel()
			}
			mu.Unlock()
		},
	}
	p.Run(ctx, func(context.Context) error { return errors.New("upstream down") })

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(reported), 2)
	assert.EqualError(t, reported[0], "upstream down")
}

func TestPoller_ZeroIntervalFetchesOnce(t *testing.T) {
	var calls int
	(&Poller{}).Run(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
}

func TestProviders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/providers", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"providers":["openai","gemini","deepseek"]}`))
	}))
	defer server.Close()

	providers, err := NewClient(server.URL).Providers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "gemini", "deepseek"}, providers)
}
