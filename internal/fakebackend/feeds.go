package fakebackend

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Chatdesk/internal/backend"
)

var headlines = []string{
	"Markets steady ahead of rate decision",
	"New battery chemistry doubles range in lab tests",
	"City council approves riverside park expansion",
	"Researchers map deep-sea currents with drones",
	"Open-source model tops translation benchmark",
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	country := q.Get("country")
	if country == "" {
		country = "us"
	}

	var resp backend.NewsResponse
	for i, title := range headlines {
		if topic := q.Get("q"); topic != "" {
			title = topic + ": " + title
		}
		a := backend.Article{
			Title:       title,
			URL:         fmt.Sprintf("https://news.example.com/%s/%d", country, i+1),
			Description: "Category " + valueOr(q.Get("category"), "general"),
			PublishedAt: time.Now().UTC().Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
		}
		a.Source.Name = "Example Wire"
		resp.Headlines.Articles = append(resp.Headlines.Articles, a)
	}
	resp.Sources.Sources = []backend.NewsSource{
		{Name: "Example Wire", URL: "https://news.example.com", Category: "general"},
		{Name: "Example Markets", URL: "https://markets.example.com", Category: "business"},
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	limit := 15
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondDetail(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = n
	}

	symbols := []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOG", "TSLA", "META"}
	resp := backend.StocksResponse{Items: []backend.MarketItem{}}
	for i := 0; i < limit && i < len(symbols); i++ {
		resp.Items = append(resp.Items, backend.MarketItem{
			Title:     symbols[i] + " shares move on earnings outlook",
			Link:      "https://markets.example.com/" + strings.ToLower(symbols[i]),
			Published: time.Now().UTC().Add(-time.Duration(i) * 30 * time.Minute).Format(time.RFC1123),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		respondDetail(w, http.StatusBadRequest, "city is required")
		return
	}
	units := valueOr(r.URL.Query().Get("units"), "metric")

	temp, wind := 18.4, 3.6
	if units == "imperial" {
		temp, wind = temp*9/5+32, wind*2.237
	}

	var resp backend.WeatherResponse
	resp.Current.Name = city
	resp.Current.Main = backend.WeatherMain{Temp: temp, FeelsLike: temp - 1, Humidity: 64, Pressure: 1013}
	resp.Current.Weather = []backend.Condition{{Description: "scattered clouds"}}
	resp.Current.Wind.Speed = wind

	start := time.Now().Truncate(3 * time.Hour)
	for i := 1; i <= 8; i++ {
		resp.Forecast.List = append(resp.Forecast.List, backend.ForecastEntry{
			Dt:      start.Add(time.Duration(i) * 3 * time.Hour).Unix(),
			Main:    backend.WeatherMain{Temp: temp + float64(i%4) - 1.5},
			Weather: []backend.Condition{{Description: "partly cloudy"}},
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
