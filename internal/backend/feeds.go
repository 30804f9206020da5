package backend

import "time"

// NewsResponse is the body of GET /news/combined
type NewsResponse struct {
	Headlines struct {
		Articles []Article `json:"articles"`
	} `json:"headlines"`
	Sources struct {
		Sources []NewsSource `json:"sources"`
	} `json:"sources"`
}

type Article struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage,omitempty"`
	Description string `json:"description,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type NewsSource struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
}

// StocksResponse is the body of GET /news/stocks
type StocksResponse struct {
	Items []MarketItem `json:"items"`
}

type MarketItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
}

// WeatherResponse is the body of GET /weather/combined. Current and the
// forecast entries follow the OpenWeather field layout.
type WeatherResponse struct {
	Current  CurrentWeather `json:"current"`
	Forecast struct {
		List []ForecastEntry `json:"list"`
	} `json:"forecast"`
}

type WeatherMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  int     `json:"humidity"`
	Pressure  int     `json:"pressure"`
}

type Condition struct {
	Description string `json:"description"`
}

type CurrentWeather struct {
	Name    string      `json:"name"`
	Main    WeatherMain `json:"main"`
	Weather []Condition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// Description returns the first condition, or "" when none was reported.
func (c CurrentWeather) Description() string {
	if len(c.Weather) == 0 {
		return ""
	}
	return c.Weather[0].Description
}

type ForecastEntry struct {
	Dt      int64       `json:"dt"`
	Main    WeatherMain `json:"main"`
	Weather []Condition `json:"weather"`
}

func (f ForecastEntry) Time() time.Time {
	return time.Unix(f.Dt, 0)
}

func (f ForecastEntry) Description() string {
	if len(f.Weather) == 0 {
		return ""
	}
	return f.Weather[0].Description
}
