// Package render formats the conversation and the feed panels for the
// terminal.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"Chatdesk/internal/backend"
	"Chatdesk/internal/session"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
)

const (
	maxHeadlines = 12
	maxForecast  = 8
)

// LabelFunc maps a provider key to its display label
type LabelFunc func(provider string) string

type Renderer struct {
	out   io.Writer
	md    *glamour.TermRenderer
	label LabelFunc

	user, assistant, errc, alert, dim, title *color.Color
}

// New creates a renderer writing to out. When tty is false colors and
// markdown rendering are off and text is written verbatim.
func New(out io.Writer, tty bool, label LabelFunc) *Renderer {
	if label == nil {
		label = func(p string) string { return p }
	}
	r := &Renderer{
		out:       out,
		label:     label,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen, color.Bold),
		errc:      color.New(color.FgRed),
		alert:     color.New(color.FgYellow),
		dim:       color.New(color.FgHiBlack),
		title:     color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.user, r.assistant, r.errc, r.alert, r.dim, r.title} {
		if tty {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	if tty {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

// Message prints one conversation entry
func (r *Renderer) Message(m session.Message) {
	stamp := r.dim.Sprint(m.Timestamp.Format("15:04:05"))

	switch {
	case m.IsError():
		fmt.Fprintf(r.out, "%s %s\n", stamp, r.errc.Sprint(m.Text))
	case m.Sender == session.SenderUser:
		fmt.Fprintf(r.out, "%s %s %s\n", stamp, r.user.Sprint("You:"), m.Text)
		for _, img := range m.Images {
			fmt.Fprintf(r.out, "         %s\n", r.dim.Sprint("[image] "+shorten(img, 60)))
		}
	default:
		fmt.Fprintf(r.out, "%s %s\n", stamp, r.assistant.Sprint(r.label(m.Provider)+":"))
		fmt.Fprintln(r.out, strings.TrimRight(r.markdown(m.Text), "\n"))
	}
}

// History prints every message, or a hint when there are none
func (r *Renderer) History(msgs []session.Message) {
	if len(msgs) == 0 {
		r.Info("No messages yet.")
		return
	}
	for _, m := range msgs {
		r.Message(m)
	}
}

// Alert prints a modal-style notice
func (r *Renderer) Alert(msg string) {
	fmt.Fprintln(r.out, r.alert.Sprint("! "+msg))
}

func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.out, r.dim.Sprint(msg))
}

func (r *Renderer) News(news *backend.NewsResponse) {
	fmt.Fprintln(r.out, r.title.Sprint("Top Headlines"))
	articles := news.Headlines.Articles
	if len(articles) == 0 {
		r.Info("  No headlines.")
	}
	if len(articles) > maxHeadlines {
		articles = articles[:maxHeadlines]
	}
	for _, a := range articles {
		title := a.Title
		if title == "" {
			title = "Untitled"
		}
		line := "  • " + title
		if a.Source.Name != "" {
			line += r.dim.Sprint(" (" + a.Source.Name + ")")
		}
		fmt.Fprintln(r.out, line)
		if a.URL != "" {
			fmt.Fprintln(r.out, "    "+r.dim.Sprint(a.URL))
		}
	}

	if len(news.Sources.Sources) > 0 {
		names := make([]string, 0, len(news.Sources.Sources))
		for _, s := range news.Sources.Sources {
			names = append(names, s.Name)
		}
		fmt.Fprintln(r.out, r.dim.Sprint("Sources: "+strings.Join(names, ", ")))
	}
}

func (r *Renderer) Stocks(stocks *backend.StocksResponse) {
	fmt.Fprintln(r.out, r.title.Sprint("Stock / Market News"))
	if len(stocks.Items) == 0 {
		r.Info("  No market news.")
		return
	}
	for _, item := range stocks.Items {
		fmt.Fprintln(r.out, "  • "+item.Title)
		if item.Published != "" {
			fmt.Fprintln(r.out, "    "+r.dim.Sprint(item.Published))
		}
	}
}

// Weather prints current conditions and the next 24h of forecast
func (r *Renderer) Weather(w *backend.WeatherResponse, units string) {
	deg, speed := "C", "m/s"
	if units == "imperial" {
		deg, speed = "F", "mph"
	}

	c := w.Current
	place := c.Name
	if c.Sys.Country != "" {
		place += ", " + c.Sys.Country
	}
	fmt.Fprintln(r.out, r.title.Sprint("Weather: "+place))
	fmt.Fprintf(r.out, "  %d°%s  %s\n", round(c.Main.Temp), deg, c.Description())
	fmt.Fprintf(r.out, "  Feels: %d°  Humidity: %d%%  Wind: %.1f %s  Pressure: %d hPa\n",
		round(c.Main.FeelsLike), c.Main.Humidity, c.Wind.Speed, speed, c.Main.Pressure)

	forecast := w.Forecast.List
	if len(forecast) > maxForecast {
		forecast = forecast[:maxForecast]
	}
	if len(forecast) > 0 {
		fmt.Fprintln(r.out, r.title.Sprint("Forecast (next 24h)"))
	}
	for _, f := range forecast {
		fmt.Fprintf(r.out, "  %s  %3d°  %s\n",
			r.dim.Sprint(f.Time().Format("Mon 15:04")), round(f.Main.Temp), f.Description())
	}
}

func (r *Renderer) markdown(s string) string {
	if r.md == nil {
		return s
	}
	out, err := r.md.Render(s)
	if err != nil {
		return s
	}
	return out
}

func round(f float64) int {
	return int(math.Round(f))
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
