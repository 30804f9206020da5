package main

import (
	"context"
	"fmt"
	"strings"

	"Chatdesk/internal/chatbot"
	"Chatdesk/internal/feeds"

	"github.com/urfave/cli/v2"
)

func watchFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Refresh on the configured poll interval until interrupted",
	}
}

func newsCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "news",
		Usage: "Show top headlines and sources",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "country", Usage: "Two-letter country code"},
			&cli.StringFlag{Name: "category", Usage: "Headline category"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search terms"},
			watchFlag(),
		},
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			q := feeds.NewsQuery{
				Country:  stringOr(c, "country", rt.cfg.Feeds.Country),
				Category: stringOr(c, "category", rt.cfg.Feeds.Category),
				Query:    stringOr(c, "query", rt.cfg.Feeds.Query),
			}
			client := rt.feedsClient()
			return rt.show(c, func(ctx context.Context) error {
				news, err := client.News(ctx, q)
				if err != nil {
					return err
				}
				rt.render.News(news)
				return nil
			})
		}),
	}
}

func stocksCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "stocks",
		Usage: "Show stock and market news",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Number of items"},
			watchFlag(),
		},
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			limit := rt.cfg.Feeds.StockLimit
			if c.IsSet("limit") {
				limit = c.Int("limit")
			}
			client := rt.feedsClient()
			return rt.show(c, func(ctx context.Context) error {
				stocks, err := client.Stocks(ctx, limit)
				if err != nil {
					return err
				}
				rt.render.Stocks(stocks)
				return nil
			})
		}),
	}
}

func weatherCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "weather",
		Usage: "Show current weather and the short forecast",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "city", Usage: "City name"},
			&cli.StringFlag{Name: "units", Usage: "metric or imperial"},
			watchFlag(),
		},
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			city := stringOr(c, "city", rt.cfg.Feeds.City)
			units := stringOr(c, "units", rt.cfg.Feeds.Units)
			if city == "" {
				return fmt.Errorf("a city is required (--city or feeds.city)")
			}
			client := rt.feedsClient()
			return rt.show(c, func(ctx context.Context) error {
				w, err := client.Weather(ctx, city, units)
				if err != nil {
					return err
				}
				rt.render.Weather(w, units)
				return nil
			})
		}),
	}
}

func providersCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "List chat providers",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "remote", Usage: "Ask the backend which providers it serves"},
		},
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			if c.Bool("remote") {
				names, err := rt.feedsClient().Providers(c.Context)
				if err != nil {
					return fmt.Errorf("failed to list providers: %w", err)
				}
				rt.render.Info("Backend serves: " + strings.Join(names, ", "))
				return nil
			}
			for _, p := range chatbot.DefaultProviders {
				marker := "  "
				if p.Value == rt.cfg.Provider {
					marker = "* "
				}
				rt.render.Info(fmt.Sprintf("%s%-10s %s", marker, p.Value, p.Label))
			}
			return nil
		}),
	}
}

// show fetches once, or keeps refreshing with --watch. In watch mode
// failures are shown as alerts and polling continues.
func (rt *runtime) show(c *cli.Context, fetch func(context.Context) error) error {
	if !c.Bool("watch") {
		return fetch(c.Context)
	}
	poller := &feeds.Poller{
		Interval: rt.cfg.Feeds.PollInterval,
		OnError:  func(err error) { rt.render.Alert(err.Error()) },
		Logger:   rt.logger,
	}
	poller.Run(c.Context, fetch)
	return nil
}

func stringOr(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return fallback
}
