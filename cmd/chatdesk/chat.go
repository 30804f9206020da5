package main

import (
	"fmt"

	"Chatdesk/internal/attach"
	"Chatdesk/internal/chatbot"
	"Chatdesk/internal/session"
	"Chatdesk/internal/voice"

	"github.com/urfave/cli/v2"
)

func chatCommand(term *terminal) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Initial provider (openai|gemini|deepseek)",
			},
			&cli.BoolFlag{
				Name:  "login",
				Usage: "Log in before chatting",
			},
			&cli.BoolFlag{
				Name:  "remember",
				Usage: "With --login, keep the token across runs",
			},
		},
		Action: withRuntime(term, func(c *cli.Context, rt *runtime) error {
			if c.Bool("login") {
				if err := loginInteractive(c, rt, c.Bool("remember")); err != nil {
					return err
				}
			}

			apiKey, err := rt.credential()
			if err != nil {
				return fmt.Errorf("failed to load credentials: %w", err)
			}
			if apiKey == "" {
				rt.logger.Warn("no API key or login token; requests will be unauthenticated")
			}

			provider := rt.cfg.Provider
			if c.IsSet("provider") {
				provider = c.String("provider")
			}

			var engine voice.Engine
			if rt.cfg.Voice.Endpoint != "" && rt.cfg.Voice.AudioSource != "" {
				engine = voice.NewWebSocketEngine(rt.cfg.Voice.Endpoint, voice.FileAudio(rt.cfg.Voice.AudioSource), rt.logger)
			}

			feedsClient := rt.feedsClient()
			bot, err := chatbot.NewChatBot(chatbot.Options{
				BaseURL:         rt.cfg.BaseURL,
				APIKey:          apiKey,
				Provider:        provider,
				Session:         session.New(),
				Greeting:        chatbot.DefaultGreeting,
				In:              rt.term.in,
				Out:             rt.term.out,
				TTY:             rt.term.colorOutput(),
				HTTPClient:      rt.httpClient,
				Logger:          rt.logger,
				Tracer:          rt.tracer,
				Meter:           rt.meter,
				VoiceEngine:     engine,
				VoiceLocale:     rt.cfg.Voice.Locale,
				Attachments:     attach.OSReader{},
				RemoteProviders: feedsClient.Providers,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize chatbot: %w", err)
			}
			return bot.Run(c.Context)
		}),
	}
}
