package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

func registerCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
		},
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			email, password, err := promptCredentials(rt.term, c.String("email"))
			if err != nil {
				return err
			}
			if err := rt.authClient().Register(c.Context, email, password); err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			rt.render.Info("Registration successful. You can now log in.")
			return nil
		}),
	}
}

func loginCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and save the access token for later runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
			&cli.BoolFlag{
				Name:  "remember",
				Value: true,
				Usage: "Save the token on this machine; --remember=false only checks the credentials",
			},
		},
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			remember := c.Bool("remember")
			if err := loginInteractive(c, rt, remember); err != nil {
				return err
			}
			if !remember {
				rt.render.Info("Credentials are valid; the token was not saved.")
			}
			return nil
		}),
	}
}

func logoutCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored access token",
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			if err := rt.keeper.Logout(); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			rt.logger.Info("logged out")
			rt.render.Info("Logged out.")
			return nil
		}),
	}
}

func whoamiCommand(t *terminal) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the account of the stored token",
		Action: withRuntime(t, func(c *cli.Context, rt *runtime) error {
			token, ok, err := rt.keeper.Token()
			if err != nil {
				return fmt.Errorf("failed to load credentials: %w", err)
			}
			if !ok {
				return errors.New("not logged in")
			}
			user, err := rt.authClient().Me(c.Context, token)
			if err != nil {
				return err
			}
			remembered, err := rt.keeper.Remembered()
			if err != nil {
				return fmt.Errorf("failed to load credentials: %w", err)
			}
			scope := "this run only"
			if remembered {
				scope = "saved on this machine"
			}
			rt.render.Info(fmt.Sprintf("Logged in as %s (id %d), token %s", user.Email, user.ID, scope))
			return nil
		}),
	}
}

func loginInteractive(c *cli.Context, rt *runtime, remember bool) error {
	email, password, err := promptCredentials(rt.term, c.String("email"))
	if err != nil {
		return err
	}
	token, err := rt.authClient().Login(c.Context, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := rt.keeper.Save(token, remember); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	rt.render.Info("Login successful.")
	return nil
}

// promptCredentials asks for whatever is missing. The password is read
// without echo when stdin is a terminal.
func promptCredentials(t *terminal, email string) (string, string, error) {
	if email == "" {
		fmt.Fprint(t.out, "Email: ")
		line, err := t.readLine()
		if err != nil {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = line
	}

	fmt.Fprint(t.out, "Password: ")
	var password string
	if t.interactive() {
		raw, err := term.ReadPassword(int(t.inFile.Fd()))
		fmt.Fprintln(t.out)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := t.readLine()
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = line
	}

	if email == "" || password == "" {
		return "", "", errors.New("email and password are required")
	}
	return email, password, nil
}

// readLine returns the next line; a final unterminated line still counts
func (t *terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
