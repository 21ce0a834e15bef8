package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/minidrive/session"
)

// EnvPassword supplies the password for login and signup when --password is
// not given.
const EnvPassword = "MINIDRIVE_PASSWORD"

func validateEmail(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return fmt.Errorf("email %q: %w", email, err)
	}
	return nil
}

// readPassword takes the flag, then the environment, then the first line
// of stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv(EnvPassword); v != "" {
		return v, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func newLoginCommand(a *app) *cobra.Command {
	var (
		password string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in and keep the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateEmail(args[0]); err != nil {
				return err
			}
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			var opts []session.LoginOption
			if admin {
				opts = append(opts, session.AdminOnly())
			}
			u, err := a.client.Session().Login(cmd.Context(), args[0], pw, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password (default: $"+EnvPassword+" or stdin)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Refuse the login unless the account is an administrator")
	return cmd
}

func newSignupCommand(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateEmail(args[0]); err != nil {
				return err
			}
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			u, err := a.client.Session().Signup(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed up as %s\n", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password (default: $"+EnvPassword+" or stdin)")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.client.Session().Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user and token expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			u, _ := a.client.Session().User()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:    %s\nemail: %s\nrole:  %s\n", u.ID, u.Email, u.Role)

			claims, err := a.client.TokenInfo()
			if err != nil {
				// Opaque tokens are allowed; there is just nothing more to show.
				return nil
			}
			if !claims.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "token expires %s (in %s)\n",
					claims.ExpiresAt.Local().Format(time.RFC3339),
					claims.ExpiresIn(time.Now()).Round(time.Second))
			}
			return nil
		},
	}
}
