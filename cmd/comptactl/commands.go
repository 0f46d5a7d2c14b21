package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/comptamaroc/webclient/apiclient"
	"github.com/comptamaroc/webclient/auth"
	"github.com/comptamaroc/webclient/guard"
	"github.com/comptamaroc/webclient/session"
	"github.com/spf13/cobra"
)

var errSignedOut = errors.New("not signed in, run \"comptactl login\" first")

func loginCmd(opts *globalOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if password == "" {
				var err error
				if password, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			user, err := a.manager.Login(cmd.Context(), email, password)
			if err != nil {
				return errors.New(auth.MessageOf(err))
			}
			fmt.Fprintf(a.out, "%s %s\n", colour(Green, "Signed in as"), describe(user))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func registerCmd(opts *globalOptions) *cobra.Command {
	var req auth.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if req.Password == "" {
				var err error
				if req.Password, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			user, err := a.manager.Register(cmd.Context(), req)
			if err != nil {
				return errors.New(auth.MessageOf(err))
			}
			fmt.Fprintf(a.out, "%s %s\n", colour(Green, "Registered and signed in as"), describe(user))
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Account password (read from stdin when omitted)")
	cmd.Flags().StringVar(&req.RoleName, "role", "", "Role name (ADMIN, MANAGER, ACCOUNTANT, USER)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear the store",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, colour(Green, "Signed out"))
			return nil
		}),
	}
}

func whoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Fetch the signed-in user from the API",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if !a.manager.IsAuthenticated() {
				return errSignedOut
			}
			user, err := a.service.CurrentUser(cmd.Context())
			if err != nil {
				return errors.New(auth.MessageOf(err))
			}
			fmt.Fprintln(a.out, describe(user))
			return nil
		}),
	}
}

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			view := a.manager.Snapshot()
			fmt.Fprintf(a.out, "State:   %s\n", view.State)
			fmt.Fprintf(a.out, "API:     %s\n", a.client.BaseURL())
			if !view.IsAuthenticated {
				return nil
			}
			fmt.Fprintf(a.out, "User:    %s\n", describe(view.User))
			if exp, err := a.manager.TokenExpiry(); err == nil {
				fmt.Fprintf(a.out, "Expires: %s (%s)\n", exp.Local().Format(time.RFC3339), remaining(exp))
			}
			return nil
		}),
	}
}

func validateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [token]",
		Short: "Ask the API whether a token (default: the stored one) is valid",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			token := a.manager.Token()
			if len(args) == 1 {
				token = args[0]
			}
			if token == "" {
				return errSignedOut
			}
			if a.service.ValidateToken(cmd.Context(), token) {
				fmt.Fprintln(a.out, colour(Green, "valid"))
				return nil
			}
			fmt.Fprintln(a.out, colour(Red, "invalid"))
			return nil
		}),
	}
}

func changePasswordCmd(opts *globalOptions) *cobra.Command {
	var current, next string

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the signed-in user's password",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if !a.manager.IsAuthenticated() {
				return errSignedOut
			}
			if err := a.service.ChangePassword(cmd.Context(), current, next); err != nil {
				return errors.New(auth.MessageOf(err))
			}
			fmt.Fprintln(a.out, colour(Green, "Password changed"))
			return nil
		}),
	}
	cmd.Flags().StringVar(&current, "current", "", "Current password")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func getCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET an API path with the session's credentials and print its data",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			fmt.Fprintln(a.errOut, routeLabel(http.MethodGet, a.client.BaseURL()+args[0]))
			data, err := apiclient.Get[json.RawMessage](cmd.Context(), a.client, args[0])
			if err != nil {
				if msg, ok := apiclient.MessageOf(err); ok {
					return fmt.Errorf("%s: %s", args[0], msg)
				}
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, data, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(data)
			}
			fmt.Fprintln(a.out, pretty.String())
			return nil
		}),
	}
}

func routeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "route <path>",
		Short: "Show what navigating to an application page would do",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			d := guard.Resolve(a.manager, args[0])
			fmt.Fprintf(a.out, "%s -> %s\n", args[0], colour(outcomeColors[d.Outcome], d.String()))
			return nil
		}),
	}
}

func describe(u *auth.UserProfile) string {
	if u == nil {
		return "-"
	}
	name := u.FullName()
	if name == "" {
		return fmt.Sprintf("%s (%s)", u.Email, u.Role)
	}
	return fmt.Sprintf("%s <%s> (%s)", name, u.Email, u.Role)
}

func remaining(exp time.Time) string {
	d := time.Until(exp).Round(time.Second)
	if d <= 0 {
		return "expired"
	}
	return "in " + d.String()
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

var _ guard.SessionView = (*session.Manager)(nil)
