package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

func newLoginCmd(c *cli) *cobra.Command {
	var user, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and download every published plan",
		Long: "Log in and download every published plan. Without flags the " +
			"DSBPANEL_DSB_USERNAME and DSBPANEL_DSB_PASSWORD variables are used.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				user = c.app.Config.DSBUsername
			}
			if password == "" {
				password = c.app.Config.DSBPassword
			}

			if err := c.app.Session.Authenticate(cmd.Context(), user, password); err != nil {
				return sessionError(c, err)
			}

			dates, err := c.app.Session.PlanDates(cmd.Context())
			if err != nil {
				return err
			}
			if !c.app.Credentials.Enabled() {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning: DSBPANEL_SECRET_KEY is not set, the login is not remembered")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s, %d plan(s) stored\n", c.app.Session.Identifier(), len(dates))
			return err
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Account identifier")
	cmd.Flags().StringVar(&password, "password", "", "Account password")

	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored login, the cache and every stored plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

func newRefreshCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Download the published plans again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.RefreshNow(cmd.Context(), force); err != nil {
				return sessionError(c, err)
			}

			dates, err := c.app.Session.PlanDates(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d plan(s) stored\n", len(dates))
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Ignore the session cache")

	return cmd
}

// statusView is the --json shape of the status command.
type statusView struct {
	Authenticated bool       `json:"authenticated"`
	Identifier    string     `json:"identifier,omitempty"`
	LastUpdated   *time.Time `json:"last_updated"`
	Error         string     `json:"error,omitempty"`
	RememberLogin bool       `json:"remember_login"`
	Plans         []string   `json:"plans"`
}

func newStatusCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			state := c.app.Session.State()
			view := statusView{
				Authenticated: state.IsAuthenticated,
				Identifier:    c.app.Session.Identifier(),
				LastUpdated:   state.LastUpdated,
				Error:         state.Error,
				RememberLogin: c.app.Credentials.Enabled(),
				Plans:         []string{},
			}

			if state.IsAuthenticated {
				dates, err := c.app.Session.PlanDates(cmd.Context())
				if err != nil {
					return err
				}
				view.Plans = dates
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			return writeStatus(cmd.OutOrStdout(), view)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func writeStatus(w io.Writer, v statusView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(tw, "authenticated:\t%t\n", v.Authenticated)
	if v.Identifier != "" {
		_, _ = fmt.Fprintf(tw, "identifier:\t%s\n", v.Identifier)
	}
	if v.LastUpdated != nil {
		_, _ = fmt.Fprintf(tw, "last updated:\t%s\n", v.LastUpdated.Format(time.RFC3339))
	}
	if v.Error != "" {
		_, _ = fmt.Fprintf(tw, "error:\t%s\n", v.Error)
	}
	_, _ = fmt.Fprintf(tw, "remember login:\t%t\n", v.RememberLogin)
	_, _ = fmt.Fprintf(tw, "stored plans:\t%d\n", len(v.Plans))

	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sessionError prefers the user-facing message the session published.
func sessionError(c *cli, err error) error {
	if errors.Is(err, model.ErrInvalidCredentials) || errors.Is(err, model.ErrRefreshInProgress) {
		return err
	}
	if msg := c.app.Session.State().Error; msg != "" {
		return errors.New(msg)
	}
	return err
}
