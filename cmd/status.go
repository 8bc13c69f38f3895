package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"signet/pkg/oauth"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Long: `Show the state of the stored session: the signed-in user, token
validity, granted scopes, and expiry. Token values themselves are never
printed.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	controller, cleanup, err := buildController(false)
	if err != nil {
		return err
	}
	defer cleanup()

	set, err := controller.Store().TokenSet()
	if err != nil {
		return err
	}
	profile, err := controller.Store().Profile()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)

	if !set.HasSession() {
		t.AppendRow(table.Row{"Status", text.FgYellow.Sprint("Not signed in")})
		if profile != nil && profile.ID != "" {
			t.AppendRow(table.Row{"Last user", profile.ID})
		}
		t.Render()
		return nil
	}

	t.AppendRow(table.Row{"Status", text.FgGreen.Sprint("Signed in")})
	if profile != nil {
		if profile.DisplayName != "" {
			t.AppendRow(table.Row{"Name", profile.DisplayName})
		}
		if profile.Email != "" {
			t.AppendRow(table.Row{"Email", profile.Email})
		}
		t.AppendRow(table.Row{"User ID", profile.ID})
	}

	if set.AccessTokenValid(oauth.DefaultExpiryMargin) {
		t.AppendRow(table.Row{"Access token", text.FgGreen.Sprint("Valid")})
		t.AppendRow(table.Row{"Expires", set.ExpiresAt.Local().Format(time.RFC1123)})
	} else {
		t.AppendRow(table.Row{"Access token", text.FgYellow.Sprint("Expired")})
	}

	if set.RefreshToken != "" {
		t.AppendRow(table.Row{"Refresh", text.FgGreen.Sprint("Available")})
	} else {
		t.AppendRow(table.Row{"Refresh", text.FgYellow.Sprint("Not available (re-auth required on expiry)")})
	}

	if len(set.Scopes) > 0 {
		t.AppendRow(table.Row{"Scopes", strings.Join(set.Scopes, " ")})
	}

	t.Render()
	return nil
}
