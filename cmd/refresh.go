package cmd

import (
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		Long: `Exchange the stored refresh token for a new access token, even if
the current one is still valid. Useful after scope or provider-side changes,
and for verifying that the refresh token still works.`,
		RunE: runRefresh,
	}
}

func runRefresh(cmd *cobra.Command, args []string) error {
	controller, cleanup, err := buildController(false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := controller.Refresh(cmd.Context()); err != nil {
		return err
	}

	infoPrint("%s\n", text.FgGreen.Sprint("Access token refreshed"))
	return nil
}
