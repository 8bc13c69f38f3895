package cmd

import (
	"bufio"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// Logout-specific flags
var (
	logoutAll bool
	logoutYes bool
)

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and discard the stored session",
		Long: `Sign out of the configured provider.

Tokens and profile data are removed from local storage. The last user id is
kept as a login hint for the next sign-in unless --all is given, which wipes
the storage file entirely, including state of other clients sharing it.`,
		RunE: runLogout,
	}

	cmd.Flags().BoolVar(&logoutAll, "all", false, "wipe the entire storage file, login hint included")
	cmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "skip the confirmation prompt for --all")
	return cmd
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	controller, cleanup, err := buildController(false)
	if err != nil {
		return err
	}
	defer cleanup()

	if logoutAll {
		if !logoutYes && !confirm("This removes all stored sessions, including other clients'. Continue? [y/N] ") {
			infoPrint("Aborted\n")
			return nil
		}
		if err := controller.Disconnect(ctx); err != nil {
			return err
		}
		infoPrint("%s\n", text.FgGreen.Sprint("All stored sessions removed"))
		return nil
	}

	if err := controller.SignOut(ctx); err != nil {
		return err
	}
	infoPrint("%s\n", text.FgGreen.Sprint("Signed out"))
	return nil
}

// confirm asks a yes/no question on the terminal.
func confirm(prompt string) bool {
	infoPrint("%s", prompt)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
