package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var whoamiJSON bool

func newWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Long: `Print the signed-in user's identity from the stored session,
refreshing the access token first if it has expired. Exits with code 2 when
no session exists.`,
		RunE: runWhoami,
	}

	cmd.Flags().BoolVar(&whoamiJSON, "json", false, "print the profile as JSON")
	return cmd
}

func runWhoami(cmd *cobra.Command, args []string) error {
	controller, cleanup, err := buildController(false)
	if err != nil {
		return err
	}
	defer cleanup()

	profile, err := controller.SignInSilently(cmd.Context())
	if err != nil {
		return err
	}
	if profile == nil {
		fmt.Println("signed in, but no profile information is available")
		return nil
	}

	if whoamiJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(profile)
	}

	if profile.DisplayName != "" {
		fmt.Println(profile.DisplayName)
	}
	if profile.Email != "" {
		fmt.Println(profile.Email)
	}
	fmt.Println(profile.ID)
	return nil
}
