package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tunevault/internal/client/updater"
)

// Version is set via ldflags during release builds.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tunevault", Version)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the client to the latest release",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		up, err := updater.Check(ctx, Version)
		if err != nil {
			log.Fatal().Err(err).Msg("update check failed")
		}
		if up == nil {
			fmt.Println("Already up to date.")
			return
		}

		fmt.Printf("Updating %s -> %s\n", Version, up.Version)
		if err := updater.Apply(ctx, up); err != nil {
			log.Fatal().Err(err).Msg("update failed")
		}
		fmt.Println("Update installed. Restart to apply.")
	},
}
