package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tunevault/internal/client/playback"
)

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a local audio file",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		path := strings.Join(args, " ")

		controller := playback.NewController(log)
		if err := controller.Start(path); err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("playback failed")
		}
		fmt.Printf("Playing %s (Ctrl+C to stop)\n", path)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-sigCh:
				controller.Stop()
				return
			case <-ticker.C:
				if _, playing := controller.Playing(); !playing {
					return
				}
			}
		}
	},
}
