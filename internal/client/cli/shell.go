package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tunevault/internal/client/config"
	"tunevault/internal/client/playback"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive browse-download-play session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()

		if err := config.AcquireLock(); err != nil {
			log.Fatal().Err(err).Msg("cannot start shell")
		}
		defer config.ReleaseLock()

		m, cfg, err := newManager(log)
		if err != nil {
			log.Fatal().Err(err).Msg("setup failed")
		}

		controller := playback.NewController(log)
		defer controller.Stop()

		fmt.Println("tunevault shell. Commands: list, search <term>, download <file>, play <file>, stop, quit")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			if path, playing := controller.Playing(); playing {
				fmt.Printf("[playing %s] > ", path)
			} else {
				fmt.Print("> ")
			}
			if !scanner.Scan() {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			op, arg, _ := strings.Cut(line, " ")
			arg = strings.TrimSpace(arg)

			switch op {
			case "quit", "exit":
				return

			case "list":
				names, err := m.List(context.Background())
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				printNames(names)

			case "search":
				if arg == "" {
					fmt.Println("usage: search <term>")
					continue
				}
				names, err := m.Search(context.Background(), arg)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				printNames(names)

			case "download":
				if arg == "" {
					fmt.Println("usage: download <file>")
					continue
				}
				res, err := m.Download(context.Background(), arg, destPath(cfg, arg))
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				fmt.Printf("saved %s (%d bytes)\n", res.Path, res.Bytes)

			case "play":
				if arg == "" {
					fmt.Println("usage: play <file>")
					continue
				}
				if err := controller.Start(destPath(cfg, arg)); err != nil {
					fmt.Println("error:", err)
				}

			case "stop":
				controller.Stop()

			default:
				fmt.Println("unknown command:", op)
			}
		}
	},
}
