// Package cli implements the tunevault client commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tunevault/internal/client/config"
	"tunevault/internal/client/session"
	"tunevault/internal/tlsconf"
	"tunevault/pkg/protocol"
)

var rootCmd = &cobra.Command{
	Use:   "tunevault",
	Short: "A secure media catalog and transfer client",
}

// ServerAddr should be injected via ldflags. Default for dev.
var ServerAddr = "localhost:8080"

var (
	flagServer   string
	flagInsecure bool
)

func Init(serverAddr string) {
	if serverAddr != "" {
		ServerAddr = serverAddr
	}

	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server host[:port]")
	rootCmd.PersistentFlags().BoolVar(&flagInsecure, "insecure", false, "skip server certificate verification")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// withDefaultPort appends the well-known port when the argument names only a
// host.
func withDefaultPort(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return addr + ":" + strconv.Itoa(protocol.DefaultPort)
}

func hostOf(addr string) string {
	host, _, ok := strings.Cut(addr, ":")
	if !ok {
		return addr
	}
	return host
}

// newManager resolves the server address (flag, then config file, then the
// built-in default) and builds a session manager over TLS.
func newManager(log zerolog.Logger) (*session.Manager, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	addr := flagServer
	if addr == "" {
		addr = cfg.Server
	}
	if addr == "" {
		addr = ServerAddr
	}
	addr = withDefaultPort(addr)

	tlsCfg, err := tlsconf.Client(hostOf(addr), cfg.CAFile, flagInsecure || cfg.InsecureSkipVerify)
	if err != nil {
		return nil, nil, err
	}

	return session.NewManager(session.Config{
		ServerAddr: addr,
		TLSConfig:  tlsCfg,
	}, log), cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config <host[:port]>",
	Short: "Save the default server address",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		cfg.Server = args[0]
		if flagInsecure {
			cfg.InsecureSkipVerify = true
		}
		if err := config.SaveConfig(cfg); err != nil {
			log.Fatal().Err(err).Msg("save config")
		}
		path, _ := config.GetConfigPath()
		fmt.Printf("Server saved to %s\n", path)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files the server offers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		m, _, err := newManager(log)
		if err != nil {
			log.Fatal().Err(err).Msg("setup failed")
		}

		names, err := m.List(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("list failed")
		}
		printNames(names)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the server's files by name",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		m, _, err := newManager(log)
		if err != nil {
			log.Fatal().Err(err).Msg("setup failed")
		}

		names, err := m.Search(context.Background(), strings.Join(args, " "))
		if err != nil {
			log.Fatal().Err(err).Msg("search failed")
		}
		printNames(names)
	},
}

var flagOutputDir string

var downloadCmd = &cobra.Command{
	Use:   "download <filename>",
	Short: "Download a file and verify its digest",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger()
		m, cfg, err := newManager(log)
		if err != nil {
			log.Fatal().Err(err).Msg("setup failed")
		}

		name := strings.Join(args, " ")
		dest := destPath(cfg, name)

		res, err := m.Download(context.Background(), name, dest)
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("download failed")
		}
		fmt.Printf("Downloaded %s (%d bytes, digest %x)\n", res.Path, res.Bytes, res.Digest)
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "directory to write downloads into")
}

func destPath(cfg *config.Config, name string) string {
	dir := flagOutputDir
	if dir == "" {
		dir = cfg.DownloadDir
	}
	if dir == "" {
		return name
	}
	return dir + string(os.PathSeparator) + name
}

func printNames(names []string) {
	if len(names) == 0 {
		fmt.Println("(no files)")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}
