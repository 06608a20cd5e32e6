package main

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme/autocert"

	"tunevault/internal/sentry"
	"tunevault/internal/server"
	"tunevault/internal/storage"
	"tunevault/internal/tlsconf"
	"tunevault/pkg/protocol"
)

const shutdownTimeout = 30 * time.Second

// version is set via ldflags during release builds.
var version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := sentry.Init(os.Getenv("SENTRY_DSN"), version); err != nil {
		log.Warn().Err(err).Msg("sentry init failed, continuing without reporting")
	}
	defer sentry.Flush()

	port := strconv.Itoa(protocol.DefaultPort)
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	// A positional argument overrides the environment.
	if len(os.Args) > 1 {
		port = os.Args[1]
	}

	mediaDir := os.Getenv("MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = "./sample-mp3s"
	}
	suffix := os.Getenv("MEDIA_SUFFIX")
	if suffix == "" {
		suffix = ".mp3"
	}

	var maxConns int64
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatal().Str("value", v).Msg("MAX_CONNECTIONS must be an integer")
		}
		maxConns = n
	}

	// Audit log database. Empty DB_PATH disables it.
	var store *storage.Store
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		var err error
		store, err = storage.Open(dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", dbPath).Msg("failed to open audit database")
		}
	}

	tlsConfig, autocertManager, err := buildTLS(log)
	if err != nil {
		log.Fatal().Err(err).Msg("TLS setup failed")
	}

	srv := server.New(server.Config{
		Addr:           net.JoinHostPort("", port),
		MediaDir:       mediaDir,
		Suffix:         suffix,
		MaxConnections: maxConns,
	}, tlsConfig, store, log)

	if err := srv.Start(); err != nil {
		sentry.CaptureError(log, err, "listener bind failed")
		sentry.Flush()
		log.Fatal().Err(err).Msg("failed to start server")
	}

	// Optional admin HTTP API.
	var adminSrv *http.Server
	if adminAddr := os.Getenv("ADMIN_ADDR"); adminAddr != "" {
		admin := server.NewAdmin(srv.Catalog(), store, sentry.Enabled())
		adminSrv = &http.Server{
			Addr:    adminAddr,
			Handler: admin.Handler(),
		}
		go func() {
			log.Info().Str("addr", adminAddr).Msg("admin API listening")
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sentry.CaptureError(log, err, "admin server failed")
			}
		}()
	}

	// Autocert needs a plain HTTP listener on :80 for the ACME challenge.
	var challengeSrv *http.Server
	if autocertManager != nil {
		challengeSrv = &http.Server{
			Addr:    ":80",
			Handler: autocertManager.HTTPHandler(nil),
		}
		go func() {
			if err := challengeSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sentry.CaptureError(log, err, "ACME challenge server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("admin server shutdown")
		}
	}
	if challengeSrv != nil {
		if err := challengeSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("challenge server shutdown")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("shutdown complete")
}

// buildTLS selects the certificate source: static cert/key files, an
// autocert manager for DOMAIN_NAME, or nothing. Serving without TLS is
// refused outside of INSECURE_PLAINTEXT=true.
func buildTLS(log zerolog.Logger) (*tls.Config, *autocert.Manager, error) {
	certFile := os.Getenv("CERT_FILE")
	keyFile := os.Getenv("KEY_FILE")
	if certFile != "" && keyFile != "" {
		cfg, err := tlsconf.Server(certFile, keyFile)
		return cfg, nil, err
	}

	if domain := os.Getenv("DOMAIN_NAME"); domain != "" {
		log.Info().Str("domain", domain).Msg("using autocert")
		return tlsconf.Autocert(domain, os.Getenv("EMAIL"), "certs")
	}

	if os.Getenv("INSECURE_PLAINTEXT") == "true" {
		log.Warn().Msg("serving without TLS")
		return nil, nil, nil
	}
	log.Fatal().Msg("no TLS source configured: set CERT_FILE/KEY_FILE or DOMAIN_NAME")
	return nil, nil, nil
}
