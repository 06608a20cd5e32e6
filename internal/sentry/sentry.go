// Package sentry reports server faults to Sentry, filtering out the
// connection noise a public TLS listener inevitably attracts.
package sentry

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// ignoredErrors are logged but never reported: scanners, bots, and normal
// client disconnects would otherwise drown real faults.
var ignoredErrors = []string{
	"acme/autocert: missing server name",              // TLS connections without SNI
	"first record does not look like a TLS handshake", // plain TCP to the TLS port
	"tls: unsupported SSLv2 handshake received",       // ancient or invalid handshake
	"host not configured",                             // SNI outside the autocert host policy
	"connection reset by peer",                        // peer vanished mid-exchange
	"EOF",                                             // peer closed without a request
	"broken pipe",                                     // write to a closed connection
	"use of closed network connection",                // operation raced with teardown
}

var enabled bool

// Init configures the global Sentry client. An empty DSN disables reporting
// entirely; CaptureError then only logs.
func Init(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		return err
	}
	enabled = true
	return nil
}

// Flush drains buffered events; call on shutdown.
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}

// Enabled reports whether a DSN was configured.
func Enabled() bool {
	return enabled
}

// shouldIgnore filters noise before it reaches Sentry.
func shouldIgnore(err error) bool {
	if err == nil {
		return true
	}

	// Socket timeouts are noise: scanners connect and never speak.
	type timeoutError interface{ Timeout() bool }
	if te, ok := err.(timeoutError); ok && te.Timeout() {
		return true
	}

	msg := err.Error()
	for _, ignored := range ignoredErrors {
		if strings.Contains(msg, ignored) {
			return true
		}
	}
	return false
}

// CaptureError logs the error and, when reporting is enabled and the error is
// not connection noise, sends it to Sentry.
func CaptureError(log zerolog.Logger, err error, message string) {
	log.Error().Err(err).Msg(message)
	if !enabled || shouldIgnore(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("message", message)
		sentry.CaptureException(err)
	})
}
