// Package tlsconf builds the transport security configuration for both sides
// of a tunevault connection. The server configuration is constructed once at
// startup and shared by reference across every per-connection handshake.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"golang.org/x/crypto/acme/autocert"
)

// Server loads the pre-provisioned PEM certificate and key and returns an
// immutable TLS configuration for the listener.
func Server(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Autocert returns a TLS configuration backed by an ACME manager for domain,
// caching certificates under cacheDir. Used instead of Server when the
// deployment owns a public domain.
func Autocert(domain, email, cacheDir string) (*tls.Config, *autocert.Manager, error) {
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create cert cache dir: %w", err)
	}
	manager := &autocert.Manager{
		Cache:      autocert.DirCache(cacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
		Email:      email,
	}
	return manager.TLSConfig(), manager, nil
}

// Client builds the dialing configuration. When caFile is set the server
// certificate must chain to it; insecure skips verification entirely, which
// is how self-signed server certificates are accepted.
func Client(serverName, caFile string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecure,
		MinVersion:         tls.VersionTLS12,
	}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	cfg.InsecureSkipVerify = false
	return cfg, nil
}
