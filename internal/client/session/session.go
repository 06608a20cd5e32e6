// Package session drives the client side of the transfer protocol. Every
// operation opens a fresh secure session, sends one request, consumes the
// response per the operation's framing rules, and closes the session.
package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"tunevault/pkg/protocol"
)

// DefaultMaxAttempts bounds the download retry loop.
const DefaultMaxAttempts = 3

// Config carries the manager's settings.
type Config struct {
	// ServerAddr is the host:port to dial.
	ServerAddr string

	// TLSConfig secures the session. nil dials in plaintext (tests only).
	TLSConfig *tls.Config

	// MaxAttempts caps download attempts; zero selects DefaultMaxAttempts.
	MaxAttempts int
}

// Manager opens one session per operation.
type Manager struct {
	addr        string
	maxAttempts int
	log         zerolog.Logger

	// dial is swappable for tests.
	dial func(ctx context.Context) (net.Conn, error)
}

// NewManager builds a session manager from cfg.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	m := &Manager{
		addr:        cfg.ServerAddr,
		maxAttempts: cfg.MaxAttempts,
		log:         log,
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = DefaultMaxAttempts
	}
	m.dial = func(ctx context.Context) (net.Conn, error) {
		d := &net.Dialer{}
		raw, err := d.DialContext(ctx, "tcp", m.addr)
		if err != nil {
			return nil, err
		}
		if cfg.TLSConfig == nil {
			return raw, nil
		}
		tc := tls.Client(raw, cfg.TLSConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, err
		}
		return tc, nil
	}
	return m
}

// List fetches every filename the server offers.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.listing(ctx, protocol.Request{Op: protocol.OpList})
}

// Search fetches the filenames containing term.
func (m *Manager) Search(ctx context.Context, term string) ([]string, error) {
	return m.listing(ctx, protocol.Request{Op: protocol.OpSearch, Arg: term})
}

// listing performs one LIST/SEARCH exchange: send the request, read until the
// peer closes, treat the text as newline-delimited filenames.
func (m *Manager) listing(ctx context.Context, req protocol.Request) ([]string, error) {
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write(req.Encode()); err != nil {
		return nil, &TransportError{Err: err}
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if werr, ok := protocol.ParseWireError(resp); ok {
		return nil, werr
	}

	trimmed := strings.TrimSuffix(string(resp), "\n")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// DownloadResult describes a verified download.
type DownloadResult struct {
	Path   string
	Bytes  int64
	Digest [sha256.Size]byte
}

// Download fetches name into destPath, verifying the trailing digest against
// a locally computed one. Transport faults and integrity failures are retried
// from scratch up to the attempt cap with no delay in between; errors the
// peer reported over the wire abort immediately.
func (m *Manager) Download(ctx context.Context, name, destPath string) (*DownloadResult, error) {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		res, err := m.downloadOnce(ctx, name, destPath)
		if err == nil {
			return res, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		m.log.Warn().Err(err).Int("attempt", attempt).Str("file", name).Msg("download attempt failed")
		lastErr = err
	}
	return nil, fmt.Errorf("download %s failed after %d attempts: %w", name, m.maxAttempts, lastErr)
}

// downloadOnce performs a single attempt. The response has no length prefix:
// the final 32 bytes before connection close are the digest, everything
// before them is payload. A 32-byte tail is therefore withheld from the
// output file until end-of-stream.
func (m *Manager) downloadOnce(ctx context.Context, name, destPath string) (res *DownloadResult, err error) {
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer conn.Close()

	req := protocol.Request{Op: protocol.OpDownload, Arg: name}
	if _, err := conn.Write(req.Encode()); err != nil {
		return nil, &TransportError{Err: err}
	}

	var out *os.File
	defer func() {
		if out == nil {
			return
		}
		out.Close()
		if err != nil {
			os.Remove(destPath)
		}
	}()

	h := sha256.New()
	var written int64
	var tail []byte
	buf := make([]byte, 32*1024)
	first := true

	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			if first {
				// An error response is the sole content of the stream;
				// it arrives in the first chunk or not at all.
				if werr, ok := protocol.ParseWireError(buf[:n]); ok {
					return nil, werr
				}
				first = false
			}

			tail = append(tail, buf[:n]...)
			if len(tail) > protocol.DigestSize {
				body := tail[:len(tail)-protocol.DigestSize]
				if out == nil {
					out, err = os.Create(destPath)
					if err != nil {
						out = nil
						return nil, fmt.Errorf("create %s: %w", destPath, err)
					}
				}
				if _, werr := out.Write(body); werr != nil {
					return nil, fmt.Errorf("write %s: %w", destPath, werr)
				}
				h.Write(body)
				written += int64(len(body))
				tail = tail[len(tail)-protocol.DigestSize:]
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			err = &TransportError{Err: rerr}
			return nil, err
		}
	}

	if len(tail) < protocol.DigestSize {
		err = &IntegrityError{Reason: "response shorter than a digest"}
		return nil, err
	}
	if !bytes.Equal(tail, h.Sum(nil)) {
		err = &IntegrityError{Reason: "digest mismatch"}
		return nil, err
	}

	// A payload shorter than the digest never triggered file creation.
	if out == nil {
		out, err = os.Create(destPath)
		if err != nil {
			out = nil
			return nil, fmt.Errorf("create %s: %w", destPath, err)
		}
	}

	res = &DownloadResult{Path: destPath, Bytes: written}
	copy(res.Digest[:], tail)
	m.log.Info().Str("file", name).Int64("bytes", written).Msg("download verified")
	return res, nil
}
