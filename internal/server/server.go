// Package server accepts secure connections and serves the catalog-and-transfer
// protocol: one request per connection, answered and torn down by an
// independent worker.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"tunevault/internal/catalog"
	"tunevault/internal/storage"
	"tunevault/internal/transfer"
)

// Config carries the server's immutable settings.
type Config struct {
	Addr     string
	MediaDir string
	Suffix   string

	// ChunkSize is the transfer granularity; zero selects the default.
	ChunkSize int

	// MaxConnections caps concurrently served connections.
	// Zero means unlimited workers.
	MaxConnections int64

	// ReadTimeout / WriteTimeout bound per-connection socket operations.
	// Zero means blocking I/O with no deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server owns the listener and the per-connection workers.
type Server struct {
	cfg       Config
	tlsConfig *tls.Config
	catalog   *catalog.Catalog
	streamer  *transfer.Streamer
	store     *storage.Store
	log       zerolog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
}

// New builds a server. tlsConfig is constructed once by the caller and shared
// by reference across every handshake; a nil tlsConfig listens in plaintext
// (tests only). store may be nil to disable the audit log.
func New(cfg Config, tlsConfig *tls.Config, store *storage.Store, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		catalog:   catalog.New(cfg.MediaDir, cfg.Suffix, log),
		streamer:  transfer.NewStreamer(cfg.ChunkSize),
		store:     store,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxConnections)
	}
	return s
}

// Catalog exposes the server's catalog, shared with the admin API.
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// Addr returns the bound listener address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and launches the accept loop in a goroutine.
// Binding failures are fatal to the caller; everything after that is
// per-connection and survives individual faults.
func (s *Server) Start() error {
	var err error
	if s.tlsConfig != nil {
		s.listener, err = tls.Listen("tcp", s.cfg.Addr, s.tlsConfig)
	} else {
		s.listener, err = net.Listen("tcp", s.cfg.Addr)
	}
	if err != nil {
		return err
	}

	s.log.Info().
		Str("addr", s.listener.Addr().String()).
		Bool("tls", s.tlsConfig != nil).
		Int64("max_connections", s.cfg.MaxConnections).
		Msg("server listening")

	go s.acceptLoop()
	return nil
}

// acceptLoop hands every accepted connection to its own worker. Accept
// failures are logged and do not stop the loop; it exits when the listener
// closes during Shutdown.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}

		if s.sem != nil {
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				conn.Close()
				return
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			if s.sem != nil {
				defer s.sem.Release(1)
			}
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Msg("panic recovered in connection worker")
				}
			}()
			s.handleConn(c)
		}(conn)
	}
}

// Shutdown closes the listener and waits for live workers to drain, bounded
// by the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.log.Warn().Err(err).Msg("listener close")
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all connection workers drained")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown deadline reached with workers still live")
		return ctx.Err()
	}
}

// handleConn drives one connection: handshake, one request, teardown.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	log := s.log.With().
		Str("conn_id", connID).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	if tc, ok := conn.(*tls.Conn); ok {
		if err := tc.HandshakeContext(s.ctx); err != nil {
			log.Warn().Err(err).Msg("handshake failed")
			return
		}
	}

	s.serveRequest(conn, connID, log)
}
