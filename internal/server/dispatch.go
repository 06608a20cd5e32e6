package server

import (
	"encoding/hex"
	"errors"
	"io/fs"
	"net"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"tunevault/internal/storage"
	"tunevault/pkg/protocol"
)

// serveRequest runs the request state machine for one established connection:
// a single bounded read, parse, dispatch, response, teardown. Request lines
// longer than the buffer are truncated.
func (s *Server) serveRequest(conn net.Conn, connID string, log zerolog.Logger) {
	buf := make([]byte, protocol.MaxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil {
		log.Warn().Err(err).Msg("request read failed")
		return
	}

	req, werr := protocol.ParseRequest(string(buf[:n]))
	if werr != nil {
		log.Warn().Str("request", string(buf[:n])).Int("code", werr.Code).Msg("malformed request")
		s.writeWireError(conn, werr, log)
		s.audit(log, &storage.TransferRecord{
			ConnID:     connID,
			RemoteAddr: conn.RemoteAddr().String(),
			Operation:  firstToken(string(buf[:n])),
			Status:     storage.StatusRPCError,
			Code:       werr.Code,
		})
		return
	}

	log = log.With().Str("op", req.Op).Str("arg", req.Arg).Logger()
	rec := &storage.TransferRecord{
		ConnID:     connID,
		RemoteAddr: conn.RemoteAddr().String(),
		Operation:  req.Op,
		Argument:   req.Arg,
	}

	switch req.Op {
	case protocol.OpList:
		s.handleListing(conn, s.catalog.List(), rec, log)
	case protocol.OpSearch:
		s.handleListing(conn, s.catalog.Search(req.Arg), rec, log)
	case protocol.OpDownload:
		s.handleDownload(conn, req.Arg, rec, log)
	}
}

// handleListing writes one filename line per result. End of results is
// signaled by connection close, not by an explicit terminator.
func (s *Server) handleListing(conn net.Conn, names []string, rec *storage.TransferRecord, log zerolog.Logger) {
	var sent int64
	for _, name := range names {
		n, err := conn.Write([]byte(name + "\n"))
		sent += int64(n)
		if err != nil {
			log.Warn().Err(err).Msg("listing write failed")
			rec.BytesSent = sent
			rec.Status = storage.StatusAborted
			s.audit(log, rec)
			return
		}
	}

	log.Info().Int("files", len(names)).Msg("listing served")
	rec.BytesSent = sent
	rec.Status = storage.StatusOK
	s.audit(log, rec)
}

// handleDownload streams the file followed by its digest. Open failures are
// reported to the peer as a FILEERROR with the OS error number; failures
// mid-stream can only be torn down, the peer detects them via the digest.
func (s *Server) handleDownload(conn net.Conn, name string, rec *storage.TransferRecord, log zerolog.Logger) {
	// Names are catalog entries, never paths.
	if strings.ContainsAny(name, `/\`) {
		werr := protocol.FileError(int(syscall.ENOENT))
		s.writeWireError(conn, werr, log)
		rec.Status = storage.StatusFileError
		rec.Code = werr.Code
		s.audit(log, rec)
		return
	}

	path := filepath.Join(s.catalog.Dir(), name)
	sent, digest, err := s.streamer.Stream(conn, path)
	if err != nil {
		var perr *fs.PathError
		if errors.As(err, &perr) && perr.Op == "open" {
			werr := protocol.FileError(errnoOf(err))
			log.Warn().Err(err).Msg("file open failed")
			s.writeWireError(conn, werr, log)
			rec.Status = storage.StatusFileError
			rec.Code = werr.Code
			s.audit(log, rec)
			return
		}

		log.Warn().Err(err).Int64("sent", sent).Msg("transfer aborted")
		rec.BytesSent = sent
		rec.Status = storage.StatusAborted
		s.audit(log, rec)
		return
	}

	log.Info().Int64("bytes", sent).Msg("file served")
	rec.BytesSent = sent
	rec.Digest = hex.EncodeToString(digest[:])
	rec.Status = storage.StatusOK
	s.audit(log, rec)
}

func (s *Server) writeWireError(conn net.Conn, werr *protocol.WireError, log zerolog.Logger) {
	if _, err := conn.Write(werr.Encode()); err != nil {
		log.Warn().Err(err).Msg("error response write failed")
	}
}

// audit records the request when the audit log is enabled. Audit failures are
// operator-visible only; they never affect the connection.
func (s *Server) audit(log zerolog.Logger, rec *storage.TransferRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.Record(rec); err != nil {
		log.Error().Err(err).Msg("audit record failed")
	}
}

// errnoOf extracts the OS error number for the FILEERROR wire message.
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return int(syscall.ENOENT)
	}
	if errors.Is(err, fs.ErrPermission) {
		return int(syscall.EACCES)
	}
	return int(syscall.EIO)
}

func firstToken(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
