// Package transfer streams file contents to a peer with an appended SHA-256
// integrity digest.
package transfer

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// DefaultChunkSize is the read/write granularity of a transfer.
const DefaultChunkSize = 256

// Streamer copies files to a connection in fixed-size chunks while folding
// every transmitted byte into a running SHA-256. The finalized 32-byte digest
// is written directly after the payload with no delimiter, so it covers
// exactly the bytes the peer received, in order.
type Streamer struct {
	chunkSize int
}

// NewStreamer returns a Streamer. chunkSize <= 0 selects DefaultChunkSize.
func NewStreamer(chunkSize int) *Streamer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Streamer{chunkSize: chunkSize}
}

// Stream sends the file at path followed by its digest. It returns the number
// of payload bytes written (excluding the digest) and the digest itself.
//
// An open failure is returned unwrapped so the caller can translate the OS
// error number for the peer; nothing is written in that case. Failures after
// the first chunk leave the connection mid-payload, and the peer detects the
// truncation through the digest.
func (s *Streamer) Stream(w io.Writer, path string) (int64, [sha256.Size]byte, error) {
	var digest [sha256.Size]byte

	f, err := os.Open(path)
	if err != nil {
		return 0, digest, err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, s.chunkSize)
	var sent int64

	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return sent, digest, fmt.Errorf("write payload: %w", werr)
			}
			h.Write(buf[:n])
			sent += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return sent, digest, fmt.Errorf("read %s: %w", path, rerr)
		}
	}

	copy(digest[:], h.Sum(nil))
	if _, err := w.Write(digest[:]); err != nil {
		return sent, digest, fmt.Errorf("write digest: %w", err)
	}
	return sent, digest, nil
}
