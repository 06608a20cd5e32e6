package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunevault/internal/storage"
	"tunevault/pkg/protocol"
)

func newTestServer(t *testing.T, store *storage.Store, files map[string][]byte) *Server {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
	}
	return New(Config{
		Addr:     "127.0.0.1:0",
		MediaDir: dir,
		Suffix:   ".mp3",
	}, nil, store, zerolog.Nop())
}

// roundTrip performs one full exchange over an in-memory connection: write
// the request line, then read the response until the server closes.
func roundTrip(t *testing.T, s *Server, request string) []byte {
	t.Helper()
	client, server := net.Pipe()
	defer client.Close()

	go s.handleConn(server)

	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := client.Write([]byte(request))
	require.NoError(t, err)

	resp, err := io.ReadAll(client)
	require.NoError(t, err)
	return resp
}

func listingLines(resp []byte) []string {
	trimmed := strings.TrimSuffix(string(resp), "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestListServesEligibleFiles(t *testing.T) {
	s := newTestServer(t, nil, map[string][]byte{
		"alpha.mp3": []byte("a"),
		"beta.mp3":  []byte("b"),
		"notes.txt": []byte("n"),
	})

	lines := listingLines(roundTrip(t, s, "LIST"))
	assert.ElementsMatch(t, []string{"alpha.mp3", "beta.mp3"}, lines)
}

func TestListEmptyDirectoryClosesCleanly(t *testing.T) {
	s := newTestServer(t, nil, nil)
	resp := roundTrip(t, s, "LIST")
	assert.Empty(t, resp)
}

func TestSearchFiltersListing(t *testing.T) {
	s := newTestServer(t, nil, map[string][]byte{
		"hey_jude.mp3":   []byte("a"),
		"jude_remix.mp3": []byte("b"),
		"let_it_be.mp3":  []byte("c"),
	})

	lines := listingLines(roundTrip(t, s, "SEARCH jude"))
	assert.ElementsMatch(t, []string{"hey_jude.mp3", "jude_remix.mp3"}, lines)
}

func TestMalformedRequests(t *testing.T) {
	s := newTestServer(t, nil, map[string][]byte{"a.mp3": []byte("a")})

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{"blank line", "\n", "RPCERROR -2"},
		{"unknown single token", "FETCH", "RPCERROR -2"},
		{"search without term", "SEARCH", "RPCERROR -2"},
		{"unknown op with argument", "COPY a.mp3", "RPCERROR -3"},
		{"list with argument", "LIST everything", "RPCERROR -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(roundTrip(t, s, tt.request)))
		})
	}
}

func TestDownloadMissingFile(t *testing.T) {
	s := newTestServer(t, nil, nil)

	resp := roundTrip(t, s, "DOWNLOAD ghost.mp3")
	werr, ok := protocol.ParseWireError(resp)
	require.True(t, ok, "response %q should be a wire error", resp)
	assert.Equal(t, protocol.KindFileError, werr.Kind)
	assert.Equal(t, int(syscall.ENOENT), werr.Code)
}

func TestDownloadRejectsPathTraversal(t *testing.T) {
	s := newTestServer(t, nil, nil)

	resp := roundTrip(t, s, "DOWNLOAD ../secret.mp3")
	werr, ok := protocol.ParseWireError(resp)
	require.True(t, ok)
	assert.Equal(t, protocol.KindFileError, werr.Kind)
}

func TestDownloadPayloadAndDigest(t *testing.T) {
	content := bytes.Repeat([]byte("s"), 10000)
	s := newTestServer(t, nil, map[string][]byte{"song.mp3": content})

	resp := roundTrip(t, s, "DOWNLOAD song.mp3")
	require.Len(t, resp, 10000+protocol.DigestSize)

	assert.Equal(t, content, resp[:10000])
	want := sha256.Sum256(content)
	assert.Equal(t, want[:], resp[10000:])
}

func TestDownloadEmptyFile(t *testing.T) {
	s := newTestServer(t, nil, map[string][]byte{"empty.mp3": {}})

	resp := roundTrip(t, s, "DOWNLOAD empty.mp3")
	require.Len(t, resp, protocol.DigestSize)
	want := sha256.Sum256(nil)
	assert.Equal(t, want[:], resp)
}

func TestDownloadNameWithSpaces(t *testing.T) {
	content := []byte("spaced content")
	s := newTestServer(t, nil, map[string][]byte{"my song.mp3": content})

	resp := roundTrip(t, s, "DOWNLOAD my song.mp3")
	require.Len(t, resp, len(content)+protocol.DigestSize)
	assert.Equal(t, content, resp[:len(content)])
}

func TestAuditRecords(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	s := newTestServer(t, store, map[string][]byte{"song.mp3": []byte("abc")})

	roundTrip(t, s, "LIST")
	roundTrip(t, s, "DOWNLOAD song.mp3")
	roundTrip(t, s, "DOWNLOAD ghost.mp3")
	roundTrip(t, s, "COPY x")

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 4)

	byStatus := map[string]int{}
	for _, rec := range records {
		byStatus[rec.Status]++
	}
	assert.Equal(t, 2, byStatus[storage.StatusOK])
	assert.Equal(t, 1, byStatus[storage.StatusFileError])
	assert.Equal(t, 1, byStatus[storage.StatusRPCError])

	// The successful download carries bytes and a digest.
	for _, rec := range records {
		if rec.Operation == protocol.OpDownload && rec.Status == storage.StatusOK {
			assert.EqualValues(t, 3, rec.BytesSent)
			assert.Len(t, rec.Digest, 64)
		}
	}
}

// TestConcurrentListings runs the full server over TCP and checks that
// concurrent LIST connections each receive an identical, non-interleaved
// listing.
func TestConcurrentListings(t *testing.T) {
	files := map[string][]byte{}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("track_%02d.mp3", i)] = []byte("x")
	}
	s := newTestServer(t, nil, files)

	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, s.Shutdown(ctx))
	}()

	addr := s.Addr().String()
	const clients = 16

	results := make([][]string, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Write([]byte("LIST")); err != nil {
				t.Errorf("write: %v", err)
				return
			}
			resp, err := io.ReadAll(conn)
			if err != nil {
				t.Errorf("read: %v", err)
				return
			}
			lines := listingLines(resp)
			sort.Strings(lines)
			results[i] = lines
		}(i)
	}
	wg.Wait()

	require.Len(t, results[0], 20)
	for i := 1; i < clients; i++ {
		assert.Equal(t, results[0], results[i], "client %d saw a different listing", i)
	}
}

func TestShutdownStopsAccepting(t *testing.T) {
	s := newTestServer(t, nil, nil)
	require.NoError(t, s.Start())
	addr := s.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}
