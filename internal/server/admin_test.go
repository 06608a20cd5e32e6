package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunevault/internal/catalog"
	"tunevault/internal/storage"
)

func newTestAdmin(t *testing.T, withStore bool) *Admin {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.mp3"), []byte("x"), 0o644))

	var store *storage.Store
	if withStore {
		var err error
		store, err = storage.Open(filepath.Join(t.TempDir(), "audit.db"))
		require.NoError(t, err)
	}
	return NewAdmin(catalog.New(dir, ".mp3", zerolog.Nop()), store, false)
}

func adminGet(t *testing.T, a *Admin, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	a.Handler().ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestAdminHealth(t *testing.T) {
	w, body := adminGet(t, newTestAdmin(t, false), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAdminFilesSnapshotCached(t *testing.T) {
	a := newTestAdmin(t, false)

	w, body := adminGet(t, a, "/api/files")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["cached"])
	assert.Len(t, body["files"], 1)

	_, body = adminGet(t, a, "/api/files")
	assert.Equal(t, true, body["cached"])
}

func TestAdminTransfersWithoutStore(t *testing.T) {
	w, _ := adminGet(t, newTestAdmin(t, false), "/api/transfers")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminStats(t *testing.T) {
	a := newTestAdmin(t, true)
	require.NoError(t, a.store.Record(&storage.TransferRecord{
		Operation: "DOWNLOAD", BytesSent: 123, Status: storage.StatusOK,
	}))

	w, body := adminGet(t, a, "/api/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["transfers"])
	assert.EqualValues(t, 123, body["bytes_sent"])
}
