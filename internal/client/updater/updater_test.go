package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSkipsDevBuilds(t *testing.T) {
	up, err := Check(context.Background(), "dev")
	require.NoError(t, err)
	assert.Nil(t, up)
}

func TestChecksumFor(t *testing.T) {
	manifest := []byte(
		"aaaa  tunevault-linux-amd64\n" +
			"bbbb  tunevault-darwin-arm64\n")

	sum, err := checksumFor(manifest, "tunevault-darwin-arm64")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", sum)

	_, err = checksumFor(manifest, "tunevault-windows-amd64.exe")
	assert.Error(t, err)
}

func TestDownloadRetriesThenFails(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 3, hits)
}

func TestDownloadSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	body, err := download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), body)
}

func TestApplyRequiresSigningKey(t *testing.T) {
	err := Apply(context.Background(), &Update{Version: "v1.0.0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
