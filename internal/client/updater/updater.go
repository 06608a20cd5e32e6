// Package updater checks GitHub releases for a newer client build and
// replaces the running binary after verifying a signed checksum manifest.
package updater

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// SigningKeyBase64 is the release signing public key, set via ldflags.
var SigningKeyBase64 = ""

// Repo is the GitHub repository checked for releases.
var Repo = "tunevault/tunevault"

var httpClient = &http.Client{Timeout: 30 * time.Second}

type release struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// Update describes an available newer release.
type Update struct {
	Version   string
	AssetName string
	AssetURL  string
}

// Check queries the latest release. It returns nil when the running build is
// current; dev builds never update.
func Check(ctx context.Context, currentVersion string) (*Update, error) {
	if strings.HasPrefix(currentVersion, "dev") {
		return nil, nil
	}

	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", Repo)
	body, status, err := fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("check releases: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %d", status)
	}

	var rel release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("parse release: %w", err)
	}
	if rel.TagName == "" || rel.TagName == currentVersion {
		return nil, nil
	}

	want := assetName()
	for _, a := range rel.Assets {
		if a.Name == want {
			return &Update{Version: rel.TagName, AssetName: a.Name, AssetURL: a.BrowserDownloadURL}, nil
		}
	}
	return nil, nil
}

func assetName() string {
	name := "tunevault-" + runtime.GOOS + "-" + runtime.GOARCH
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// Apply downloads the release asset, verifies it against the signed checksum
// manifest and swaps it in place of the running executable. The caller must
// restart afterwards.
func Apply(ctx context.Context, up *Update) error {
	if SigningKeyBase64 == "" {
		return fmt.Errorf("update verification not configured")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(SigningKeyBase64)
	if err != nil || len(keyBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid signing key")
	}

	baseURL := strings.TrimSuffix(up.AssetURL, up.AssetName)
	manifest, err := download(ctx, baseURL+"checksums.txt")
	if err != nil {
		return fmt.Errorf("download checksums: %w", err)
	}
	sig, err := download(ctx, baseURL+"checksums.sig")
	if err != nil {
		return fmt.Errorf("download signature: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(keyBytes), manifest, sig) {
		return fmt.Errorf("signature verification failed, update rejected")
	}

	wantSum, err := checksumFor(manifest, up.AssetName)
	if err != nil {
		return err
	}

	binary, err := download(ctx, up.AssetURL)
	if err != nil {
		return fmt.Errorf("download binary: %w", err)
	}
	sum := sha256.Sum256(binary)
	if hex.EncodeToString(sum[:]) != wantSum {
		return fmt.Errorf("checksum mismatch for %s", up.AssetName)
	}

	execPath, err := os.Executable()
	if err != nil {
		return err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return err
	}
	return install(execPath, binary)
}

// install writes the new binary next to the old one and renames it into
// place so the swap is atomic.
func install(execPath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(execPath), "tunevault-update-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	tmp.Close()

	if err := os.Chmod(tmpPath, 0o755); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, execPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// download retries transient failures with a linear backoff.
func download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		body, status, err := fetch(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("HTTP %d", status)
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("download failed after 3 attempts: %w", lastErr)
}

func fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "tunevault-client")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// checksumFor extracts the hash for filename from a "hash  filename" manifest.
func checksumFor(manifest []byte, filename string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(manifest)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[len(fields)-1] == filename {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("checksum not found for %s", filename)
}
