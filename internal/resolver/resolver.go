package resolver

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Resolve takes an input (local directory, jar, class file, or an http(s)
// URL to a jar) and returns a local path ready for scanning. Downloaded jars
// are cached under ~/.cache/classweave/jars and reused on later runs.
func Resolve(ctx context.Context, input string, logger *slog.Logger) (string, error) {
	if !isRemote(input) {
		return resolveLocal(input, logger)
	}
	root, err := cacheRoot()
	if err != nil {
		return "", err
	}
	return fetchJar(ctx, &http.Client{Timeout: 5 * time.Minute}, root, input, logger)
}

func isRemote(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

func resolveLocal(input string, logger *slog.Logger) (string, error) {
	absPath, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("stat %s: %w", absPath, err)
	}
	logger.Info("resolved local path", "input", input, "path", absPath)
	return absPath, nil
}

func cacheRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".cache", "classweave", "jars"), nil
}

// cachePath returns a stable file name for a URL. The hash keeps distinct
// URLs apart; the base name keeps the cache readable.
func cachePath(root, url string) string {
	h := sha256.Sum256([]byte(url))
	base := path.Base(strings.SplitN(url, "?", 2)[0])
	if !strings.HasSuffix(base, ".jar") {
		base = "download.jar"
	}
	return filepath.Join(root, fmt.Sprintf("%x-%s", h[:8], base))
}

// fetchJar downloads url into root unless a cached copy already exists.
func fetchJar(ctx context.Context, client *http.Client, root, url string, logger *slog.Logger) (string, error) {
	dest := cachePath(root, url)
	if _, err := os.Stat(dest); err == nil {
		logger.Info("using cached jar", "url", url, "path", dest)
		return dest, nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	logger.Info("downloading jar", "url", url, "dest", dest)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: %s", url, resp.Status)
	}

	// Write to a temp file first so an interrupted download never leaves a
	// truncated jar in the cache.
	tmp, err := os.CreateTemp(root, ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("caching %s: %w", url, err)
	}
	logger.Info("download complete", "dest", dest, "bytes", n)
	return dest, nil
}
