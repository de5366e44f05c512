// Package images downloads request attachments to local disk so the agent
// can read them from the working directory.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/patchbot/internal/ports/secondary"
)

const (
	// Attachments larger than this are rejected rather than truncated.
	maxImageBytes = 20 * 1024 * 1024

	fetchTimeout = 30 * time.Second
)

// Fetcher downloads image attachments over HTTP.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a bounded-timeout client.
func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// Fetch downloads each ref into destDir and returns the local paths, in
// input order. Any single failure aborts the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, refs []secondary.ImageRef, destDir string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	paths := make([]string, 0, len(refs))
	for i, ref := range refs {
		path, err := f.fetchOne(ctx, ref, destDir, i)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, ref secondary.ImageRef, destDir string, index int) (string, error) {
	if !strings.HasPrefix(ref.MimeType, "image/") {
		return "", fmt.Errorf("attachment %q is not an image (%s)", ref.Filename, ref.MimeType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %q: %w", ref.Filename, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %q: %w", ref.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %q: status %s", ref.Filename, resp.Status)
	}

	path := filepath.Join(destDir, sanitizeFilename(ref.Filename, index))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to write %q: %w", path, err)
	}
	if n > maxImageBytes {
		os.Remove(path)
		return "", fmt.Errorf("attachment %q exceeds %d bytes", ref.Filename, maxImageBytes)
	}
	return path, nil
}

// sanitizeFilename strips path components and anything that could escape
// the destination directory. Empty names fall back to an indexed default.
func sanitizeFilename(name string, index int) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." {
		return fmt.Sprintf("image-%d", index)
	}
	return name
}
