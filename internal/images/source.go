// SPDX-License-Identifier: MIT

// Package images resolves template image locators to raw bytes, from the
// local public directory or over HTTP.
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

	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/log"
)

// Some image hosts reject requests without a browser user agent.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Config tunes locator resolution.
type Config struct {
	// PublicDir is the root for relative locators.
	PublicDir string
	// BaseURL maps "<BaseURL>/public/<path>" locators back to PublicDir.
	BaseURL string
	// FetchTimeout bounds HTTP downloads.
	FetchTimeout time.Duration
}

// Source fetches image bytes for a locator. A missing resource yields
// (nil, nil); callers decide whether that aborts the send.
type Source struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewSource creates an image source.
func NewSource(cfg Config) *Source {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.WithComponent("images"),
	}
}

// Fetch resolves a locator to image bytes. Three locator shapes are
// understood: a public URL under this daemon's own BaseURL (read from
// disk, not round-tripped), an http(s) URL (downloaded), and a bare
// relative path under the public directory.
func (s *Source) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" {
		return nil, nil
	}

	if prefix := s.cfg.BaseURL + "/public/"; s.cfg.BaseURL != "" && strings.HasPrefix(locator, prefix) {
		return s.readLocal(strings.TrimPrefix(locator, prefix))
	}
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return s.download(ctx, locator)
	}
	return s.readLocal(locator)
}

func (s *Source) readLocal(rel string) ([]byte, error) {
	full := filepath.Join(s.cfg.PublicDir, filepath.Clean("/"+rel))
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		s.logger.Warn().Str("path", full).Msg("image not found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("images: read %s: %w", full, err)
	}
	return data, nil
}

func (s *Source) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("images: build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("images: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		s.logger.Warn().Str("url", url).Msg("image not found")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("images: fetch %s: HTTP %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("images: read body: %w", err)
	}
	return data, nil
}
