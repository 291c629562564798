// SPDX-License-Identifier: MIT

package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, baseURL string) (*Source, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "imagenes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "imagenes", "Flyer.jpg"), []byte("jpeg-bytes"), 0o644))

	return NewSource(Config{
		PublicDir:    dir,
		BaseURL:      baseURL,
		FetchTimeout: 5 * time.Second,
	}), dir
}

func TestFetchRelativePath(t *testing.T) {
	s, _ := newTestSource(t, "")

	data, err := s.Fetch(context.Background(), "imagenes/Flyer.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestFetchBaseURLReadsDisk(t *testing.T) {
	s, _ := newTestSource(t, "https://panel.example.com")

	data, err := s.Fetch(context.Background(), "https://panel.example.com/public/imagenes/Flyer.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestFetchMissingFileIsNilNil(t *testing.T) {
	s, _ := newTestSource(t, "")

	data, err := s.Fetch(context.Background(), "imagenes/no-such.jpg")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFetchEmptyLocator(t *testing.T) {
	s, _ := newTestSource(t, "")

	data, err := s.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFetchEscapesAreConfined(t *testing.T) {
	s, dir := newTestSource(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("secret"), 0o644))

	data, err := s.Fetch(context.Background(), "../secret.txt")
	require.NoError(t, err)
	assert.Nil(t, data, "traversal outside the public dir resolves to a missing file")
}

func TestFetchHTTP(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	s, _ := newTestSource(t, "")
	data, err := s.Fetch(context.Background(), srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote-bytes"), data)
	assert.Contains(t, gotUA, "Mozilla/5.0")
}

func TestFetchHTTPNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, _ := newTestSource(t, "")
	data, err := s.Fetch(context.Background(), srv.URL+"/gone.png")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFetchHTTPServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := newTestSource(t, "")
	_, err := s.Fetch(context.Background(), srv.URL+"/img.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}
