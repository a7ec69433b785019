package session

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceResolverLocalAndDirectory(t *testing.T) {
	dir := t.TempDir()
	pkgDir := filepath.Join(dir, "pkgs")
	require.NoError(t, os.Mkdir(pkgDir, 0755))
	for _, name := range []string{"b.apk", "a.XAPK", "notes.txt", "c.apks"} {
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, name), []byte(name), 0644))
	}
	single := filepath.Join(dir, "single.apk")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0644))

	r := NewSourceResolver(filepath.Join(dir, "cache"))
	paths, err := r.Resolve(context.Background(), "s1", []string{single, pkgDir}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		single,
		filepath.Join(pkgDir, "a.XAPK"),
		filepath.Join(pkgDir, "b.apk"),
		filepath.Join(pkgDir, "c.apks"),
	}, paths)

	_, err = r.Resolve(context.Background(), "s1", []string{filepath.Join(dir, "missing.apk")}, nil)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0755))
	_, err = r.Resolve(context.Background(), "s1", []string{empty}, nil)
	assert.Error(t, err)
}

func TestSourceResolverDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("apk"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/missing.apk" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	r := NewSourceResolver(dir)
	r.Client = srv.Client()
	rec := &recorder{}

	paths, err := r.Resolve(context.Background(), "s1", []string{srv.URL + "/app/release.xapk"}, rec)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "s1", "sources", "0-release.xapk"), paths[0])

	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	values := rec.Values()
	require.NotEmpty(t, values)
	assert.Equal(t, 1.0, values[len(values)-1].Fraction)

	_, err = r.Resolve(context.Background(), "s1", []string{srv.URL + "/missing.apk"}, nil)
	assert.Error(t, err)
}

func TestSourceResolverStdin(t *testing.T) {
	dir := t.TempDir()
	r := NewSourceResolver(dir)
	r.Stdin = bytes.NewReader([]byte("FROM-STDIN"))

	paths, err := r.Resolve(context.Background(), "s1", []string{StdinSource}, nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "FROM-STDIN", string(got))
}

func TestSourceResolverCleanupRemovesDownloads(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local.apk")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0644))

	r := NewSourceResolver(filepath.Join(dir, "downloads"))
	r.Stdin = bytes.NewReader([]byte("FROM-STDIN"))
	paths, err := r.Resolve(context.Background(), "s1", []string{local, StdinSource}, nil)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	require.FileExists(t, paths[1])

	require.NoError(t, r.Cleanup("s1"))
	assert.NoDirExists(t, filepath.Join(dir, "downloads", "s1"))
	assert.FileExists(t, local)
	assert.NoError(t, r.Cleanup("s1"))
	assert.DirExists(t, dir)
}

func TestDownloadName(t *testing.T) {
	tests := map[string]string{
		"https://example.com/files/app.apk":        "app.apk",
		"https://example.com/files/bundle.APKM?x=1": "bundle.APKM",
		"https://example.com/get?id=42":             "get.apk",
		"https://example.com/":                      "download.apk",
	}
	for in, want := range tests {
		assert.Equal(t, want, downloadName(in), in)
	}
}
