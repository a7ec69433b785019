package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

// StdinSource is the source name that reads the package from standard input
const StdinSource = "-"

// knownExtensions are the files a directory source expands to
var knownExtensions = map[string]bool{
	".apk":  true,
	".apks": true,
	".apkm": true,
	".xapk": true,
	".zip":  true,
}

// SourceResolver accepts local files, directories, http(s) URLs and
// standard input. Everything that is not already a local file is
// downloaded into Dir/<session id>/.
type SourceResolver struct {
	Dir    string
	Client *http.Client
	Stdin  io.Reader
}

// NewSourceResolver creates a resolver downloading into dir
func NewSourceResolver(dir string) *SourceResolver {
	return &SourceResolver{
		Dir:    dir,
		Client: &http.Client{Timeout: 30 * time.Minute},
		Stdin:  os.Stdin,
	}
}

// Resolve returns local paths in source order. A directory expands to its
// package files sorted by name.
func (r *SourceResolver) Resolve(ctx context.Context, sessionID string, sources []string, sink progress.Sink) ([]string, error) {
	if sink == nil {
		sink = progress.Discard
	}
	var paths []string
	for i, source := range sources {
		part := weighted(sink, i, len(sources))
		resolved, err := r.resolveOne(ctx, sessionID, i, source, part)
		if err != nil {
			return nil, err
		}
		paths = append(paths, resolved...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no package files found in %s", strings.Join(sources, ", "))
	}
	return paths, nil
}

func (r *SourceResolver) resolveOne(ctx context.Context, sessionID string, index int, source string, sink progress.Sink) ([]string, error) {
	switch {
	case source == StdinSource:
		if r.Stdin == nil {
			return nil, fmt.Errorf("standard input is not available")
		}
		dst := r.target(sessionID, index, "stdin.apk")
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, fmt.Errorf("create download directory: %w", err)
		}
		if _, err := progress.StreamFile(ctx, dst, r.Stdin, -1, sink); err != nil {
			return nil, fmt.Errorf("read standard input: %w", err)
		}
		return []string{dst}, nil
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		dst, err := r.download(ctx, sessionID, index, source, sink)
		if err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", source, err)
	}
	if !info.IsDir() {
		sink.Progress(progress.Progress{Fraction: 1})
		return []string{source}, nil
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", source, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !knownExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		files = append(files, filepath.Join(source, entry.Name()))
	}
	sort.Strings(files)
	sink.Progress(progress.Progress{Fraction: 1})
	return files, nil
}

// Cleanup removes the downloads of the session. Local sources are never
// touched.
func (r *SourceResolver) Cleanup(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(r.Dir, sessionID))
}

func (r *SourceResolver) target(sessionID string, index int, name string) string {
	return filepath.Join(r.Dir, sessionID, "sources", fmt.Sprintf("%d-%s", index, name))
}

func (r *SourceResolver) download(ctx context.Context, sessionID string, index int, rawURL string, sink progress.Sink) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s failed with status: %s", rawURL, resp.Status)
	}

	dst := r.target(sessionID, index, downloadName(rawURL))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	if _, err := progress.StreamFile(ctx, dst, resp.Body, resp.ContentLength, sink); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", rawURL, err)
	}
	return dst, nil
}

// downloadName picks a file name for a URL, keeping a known extension
func downloadName(rawURL string) string {
	name := "download.apk"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			name = base
		}
	}
	if !knownExtensions[strings.ToLower(filepath.Ext(name))] {
		name += ".apk"
	}
	return name
}
