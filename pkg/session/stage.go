package session

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

// DirStager copies zip entries into Dir/<session id>/ so the backend sees
// plain files. File sources are used in place.
type DirStager struct {
	Dir     string
	Options []progress.Option
}

// NewDirStager creates a stager rooted at dir
func NewDirStager(dir string, opts ...progress.Option) *DirStager {
	return &DirStager{Dir: dir, Options: opts}
}

func (s *DirStager) sessionDir(sessionID string) string {
	return filepath.Join(s.Dir, sessionID)
}

// Stage returns one path per entity, in the same order
func (s *DirStager) Stage(ctx context.Context, sessionID string, entities []entity.SelectableEntity, sink progress.Sink) ([]string, error) {
	if sink == nil {
		sink = progress.Discard
	}
	paths := make([]string, len(entities))
	for i, e := range entities {
		in, err := entity.AsInstallable(e.App)
		if err != nil {
			return nil, err
		}

		part := weighted(sink, i, len(entities))
		switch src := in.DataSource().(type) {
		case entity.FileSource:
			if _, err := os.Stat(src.Path); err != nil {
				return nil, fmt.Errorf("stage %s: %w", src.Path, err)
			}
			paths[i] = src.Path
			part.Progress(progress.Progress{Fraction: 1})
		case entity.ZipEntrySource:
			dst := filepath.Join(s.sessionDir(sessionID), fmt.Sprintf("%d-%s", i, path.Base(src.Entry)))
			if err := s.extract(ctx, src, dst, part); err != nil {
				return nil, err
			}
			paths[i] = dst
		default:
			return nil, fmt.Errorf("stage %s: unsupported source %T", e.App.PackageName(), src)
		}
	}
	return paths, nil
}

func (s *DirStager) extract(ctx context.Context, src entity.ZipEntrySource, dst string, sink progress.Sink) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	archive, err := zip.OpenReader(src.Archive)
	if err != nil {
		return fmt.Errorf("open %s: %w", src.Archive, err)
	}
	defer archive.Close()

	var file *zip.File
	for _, f := range archive.File {
		if f.Name == src.Entry {
			file = f
			break
		}
	}
	if file == nil {
		return fmt.Errorf("entry %s not found in %s", src.Entry, src.Archive)
	}

	size := int64(file.UncompressedSize64)
	if file.Method == zip.Store {
		// stored entries are a plain byte range of the archive
		offset, err := file.DataOffset()
		if err != nil {
			return fmt.Errorf("locate %s: %w", src, err)
		}
		_, err = progress.CopyFile(ctx, dst, src.Archive, offset, size, sink, s.Options...)
		return err
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer rc.Close()
	_, err = progress.StreamFile(ctx, dst, rc, size, sink, s.Options...)
	return err
}

// Cleanup removes everything staged for the session
func (s *DirStager) Cleanup(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return os.RemoveAll(s.sessionDir(sessionID))
}

// weighted scales the progress of part index out of count into the
// fraction of the whole
func weighted(sink progress.Sink, index, count int) progress.Sink {
	return progress.SinkFunc(func(p progress.Progress) {
		if !p.Indeterminate {
			p.Fraction = (float64(index) + p.Fraction) / float64(count)
		}
		sink.Progress(p)
	})
}
