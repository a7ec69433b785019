package session

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxxsfxyzm/installerx/pkg/entity"
	"github.com/wxxsfxyzm/installerx/pkg/models"
	"github.com/wxxsfxyzm/installerx/pkg/progress"
)

func writeZip(t *testing.T, path string, entries map[string]uint16, contents map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, method := range entries {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		require.NoError(t, err)
		_, err = fw.Write([]byte(contents[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestDirStagerStagesStoredAndDeflatedEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.apks")
	writeZip(t, archive,
		map[string]uint16{"base.apk": zip.Store, "splits/config.xxhdpi.apk": zip.Deflate},
		map[string]string{"base.apk": "STORED-BASE-PAYLOAD", "splits/config.xxhdpi.apk": "DEFLATED-SPLIT-PAYLOAD"},
	)
	plain := filepath.Join(dir, "extra.apk")
	require.NoError(t, os.WriteFile(plain, []byte("PLAIN"), 0644))

	entities := []entity.SelectableEntity{
		{App: &entity.BaseEntity{Package: "com.a", Source: entity.ZipEntrySource{Archive: archive, Entry: "base.apk"}, Container: models.DataTypeAPKS}, Selected: true},
		{App: &entity.SplitEntity{Package: "com.a", SplitName: "config.xxhdpi", Source: entity.ZipEntrySource{Archive: archive, Entry: "splits/config.xxhdpi.apk"}, Container: models.DataTypeAPKS}, Selected: true},
		{App: &entity.DexMetadataEntity{Package: "com.a", DMName: "base", Source: entity.FileSource{Path: plain}}, Selected: true},
	}

	stager := NewDirStager(filepath.Join(dir, "cache"))
	rec := &recorder{}
	paths, err := stager.Stage(context.Background(), "s1", entities, rec)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	assert.Equal(t, filepath.Join(dir, "cache", "s1", "0-base.apk"), paths[0])
	assert.Equal(t, filepath.Join(dir, "cache", "s1", "1-config.xxhdpi.apk"), paths[1])
	assert.Equal(t, plain, paths[2])

	for i, want := range []string{"STORED-BASE-PAYLOAD", "DEFLATED-SPLIT-PAYLOAD", "PLAIN"} {
		got, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	values := rec.Values()
	require.NotEmpty(t, values)
	assert.Equal(t, 1.0, values[len(values)-1].Fraction)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i].Fraction, values[i-1].Fraction)
	}

	require.NoError(t, stager.Cleanup("s1"))
	_, err = os.Stat(filepath.Join(dir, "cache", "s1"))
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, plain)
}

func TestDirStagerErrors(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.apks")
	writeZip(t, archive, map[string]uint16{"base.apk": zip.Store}, map[string]string{"base.apk": "X"})
	stager := NewDirStager(dir)

	tests := []struct {
		name string
		app  entity.AppEntity
	}{
		{"missing entry", &entity.BaseEntity{Package: "com.a", Source: entity.ZipEntrySource{Archive: archive, Entry: "nope.apk"}}},
		{"missing archive", &entity.BaseEntity{Package: "com.a", Source: entity.ZipEntrySource{Archive: filepath.Join(dir, "gone.apks"), Entry: "base.apk"}}},
		{"missing file", &entity.BaseEntity{Package: "com.a", Source: entity.FileSource{Path: filepath.Join(dir, "gone.apk")}}},
		{"collection", &entity.CollectionEntity{Package: "com.a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stager.Stage(context.Background(), "s1", []entity.SelectableEntity{{App: tt.app, Selected: true}}, nil)
			assert.Error(t, err)
		})
	}
}

// recorder keeps every emission
type recorder struct {
	mu     sync.Mutex
	values []progress.Progress
}

func (r *recorder) Progress(p progress.Progress) {
	r.mu.Lock()
	r.values = append(r.values, p)
	r.mu.Unlock()
}

func (r *recorder) Values() []progress.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Progress(nil), r.values...)
}
