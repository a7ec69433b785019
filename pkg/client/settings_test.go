package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSettings(t *testing.T) {
	runner := (&fakeRunner{}).on("-s R58M shell am start", "Starting: Intent { act=android.settings.APPLICATION_DEVELOPMENT_SETTINGS }\n", nil)
	a := newTestADB(runner, Options{})

	require.NoError(t, a.OpenSettings(context.Background(), "developer"))
	assert.Equal(t, []string{"-s R58M shell am start -a android.settings.APPLICATION_DEVELOPMENT_SETTINGS"}, runner.history())
	assert.Error(t, a.OpenSettings(context.Background(), "nowhere"))
}

func TestCaptureLogs(t *testing.T) {
	logcat := "10-14 10:00:00.000 1000 1100 I PackageManager: Installing com.a\n" +
		"10-14 10:00:01.000 1000 1100 W PackageManager: Downgrade detected for com.a\n" +
		"10-14 10:00:02.000 1000 1100 I PackageInstaller: Session 12 for com.b\n"
	runner := (&fakeRunner{}).on("-s R58M logcat -d -s", logcat, nil)
	a := newTestADB(runner, Options{})

	out := filepath.Join(t.TempDir(), "logs", "failure.log")
	res, err := a.CaptureLogs(context.Background(), LogCaptureOptions{PackageName: "com.a", Level: "w", OutputPath: out})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Lines)
	assert.Equal(t, "W", res.Level)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "com.b")
	assert.Contains(t, runner.history()[0], "PackageManager:W")

	_, err = a.CaptureLogs(context.Background(), LogCaptureOptions{Level: "Q", OutputPath: out})
	assert.Error(t, err)
}
