package run

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/buttond/internal/button"
	"github.com/temoto/buttond/log2"
)

var _ button.Runner = &Shell{}

func TestShellRun(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out")
	sh := NewShell(log2.NewTest(t, log2.LDebug))
	require.NoError(t, sh.Run("echo hello >"+out))
	b, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(b))

	err = sh.Run("exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit 3")
}

func TestShellStart(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out")
	// reaper goroutine may log after test end, t.Logf would panic
	sh := NewShell(nil)
	begin := time.Now()
	sh.Start("sleep 0.2; echo done >" + out)
	assert.True(t, time.Since(begin) < 150*time.Millisecond, "Start must not wait")
	require.Eventually(t, func() bool {
		b, err := ioutil.ReadFile(out)
		return err == nil && string(b) == "done\n"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestShellStartError(t *testing.T) {
	t.Parallel()

	sh := &Shell{Log: log2.NewTest(t, log2.LDebug), Shell: "/nonexistent/sh"}
	var reported error
	sh.Log.SetErrorFunc(func(err error) { reported = err })
	sh.Start("true")
	require.Error(t, reported)
	assert.Contains(t, reported.Error(), "start")
}
