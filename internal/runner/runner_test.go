package runner

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuccessStreamsOutput(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho out-line\necho err-line 1>&2\nexit 0\n")
	r := New(script, 5*time.Second)

	var lines []LogLine
	res := r.Run(context.Background(), t.TempDir(), "task.md", func(l LogLine) {
		lines = append(lines, l)
	})

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "out-line")
	assert.Contains(t, res.Stderr, "err-line")
	assert.GreaterOrEqual(t, res.Duration, time.Duration(0))
	assert.Len(t, lines, 2)
}

func TestRunNonZeroExit(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nexit 7\n")
	r := New(script, 5*time.Second)

	res := r.Run(context.Background(), t.TempDir(), "task.md", nil)
	assert.False(t, res.Success)
	assert.Equal(t, 7, res.ExitCode)
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\nsleep 5\n")
	r := New(script, 50*time.Millisecond)

	res := r.Run(context.Background(), t.TempDir(), "task.md", nil)
	assert.False(t, res.Success)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Stderr, "timed out")
}

func TestRunLaunchFailure(t *testing.T) {
	r := New("/nonexistent/binary/xyz", 5*time.Second)
	res := r.Run(context.Background(), t.TempDir(), "task.md", nil)
	assert.False(t, res.Success)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Stderr, "failed to launch")
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/script.sh"
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
	return path
}
