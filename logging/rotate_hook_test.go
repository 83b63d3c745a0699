package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileHook_WritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.log")
	hook, err := NewRotatingFileHook(path, 1<<20, 1<<10)
	require.NoError(t, err)
	defer hook.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(hook)
	log.Info("node a transitioned online")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "node a transitioned online"))
}

func TestRotatingFileHook_TruncatesHeadWhenOverMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0644))

	hook, err := NewRotatingFileHook(path, 50, 40)
	require.NoError(t, err)
	defer hook.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(hook)
	log.Info("after truncation")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 60, strings.Count(string(data), "x"), "head-truncation must discard exactly the oldest 40 bytes of the 100-byte file")
	assert.True(t, strings.Contains(string(data), "after truncation"))
}
