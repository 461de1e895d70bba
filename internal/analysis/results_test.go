package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/palmtrace/internal/detector"
)

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"clip.mp4":       "clip",
		"my.dance.mp4":   "my.dance",
		"noext":          "noext",
		".hidden":        ".hidden",
		"/uploads/a.mp4": "a",
	}
	for in, want := range tests {
		assert.Equal(t, want, OutputName(in), in)
	}
	assert.Equal(t, filepath.Join("results", "clip"), OutputDir("results", "clip.mp4"))
}

func TestWriteResults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ResultFile)

	hand := detector.OpenPalmLandmarks()
	records := []FrameResult{
		{FrameNumber: 0, Results: []detector.Instance{}},
		{FrameNumber: 1, Results: []detector.Instance{hand.Instance(640, 480)}},
	}

	require.NoError(t, WriteResults(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(data)
	assert.True(t, strings.HasPrefix(s, `[{"FrameNumber":0,"Results":[]},{"FrameNumber":1,"Results":[{"CategoryName":"Right"`), s)
	assert.Contains(t, s, `"WRIST":[320,`)

	got, err := ReadResults(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, records[1].Results[0].Coordinates, got[1].Results[0].Coordinates)

	// No temporary files remain next to the result.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteResults_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), ResultFile)

	require.NoError(t, WriteResults(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteResults_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ResultFile)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	require.NoError(t, WriteResults(path, []FrameResult{{FrameNumber: 0, Results: []detector.Instance{}}}))

	got, err := ReadResults(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWriteResults_MissingDir(t *testing.T) {
	err := WriteResults(filepath.Join(t.TempDir(), "nope", ResultFile), nil)
	assert.Error(t, err)
}

func TestReadResults_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), ResultFile)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := ReadResults(path)
	assert.Error(t, err)
}
