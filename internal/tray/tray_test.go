package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTitle(t *testing.T) {
	assert.Equal(t, "○ Idle", statusTitle(false, "ignored"))
	assert.Equal(t, "● Analyzing", statusTitle(true, ""))
	assert.Equal(t, "● Analyzing dance.mp4 (40%)", statusTitle(true, "dance.mp4 (40%)"))
}

func TestBrowserCommand(t *testing.T) {
	name, args := browserCommand("darwin", "http://localhost:8080")
	assert.Equal(t, "open", name)
	assert.Equal(t, []string{"http://localhost:8080"}, args)

	name, _ = browserCommand("linux", "http://localhost:8080")
	assert.Equal(t, "xdg-open", name)

	name, args = browserCommand("windows", "http://localhost:8080")
	assert.Equal(t, "rundll32", name)
	assert.Len(t, args, 2)
}

func TestNew_DefaultInterval(t *testing.T) {
	tr := New("http://localhost:8080", nil, 0, nil)
	assert.Equal(t, "http://localhost:8080", tr.url)
	assert.Positive(t, tr.interval)

	called := false
	tr.OnQuit(func() { called = true })
	tr.onQuit()
	assert.True(t, called)
}
