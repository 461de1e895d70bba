// Package tray provides a system tray status icon for the PalmTrace service.
package tray

import (
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/palmtrace/internal/logger"
)

// StatusFunc reports whether an analysis is running and, if so, a short
// description of it.
type StatusFunc func() (busy bool, detail string)

// Tray represents the system tray application.
type Tray struct {
	url      string
	status   StatusFunc
	interval time.Duration
	onQuit   func()
	log      *logger.Logger
	mu       sync.RWMutex

	menuStatus *systray.MenuItem
	stop       chan struct{}
}

// New creates a Tray that opens url and polls status every interval.
func New(url string, status StatusFunc, interval time.Duration, log *logger.Logger) *Tray {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tray{
		url:      url,
		status:   status,
		interval: interval,
		log:      log.With("component", "tray"),
		stop:     make(chan struct{}),
	}
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called and must run on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("PalmTrace")
	systray.SetTooltip("PalmTrace hand trajectory analysis")

	t.menuStatus = systray.AddMenuItem(statusTitle(false, ""), "Analysis status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open PalmTrace...", "Open "+t.url+" in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit PalmTrace")

	go t.poll()

	go func() {
		for {
			select {
			case <-menuOpen.ClickedCh:
				if err := openBrowser(t.url); err != nil {
					t.log.Warn("failed to open browser", "url", t.url, "error", err)
				}
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	close(t.stop)
}

// poll refreshes the status item until the tray exits.
func (t *Tray) poll() {
	if t.status == nil {
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		busy, detail := t.status()
		t.menuStatus.SetTitle(statusTitle(busy, detail))

		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// statusTitle renders the status menu item.
func statusTitle(busy bool, detail string) string {
	if !busy {
		return "○ Idle"
	}
	if detail == "" {
		return "● Analyzing"
	}
	return "● Analyzing " + detail
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

func openBrowser(url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	return exec.Command(name, args...).Start()
}
