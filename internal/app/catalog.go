package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/palmtrace/internal/hook"
	"github.com/ayusman/palmtrace/internal/store"
)

// runCatalog records runs in the store and fires hooks when they finish.
type runCatalog struct {
	videos    *store.VideoRepository
	runs      *store.RunRepository
	uploadDir string
	hooks     *hook.Dispatcher

	mu      sync.Mutex
	pending map[string]store.Run
}

func newRunCatalog(st *store.Store, uploadDir string, hooks *hook.Dispatcher) *runCatalog {
	return &runCatalog{
		videos:    st.Videos(),
		runs:      st.Runs(),
		uploadDir: uploadDir,
		hooks:     hooks,
		pending:   make(map[string]store.Run),
	}
}

// Create inserts the run, registering its video first when the file was
// placed in the upload directory without going through the API.
func (c *runCatalog) Create(run *store.Run) error {
	if _, err := c.videos.GetByName(run.VideoName); errors.Is(err, store.ErrNotFound) {
		if err := registerUpload(c.videos, filepath.Join(c.uploadDir, run.VideoName)); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if err := c.runs.Create(run); err != nil {
		return err
	}

	c.mu.Lock()
	c.pending[run.ID] = *run
	c.mu.Unlock()
	return nil
}

func (c *runCatalog) UpdateProgress(id string, processed int) error {
	return c.runs.UpdateProgress(id, processed)
}

// Finish records the outcome and dispatches run.completed or run.failed.
func (c *runCatalog) Finish(id string, status store.RunStatus, processed int, errMsg string) error {
	err := c.runs.Finish(id, status, processed, errMsg)

	c.mu.Lock()
	run, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if ok && c.hooks != nil {
		eventType := hook.RunCompleted
		if status != store.RunCompleted {
			eventType = hook.RunFailed
		}
		c.hooks.Dispatch(hook.Event{
			Type:            eventType,
			RunID:           id,
			Video:           run.VideoName,
			Status:          string(status),
			ProcessedFrames: processed,
			OutputDir:       run.OutputDir,
			Error:           errMsg,
			FinishedAt:      time.Now().UTC(),
		})
	}
	return err
}

// syncUploads registers video files in dir that the catalog does not know.
// It returns how many were added.
func syncUploads(dir string, videos *store.VideoRepository) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	added := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".mp4") {
			continue
		}
		if _, err := videos.GetByName(name); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return added, err
		}
		if err := registerUpload(videos, filepath.Join(dir, name)); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func registerUpload(videos *store.VideoRepository, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return videos.Upsert(&store.Video{
		Name:      filepath.Base(path),
		Path:      path,
		SizeBytes: info.Size(),
	})
}
