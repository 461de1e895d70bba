package hook

import (
	"context"
	"sync"

	"github.com/ayusman/palmtrace/internal/logger"
)

// Dispatcher delivers events to every matching hook in the background.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(m *Manager, e *Executor, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Dispatcher{manager: m, executor: e, log: log.With("component", "hooks")}
}

// Dispatch runs the hooks subscribed to ev.Type one after another in a new
// goroutine. Failures are logged.
func (d *Dispatcher) Dispatch(ev Event) {
	hooks := d.manager.For(ev.Type)
	if len(hooks) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, h := range hooks {
			resp, err := d.executor.Execute(context.Background(), h, ev)
			switch {
			case err != nil:
				d.log.Warn("hook failed", "hook", h.Manifest.Name, "run_id", ev.RunID, "error", err)
			case !resp.Success:
				d.log.Warn("hook reported failure", "hook", h.Manifest.Name, "run_id", ev.RunID, "error", resp.Error)
			default:
				d.log.Debug("hook done", "hook", h.Manifest.Name, "run_id", ev.RunID)
			}
		}
	}()
}

// Wait blocks until dispatched hooks have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
