// Package agent provides a basic in-process agent implementation satisfying
// the registry and coordination contracts. Production deployments supply
// their own agents; this one backs the CLI demo and tests.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/delegate"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/registry"
)

// Worker is a thread-safe agent that executes registered task handlers and
// maintains the status and counters the registry's scoring reads.
type Worker struct {
	id   string
	typ  string
	caps map[registry.Capability]struct{}

	mu       sync.Mutex
	status   registry.Status
	handlers map[string]delegate.TaskHandler
	stats    registry.Stats
	totalDur float64
}

// NewWorker creates an idle worker with the given identity and capabilities.
func NewWorker(id, agentType string, caps ...registry.Capability) *Worker {
	capSet := make(map[registry.Capability]struct{}, len(caps))
	for _, c := range caps {
		capSet[c] = struct{}{}
	}
	return &Worker{
		id:       id,
		typ:      agentType,
		caps:     capSet,
		status:   registry.StatusIdle,
		handlers: make(map[string]delegate.TaskHandler),
	}
}

// Handle registers a task handler for the given task type and returns the
// worker for chaining.
func (w *Worker) Handle(taskType string, handler delegate.TaskHandler) *Worker {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = handler
	return w
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// Type returns the worker's agent type.
func (w *Worker) Type() string { return w.typ }

// Capabilities returns the worker's declared capability set.
func (w *Worker) Capabilities() []registry.Capability {
	caps := make([]registry.Capability, 0, len(w.caps))
	for c := range w.caps {
		caps = append(caps, c)
	}
	return caps
}

// Status returns the worker's current availability state.
func (w *Worker) Status() registry.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// SetStatus overrides the worker's availability state.
func (w *Worker) SetStatus(status registry.Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
}

// Stats returns the counters used for assignment scoring.
func (w *Worker) Stats() registry.Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// CanHandle reports whether the worker supports the task type and satisfies
// a "capability" requirement when one is present.
func (w *Worker) CanHandle(taskType string, requirements map[string]any) bool {
	w.mu.Lock()
	_, supported := w.handlers[taskType]
	w.mu.Unlock()
	if !supported {
		return false
	}

	if req, ok := requirements["capability"].(string); ok && req != "" {
		if _, has := w.caps[registry.Capability(req)]; !has {
			return false
		}
	}
	return true
}

// TaskHandlers returns the worker's handlers wrapped with status and
// counter bookkeeping, so delegation outcomes feed back into scoring.
func (w *Worker) TaskHandlers() map[string]delegate.TaskHandler {
	w.mu.Lock()
	defer w.mu.Unlock()

	wrapped := make(map[string]delegate.TaskHandler, len(w.handlers))
	for taskType, handler := range w.handlers {
		wrapped[taskType] = w.instrument(handler)
	}
	return wrapped
}

// instrument tracks one task execution through the worker's counters.
func (w *Worker) instrument(handler delegate.TaskHandler) delegate.TaskHandler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		w.taskStarted()
		start := time.Now()
		output, err := handler(ctx, params)
		w.taskFinished(time.Since(start), err == nil)
		return output, err
	}
}

func (w *Worker) taskStarted() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.CurrentTaskCount++
	if w.status == registry.StatusIdle {
		w.status = registry.StatusWorking
	}
}

func (w *Worker) taskFinished(elapsed time.Duration, succeeded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.CurrentTaskCount--
	w.stats.TasksAttempted++
	if succeeded {
		w.stats.TasksSucceeded++
	}
	w.totalDur += elapsed.Seconds()
	w.stats.AvgTaskDuration = w.totalDur / float64(w.stats.TasksAttempted)

	if w.stats.CurrentTaskCount == 0 && w.status == registry.StatusWorking {
		w.status = registry.StatusIdle
	}
}
