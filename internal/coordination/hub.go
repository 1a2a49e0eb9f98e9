// Package coordination wires the orchestration core together for a single
// process: one bus, one registry, one decomposer, and a delegation manager
// per attached agent. The Hub is constructed once at startup and passed to
// every component that needs it; there is no global mutable state.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/decompose"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/delegate"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/registry"
)

// HubAgentID is the identity the Hub uses for its own delegations. Replies
// to hub-dispatched subtasks arrive on bus.ResultTopic(HubAgentID).
const HubAgentID = "hub"

// Agent is what the Hub needs from an attachable agent implementation:
// the registry contract plus the task handlers the agent supports.
type Agent interface {
	registry.Agent
	// TaskHandlers returns one handler per supported task type.
	TaskHandlers() map[string]delegate.TaskHandler
}

// Hub owns the lifecycle of the orchestration core's components.
type Hub struct {
	b          *bus.Bus
	reg        *registry.Registry
	decomposer *decompose.Decomposer
	logger     *logging.Logger
	timeout    time.Duration

	mu       sync.Mutex
	managers map[string]*delegate.Manager
	self     *delegate.Manager
	closed   bool
}

// NewHub creates a Hub with a fresh bus, registry, and decomposer.
func NewHub(opts ...Option) *Hub {
	hc := &hubConfig{
		timeout:   30 * time.Second,
		cacheSize: -1,
	}
	for _, opt := range opts {
		opt(hc)
	}

	busOpts := []bus.Option{bus.WithLogger(hc.logger)}
	if hc.queueSize > 0 {
		busOpts = append(busOpts, bus.WithQueueSize(hc.queueSize))
	}

	logger := hc.logger.WithComponent("hub")
	h := &Hub{
		b:        bus.New(busOpts...),
		reg:      registry.New(hc.logger),
		logger:   logger,
		timeout:  hc.timeout,
		managers: make(map[string]*delegate.Manager),
	}

	decomposeOpts := []decompose.Option{decompose.WithLogger(hc.logger)}
	if hc.cacheSize >= 0 {
		decomposeOpts = append(decomposeOpts, decompose.WithCacheSize(hc.cacheSize))
	}
	h.decomposer = decompose.New(decomposeOpts...)

	// The hub's own manager receives job results and observes heartbeats.
	h.self = delegate.NewManager(HubAgentID, h.b,
		delegate.WithLogger(hc.logger),
		delegate.WithDefaultTimeout(hc.timeout),
		delegate.WithEventObserver(h.observeAgentEvent),
	)
	return h
}

// Bus returns the hub's message bus.
func (h *Hub) Bus() *bus.Bus { return h.b }

// Registry returns the hub's agent registry.
func (h *Hub) Registry() *registry.Registry { return h.reg }

// Decomposer returns the hub's task decomposer.
func (h *Hub) Decomposer() *decompose.Decomposer { return h.decomposer }

// observeAgentEvent keeps registry health current from heartbeat broadcasts.
func (h *Hub) observeAgentEvent(event *bus.AgentEventMessage) {
	if event.Event != bus.AgentHeartbeat {
		return
	}
	data := make(map[string]any, len(event.Data)+1)
	for k, v := range event.Data {
		data[k] = v
	}
	if event.Status != "" {
		data["status"] = event.Status
	}
	h.reg.UpdateHealth(event.AgentID, data)
}

// AttachAgent registers the agent, builds its delegation manager, installs
// its task handlers, and broadcasts its initialization.
func (h *Hub) AttachAgent(agent Agent) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.New("coordination: hub is closed")
	}
	if _, exists := h.managers[agent.ID()]; exists {
		h.mu.Unlock()
		return fmt.Errorf("coordination: agent %s already attached", agent.ID())
	}

	manager := delegate.NewManager(agent.ID(), h.b,
		delegate.WithAgentType(agent.Type()),
		delegate.WithDefaultTimeout(h.timeout),
	)
	for taskType, handler := range agent.TaskHandlers() {
		manager.RegisterTaskHandler(taskType, handler)
	}
	h.managers[agent.ID()] = manager
	h.mu.Unlock()

	h.reg.Register(agent)
	manager.AnnounceEvent(bus.AgentInitialized, string(agent.Status()), nil)
	h.logger.Info("agent attached", "agent_id", agent.ID(), "agent_type", agent.Type())
	return nil
}

// DetachAgent broadcasts the agent's shutdown, closes its manager, and
// unregisters it. Unknown IDs are a no-op.
func (h *Hub) DetachAgent(agentID string) {
	h.mu.Lock()
	manager, exists := h.managers[agentID]
	delete(h.managers, agentID)
	h.mu.Unlock()

	if !exists {
		return
	}
	manager.AnnounceEvent(bus.AgentShutdown, string(registry.StatusShutdown), nil)
	manager.Close()
	h.reg.Unregister(agentID)
	h.logger.Info("agent detached", "agent_id", agentID)
}

// JobResult aggregates the per-subtask outcomes of one job run.
type JobResult struct {
	TaskType string
	Status   bus.TaskStatus
	// Results maps subtask ID to its delegation outcome.
	Results map[string]*bus.TaskResultMessage
	// Batches is the parallel execution plan the job followed.
	Batches [][]string
}

// RunJob decomposes the job, then dispatches each generation of subtasks
// concurrently through delegation to registry-selected agents. A subtask
// with no eligible agent yields a failed result but does not abort the
// remaining generations. The job status is completed when every subtask
// completed, failed when none did, and partial otherwise.
func (h *Hub) RunJob(ctx context.Context, taskType string, input map[string]any, timeout time.Duration) *JobResult {
	decomposed := h.decomposer.Decompose(taskType, input)
	batches := decomposed.ParallelBatches()

	job := &JobResult{
		TaskType: taskType,
		Results:  make(map[string]*bus.TaskResultMessage, len(decomposed.Subtasks)),
		Batches:  batches,
	}

	var mu sync.Mutex
	for _, batch := range batches {
		var wg sync.WaitGroup
		for _, subtaskID := range batch {
			subtask, ok := decomposed.Subtask(subtaskID)
			if !ok {
				continue
			}
			wg.Add(1)
			go func(st decompose.Subtask) {
				defer wg.Done()
				result := h.runSubtask(ctx, st, timeout)
				mu.Lock()
				job.Results[st.ID] = result
				mu.Unlock()
			}(subtask)
		}
		wg.Wait()
	}

	job.Status = summarize(job.Results)
	h.logger.Info("job finished",
		"task_type", taskType, "status", string(job.Status), "subtasks", len(job.Results))
	return job
}

// runSubtask selects an agent and delegates one subtask to it.
func (h *Hub) runSubtask(ctx context.Context, st decompose.Subtask, timeout time.Duration) *bus.TaskResultMessage {
	agent, err := h.reg.AgentForTask(st.Type, st.Requirements)
	if err != nil {
		h.logger.Warn("no agent for subtask", "subtask", st.ID, "task_type", st.Type)
		result := bus.NewTaskResultMessage(bus.ResultTopic(HubAgentID), st.ID, bus.StatusFailed)
		result.Err = fmt.Sprintf("no agent found for task type %q", st.Type)
		return result
	}
	return h.self.Delegate(ctx, agent.ID(), st.Type, st.Input, st.Priority, timeout)
}

// summarize folds per-subtask statuses into a job status.
func summarize(results map[string]*bus.TaskResultMessage) bus.TaskStatus {
	if len(results) == 0 {
		return bus.StatusFailed
	}
	completed := 0
	for _, r := range results {
		if r.Status == bus.StatusCompleted {
			completed++
		}
	}
	switch completed {
	case len(results):
		return bus.StatusCompleted
	case 0:
		return bus.StatusFailed
	default:
		return bus.StatusPartial
	}
}

// Close detaches every agent and tears the bus down. The hub cannot be
// reused afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	ids := make([]string, 0, len(h.managers))
	for id := range h.managers {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.DetachAgent(id)
	}
	h.self.Close()
	h.b.Clear()
}
