// Package delegate implements the request/reply task-delegation protocol
// layered on the message bus. Each agent owns one Manager, which listens on
// the agent's task topic, its result topic, and the shared lifecycle topic.
package delegate

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
)

// defaultTimeout bounds delegations whose caller passed no timeout.
const defaultTimeout = 30 * time.Second

// TaskHandler executes one task type on behalf of the owning agent. The
// context carries the task deadline when the request declared one.
type TaskHandler func(ctx context.Context, params map[string]any) (map[string]any, error)

// EventObserver receives agent lifecycle broadcasts seen on the bus.
type EventObserver func(*bus.AgentEventMessage)

// Manager is the communication endpoint for one agent. It delegates tasks
// to other agents, executes incoming task requests through registered
// handlers, and broadcasts lifecycle events. All shared state lives in the
// manager's own pending-request and handler tables.
type Manager struct {
	agentID   string
	agentType string
	b         *bus.Bus
	logger    *logging.Logger
	timeout   time.Duration
	observer  EventObserver

	mu       sync.Mutex
	pending  map[string]chan *bus.TaskResultMessage
	handlers map[string]TaskHandler
	closed   bool

	taskSub   string
	resultSub string
	eventSub  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithAgentType sets the agent type reported in lifecycle broadcasts.
func WithAgentType(agentType string) Option {
	return func(m *Manager) { m.agentType = agentType }
}

// WithDefaultTimeout overrides the timeout used when Delegate receives a
// non-positive timeout value.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithEventObserver registers a callback for agent lifecycle broadcasts.
// The manager's own broadcasts are not delivered to its observer.
func WithEventObserver(fn EventObserver) Option {
	return func(m *Manager) { m.observer = fn }
}

// NewManager creates the communication manager for the given agent and
// subscribes it to its task, result, and lifecycle topics.
func NewManager(agentID string, b *bus.Bus, opts ...Option) *Manager {
	m := &Manager{
		agentID:  agentID,
		b:        b,
		timeout:  defaultTimeout,
		pending:  make(map[string]chan *bus.TaskResultMessage),
		handlers: make(map[string]TaskHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("delegate").WithAgent(agentID)

	m.taskSub = b.Subscribe(bus.TaskTopic(agentID), m.handleTask)
	m.resultSub = b.Subscribe(bus.ResultTopic(agentID), m.handleResult)
	m.eventSub = b.Subscribe(bus.TopicAgentEvents, m.handleAgentEvent)
	return m
}

// AgentID returns the identifier of the agent this manager serves.
func (m *Manager) AgentID() string { return m.agentID }

// RegisterTaskHandler installs or replaces the callback for a task type.
// One callback per type.
func (m *Manager) RegisterTaskHandler(taskType string, handler TaskHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[taskType] = handler
}

// Delegate publishes a task request to the target agent and waits for the
// matching reply. The outcome is always a typed result, never an error:
// timeouts yield status "timeout", context cancellation and manager shutdown
// yield status "error". The pending request is removed exactly once in all
// paths; a reply arriving after that is silently dropped.
func (m *Manager) Delegate(ctx context.Context, target, taskType string, params map[string]any, priority int, timeout time.Duration) *bus.TaskResultMessage {
	taskID := m.newTaskID()
	replyTopic := bus.ResultTopic(m.agentID)

	ch := make(chan *bus.TaskResultMessage, 1)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errorResult(replyTopic, taskID, "delegation manager is closed")
	}
	m.pending[taskID] = ch
	m.mu.Unlock()

	msg := bus.NewTaskMessage(target, taskID, taskType, params, priority, replyTopic)
	if deadline, ok := ctx.Deadline(); ok {
		msg.Deadline = deadline
	}
	m.b.Publish(msg)
	m.logger.Debug("task delegated",
		"task_id", taskID, "target", target, "task_type", taskType)

	if timeout <= 0 {
		timeout = m.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		return result
	case <-timer.C:
		m.removePending(taskID)
		// A reply may have been buffered between the timer firing and the
		// removal; prefer it over reporting a timeout.
		select {
		case result := <-ch:
			return result
		default:
		}
		m.logger.Debug("delegation timed out", "task_id", taskID, "target", target)
		result := bus.NewTaskResultMessage(replyTopic, taskID, bus.StatusTimeout)
		result.Err = fmt.Sprintf("no reply from %s within %s", target, timeout)
		return result
	case <-ctx.Done():
		m.removePending(taskID)
		select {
		case result := <-ch:
			return result
		default:
		}
		return errorResult(replyTopic, taskID, ctx.Err().Error())
	}
}

// AnnounceEvent broadcasts an agent lifecycle event on the shared topic.
func (m *Manager) AnnounceEvent(event bus.AgentEventType, status string, data map[string]any) {
	m.b.Publish(bus.NewAgentEventMessage(m.agentID, event, m.agentType, status, data))
}

// Heartbeat broadcasts a heartbeat event carrying the given health data.
func (m *Manager) Heartbeat(status string, data map[string]any) {
	m.AnnounceEvent(bus.AgentHeartbeat, status, data)
}

// Close unsubscribes the manager from its topics and fails every pending
// request. Further delegations return an error result immediately.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := m.pending
	m.pending = make(map[string]chan *bus.TaskResultMessage)
	m.mu.Unlock()

	m.b.Unsubscribe(bus.TaskTopic(m.agentID), m.taskSub)
	m.b.Unsubscribe(bus.ResultTopic(m.agentID), m.resultSub)
	m.b.Unsubscribe(bus.TopicAgentEvents, m.eventSub)

	replyTopic := bus.ResultTopic(m.agentID)
	for taskID, ch := range pending {
		ch <- errorResult(replyTopic, taskID, "delegation manager closed")
	}
}

// handleTask executes an incoming task request and publishes the outcome to
// the request's reply topic. An unsupported task type yields an immediate
// failed result; handler errors and panics are logged and converted to
// failed results, never re-raised.
func (m *Manager) handleTask(msg bus.Message) {
	task, ok := msg.(*bus.TaskMessage)
	if !ok {
		return
	}

	m.mu.Lock()
	handler := m.handlers[task.TaskType]
	m.mu.Unlock()

	if handler == nil {
		m.logger.Warn("received unsupported task type",
			"task_id", task.TaskID, "task_type", task.TaskType)
		m.reply(task, func(result *bus.TaskResultMessage) {
			result.Status = bus.StatusFailed
			result.Err = fmt.Sprintf("agent %s does not support task type %q", m.agentID, task.TaskType)
		})
		return
	}

	ctx := context.Background()
	if !task.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}

	start := time.Now()
	output, err := m.invoke(ctx, handler, task.Params)
	duration := time.Since(start)

	m.reply(task, func(result *bus.TaskResultMessage) {
		result.Metrics = map[string]float64{
			"duration_seconds": duration.Seconds(),
		}
		if err != nil {
			m.logger.Warn("task handler failed",
				"task_id", task.TaskID, "task_type", task.TaskType, "error", err.Error())
			result.Status = bus.StatusFailed
			result.Err = err.Error()
			return
		}
		result.Status = bus.StatusCompleted
		result.Result = output
	})
}

// invoke runs the handler with panic recovery, converting panics to errors.
func (m *Manager) invoke(ctx context.Context, handler TaskHandler, params map[string]any) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
			m.logger.Error("task handler panicked",
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	return handler(ctx, params)
}

// reply builds and publishes a result for a task request. Requests without
// a reply topic produce no reply.
func (m *Manager) reply(task *bus.TaskMessage, fill func(*bus.TaskResultMessage)) {
	if task.ReplyTopic == "" {
		return
	}
	result := bus.NewTaskResultMessage(task.ReplyTopic, task.TaskID, bus.StatusCompleted)
	fill(result)
	m.b.Publish(result)
}

// handleResult matches an incoming reply to its pending request. A request
// can resolve at most once; replies for unknown task IDs (e.g. already timed
// out) are dropped without error.
func (m *Manager) handleResult(msg bus.Message) {
	result, ok := msg.(*bus.TaskResultMessage)
	if !ok {
		return
	}

	m.mu.Lock()
	ch, found := m.pending[result.TaskID]
	if found {
		delete(m.pending, result.TaskID)
	}
	m.mu.Unlock()

	if !found {
		m.logger.Debug("dropping reply with no pending request", "task_id", result.TaskID)
		return
	}
	ch <- result
}

// handleAgentEvent forwards lifecycle broadcasts to the observer, skipping
// the manager's own announcements.
func (m *Manager) handleAgentEvent(msg bus.Message) {
	event, ok := msg.(*bus.AgentEventMessage)
	if !ok || event.AgentID == m.agentID {
		return
	}
	if m.observer != nil {
		m.observer(event)
	}
}

// removePending discards the pending-request entry for a task ID.
func (m *Manager) removePending(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, taskID)
}

// newTaskID builds a per-caller unique task identifier. The millisecond
// timestamp keeps IDs roughly sortable; the random suffix guards against
// collisions when one caller delegates repeatedly within the same
// millisecond.
func (m *Manager) newTaskID() string {
	return fmt.Sprintf("%s-%d-%s", m.agentID, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// errorResult builds a result with status "error".
func errorResult(replyTopic, taskID, errText string) *bus.TaskResultMessage {
	result := bus.NewTaskResultMessage(replyTopic, taskID, bus.StatusError)
	result.Err = errText
	return result
}
