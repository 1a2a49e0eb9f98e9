package bus

import (
	"time"

	"github.com/google/uuid"
)

// TopicAgentEvents carries agent lifecycle broadcasts (initialized, error,
// shutdown, heartbeat) visible to every manager on the bus.
const TopicAgentEvents = "agents.event"

// TaskTopic returns the topic on which the given agent receives task requests.
func TaskTopic(agentID string) string {
	return "tasks." + agentID
}

// ResultTopic returns the topic on which the given agent receives task replies.
func ResultTopic(agentID string) string {
	return "tasks." + agentID + ".result"
}

// TaskStatus is the terminal state of a delegated task.
type TaskStatus string

const (
	// StatusCompleted indicates the task handler returned successfully.
	StatusCompleted TaskStatus = "completed"
	// StatusFailed indicates the handler returned an error, panicked, or the
	// target does not support the task type.
	StatusFailed TaskStatus = "failed"
	// StatusTimeout indicates no reply arrived within the delegation deadline.
	StatusTimeout TaskStatus = "timeout"
	// StatusPartial indicates some but not all subtasks of a job completed.
	StatusPartial TaskStatus = "partial"
	// StatusError indicates the delegation itself was interrupted, e.g. by
	// context cancellation or manager shutdown.
	StatusError TaskStatus = "error"
)

// AgentEventType identifies the kind of agent lifecycle event.
type AgentEventType string

const (
	// AgentInitialized is broadcast when an agent attaches to the bus.
	AgentInitialized AgentEventType = "initialized"
	// AgentError is broadcast when an agent enters an error state.
	AgentError AgentEventType = "error"
	// AgentShutdown is broadcast when an agent detaches from the bus.
	AgentShutdown AgentEventType = "shutdown"
	// AgentHeartbeat is broadcast periodically while an agent is alive.
	AgentHeartbeat AgentEventType = "heartbeat"
)

// Message is the envelope contract for everything delivered over the bus.
// Envelopes are in-process value objects; they define no wire format.
type Message interface {
	// MessageID returns the unique identifier of this envelope.
	MessageID() string
	// Topic returns the topic this envelope is addressed to.
	Topic() string
	// Timestamp returns when the envelope was created.
	Timestamp() time.Time
}

// BaseMessage provides common fields for all envelopes.
// Concrete envelope types embed this struct.
type BaseMessage struct {
	id        string
	topic     string
	timestamp time.Time
}

// NewBaseMessage creates a BaseMessage for the given topic with a fresh
// identifier and the current timestamp.
func NewBaseMessage(topic string) BaseMessage {
	return BaseMessage{
		id:        uuid.NewString(),
		topic:     topic,
		timestamp: time.Now(),
	}
}

// MessageID returns the unique identifier of this envelope.
func (m *BaseMessage) MessageID() string { return m.id }

// Topic returns the topic this envelope is addressed to.
func (m *BaseMessage) Topic() string { return m.topic }

// Timestamp returns when the envelope was created.
func (m *BaseMessage) Timestamp() time.Time { return m.timestamp }

// TaskMessage requests execution of a task by the agent owning the topic.
type TaskMessage struct {
	BaseMessage
	TaskID   string
	TaskType string
	Params   map[string]any
	// Priority ranges 1 (lowest) to 10 (highest); out-of-range values are
	// clamped at construction.
	Priority int
	// Deadline is optional; the zero value means no deadline.
	Deadline time.Time
	// ReplyTopic is where the receiving agent publishes its result.
	// Empty means the sender does not expect a reply.
	ReplyTopic string
}

// NewTaskMessage creates a task request addressed to the given target agent.
func NewTaskMessage(target, taskID, taskType string, params map[string]any, priority int, replyTopic string) *TaskMessage {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return &TaskMessage{
		BaseMessage: NewBaseMessage(TaskTopic(target)),
		TaskID:      taskID,
		TaskType:    taskType,
		Params:      params,
		Priority:    priority,
		ReplyTopic:  replyTopic,
	}
}

// TaskResultMessage carries the outcome of a delegated task back to the
// reply topic named in the originating TaskMessage.
type TaskResultMessage struct {
	BaseMessage
	TaskID string
	Status TaskStatus
	Result map[string]any
	// Err holds a human-readable failure description when Status is not
	// completed.
	Err string
	// Metrics holds execution measurements such as duration in seconds.
	Metrics map[string]float64
}

// NewTaskResultMessage creates a result envelope for the given reply topic.
func NewTaskResultMessage(replyTopic, taskID string, status TaskStatus) *TaskResultMessage {
	return &TaskResultMessage{
		BaseMessage: NewBaseMessage(replyTopic),
		TaskID:      taskID,
		Status:      status,
	}
}

// AgentEventMessage announces an agent lifecycle transition on
// TopicAgentEvents.
type AgentEventMessage struct {
	BaseMessage
	AgentID   string
	Event     AgentEventType
	AgentType string
	Status    string
	Data      map[string]any
}

// NewAgentEventMessage creates a lifecycle broadcast for the given agent.
func NewAgentEventMessage(agentID string, event AgentEventType, agentType, status string, data map[string]any) *AgentEventMessage {
	return &AgentEventMessage{
		BaseMessage: NewBaseMessage(TopicAgentEvents),
		AgentID:     agentID,
		Event:       event,
		AgentType:   agentType,
		Status:      status,
		Data:        data,
	}
}
