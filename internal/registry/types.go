package registry

import "time"

// Capability is a named ability an agent declares. The set is closed:
// eligibility checks are typed set lookups, not open-ended predicates.
type Capability string

const (
	CapContentAnalysis    Capability = "content_analysis"
	CapStructureAnalysis  Capability = "structure_analysis"
	CapAlgorithmSelection Capability = "algorithm_selection"
	CapCompression        Capability = "compression"
	CapDecompression      Capability = "decompression"
	CapMediaSynthesis     Capability = "media_synthesis"
	CapStorage            Capability = "storage"
	CapAPIIntegration     Capability = "api_integration"
	CapMonitoring         Capability = "monitoring"
)

// Status is an agent's current availability state.
type Status string

const (
	// StatusInitializing means the agent is starting up and not yet
	// accepting work.
	StatusInitializing Status = "initializing"
	// StatusIdle means the agent is available for assignment.
	StatusIdle Status = "idle"
	// StatusWorking means the agent is executing at least one task but may
	// accept more.
	StatusWorking Status = "working"
	// StatusError means the agent is unhealthy and excluded from selection.
	StatusError Status = "error"
	// StatusShutdown means the agent is terminating.
	StatusShutdown Status = "shutdown"
)

// Stats holds the cumulative counters the registry's scoring reads.
type Stats struct {
	TasksAttempted   int
	TasksSucceeded   int
	AvgTaskDuration  float64 // seconds
	CurrentTaskCount int
}

// Agent is the contract agent implementations expose to the registry.
// Implementations live outside the core; the registry only reads.
type Agent interface {
	// ID returns the unique agent identifier.
	ID() string
	// Type returns the agent's type name, e.g. "infrastructure" or "api".
	Type() string
	// Capabilities returns the agent's declared capability set.
	Capabilities() []Capability
	// Status returns the agent's current availability state.
	Status() Status
	// CanHandle reports whether the agent can execute a task of the given
	// type under the given requirements.
	CanHandle(taskType string, requirements map[string]any) bool
	// Stats returns the counters used for assignment scoring.
	Stats() Stats
}

// HealthRecord tracks per-agent heartbeat data, maintained independently of
// the main agent table.
type HealthRecord struct {
	LastHeartbeat time.Time
	Status        Status
	Data          map[string]any
}

// AgentSummary is one agent's row in a registry status snapshot.
type AgentSummary struct {
	ID            string
	Type          string
	Status        Status
	Capabilities  []Capability
	LastHeartbeat time.Time
	TaskCount     int
}

// Snapshot is a point-in-time summary of the registry, safe to build while
// registration activity continues.
type Snapshot struct {
	TotalAgents  int
	ByType       map[string]int
	ByCapability map[Capability]int
	Agents       []AgentSummary
}
