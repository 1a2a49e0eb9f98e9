// Package registry is the single source of truth for which agents exist and
// what they can do. It indexes agents by type and capability and scores
// candidates for task assignment.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
)

// ErrNoAgent indicates no registered agent can handle the requested task.
var ErrNoAgent = errors.New("no suitable agent found")

// Scoring weights for task assignment. An agent's score is
// 0.5*successRate + 0.3*speedScore + 0.2*loadScore.
const (
	weightSuccess = 0.5
	weightSpeed   = 0.3
	weightLoad    = 0.2

	// defaultSuccessRate is assumed for agents that have not attempted any
	// task yet, so new agents are neither favored nor starved.
	defaultSuccessRate = 0.5
)

// Registry tracks agent records and their type/capability indexes. The three
// tables are mutated only under one mutex per registry instance, so a reader
// never observes an agent present in an index but absent from the main table.
type Registry struct {
	mu     sync.Mutex
	agents map[string]Agent
	order  []string // registration order, for deterministic tie-breaks
	byType map[string]map[string]struct{}
	byCap  map[Capability]map[string]struct{}
	health map[string]*HealthRecord
	logger *logging.Logger
}

// New creates an empty registry. A nil logger is valid.
func New(logger *logging.Logger) *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		byType: make(map[string]map[string]struct{}),
		byCap:  make(map[Capability]map[string]struct{}),
		health: make(map[string]*HealthRecord),
		logger: logger.WithComponent("registry"),
	}
}

// Register inserts an agent record and updates the type and capability
// indexes atomically. Re-registering an existing ID overwrites the prior
// record; this is logged as a warning, not an error.
func (r *Registry) Register(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := agent.ID()
	if _, exists := r.agents[id]; exists {
		r.logger.Warn("re-registering existing agent, overwriting prior record", "agent_id", id)
		r.removeLocked(id)
	}

	r.agents[id] = agent
	r.order = append(r.order, id)
	r.indexLocked(agent)
	r.logger.Info("agent registered", "agent_id", id, "agent_type", agent.Type())
}

// Unregister removes an agent and its index entries. Unknown IDs are a no-op.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentID]; !exists {
		return
	}
	r.removeLocked(agentID)
	delete(r.health, agentID)
	r.logger.Info("agent unregistered", "agent_id", agentID)
}

// indexLocked adds the agent to the type and capability indexes.
// Caller must hold r.mu.
func (r *Registry) indexLocked(agent Agent) {
	id := agent.ID()

	typ := agent.Type()
	if r.byType[typ] == nil {
		r.byType[typ] = make(map[string]struct{})
	}
	r.byType[typ][id] = struct{}{}

	for _, cap := range agent.Capabilities() {
		if r.byCap[cap] == nil {
			r.byCap[cap] = make(map[string]struct{})
		}
		r.byCap[cap][id] = struct{}{}
	}
}

// removeLocked removes the agent record, its registration-order entry, and
// every index entry. Caller must hold r.mu.
func (r *Registry) removeLocked(agentID string) {
	agent, exists := r.agents[agentID]
	if !exists {
		return
	}
	delete(r.agents, agentID)

	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	typ := agent.Type()
	delete(r.byType[typ], agentID)
	if len(r.byType[typ]) == 0 {
		delete(r.byType, typ)
	}
	for _, cap := range agent.Capabilities() {
		delete(r.byCap[cap], agentID)
		if len(r.byCap[cap]) == 0 {
			delete(r.byCap, cap)
		}
	}
}

// Get returns the agent with the given ID, or nil if not registered.
func (r *Registry) Get(agentID string) Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[agentID]
}

// All returns every registered agent in registration order.
func (r *Registry) All() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		agents = append(agents, r.agents[id])
	}
	return agents
}

// ByType returns the agents of the given type in registration order.
// Unknown types yield an empty result, not an error.
func (r *Registry) ByType(agentType string) []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(r.byType[agentType])
}

// ByCapability returns the agents declaring the given capability in
// registration order. Unknown capabilities yield an empty result.
func (r *Registry) ByCapability(cap Capability) []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collectLocked(r.byCap[cap])
}

// collectLocked materializes an index bucket in registration order.
// Caller must hold r.mu.
func (r *Registry) collectLocked(ids map[string]struct{}) []Agent {
	var agents []Agent
	for _, id := range r.order {
		if _, ok := ids[id]; ok {
			agents = append(agents, r.agents[id])
		}
	}
	return agents
}

// AgentForTask selects the best agent for a task. Candidates must report
// CanHandle true; idle agents are preferred, working agents are the
// fallback, all other statuses are excluded. Among candidates the highest
// weighted score wins, with ties broken by registration order so repeated
// calls over a fixed fleet are deterministic.
func (r *Registry) AgentForTask(taskType string, requirements map[string]any) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle, working []Agent
	for _, id := range r.order {
		agent := r.agents[id]
		if !agent.CanHandle(taskType, requirements) {
			continue
		}
		switch agent.Status() {
		case StatusIdle:
			idle = append(idle, agent)
		case StatusWorking:
			working = append(working, agent)
		}
	}

	candidates := idle
	if len(candidates) == 0 {
		candidates = working
	}
	if len(candidates) == 0 {
		return nil, ErrNoAgent
	}

	best := candidates[0]
	bestScore := score(best.Stats())
	for _, agent := range candidates[1:] {
		if s := score(agent.Stats()); s > bestScore {
			best = agent
			bestScore = s
		}
	}
	return best, nil
}

// score computes the weighted assignment score from an agent's counters.
func score(s Stats) float64 {
	successRate := defaultSuccessRate
	if s.TasksAttempted > 0 {
		successRate = float64(s.TasksSucceeded) / float64(s.TasksAttempted)
	}
	speedScore := 1.0 / (1.0 + s.AvgTaskDuration)
	loadScore := 1.0 / (1.0 + float64(s.CurrentTaskCount)/100.0)
	return weightSuccess*successRate + weightSpeed*speedScore + weightLoad*loadScore
}

// UpdateHealth merges new fields into the agent's health record and
// refreshes the heartbeat timestamp. Unknown agent IDs are ignored.
func (r *Registry) UpdateHealth(agentID string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return
	}

	rec := r.health[agentID]
	if rec == nil {
		rec = &HealthRecord{Data: make(map[string]any)}
		r.health[agentID] = rec
	}
	rec.LastHeartbeat = time.Now()
	rec.Status = agent.Status()
	for k, v := range data {
		rec.Data[k] = v
	}
}

// Health returns a copy of the agent's health record, or nil if the agent
// has never reported a heartbeat.
func (r *Registry) Health(agentID string) *HealthRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.health[agentID]
	if rec == nil {
		return nil
	}
	out := &HealthRecord{
		LastHeartbeat: rec.LastHeartbeat,
		Status:        rec.Status,
		Data:          make(map[string]any, len(rec.Data)),
	}
	for k, v := range rec.Data {
		out.Data[k] = v
	}
	return out
}

// Status builds a point-in-time summary of the registry. Safe to call
// concurrently with registration activity.
func (r *Registry) Status() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		TotalAgents:  len(r.agents),
		ByType:       make(map[string]int, len(r.byType)),
		ByCapability: make(map[Capability]int, len(r.byCap)),
		Agents:       make([]AgentSummary, 0, len(r.order)),
	}
	for typ, ids := range r.byType {
		snap.ByType[typ] = len(ids)
	}
	for cap, ids := range r.byCap {
		snap.ByCapability[cap] = len(ids)
	}
	for _, id := range r.order {
		agent := r.agents[id]
		summary := AgentSummary{
			ID:           id,
			Type:         agent.Type(),
			Status:       agent.Status(),
			Capabilities: append([]Capability(nil), agent.Capabilities()...),
			TaskCount:    agent.Stats().CurrentTaskCount,
		}
		sort.Slice(summary.Capabilities, func(i, j int) bool {
			return summary.Capabilities[i] < summary.Capabilities[j]
		})
		if rec := r.health[id]; rec != nil {
			summary.LastHeartbeat = rec.LastHeartbeat
		}
		snap.Agents = append(snap.Agents, summary)
	}
	return snap
}

// Stale returns the IDs of registered agents whose last heartbeat is older
// than threshold, or that have never reported one. Order follows
// registration order.
func (r *Registry) Stale(threshold time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-threshold)
	var stale []string
	for _, id := range r.order {
		rec := r.health[id]
		if rec == nil || rec.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}
