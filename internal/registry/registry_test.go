package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent is a configurable Agent implementation for registry tests.
type fakeAgent struct {
	id     string
	typ    string
	caps   []Capability
	status Status
	stats  Stats
	// handles restricts CanHandle to the listed task types; nil means all.
	handles map[string]bool
}

func (a *fakeAgent) ID() string                 { return a.id }
func (a *fakeAgent) Type() string               { return a.typ }
func (a *fakeAgent) Capabilities() []Capability { return a.caps }
func (a *fakeAgent) Status() Status             { return a.status }
func (a *fakeAgent) Stats() Stats               { return a.stats }
func (a *fakeAgent) CanHandle(taskType string, _ map[string]any) bool {
	if a.handles == nil {
		return true
	}
	return a.handles[taskType]
}

func newFakeAgent(id, typ string, caps ...Capability) *fakeAgent {
	return &fakeAgent{id: id, typ: typ, caps: caps, status: StatusIdle}
}

func TestRegistry_RegisterIndexes(t *testing.T) {
	r := New(nil)

	r.Register(newFakeAgent("a1", "infrastructure", CapStorage, CapMonitoring))
	r.Register(newFakeAgent("a2", "compression", CapCompression))

	assert.Len(t, r.All(), 2)
	assert.Len(t, r.ByType("infrastructure"), 1)
	assert.Len(t, r.ByCapability(CapStorage), 1)
	assert.Equal(t, "a1", r.ByCapability(CapMonitoring)[0].ID())
	assert.Empty(t, r.ByType("unknown"))
	assert.Empty(t, r.ByCapability(CapDecompression))
}

func TestRegistry_UnregisterRemovesIndexEntries(t *testing.T) {
	r := New(nil)

	r.Register(newFakeAgent("a1", "infrastructure", CapStorage))
	r.Register(newFakeAgent("a2", "infrastructure", CapStorage))
	r.Unregister("a1")

	require.Len(t, r.All(), 1)
	assert.Nil(t, r.Get("a1"))
	assert.Len(t, r.ByType("infrastructure"), 1)
	assert.Len(t, r.ByCapability(CapStorage), 1)
	assert.Equal(t, "a2", r.ByCapability(CapStorage)[0].ID())

	// Unknown ID is a no-op.
	r.Unregister("missing")
	assert.Len(t, r.All(), 1)
}

func TestRegistry_IndexConsistency(t *testing.T) {
	r := New(nil)

	// Interleave registrations and removals, then verify every agent in
	// All() appears in exactly its own index buckets and nowhere else.
	agents := []*fakeAgent{
		newFakeAgent("a1", "infrastructure", CapStorage),
		newFakeAgent("a2", "compression", CapCompression, CapAlgorithmSelection),
		newFakeAgent("a3", "compression", CapCompression),
		newFakeAgent("a4", "api", CapAPIIntegration),
	}
	for _, a := range agents {
		r.Register(a)
	}
	r.Unregister("a3")
	r.Register(newFakeAgent("a5", "compression", CapDecompression))
	r.Unregister("a1")

	snap := r.Status()
	assert.Equal(t, len(r.All()), snap.TotalAgents)

	for _, a := range r.All() {
		byType := r.ByType(a.Type())
		found := false
		for _, other := range byType {
			if other.ID() == a.ID() {
				found = true
			}
		}
		assert.True(t, found, "agent %s missing from its type bucket", a.ID())

		for _, cap := range a.Capabilities() {
			bucket := r.ByCapability(cap)
			found = false
			for _, other := range bucket {
				if other.ID() == a.ID() {
					found = true
				}
			}
			assert.True(t, found, "agent %s missing from capability bucket %s", a.ID(), cap)
		}
	}

	// Removed agents left no residue.
	for _, bucket := range [][]Agent{r.ByType("infrastructure"), r.ByCapability(CapStorage)} {
		for _, a := range bucket {
			assert.NotEqual(t, "a1", a.ID())
		}
	}
}

func TestRegistry_ReRegisterOverwrites(t *testing.T) {
	r := New(nil)

	r.Register(newFakeAgent("a1", "infrastructure", CapStorage))
	replacement := newFakeAgent("a1", "compression", CapCompression)
	r.Register(replacement)

	require.Len(t, r.All(), 1)
	assert.Equal(t, "compression", r.Get("a1").Type())
	assert.Empty(t, r.ByType("infrastructure"))
	assert.Empty(t, r.ByCapability(CapStorage))
	assert.Len(t, r.ByCapability(CapCompression), 1)
}

func TestAgentForTask_NoCandidates(t *testing.T) {
	r := New(nil)

	_, err := r.AgentForTask("compress", nil)
	assert.ErrorIs(t, err, ErrNoAgent)

	a := newFakeAgent("a1", "compression", CapCompression)
	a.handles = map[string]bool{"compress": false}
	r.Register(a)

	_, err = r.AgentForTask("compress", nil)
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestAgentForTask_PrefersIdleOverWorking(t *testing.T) {
	r := New(nil)

	working := newFakeAgent("busy", "compression", CapCompression)
	working.status = StatusWorking
	working.stats = Stats{TasksAttempted: 100, TasksSucceeded: 100}

	idle := newFakeAgent("free", "compression", CapCompression)
	idle.stats = Stats{TasksAttempted: 10, TasksSucceeded: 1}

	r.Register(working)
	r.Register(idle)

	// The idle agent wins even though the working agent scores higher.
	agent, err := r.AgentForTask("compress", nil)
	require.NoError(t, err)
	assert.Equal(t, "free", agent.ID())
}

func TestAgentForTask_FallsBackToWorking(t *testing.T) {
	r := New(nil)

	working := newFakeAgent("busy", "compression", CapCompression)
	working.status = StatusWorking
	errored := newFakeAgent("broken", "compression", CapCompression)
	errored.status = StatusError

	r.Register(errored)
	r.Register(working)

	agent, err := r.AgentForTask("compress", nil)
	require.NoError(t, err)
	assert.Equal(t, "busy", agent.ID())
}

func TestAgentForTask_ScoringPicksBest(t *testing.T) {
	r := New(nil)

	slow := newFakeAgent("slow", "compression", CapCompression)
	slow.stats = Stats{TasksAttempted: 10, TasksSucceeded: 9, AvgTaskDuration: 30}

	fast := newFakeAgent("fast", "compression", CapCompression)
	fast.stats = Stats{TasksAttempted: 10, TasksSucceeded: 9, AvgTaskDuration: 1}

	loaded := newFakeAgent("loaded", "compression", CapCompression)
	loaded.stats = Stats{TasksAttempted: 10, TasksSucceeded: 9, AvgTaskDuration: 1, CurrentTaskCount: 500}

	r.Register(slow)
	r.Register(fast)
	r.Register(loaded)

	agent, err := r.AgentForTask("compress", nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", agent.ID())
}

func TestAgentForTask_Deterministic(t *testing.T) {
	r := New(nil)

	// Identical counters: the tie must break by registration order,
	// returning the same agent on every call.
	for i := 1; i <= 4; i++ {
		r.Register(newFakeAgent(fmt.Sprintf("a%d", i), "compression", CapCompression))
	}

	first, err := r.AgentForTask("compress", nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		agent, err := r.AgentForTask("compress", nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID(), agent.ID())
	}
	assert.Equal(t, "a1", first.ID())
}

func TestScore_ZeroAttemptsDefault(t *testing.T) {
	fresh := score(Stats{})
	proven := score(Stats{TasksAttempted: 10, TasksSucceeded: 10})
	failing := score(Stats{TasksAttempted: 10, TasksSucceeded: 0})

	assert.Greater(t, proven, fresh)
	assert.Greater(t, fresh, failing)
}

func TestUpdateHealth(t *testing.T) {
	r := New(nil)

	// Unknown IDs are ignored.
	r.UpdateHealth("ghost", map[string]any{"cpu": 0.5})
	assert.Nil(t, r.Health("ghost"))

	r.Register(newFakeAgent("a1", "infrastructure", CapMonitoring))
	r.UpdateHealth("a1", map[string]any{"cpu": 0.5})
	r.UpdateHealth("a1", map[string]any{"mem": 0.7})

	rec := r.Health("a1")
	require.NotNil(t, rec)
	assert.False(t, rec.LastHeartbeat.IsZero())
	assert.Equal(t, 0.5, rec.Data["cpu"])
	assert.Equal(t, 0.7, rec.Data["mem"])
}

func TestStatus_Snapshot(t *testing.T) {
	r := New(nil)

	r.Register(newFakeAgent("a1", "infrastructure", CapStorage, CapMonitoring))
	r.Register(newFakeAgent("a2", "compression", CapCompression))
	r.UpdateHealth("a1", nil)

	snap := r.Status()
	assert.Equal(t, 2, snap.TotalAgents)
	assert.Equal(t, 1, snap.ByType["infrastructure"])
	assert.Equal(t, 1, snap.ByCapability[CapCompression])
	require.Len(t, snap.Agents, 2)
	assert.Equal(t, "a1", snap.Agents[0].ID)
	assert.False(t, snap.Agents[0].LastHeartbeat.IsZero())
	assert.True(t, snap.Agents[1].LastHeartbeat.IsZero())
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	r := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("a%d", n)
			r.Register(newFakeAgent(id, "compression", CapCompression))
			r.Status()
			if n%2 == 0 {
				r.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, len(r.All()))
}

func TestStale(t *testing.T) {
	r := New(nil)
	r.Register(newFakeAgent("a1", "analysis", CapContentAnalysis))
	r.Register(newFakeAgent("a2", "analysis", CapContentAnalysis))

	// Neither has reported yet.
	assert.Equal(t, []string{"a1", "a2"}, r.Stale(time.Minute))

	r.UpdateHealth("a1", map[string]any{"cpu": 0.1})
	assert.Equal(t, []string{"a2"}, r.Stale(time.Minute))

	// A zero threshold makes every heartbeat stale immediately.
	time.Sleep(time.Millisecond)
	assert.Equal(t, []string{"a1", "a2"}, r.Stale(0))
}
