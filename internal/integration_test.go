// Package internal holds cross-package integration tests that verify the
// bus, delegation, registry, and decomposer cooperate the way the
// coordination hub composes them.
package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/agent"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/decompose"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/delegate"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/registry"
)

// TestDelegationOverSharedBus wires two managers to one bus and verifies a
// round trip without any hub involvement.
func TestDelegationOverSharedBus(t *testing.T) {
	b := bus.New()
	defer b.Clear()

	worker := delegate.NewManager("worker-1", b)
	defer worker.Close()
	worker.RegisterTaskHandler("echo", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"echo": params["data"]}, nil
	})

	caller := delegate.NewManager("caller-1", b)
	defer caller.Close()

	result := caller.Delegate(context.Background(), "worker-1", "echo",
		map[string]any{"data": "ping"}, 5, time.Second)

	require.Equal(t, bus.StatusCompleted, result.Status)
	assert.Equal(t, "ping", result.Result["echo"])
}

// TestRegistrySelectsDecomposedWork runs a decomposition and checks that
// every subtask in every generation finds an eligible registered agent.
func TestRegistrySelectsDecomposedWork(t *testing.T) {
	reg := registry.New(logging.Nop())

	analyzer := agent.NewWorker("analyzer-1", "analysis",
		registry.CapContentAnalysis, registry.CapStructureAnalysis)
	selector := agent.NewWorker("selector-1", "analysis", registry.CapAlgorithmSelection)
	compressor := agent.NewWorker("compressor-1", "compression", registry.CapCompression)

	noop := func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return nil, nil
	}
	analyzer.Handle("analyze_content", noop).Handle("analyze_structure", noop)
	selector.Handle("select_algorithm", noop)
	compressor.Handle("compress", noop)

	for _, w := range []*agent.Worker{analyzer, selector, compressor} {
		reg.Register(w)
	}

	result := decompose.New().Decompose("compression_analysis", map[string]any{"path": "/tmp/x"})
	batches := result.ParallelBatches()
	require.Len(t, batches, 3)

	for _, batch := range batches {
		for _, id := range batch {
			st, ok := result.Subtask(id)
			require.True(t, ok)
			selected, err := reg.AgentForTask(st.Type, st.Requirements)
			require.NoError(t, err, "no agent for %s", id)
			assert.True(t, selected.CanHandle(st.Type, st.Requirements))
		}
	}
}

// TestLifecycleEventsReachObservers covers the broadcast path the registry
// health tracking depends on.
func TestLifecycleEventsReachObservers(t *testing.T) {
	b := bus.New()
	defer b.Clear()

	seen := make(chan *bus.AgentEventMessage, 4)
	observer := delegate.NewManager("observer-1", b,
		delegate.WithEventObserver(func(e *bus.AgentEventMessage) { seen <- e }))
	defer observer.Close()

	worker := delegate.NewManager("worker-1", b, delegate.WithAgentType("compression"))
	defer worker.Close()

	worker.AnnounceEvent(bus.AgentInitialized, "idle", nil)
	worker.Heartbeat("idle", map[string]any{"queue": 0})

	first := <-seen
	assert.Equal(t, bus.AgentInitialized, first.Event)
	assert.Equal(t, "worker-1", first.AgentID)

	second := <-seen
	assert.Equal(t, bus.AgentHeartbeat, second.Event)
	assert.Equal(t, 0, second.Data["queue"])
}
