package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/agent"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/registry"
)

// echoHandler returns its input plus a marker for the executing stage.
func echoHandler(stage string) func(ctx context.Context, params map[string]any) (map[string]any, error) {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"stage": stage}, nil
	}
}

// newCompressionFleet builds workers covering the full compression pipeline.
func newCompressionFleet() []*agent.Worker {
	analyzer := agent.NewWorker("analyzer-1", "analysis",
		registry.CapContentAnalysis, registry.CapStructureAnalysis)
	analyzer.Handle("analyze_content", echoHandler("analyze_content"))
	analyzer.Handle("analyze_structure", echoHandler("analyze_structure"))

	selector := agent.NewWorker("selector-1", "analysis", registry.CapAlgorithmSelection)
	selector.Handle("select_algorithm", echoHandler("select_algorithm"))

	compressor := agent.NewWorker("compressor-1", "compression", registry.CapCompression)
	compressor.Handle("compress", echoHandler("compress"))

	return []*agent.Worker{analyzer, selector, compressor}
}

func TestHub_AttachDetach(t *testing.T) {
	h := NewHub()
	defer h.Close()

	events := make(chan *bus.AgentEventMessage, 8)
	h.Bus().Subscribe(bus.TopicAgentEvents, func(m bus.Message) {
		if e, ok := m.(*bus.AgentEventMessage); ok {
			events <- e
		}
	})

	w := agent.NewWorker("w1", "compression", registry.CapCompression)
	w.Handle("compress", echoHandler("compress"))
	require.NoError(t, h.AttachAgent(w))

	assert.Error(t, h.AttachAgent(w), "double attach must be rejected")
	assert.NotNil(t, h.Registry().Get("w1"))

	e := <-events
	assert.Equal(t, bus.AgentInitialized, e.Event)
	assert.Equal(t, "w1", e.AgentID)

	h.DetachAgent("w1")
	assert.Nil(t, h.Registry().Get("w1"))

	e = <-events
	assert.Equal(t, bus.AgentShutdown, e.Event)

	// Detaching twice is a no-op.
	h.DetachAgent("w1")
}

func TestHub_RunJob_CompressionPipeline(t *testing.T) {
	h := NewHub()
	defer h.Close()

	for _, w := range newCompressionFleet() {
		require.NoError(t, h.AttachAgent(w))
	}

	job := h.RunJob(context.Background(), "compression_analysis",
		map[string]any{"path": "/data/blob"}, 2*time.Second)

	assert.Equal(t, bus.StatusCompleted, job.Status)
	require.Len(t, job.Results, 4)
	require.Len(t, job.Batches, 3)
	assert.Len(t, job.Batches[0], 2)

	for id, result := range job.Results {
		assert.Equal(t, bus.StatusCompleted, result.Status, "subtask %s", id)
		assert.Equal(t, id, result.Result["stage"])
	}
}

func TestHub_RunJob_MissingAgentIsPartial(t *testing.T) {
	h := NewHub()
	defer h.Close()

	// Attach everything except the compressor.
	fleet := newCompressionFleet()
	for _, w := range fleet[:2] {
		require.NoError(t, h.AttachAgent(w))
	}

	job := h.RunJob(context.Background(), "compression_analysis",
		map[string]any{"path": "/data/blob"}, 2*time.Second)

	assert.Equal(t, bus.StatusPartial, job.Status)
	compress := job.Results["compress"]
	require.NotNil(t, compress)
	assert.Equal(t, bus.StatusFailed, compress.Status)
	assert.Contains(t, compress.Err, "no agent found")
}

func TestHub_RunJob_NoAgentsAtAll(t *testing.T) {
	h := NewHub()
	defer h.Close()

	job := h.RunJob(context.Background(), "anything", map[string]any{}, time.Second)

	assert.Equal(t, bus.StatusFailed, job.Status)
	require.Len(t, job.Results, 1)
}

func TestHub_HeartbeatUpdatesHealth(t *testing.T) {
	h := NewHub()
	defer h.Close()

	w := agent.NewWorker("w1", "compression", registry.CapCompression)
	w.Handle("compress", echoHandler("compress"))
	require.NoError(t, h.AttachAgent(w))

	h.Bus().PublishWait(bus.NewAgentEventMessage(
		"w1", bus.AgentHeartbeat, "compression", "idle", map[string]any{"cpu": 0.25}))

	require.Eventually(t, func() bool {
		return h.Registry().Health("w1") != nil
	}, time.Second, 5*time.Millisecond)

	rec := h.Registry().Health("w1")
	assert.Equal(t, 0.25, rec.Data["cpu"])
	assert.Equal(t, "idle", rec.Data["status"])
}

func TestHub_CloseRejectsAttach(t *testing.T) {
	h := NewHub()
	h.Close()

	w := agent.NewWorker("w1", "compression", registry.CapCompression)
	assert.Error(t, h.AttachAgent(w))

	// Closing twice is safe.
	h.Close()
}
