// Package decompose translates a named job type and an input mapping into an
// ordered list of subtasks plus a dependency graph, and provides derived
// scheduling views. It is a pure algorithm component: it knows nothing about
// the bus or the registry.
package decompose

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/graph"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/logging"
)

// DefaultPriority is assigned to subtasks whose strategy left priority unset.
const DefaultPriority = 5

// defaultCacheSize bounds the decomposition result cache.
const defaultCacheSize = 64

// Subtask is one unit of work produced by a decomposition. Subtasks are
// value objects: callers must treat them, including the Input and
// Requirements maps, as read-only.
type Subtask struct {
	// ID is unique within one decomposition.
	ID   string
	Type string
	// Input is the parameter mapping handed to the executing agent.
	Input map[string]any
	// Requirements constrains agent selection, e.g. {"capability": "compression"}.
	Requirements map[string]any
	// DependsOn lists subtask IDs that must complete first.
	DependsOn []string
	// Priority ranges 1-10; zero means DefaultPriority.
	Priority int
	// EstDuration is the estimated execution time in seconds, 0 if unknown.
	EstDuration float64
}

// Result is a completed decomposition: the subtask list and its dependency
// graph. The graph is guaranteed acyclic and free of dangling references.
// One Result may be shared between callers through the decomposer's cache,
// so it must not be mutated after it is returned.
type Result struct {
	TaskType string
	Subtasks []Subtask
	Graph    graph.Graph
}

// Subtask returns the subtask with the given ID.
func (r *Result) Subtask(id string) (Subtask, bool) {
	for _, st := range r.Subtasks {
		if st.ID == id {
			return st, true
		}
	}
	return Subtask{}, false
}

// ParallelBatches returns the graph's topological generations: each batch
// holds subtask IDs whose dependencies are satisfied by earlier batches, so
// members of one batch may run concurrently.
func (r *Result) ParallelBatches() [][]string {
	// The graph was cycle-cleaned at construction, so Generations cannot
	// fail here.
	gens, err := r.Graph.Generations()
	if err != nil {
		return nil
	}
	return gens
}

// Strategy turns a job input into a subtask list. A strategy returning no
// subtasks falls back to the identity decomposition.
type Strategy func(input map[string]any) []Subtask

// Decomposer dispatches job types to named decomposition strategies and
// caches results per (task type, input) pair.
type Decomposer struct {
	mu         sync.Mutex
	strategies map[string]Strategy
	cache      map[string]*Result
	cacheOrder []string
	cacheSize  int
	logger     *logging.Logger
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Decomposer) { d.logger = logger.WithComponent("decompose") }
}

// WithCacheSize overrides the result cache capacity. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(d *Decomposer) {
		if n >= 0 {
			d.cacheSize = n
		}
	}
}

// New creates a Decomposer with the built-in strategies registered:
// compression_analysis, media_generation, and pipeline.
func New(opts ...Option) *Decomposer {
	d := &Decomposer{
		strategies: make(map[string]Strategy),
		cache:      make(map[string]*Result),
		cacheSize:  defaultCacheSize,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.Register(TypeCompressionAnalysis, compressionAnalysisStrategy)
	d.Register(TypeMediaGeneration, mediaGenerationStrategy)
	d.Register(TypePipeline, pipelineStrategy)
	return d
}

// Register installs or replaces the strategy for a task type. Cached
// results for that task type are dropped, so a replacement (e.g. a strategy
// file reload) takes effect on the next Decompose call.
func (d *Decomposer) Register(taskType string, strategy Strategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies[taskType] = strategy

	prefix := taskType + "\x00"
	kept := d.cacheOrder[:0]
	for _, key := range d.cacheOrder {
		if strings.HasPrefix(key, prefix) {
			delete(d.cache, key)
			continue
		}
		kept = append(kept, key)
	}
	d.cacheOrder = kept
}

// StrategyTypes returns the registered task types, for introspection.
func (d *Decomposer) StrategyTypes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	types := make([]string, 0, len(d.strategies))
	for t := range d.strategies {
		types = append(types, t)
	}
	return types
}

// Decompose dispatches to the strategy registered for taskType. An
// unrecognized task type yields the identity decomposition: one subtask
// wrapping the whole input with no dependencies. This is a deliberate
// "no decomposition" default, not an error. Identical (taskType, input)
// pairs may be served from the cache.
func (d *Decomposer) Decompose(taskType string, input map[string]any) *Result {
	key := cacheKey(taskType, input)

	d.mu.Lock()
	strategy := d.strategies[taskType]
	if key != "" {
		if cached, ok := d.cache[key]; ok {
			d.mu.Unlock()
			d.logger.Debug("decomposition served from cache", "task_type", taskType)
			return cached
		}
	}
	d.mu.Unlock()

	var subtasks []Subtask
	if strategy != nil {
		subtasks = normalize(strategy(input))
	}
	if len(subtasks) == 0 {
		subtasks = identitySubtasks(taskType, input)
	}

	result := &Result{
		TaskType: taskType,
		Subtasks: subtasks,
		Graph:    d.buildGraph(subtasks),
	}
	d.logger.Debug("decomposed task",
		"task_type", taskType, "subtasks", len(subtasks))

	if key != "" && d.cacheSize > 0 {
		d.storeCached(key, result)
	}
	return result
}

// buildGraph constructs the dependency graph from the subtask list. Declared
// dependencies that do not correspond to a known subtask are silently
// dropped, and any cycle produced by a malformed strategy is broken. Both
// are defensive normalizations, never fatal.
func (d *Decomposer) buildGraph(subtasks []Subtask) graph.Graph {
	known := make(map[string]struct{}, len(subtasks))
	for _, st := range subtasks {
		known[st.ID] = struct{}{}
	}

	g := graph.New()
	for _, st := range subtasks {
		g.Add(st.ID)
		for _, dep := range st.DependsOn {
			if _, ok := known[dep]; !ok {
				d.logger.Debug("dropping dangling dependency",
					"subtask", st.ID, "dependency", dep)
				continue
			}
			g.Add(st.ID, dep)
		}
	}

	if g.HasCycle() {
		d.logger.Warn("strategy produced a cyclic dependency graph, breaking cycles")
		g = g.RemoveCycles()
	}
	return g
}

// normalize fills defaults and drops subtasks with duplicate IDs, keeping
// the first occurrence.
func normalize(subtasks []Subtask) []Subtask {
	seen := make(map[string]struct{}, len(subtasks))
	out := make([]Subtask, 0, len(subtasks))
	for _, st := range subtasks {
		if st.ID == "" {
			continue
		}
		if _, dup := seen[st.ID]; dup {
			continue
		}
		seen[st.ID] = struct{}{}
		if st.Type == "" {
			st.Type = st.ID
		}
		if st.Priority == 0 {
			st.Priority = DefaultPriority
		}
		out = append(out, st)
	}
	return out
}

// identitySubtasks wraps the whole input in a single subtask.
func identitySubtasks(taskType string, input map[string]any) []Subtask {
	return []Subtask{{
		ID:       taskType,
		Type:     taskType,
		Input:    input,
		Priority: DefaultPriority,
	}}
}

// cacheKey builds a canonical key from the task type and input. Returns ""
// when the input cannot be canonicalized (e.g. contains non-marshalable
// values), which disables caching for that call.
func cacheKey(taskType string, input map[string]any) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return taskType + "\x00" + string(encoded)
}

// storeCached inserts into the FIFO-bounded result cache.
func (d *Decomposer) storeCached(key string, result *Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.cache[key]; exists {
		return
	}
	for len(d.cacheOrder) >= d.cacheSize {
		oldest := d.cacheOrder[0]
		d.cacheOrder = d.cacheOrder[1:]
		delete(d.cache, oldest)
	}
	d.cache[key] = result
	d.cacheOrder = append(d.cacheOrder, key)
}
