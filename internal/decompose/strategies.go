package decompose

import "strconv"

// Built-in task types with registered strategies.
const (
	// TypeCompressionAnalysis is the fixed four-stage compression pipeline.
	TypeCompressionAnalysis = "compression_analysis"
	// TypeMediaGeneration is the fixed four-stage media synthesis pipeline.
	TypeMediaGeneration = "media_generation"
	// TypePipeline expands a caller-supplied "steps" list into a linear chain.
	TypePipeline = "pipeline"
)

// compressionAnalysisStrategy produces the fixed compression pipeline: both
// analysis stages run in parallel, algorithm selection waits for both, and
// compression runs last.
func compressionAnalysisStrategy(input map[string]any) []Subtask {
	return []Subtask{
		{
			ID:           "analyze_content",
			Type:         "analyze_content",
			Input:        input,
			Requirements: map[string]any{"capability": "content_analysis"},
			EstDuration:  1,
		},
		{
			ID:           "analyze_structure",
			Type:         "analyze_structure",
			Input:        input,
			Requirements: map[string]any{"capability": "structure_analysis"},
			EstDuration:  1,
		},
		{
			ID:           "select_algorithm",
			Type:         "select_algorithm",
			Input:        input,
			Requirements: map[string]any{"capability": "algorithm_selection"},
			DependsOn:    []string{"analyze_content", "analyze_structure"},
			EstDuration:  0.5,
		},
		{
			ID:           "compress",
			Type:         "compress",
			Input:        input,
			Requirements: map[string]any{"capability": "compression"},
			DependsOn:    []string{"select_algorithm"},
			Priority:     7,
			EstDuration:  5,
		},
	}
}

// mediaGenerationStrategy mirrors the compression pipeline shape for media
// jobs: layer composition and audio synthesis in parallel, then mixing,
// then encoding.
func mediaGenerationStrategy(input map[string]any) []Subtask {
	return []Subtask{
		{
			ID:           "compose_layers",
			Type:         "compose_layers",
			Input:        input,
			Requirements: map[string]any{"capability": "media_synthesis"},
			EstDuration:  2,
		},
		{
			ID:           "synthesize_audio",
			Type:         "synthesize_audio",
			Input:        input,
			Requirements: map[string]any{"capability": "media_synthesis"},
			EstDuration:  2,
		},
		{
			ID:           "mix",
			Type:         "mix",
			Input:        input,
			Requirements: map[string]any{"capability": "media_synthesis"},
			DependsOn:    []string{"compose_layers", "synthesize_audio"},
			EstDuration:  1,
		},
		{
			ID:           "encode",
			Type:         "encode",
			Input:        input,
			Requirements: map[string]any{"capability": "compression"},
			DependsOn:    []string{"mix"},
			Priority:     7,
			EstDuration:  4,
		},
	}
}

// pipelineStrategy expands input["steps"] into a linear chain, each step
// depending on its predecessor. Steps may be plain strings (the step type)
// or mappings with "type", optional "input", and optional "requirements".
// Without usable steps it returns nil, which the decomposer treats as
// identity decomposition.
func pipelineStrategy(input map[string]any) []Subtask {
	rawSteps, ok := input["steps"].([]any)
	if !ok {
		return nil
	}

	var subtasks []Subtask
	prevID := ""
	for i, raw := range rawSteps {
		st := Subtask{Input: input}
		switch step := raw.(type) {
		case string:
			st.Type = step
		case map[string]any:
			st.Type, _ = step["type"].(string)
			if stepInput, ok := step["input"].(map[string]any); ok {
				st.Input = stepInput
			}
			if reqs, ok := step["requirements"].(map[string]any); ok {
				st.Requirements = reqs
			}
		}
		if st.Type == "" {
			continue
		}

		st.ID = stepID(i+1, st.Type)
		if prevID != "" {
			st.DependsOn = []string{prevID}
		}
		prevID = st.ID
		subtasks = append(subtasks, st)
	}
	return subtasks
}

// stepID names a pipeline step so chains with repeated step types stay
// unique within the decomposition.
func stepID(n int, stepType string) string {
	return "step_" + strconv.Itoa(n) + "_" + stepType
}
