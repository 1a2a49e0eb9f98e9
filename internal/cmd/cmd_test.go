package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	input, err := parseInput([]string{"data=hello", "level=3", "verbose=true", "path=a=b"})
	require.NoError(t, err)

	assert.Equal(t, "hello", input["data"])
	assert.Equal(t, 3.0, input["level"])
	assert.Equal(t, true, input["verbose"])
	// Only the first '=' separates key from value.
	assert.Equal(t, "a=b", input["path"])
}

func TestParseInput_Invalid(t *testing.T) {
	_, err := parseInput([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseInput([]string{"=empty"})
	assert.Error(t, err)

	input, err := parseInput(nil)
	require.NoError(t, err)
	assert.Nil(t, input)
}

func TestDemoFleet_CoversCompressionPipeline(t *testing.T) {
	fleet := demoFleet()
	require.NotEmpty(t, fleet)

	handled := func(taskType string) bool {
		for _, w := range fleet {
			if w.CanHandle(taskType, nil) {
				return true
			}
		}
		return false
	}
	for _, stage := range []string{"analyze_content", "analyze_structure", "select_algorithm", "compress"} {
		assert.True(t, handled(stage), "no agent handles %s", stage)
	}
}

func TestAnalyzeContent_Entropy(t *testing.T) {
	out, err := analyzeContent(context.Background(), map[string]any{"data": "aaaa"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out["entropy"])
	assert.Equal(t, 4, out["size"])

	out, err = analyzeContent(context.Background(), map[string]any{"data": "ab"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out["entropy"])
}

func TestCompressData_RepetitiveInputShrinks(t *testing.T) {
	data := ""
	for i := 0; i < 64; i++ {
		data += "abcdabcd"
	}
	out, err := compressData(context.Background(), map[string]any{"data": data})
	require.NoError(t, err)
	assert.Less(t, out["ratio"].(float64), 1.0)
}
