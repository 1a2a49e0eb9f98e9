package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var decomposeCmd = &cobra.Command{
	Use:   "decompose <task-type>",
	Short: "Show how a task type decomposes into subtasks",
	Long: `Decompose a task into its subtask list and parallel execution plan
without running anything. Unknown task types yield a single identity subtask.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecompose,
}

var (
	decomposeInputs []string // key=value pairs
	decomposeJSON   bool     // Output as JSON
)

func init() {
	decomposeCmd.Flags().StringArrayVarP(&decomposeInputs, "input", "i", nil, "task input as key=value (repeatable)")
	decomposeCmd.Flags().BoolVar(&decomposeJSON, "json", false, "Output decomposition as JSON")
	rootCmd.AddCommand(decomposeCmd)
}

func runDecompose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hub, err := newStudioHub(cfg)
	if err != nil {
		return err
	}
	defer hub.Close()

	input, err := parseInput(decomposeInputs)
	if err != nil {
		return err
	}

	result := hub.Decomposer().Decompose(args[0], input)
	batches := result.ParallelBatches()

	if decomposeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"task_type": result.TaskType,
			"subtasks":  result.Subtasks,
			"batches":   batches,
		})
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%s: %d subtasks", result.TaskType, len(result.Subtasks))))
	for _, st := range result.Subtasks {
		fmt.Printf("  %-20s priority=%d", st.ID, st.Priority)
		if len(st.DependsOn) > 0 {
			fmt.Printf("  after %s", strings.Join(st.DependsOn, ", "))
		}
		fmt.Println()
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Execution plan"))
	for i, batch := range batches {
		fmt.Printf("  %d. %s\n", i+1, strings.Join(batch, ", "))
	}
	return nil
}

// parseInput turns repeated key=value flags into a task input map. Values
// that parse as numbers or booleans keep their type.
func parseInput(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	input := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}
		input[key] = coerce(value)
	}
	return input, nil
}

func coerce(value string) any {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}
