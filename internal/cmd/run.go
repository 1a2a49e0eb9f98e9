package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/bus"
)

var runCmd = &cobra.Command{
	Use:   "run <task-type>",
	Short: "Run a task end to end through the agent fleet",
	Long: `Decompose the task, dispatch each generation of subtasks to the
built-in agent fleet, and report per-subtask outcomes.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runInputs  []string
	runTimeout time.Duration
)

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "task input as key=value (repeatable)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-subtask timeout (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hub, err := newStudioHub(cfg)
	if err != nil {
		return err
	}
	defer hub.Close()

	input, err := parseInput(runInputs)
	if err != nil {
		return err
	}
	timeout := runTimeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout()
	}

	started := time.Now()
	job := hub.RunJob(context.Background(), args[0], input, timeout)
	elapsed := time.Since(started)

	fmt.Println(headerStyle.Render(fmt.Sprintf("%s: %s (%s)", job.TaskType, job.Status, elapsed.Round(time.Millisecond))))

	ids := make([]string, 0, len(job.Results))
	for id := range job.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		result := job.Results[id]
		fmt.Printf("  %-20s %s", id, styleResult(result.Status))
		if result.Err != "" {
			fmt.Printf("  %s", errStyle.Render(result.Err))
		} else if len(result.Result) > 0 {
			fmt.Printf("  %s", dimStyle.Render(fmt.Sprintf("%v", result.Result)))
		}
		fmt.Println()
	}

	if job.Status != bus.StatusCompleted {
		return fmt.Errorf("job finished with status %s", job.Status)
	}
	return nil
}

func styleResult(status bus.TaskStatus) string {
	switch status {
	case bus.StatusCompleted:
		return idleStyle.Render(string(status))
	case bus.StatusPartial:
		return busyStyle.Render(string(status))
	default:
		return errStyle.Render(string(status))
	}
}
