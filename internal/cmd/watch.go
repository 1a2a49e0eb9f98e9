package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/bus"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/config"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/coordination"
	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch [task-type]",
	Short: "Stream bus traffic in a live view",
	Long: `Watch the message bus live: task dispatches, replies, and agent
lifecycle events as they happen. With a task type argument the task is run
through the agent fleet while you watch; without one the view streams
agent heartbeats until quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var (
	watchInputs  []string
	watchTimeout time.Duration
)

func init() {
	watchCmd.Flags().StringArrayVarP(&watchInputs, "input", "i", nil, "task input as key=value (repeatable)")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "per-subtask timeout (default from config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hub, err := newStudioHub(cfg)
	if err != nil {
		return err
	}
	defer hub.Close()

	input, err := parseInput(watchInputs)
	if err != nil {
		return err
	}
	timeout := watchTimeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout()
	}

	title := "studio watch"
	if len(args) == 1 {
		title = fmt.Sprintf("studio watch: %s", args[0])
	}
	program := tea.NewProgram(tui.New(title), tea.WithAltScreen())

	// A watch session outlives config edits; surface hot reloads in the view.
	if viper.ConfigFileUsed() != "" {
		config.Watch(func(updated *config.Config) {
			program.Send(tui.EventMsg{
				Topic: "config",
				Line: fmt.Sprintf("reloaded (level=%s, timeout=%s)",
					updated.Logging.Level, updated.DefaultTimeout()),
			})
		})
	}

	// Mirror bus traffic into the view. Lifecycle events arrive on the
	// shared agents topic; task traffic is per-agent.
	hub.Bus().Subscribe(bus.TopicAgentEvents, func(m bus.Message) {
		if e, ok := m.(*bus.AgentEventMessage); ok {
			program.Send(tui.EventMsg{
				Topic: m.Topic(),
				Line:  fmt.Sprintf("%s %s", e.AgentID, e.Event),
			})
		}
	})
	for _, summary := range hub.Registry().Status().Agents {
		agentID := summary.ID
		hub.Bus().Subscribe(bus.TaskTopic(agentID), func(m bus.Message) {
			if t, ok := m.(*bus.TaskMessage); ok {
				program.Send(tui.EventMsg{
					Topic: m.Topic(),
					Line:  fmt.Sprintf("%s -> %s", t.TaskType, agentID),
				})
			}
		})
	}
	hub.Bus().Subscribe(bus.ResultTopic(coordination.HubAgentID), func(m bus.Message) {
		if r, ok := m.(*bus.TaskResultMessage); ok {
			line := fmt.Sprintf("%s %s", r.TaskID, r.Status)
			if r.Err != "" {
				line += ": " + r.Err
			}
			program.Send(tui.EventMsg{Topic: m.Topic(), Line: line})
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if len(args) == 1 {
		taskType := args[0]
		go func() {
			job := hub.RunJob(ctx, taskType, input, timeout)
			completed := 0
			for _, r := range job.Results {
				if r.Status == bus.StatusCompleted {
					completed++
				}
			}
			program.Send(tui.JobDoneMsg{
				Summary: fmt.Sprintf("%s: %s (%d/%d subtasks)", taskType, job.Status, completed, len(job.Results)),
				Failed:  job.Status != bus.StatusCompleted,
			})
		}()
	} else {
		go heartbeatLoop(ctx, hub)
	}

	_, err = program.Run()
	return err
}

// heartbeatLoop publishes periodic heartbeats for every registered agent so
// an idle watch session still shows live traffic.
func heartbeatLoop(ctx context.Context, hub *coordination.Hub) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range hub.Registry().All() {
				hub.Bus().Publish(bus.NewAgentEventMessage(
					a.ID(), bus.AgentHeartbeat, a.Type(), string(a.Status()),
					map[string]any{"tasks": a.Stats().CurrentTaskCount}))
			}
		}
	}
}
