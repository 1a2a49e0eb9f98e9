package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub005/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show the agent registry",
	Long:  `Display the built-in agent fleet: identifiers, types, capabilities, and availability.`,
	RunE:  runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func styleStatus(status registry.Status) string {
	switch status {
	case registry.StatusIdle:
		return idleStyle.Render(string(status))
	case registry.StatusWorking:
		return busyStyle.Render(string(status))
	case registry.StatusError, registry.StatusShutdown:
		return errStyle.Render(string(status))
	default:
		return dimStyle.Render(string(status))
	}
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	hub, err := newStudioHub(cfg)
	if err != nil {
		return err
	}
	defer hub.Close()

	snapshot := hub.Registry().Status()
	stale := make(map[string]bool)
	for _, id := range hub.Registry().Stale(cfg.HeartbeatStale()) {
		stale[id] = true
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Agents (%d)", snapshot.TotalAgents)))
	for _, a := range snapshot.Agents {
		caps := make([]string, len(a.Capabilities))
		for i, c := range a.Capabilities {
			caps[i] = string(c)
		}
		heartbeat := "hb: " + a.LastHeartbeat.Format("15:04:05")
		if a.LastHeartbeat.IsZero() {
			heartbeat = "hb: never"
		}
		if stale[a.ID] {
			heartbeat += " (stale)"
		}
		fmt.Printf("  %-14s %-12s %-14s %s\n",
			a.ID, styleStatus(a.Status), dimStyle.Render(a.Type), dimStyle.Render(heartbeat))
		fmt.Printf("  %s\n", dimStyle.Render("  caps: "+strings.Join(caps, ", ")))
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("By type"))
	for _, line := range countLines(snapshot.ByType) {
		fmt.Println("  " + line)
	}
	return nil
}

// countLines renders a count map as sorted "name: n" lines.
func countLines[K ~string](counts map[K]int) []string {
	lines := make([]string, 0, len(counts))
	for k, n := range counts {
		lines = append(lines, fmt.Sprintf("%s: %d", string(k), n))
	}
	sort.Strings(lines)
	return lines
}
