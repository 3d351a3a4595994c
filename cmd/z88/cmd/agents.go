package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/helix-collective/z88/internal/agents"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents and presets",
	RunE:  runAgents,
}

var agentsPresetsFile string

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.Flags().StringVar(&agentsPresetsFile, "presets", "", "presets file to overlay (default from config)")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f472b6"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22d3ee")).MarginTop(1)
)

func runAgents(cmd *cobra.Command, _ []string) error {
	path := agentsPresetsFile
	if path == "" {
		if cfg, err := loadConfig(); err == nil {
			path = cfg.Agents.PresetsFile
		}
	}
	registry := agents.NewRegistry()
	if path != "" {
		if err := registry.LoadFile(path); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Agents"))
	fmt.Fprintln(out, agentTable(agents.All()))
	fmt.Fprintln(out, titleStyle.Render("Presets"))
	fmt.Fprintln(out, presetTable(registry.Presets()))
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers(headers...)
}

func agentTable(list []agents.Agent) string {
	t := newTable("", "ID", "Role", "Provider", "Temp")
	for _, a := range list {
		t.Row(a.Emoji, a.ID, a.Role, string(a.DefaultProvider), fmt.Sprintf("%.1f", a.DefaultTemperature))
	}
	return t.String()
}

func presetTable(list []agents.Preset) string {
	t := newTable("ID", "Name", "Agents", "Overrides")
	for _, p := range list {
		var overrides []string
		for agent, provider := range p.ProviderOverrides {
			overrides = append(overrides, agent+"→"+string(provider))
		}
		for agent, temp := range p.TemperatureOverrides {
			overrides = append(overrides, fmt.Sprintf("%s@%.1f", agent, temp))
		}
		t.Row(p.ID, p.Name, strings.Join(p.Agents, ", "), strings.Join(sorted(overrides), " "))
	}
	return t.String()
}
