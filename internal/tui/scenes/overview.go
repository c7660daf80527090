// Package scenes provides TUI scenes for chain-sentry
package scenes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"chain-sentry/internal/tui/api"
	"chain-sentry/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// OverviewScene displays backend health and alert statistics
type OverviewScene struct {
	client     *api.Client
	stats      *api.Stats
	err        error
	width      int
	height     int
	lastUpdate time.Time
	loading    bool
}

// statsMsg carries updated stats
type statsMsg struct {
	stats *api.Stats
	err   error
}

// NewOverviewScene creates a new overview scene
func NewOverviewScene(client *api.Client) *OverviewScene {
	return &OverviewScene{
		client:  client,
		loading: true,
		stats: &api.Stats{
			Healthy: false,
		},
	}
}

// Init initializes the overview scene and fetches initial data
func (o *OverviewScene) Init() tea.Cmd {
	return o.fetchStats()
}

func (o *OverviewScene) fetchStats() tea.Cmd {
	return func() tea.Msg {
		stats, err := o.client.GetStats()
		return statsMsg{stats: stats, err: err}
	}
}

// TickCmd returns a command that ticks every interval.
// The parent model returns this only while the scene is active.
func (o *OverviewScene) TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "overview", Time: t}
	})
}

// TickMsg is sent on each tick, exported for use by the parent model
type TickMsg struct {
	Scene string
	Time  time.Time
}

// Update handles messages for the overview scene
func (o *OverviewScene) Update(msg tea.Msg) (*OverviewScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		o.width = msg.Width
		o.height = msg.Height
		return o, nil

	case statsMsg:
		o.loading = false
		o.stats = msg.stats
		o.err = msg.err
		o.lastUpdate = time.Now()
		return o, nil

	case TickMsg:
		// Only respond to our own ticks
		if msg.Scene == "overview" {
			return o, o.fetchStats()
		}
		return o, nil
	}

	return o, nil
}

// View renders the overview
func (o *OverviewScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Chain Sentry Overview"))
	b.WriteString("\n\n")

	if o.loading {
		b.WriteString(styles.Muted.Render("Loading..."))
		return b.String()
	}

	if o.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("Error: %v", o.err)))
		b.WriteString("\n")
	}

	var statusText string
	if o.stats.Healthy {
		statusText = styles.StatusOK.Render("● HEALTHY")
	} else {
		statusText = styles.StatusError.Render("● UNREACHABLE")
	}
	b.WriteString(fmt.Sprintf("  Status: %s  %s\n\n", statusText, styles.Muted.Render(o.stats.StatusReason)))

	cards := []string{
		o.renderMetricCard("Alerts", fmt.Sprintf("%d", o.stats.TotalAlerts)),
		o.renderMetricCard("Blocks", formatNumber(o.stats.BlocksObserved)),
		o.renderMetricCard("Assessments", formatNumber(o.stats.Assessments)),
		o.renderMetricCard("Uptime", o.stats.Uptime),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	b.WriteString(styles.Subtitle.Render("  Alerts by severity"))
	b.WriteString("\n")
	b.WriteString(o.renderCounts(o.stats.BySeverity))
	b.WriteString("\n")

	b.WriteString(styles.Subtitle.Render("  Alerts by category"))
	b.WriteString("\n")
	b.WriteString(o.renderCounts(o.stats.ByCategory))
	b.WriteString("\n")

	summary := fmt.Sprintf("  Subscribers: %d  |  Sinks: %d  |  Dead letters: %d  |  Active windows: %d",
		o.stats.Subscribers, o.stats.Sinks, o.stats.DeadLetterSize, o.stats.ActiveWindows)
	b.WriteString(styles.Muted.Render(summary))
	b.WriteString("\n")

	if !o.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  Last updated: %s", o.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (o *OverviewScene) renderMetricCard(label, value string) string {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.MutedColor).
		Padding(0, 2).
		Width(18).
		Align(lipgloss.Center)

	content := fmt.Sprintf("%s\n%s",
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	)

	return card.Render(content)
}

func (o *OverviewScene) renderCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return styles.Muted.Render("  none yet")
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows []string
	for _, k := range keys {
		rows = append(rows, fmt.Sprintf("  %-28s %d", k, counts[k]))
	}
	return strings.Join(rows, "\n")
}

func formatNumber(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
