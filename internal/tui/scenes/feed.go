package scenes

import (
	"fmt"
	"strings"
	"time"

	"chain-sentry/internal/tui/api"
	"chain-sentry/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FeedScene displays the live alert feed
type FeedScene struct {
	client     *api.Client
	alerts     []api.Alert
	total      int
	err        string
	width      int
	height     int
	cursor     int
	offset     int
	loading    bool
	maxRows    int
	lastUpdate time.Time
}

// feedMsg carries updated alerts
type feedMsg struct {
	alerts []api.Alert
	total  int
	err    string
}

// NewFeedScene creates a new alert feed scene
func NewFeedScene(client *api.Client) *FeedScene {
	return &FeedScene{
		client:  client,
		loading: true,
		maxRows: 10,
	}
}

// Init initializes the feed scene
func (f *FeedScene) Init() tea.Cmd {
	return f.fetchAlerts()
}

func (f *FeedScene) fetchAlerts() tea.Cmd {
	return func() tea.Msg {
		resp, err := f.client.GetAlerts(100)
		if err != nil {
			return feedMsg{err: err.Error()}
		}
		return feedMsg{
			alerts: resp.Alerts,
			total:  resp.Total,
		}
	}
}

// TickCmd returns a command that ticks every interval
func (f *FeedScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "feed", Time: t}
	})
}

// Update handles messages for the feed scene
func (f *FeedScene) Update(msg tea.Msg) (*FeedScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		f.width = msg.Width
		f.height = msg.Height
		f.maxRows = max(5, f.height-12)
		return f, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if f.cursor > 0 {
				f.cursor--
				if f.cursor < f.offset {
					f.offset = f.cursor
				}
			}
		case "down", "j":
			if f.cursor < len(f.alerts)-1 {
				f.cursor++
				if f.cursor >= f.offset+f.maxRows {
					f.offset = f.cursor - f.maxRows + 1
				}
			}
		case "pgup":
			f.cursor = max(0, f.cursor-f.maxRows)
			f.offset = max(0, f.offset-f.maxRows)
		case "pgdown":
			f.cursor = min(len(f.alerts)-1, f.cursor+f.maxRows)
			f.offset = min(max(0, len(f.alerts)-f.maxRows), f.offset+f.maxRows)
		case "r":
			// Manual refresh
			f.loading = true
			return f, f.fetchAlerts()
		}
		return f, nil

	case feedMsg:
		f.loading = false
		f.alerts = msg.alerts
		f.total = msg.total
		f.err = msg.err
		f.lastUpdate = time.Now()
		// Reset cursor if out of bounds
		if f.cursor >= len(f.alerts) {
			f.cursor = max(0, len(f.alerts)-1)
		}
		return f, nil

	case TickMsg:
		if msg.Scene == "feed" {
			return f, f.fetchAlerts()
		}
		return f, nil
	}

	return f, nil
}

// View renders the alert feed
func (f *FeedScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Security Alerts"))
	b.WriteString("\n\n")

	if f.loading && len(f.alerts) == 0 {
		b.WriteString(styles.Muted.Render("  Loading alerts..."))
		return b.String()
	}

	if f.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", f.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	if len(f.alerts) == 0 {
		b.WriteString(styles.Muted.Render("  No alerts yet."))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Alerts appear here as chain and news monitors detect activity."))
		return b.String()
	}

	countText := fmt.Sprintf("  Showing %d of %d alerts", len(f.alerts), f.total)
	b.WriteString(styles.Subtitle.Render(countText))
	if f.loading {
		b.WriteString(styles.Muted.Render("  (refreshing...)"))
	}
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-10s %-8s %-26s %s",
		"Time", "Severity", "Category", "Title")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	endIdx := min(f.offset+f.maxRows, len(f.alerts))
	for i, alert := range f.alerts[f.offset:endIdx] {
		idx := f.offset + i
		b.WriteString(f.renderAlertRow(alert, idx == f.cursor))
		b.WriteString("\n")
	}

	if len(f.alerts) > f.maxRows {
		scrollInfo := fmt.Sprintf("\n  %d-%d of %d (↑↓ to scroll, [r] refresh)",
			f.offset+1, endIdx, len(f.alerts))
		b.WriteString(styles.Muted.Render(scrollInfo))
	} else {
		b.WriteString(styles.Muted.Render("\n  [r] Refresh"))
	}

	if !f.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", f.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (f *FeedScene) renderAlertRow(alert api.Alert, selected bool) string {
	timestamp := alert.Timestamp.Format("15:04:05")
	severity := f.formatSeverity(alert.Severity)
	category := truncate(alert.Category, 26)
	title := truncate(alert.Title, 50)

	row := fmt.Sprintf("  %-10s %s %-26s %s", timestamp, severity, category, title)

	if selected {
		return lipgloss.NewStyle().
			Background(styles.Primary).
			Foreground(styles.White).
			Render(row)
	}

	return row
}

func (f *FeedScene) formatSeverity(sev string) string {
	width := 8
	var style lipgloss.Style

	switch sev {
	case "high":
		style = styles.StatusError
	case "medium":
		style = styles.StatusWarning
	case "low":
		style = styles.StatusOK
	default:
		style = styles.Muted
	}

	padded := fmt.Sprintf("%-*s", width, strings.ToUpper(sev))
	return style.Render(padded)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
