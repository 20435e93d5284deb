// internal/tui/app.go
//
// Record monitor for freshet. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/freshet-io/freshet/internal/data"
	"github.com/freshet-io/freshet/internal/logging"
	"github.com/freshet-io/freshet/internal/process"
)

const defaultRefreshInterval = 2 * time.Second

var (
	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).MarginBottom(1)
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleWaiting = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	footerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

// RecordLister supplies the records the monitor displays.
type RecordLister interface {
	List() ([]data.Record, error)
}

type refreshMsg struct {
	records []data.Record
	err     error
}

type pollMsg struct{}

// MonitorOption customizes Monitor construction for tests and alternate
// runtimes.
type MonitorOption func(*Monitor)

// WithRefreshInterval overrides how often the monitor polls the record store.
func WithRefreshInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.refreshInterval = interval
		}
	}
}

// WithMonitorLogger attaches the project log.
func WithMonitorLogger(logger *logging.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// Monitor is the main application model. In bubbletea, this holds ALL your
// state.
type Monitor struct {
	store    RecordLister
	registry *process.Registry
	logger   *logging.Logger

	records   []data.Record
	loaded    bool
	selection int
	expanded  bool
	err       error
	statusMsg string

	spinner         spinner.Model
	refreshInterval time.Duration

	width  int
	height int
}

// NewMonitor builds the record monitor over a record store and a process
// registry.
func NewMonitor(store RecordLister, registry *process.Registry, opts ...MonitorOption) (*Monitor, error) {
	if store == nil {
		return nil, fmt.Errorf("tui: record store is required")
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = labelStyleRunning
	monitor := &Monitor{
		store:           store,
		registry:        registry,
		spinner:         sp,
		refreshInterval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(monitor)
		}
	}
	return monitor, nil
}

// Init is called once when the program starts.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchRecords())
}

// Update is called when a message is received.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		if msg.err != nil {
			m.err = msg.err
			m.logf("monitor refresh failed: %v", msg.err)
			return m, m.schedulePoll()
		}
		m.err = nil
		m.loaded = true
		m.records = msg.records
		m.statusMsg = ""
		if m.selection >= len(m.records) {
			m.selection = max(0, len(m.records)-1)
		}
		return m, m.schedulePoll()

	case pollMsg:
		return m, m.fetchRecords()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

func (m *Monitor) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.selection > 0 {
			m.selection--
		}
	case "down", "j":
		if m.selection < len(m.records)-1 {
			m.selection++
		}
	case "enter":
		m.expanded = !m.expanded
	case "r":
		m.statusMsg = "Refreshing records..."
		return m, m.fetchRecords()
	}
	return m, nil
}

// View renders the current state to a string.
func (m *Monitor) View() string {
	header := headerStyle.Render("FRESHET RECORDS")
	if m.err != nil {
		return fmt.Sprintf("%s\nStore error: %v\n\n%s", header, m.err, m.footer())
	}
	if !m.loaded {
		return fmt.Sprintf("%s\n%s Loading records...", header, m.spinner.View())
	}
	lines := []string{header, m.summaryLine(), ""}
	if len(m.records) == 0 {
		lines = append(lines, detailTextStyle.Render("  no records yet"))
	}
	for i, record := range m.records {
		lines = append(lines, m.renderRecordLine(i, record))
		if i == m.selection && m.expanded {
			lines = append(lines, m.renderRecordDetails(record))
		}
	}
	if m.statusMsg != "" {
		lines = append(lines, "", detailTextStyle.Render(m.statusMsg))
	}
	lines = append(lines, "", m.footer())
	return strings.Join(lines, "\n")
}

func (m *Monitor) summaryLine() string {
	counts := map[data.Status]int{}
	for _, record := range m.records {
		counts[record.Status]++
	}
	parts := []string{fmt.Sprintf("Records: %d", len(m.records))}
	for _, status := range []data.Status{data.StatusProcessing, data.StatusDone, data.StatusError} {
		if counts[status] > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", friendlyLabel(string(status)), counts[status]))
		}
	}
	if counts[data.StatusProcessing] > 0 {
		parts = append(parts, m.spinner.View())
	}
	return strings.Join(parts, " · ")
}

func (m *Monitor) renderRecordLine(idx int, record data.Record) string {
	indicator := " "
	if idx == m.selection {
		indicator = ">"
	}
	name := strings.TrimSpace(record.Name)
	if name == "" {
		name = record.ProcessSlug
	}
	label := labelStyleForStatus(record.Status).Render(friendlyLabel(string(record.Status)))
	return fmt.Sprintf("%s %s · %s · [%s]", indicator, name, record.ProcessSlug, label)
}

func (m *Monitor) renderRecordDetails(record data.Record) string {
	details := []string{
		fmt.Sprintf("ID: %s", record.ID),
		fmt.Sprintf("Process: %s %s (%s)", record.ProcessSlug, record.ProcessVersion, record.ProcessType),
	}
	if m.registry != nil {
		if proc, err := m.registry.Resolve(record.ProcessSlug); err == nil && proc.Description != "" {
			details = append(details, proc.Description)
		}
	}
	if !record.StartedAt.IsZero() {
		details = append(details, fmt.Sprintf("Started: %s", record.StartedAt.Format(time.RFC3339)))
	}
	if record.Finished() {
		details = append(details, fmt.Sprintf("Finished: %s", record.FinishedAt.Format(time.RFC3339)))
	}
	if record.Error != "" {
		details = append(details, fmt.Sprintf("Error: %s", record.Error))
	}
	if len(record.Output) > 0 {
		keys := make([]string, 0, len(record.Output))
		for key := range record.Output {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		details = append(details, fmt.Sprintf("Outputs: %s", strings.Join(keys, ", ")))
	}
	body := "  " + strings.Join(details, "\n  ")
	return detailTextStyle.Render(body)
}

func (m *Monitor) footer() string {
	return footerStyle.Render("enter=details  r=refresh  j/k=move  q=quit")
}

func (m *Monitor) fetchRecords() tea.Cmd {
	return func() tea.Msg {
		records, err := m.store.List()
		return refreshMsg{records: records, err: err}
	}
}

func (m *Monitor) schedulePoll() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}

func (m *Monitor) logf(format string, args ...any) {
	m.logger.Printf(format, args...)
}

func labelStyleForStatus(status data.Status) lipgloss.Style {
	switch status {
	case data.StatusDone:
		return labelStyleDone
	case data.StatusError:
		return labelStyleError
	case data.StatusProcessing:
		return labelStyleRunning
	case data.StatusWaiting, data.StatusPreparing:
		return labelStyleWaiting
	default:
		return labelStyleDefault
	}
}

func friendlyLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	replacer := strings.NewReplacer("_", " ", "-", " ")
	words := strings.Fields(replacer.Replace(strings.ToLower(value)))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// Run starts the monitor in the terminal and blocks until it exits.
func Run(store RecordLister, registry *process.Registry, opts ...MonitorOption) error {
	monitor, err := NewMonitor(store, registry, opts...)
	if err != nil {
		return err
	}
	program := tea.NewProgram(monitor, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
