package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-teachos/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries updated statistics.
type StatsMsg struct {
	Stats *stats.AggregatedStats
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// consoleTailLines is how many console lines the detailed view shows.
const consoleTailLines = 8

// Model represents the TUI state.
type Model struct {
	// Configuration
	targetProcesses int
	bootID          string
	metricsAddr     string

	// Current state
	stats        *stats.AggregatedStats
	console      []string
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool
	selected     int // index into stats.Processes

	// Display options
	width  int
	height int

	statsSource   StatsSource
	consoleSource ConsoleSource
	memorySource  MemorySource

	quitting bool
}

// StatsSource provides aggregated statistics.
type StatsSource interface {
	Aggregate() *stats.AggregatedStats
}

// ConsoleSource provides the recent console lines of a process.
type ConsoleSource interface {
	RecentLines(pid, n int) []string
}

// MemorySource reports the physical frame pool.
type MemorySource interface {
	TotalFrames() int
	FreeFrames() int
}

// Config holds TUI configuration.
type Config struct {
	TargetProcesses int
	BootID          string
	MetricsAddr     string
	StatsSource     StatsSource
	ConsoleSource   ConsoleSource
	MemorySource    MemorySource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		targetProcesses: cfg.TargetProcesses,
		bootID:          cfg.BootID,
		metricsAddr:     cfg.MetricsAddr,
		statsSource:     cfg.StatsSource,
		consoleSource:   cfg.ConsoleSource,
		memorySource:    cfg.MemorySource,
		startTime:       time.Now(),
		lastUpdate:      time.Now(),
		width:           80,
		height:          24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m, tickCmd()
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			m.refreshConsole()
			return m, nil
		case "down", "j":
			if m.selected < m.processCount()-1 {
				m.selected++
			}
			m.refreshConsole()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.statsSource != nil {
			m.setStats(m.statsSource.Aggregate())
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatsMsg:
		m.setStats(msg.Stats)
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) setStats(s *stats.AggregatedStats) {
	m.stats = s
	if n := m.processCount(); m.selected >= n {
		m.selected = max(n-1, 0)
	}
	m.refreshConsole()
}

func (m *Model) refreshConsole() {
	m.console = nil
	if m.consoleSource == nil {
		return
	}
	if p, ok := m.SelectedProcess(); ok {
		m.console = m.consoleSource.RecentLines(p.PID, consoleTailLines)
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && m.processCount() > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// ExitedProcesses returns how many processes have exited.
func (m Model) ExitedProcesses() int {
	if m.stats == nil {
		return 0
	}
	return m.stats.Exited
}

// TargetProcesses returns the number of processes booted.
func (m Model) TargetProcesses() int {
	return m.targetProcesses
}

// Progress returns the fraction of processes that have exited (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.targetProcesses == 0 {
		return 0
	}
	return float64(m.ExitedProcesses()) / float64(m.targetProcesses)
}

// FailureRate returns the fraction of syscalls that returned -1.
func (m Model) FailureRate() float64 {
	if m.stats == nil || m.stats.TotalSyscalls == 0 {
		return 0
	}
	return float64(m.stats.FailedSyscalls) / float64(m.stats.TotalSyscalls)
}

// FreeFrameRatio returns the fraction of frames still free, or 1 when no
// memory source is set.
func (m Model) FreeFrameRatio() float64 {
	if m.memorySource == nil || m.memorySource.TotalFrames() == 0 {
		return 1
	}
	return float64(m.memorySource.FreeFrames()) / float64(m.memorySource.TotalFrames())
}

// SelectedProcess returns the process highlighted in the detailed view.
func (m Model) SelectedProcess() (stats.Summary, bool) {
	if m.selected < 0 || m.selected >= m.processCount() {
		return stats.Summary{}, false
	}
	return m.stats.Processes[m.selected], true
}

func (m Model) processCount() int {
	if m.stats == nil {
		return 0
	}
	return len(m.stats.Processes)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStats sends a stats update to the TUI.
func SendStats(p *tea.Program, stats *stats.AggregatedStats) {
	if p != nil {
		p.Send(StatsMsg{Stats: stats})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// formatRate formats a rate with appropriate precision.
func formatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}

// formatPercent formats a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// formatNumberWithCommas formats a number with thousand separators.
func formatNumberWithCommas(n int64) string {
	if n < 0 {
		return "0"
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

// formatNumberFixed formats a number with commas in a fixed-width field (right-aligned).
func formatNumberFixed(n int64, width int) string {
	return fmt.Sprintf("%*s", width, formatNumberWithCommas(n))
}
