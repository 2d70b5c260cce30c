package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/idgen"
	"github.com/randomizedcoder/go-teachos/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main summary dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProgress())

	if m.stats != nil {
		sections = append(sections, m.renderSyscallStats())
		sections = append(sections, m.renderLatencyStats())
		sections = append(sections, m.renderMemoryStats())

		// Exit codes only once something has exited badly
		if m.hasFailures() {
			sections = append(sections, m.renderExitCodes())
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders the process table and the console of the
// selected process.
func (m Model) renderDetailedView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProcessTable())
	sections = append(sections, m.renderConsole())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	memoryLabel := GetMemoryLabel(m.FreeFrameRatio())

	header := fmt.Sprintf(
		" teachos │ %s │ Boot: %s │ Exited: %d/%d │ Elapsed: %s ",
		memoryLabel,
		idgen.Short(m.bootID),
		m.ExitedProcesses(),
		m.targetProcesses,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	progress := m.Progress()

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(progress, barWidth)

	var status string
	switch {
	case m.targetProcesses > 0 && progress >= 1.0:
		status = statusOK.Render("✓ All processes exited")
	case m.stats != nil && m.stats.Running > 0:
		status = statusInfo.Render(fmt.Sprintf("Running... %d ready, %d exited", m.stats.Ready, m.stats.Exited))
	default:
		status = statusInfo.Render(fmt.Sprintf("Booting... %d processes", m.targetProcesses))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Processes"),
		progressBar,
		status,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Syscall Statistics
// =============================================================================

func (m Model) renderSyscallStats() string {
	if m.stats == nil {
		return ""
	}

	s := m.stats

	rows := []string{
		renderStatRow("Total Syscalls", formatNumber(s.TotalSyscalls), formatRate(s.InstantRate)),
	}
	for _, id := range abi.KnownSyscalls() {
		if n := s.PerSyscall[id]; n > 0 {
			rows = append(rows, RenderKeyValueWide("  "+id.String(), formatNumberFixed(n, 10)))
		}
	}
	if s.UnknownSyscalls > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("  out of table:"),
			valueWarnStyle.Render(formatNumberFixed(s.UnknownSyscalls, 10)),
		))
	}

	failureRate := m.FailureRate()
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render("Failed (-1):"),
		GetFailureRateStyle(failureRate).Render(
			fmt.Sprintf("%s (%s)", formatNumber(s.FailedSyscalls), formatPercent(failureRate)),
		),
	))

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Syscalls")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderStatRow(label, value, rate string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Width(12).Render(value),
		mutedStyle.Render(" ("),
		valueStyle.Render(rate),
		mutedStyle.Render(")"),
	)
}

// =============================================================================
// Latency Statistics
// =============================================================================

func (m Model) renderLatencyStats() string {
	if m.stats == nil || m.stats.TotalSyscalls == 0 {
		return ""
	}

	rows := []string{
		renderLatencyRow("P50 (median)", m.stats.LatencyP50),
		renderLatencyRow("P95", m.stats.LatencyP95),
		renderLatencyRow("P99", m.stats.LatencyP99),
		renderLatencyRow("Max", m.stats.LatencyMax),
	}

	note := dimStyle.Render("* Host time spent inside the kernel")

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Syscall Latency *")}, rows...)...,
	)
	content = lipgloss.JoinVertical(lipgloss.Left, content, note)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderLatencyRow(label string, d time.Duration) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(formatMsFromDuration(d)),
	)
}

// =============================================================================
// Memory
// =============================================================================

func (m Model) renderMemoryStats() string {
	if m.stats == nil {
		return ""
	}

	var rows []string
	if m.memorySource != nil {
		total := m.memorySource.TotalFrames()
		free := m.memorySource.FreeFrames()
		status := GetMemoryStatus(m.FreeFrameRatio())
		rows = append(rows,
			lipgloss.JoinHorizontal(lipgloss.Left,
				labelStyle.Render("Frames free:"),
				GetMemoryStyle(status).Render(fmt.Sprintf("%d / %d", free, total)),
			),
			RenderProgressBar(1-m.FreeFrameRatio(), 30),
		)
	}
	rows = append(rows,
		RenderKeyValue("Mapped (mmap)", formatBytes(m.stats.MappedBytes)),
		RenderKeyValue("Console output", formatBytes(m.stats.ConsoleBytes)),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Memory")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Exit Codes
// =============================================================================

func (m Model) hasFailures() bool {
	if m.stats == nil {
		return false
	}
	for code := range m.stats.ExitCodes {
		if code != 0 {
			return true
		}
	}
	return false
}

func (m Model) renderExitCodes() string {
	if m.stats == nil {
		return ""
	}

	codes := make([]int, 0, len(m.stats.ExitCodes))
	for code := range m.stats.ExitCodes {
		codes = append(codes, int(code))
	}
	sort.Ints(codes)

	var rows []string
	for _, code := range codes {
		rows = append(rows,
			lipgloss.JoinHorizontal(lipgloss.Left,
				labelStyle.Render(GetExitCodeLabel(int32(code))+":"),
				valueStyle.Render(fmt.Sprintf("%d", m.stats.ExitCodes[int32(code)])),
			),
		)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Exit Codes")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Process Table (Detailed View)
// =============================================================================

func (m Model) renderProcessTable() string {
	if m.processCount() == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No processes yet. Press 'd' to toggle."),
		)
	}

	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-4s %-12s %-8s %-14s %-9s %-8s %-10s",
			"PID", "Name", "Status", "Exit", "Syscalls", "Failed", "Uptime"),
	)

	maxRows := m.height - 10 - consoleTailLines
	if maxRows < 5 {
		maxRows = 5
	}

	// Keep the selected row visible
	first := 0
	if m.selected >= maxRows {
		first = m.selected - maxRows + 1
	}

	procs := m.stats.Processes
	var rows []string
	for i := first; i < len(procs); i++ {
		if i-first >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more processes", len(procs)-i)))
			break
		}
		rows = append(rows, m.renderProcessRow(i, procs[i]))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Processes"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderProcessRow(i int, p stats.Summary) string {
	rowStyle := tableRowEvenStyle
	if i%2 == 1 {
		rowStyle = tableRowOddStyle
	}
	if i == m.selected {
		rowStyle = tableRowSelectedStyle
	}

	exit := "-"
	if p.Exited {
		exit = formatExitCode(p.ExitCode)
	}

	row := fmt.Sprintf("%-4d %-12s %-8s %-14s %-9s %-8d %-10s",
		p.PID,
		truncateName(p.Name, 12),
		p.Status,
		exit,
		formatNumber(p.Syscalls),
		p.Failed,
		formatMsFromDuration(p.Uptime),
	)
	return rowStyle.Render(row)
}

func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// =============================================================================
// Console (Detailed View)
// =============================================================================

func (m Model) renderConsole() string {
	p, ok := m.SelectedProcess()
	if !ok {
		return ""
	}

	title := fmt.Sprintf("Console [%d %s]", p.PID, p.Name)
	lines := m.console
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("(no output)")}
	}

	maxLen := m.width - 6
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		if maxLen > 10 && len(line) > maxLen {
			line = line[:maxLen-3] + "..."
		}
		rendered = append(rendered, mutedStyle.Render(line))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render(title)}, rendered...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}
	if m.detailedView {
		shortcuts = append(shortcuts, "j/k: select")
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// =============================================================================
// Helper for time.Duration formatting
// =============================================================================

func formatMsFromDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
