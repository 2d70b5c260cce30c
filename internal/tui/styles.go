// Package tui provides a live terminal dashboard for a kernel run.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
// - Process completion progress
// - Syscall counts and rates
// - Syscall latency percentiles
// - Physical frame usage
// - Exit codes and the console of the selected process
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-teachos/internal/task"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	labelWideStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(25)
)

// =============================================================================
// Progress Bar Styles
// =============================================================================

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Table Styles
// =============================================================================

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	tableRowEvenStyle = lipgloss.NewStyle().
				Foreground(colorText)

	tableRowOddStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)

	tableRowSelectedStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Background(colorBorder).
				Bold(true)
)

// =============================================================================
// Memory Status Indicator
// =============================================================================

// MemoryStatus represents how much of the frame pool is left.
type MemoryStatus int

const (
	MemoryStatusOK MemoryStatus = iota
	MemoryStatusLow
	MemoryStatusExhausted
)

// GetMemoryStatus returns the status for the fraction of frames still free.
func GetMemoryStatus(freeRatio float64) MemoryStatus {
	switch {
	case freeRatio <= 0:
		return MemoryStatusExhausted
	case freeRatio < 0.10: // <10% free
		return MemoryStatusLow
	default:
		return MemoryStatusOK
	}
}

// GetMemoryLabel returns a styled label for the frame pool.
func GetMemoryLabel(freeRatio float64) string {
	switch GetMemoryStatus(freeRatio) {
	case MemoryStatusExhausted:
		return statusError.Render("● Frames (exhausted)")
	case MemoryStatusLow:
		return statusWarning.Render("● Frames (low)")
	default:
		return statusOK.Render("● Frames")
	}
}

// GetMemoryStyle returns the appropriate style for the memory status.
func GetMemoryStyle(status MemoryStatus) lipgloss.Style {
	switch status {
	case MemoryStatusExhausted:
		return statusError
	case MemoryStatusLow:
		return statusWarning
	default:
		return statusOK
	}
}

// =============================================================================
// Process Status Indicator
// =============================================================================

// GetStatusStyle returns a style for a scheduler status.
func GetStatusStyle(st task.Status) lipgloss.Style {
	switch st {
	case task.StatusRunning:
		return statusInfo
	case task.StatusExited:
		return mutedStyle
	default:
		return valueStyle
	}
}

// GetExitCodeStyle returns a style for an exit code.
func GetExitCodeStyle(code int32) lipgloss.Style {
	switch code {
	case 0:
		return valueGoodStyle
	case task.ExitCodeShutdown:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// GetExitCodeLabel returns a styled exit code.
func GetExitCodeLabel(code int32) string {
	return GetExitCodeStyle(code).Render(formatExitCode(code))
}

func formatExitCode(code int32) string {
	switch code {
	case task.ExitCodeFault:
		return fmt.Sprintf("%d (fault)", code)
	case task.ExitCodeShutdown:
		return fmt.Sprintf("%d (shutdown)", code)
	default:
		return fmt.Sprintf("%d", code)
	}
}

// =============================================================================
// Failure Rate Indicator
// =============================================================================

// GetFailureRateStyle returns a style for the fraction of syscalls that
// returned -1.
func GetFailureRateStyle(rate float64) lipgloss.Style {
	switch {
	case rate == 0:
		return valueGoodStyle
	case rate < 0.01: // <1%
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderKeyValueWide renders a label-value pair with wider label.
func RenderKeyValueWide(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelWideStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a progress bar.
func RenderProgressBar(progress float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
