package stats

// This file implements the exit summary formatter which displays
// statistics at program exit.

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// BootID identifies the run
	BootID string

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// Frames and FreeFrames describe physical memory at exit
	Frames     int
	FreeFrames int

	// ShowPerProcess enables the per-process table
	ShowPerProcess bool

	// ConsoleTail holds the last console lines of each pid
	ConsoleTail map[int][]string

	// ConsoleFailures counts failure markers seen on the console
	ConsoleFailures map[string]int
}

// FormatExitSummary formats aggregated stats for display at program exit.
//
// The summary includes:
// - Run information
// - Per-process results
// - Syscall statistics with latency percentiles
// - Memory accounting
// - Exit codes and footnotes
func FormatExitSummary(stats *AggregatedStats, cfg SummaryConfig) string {
	if stats == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	writeHeader(&b)

	// Run info
	fmt.Fprintf(&b, "Boot ID:                %s\n", cfg.BootID)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Processes:              %d (%d exited)\n\n", stats.TotalProcesses, stats.Exited)

	// Per-process table
	if cfg.ShowPerProcess && len(stats.Processes) > 0 {
		writeSection(&b, "Processes")

		fmt.Fprintf(&b, "  %-4s %-12s %-8s %6s %10s %9s %8s\n", "PID", "Name", "Status", "Exit", "Uptime", "Syscalls", "Failed")
		b.WriteString("  " + strings.Repeat("─", 63) + "\n")
		for _, p := range stats.Processes {
			exit := "-"
			if p.Exited {
				exit = fmt.Sprintf("%d", p.ExitCode)
			}
			fmt.Fprintf(&b, "  %-4d %-12s %-8s %6s %10s %9d %8d\n",
				p.PID, truncate(p.Name, 12), p.Status, exit, FormatMs(p.Uptime), p.Syscalls, p.Failed)
		}
		b.WriteString("\n")
	}

	// Syscall statistics
	writeSection(&b, "Syscall Statistics")

	fmt.Fprintf(&b, "  %-16s %12s\n", "Syscall", "Total")
	b.WriteString("  " + strings.Repeat("─", 29) + "\n")
	for _, id := range abi.KnownSyscalls() {
		if n := stats.PerSyscall[id]; n > 0 {
			fmt.Fprintf(&b, "  %-16s %12s\n", id, FormatNumber(n))
		}
	}
	if stats.UnknownSyscalls > 0 {
		fmt.Fprintf(&b, "  %-16s %12s\n", "(out of table)", FormatNumber(stats.UnknownSyscalls))
	}
	fmt.Fprintf(&b, "\n  Total:                %s  (%s)\n", FormatNumber(stats.TotalSyscalls), FormatRate(stats.SyscallRate))
	fmt.Fprintf(&b, "  Failed (-1):          %s\n", FormatNumber(stats.FailedSyscalls))
	if stats.TotalSyscalls > 0 {
		fmt.Fprintf(&b, "  Latency P50:          %s\n", FormatMs(stats.LatencyP50))
		fmt.Fprintf(&b, "  Latency P95:          %s\n", FormatMs(stats.LatencyP95))
		fmt.Fprintf(&b, "  Latency P99:          %s\n", FormatMs(stats.LatencyP99))
		fmt.Fprintf(&b, "  Latency Max:          %s\n", FormatMs(stats.LatencyMax))
	}
	b.WriteString("\n")

	// Memory
	if cfg.Frames > 0 {
		writeSection(&b, "Memory")

		used := cfg.Frames - cfg.FreeFrames
		fmt.Fprintf(&b, "  Frames:               %d total, %d in use at exit\n", cfg.Frames, used)
		fmt.Fprintf(&b, "  Console Output:       %s\n", FormatBytes(stats.ConsoleBytes))
		if stats.MappedBytes > 0 {
			fmt.Fprintf(&b, "  Still mmapped:        %s\n", FormatBytes(stats.MappedBytes))
		}
		b.WriteString("\n")
	}

	// Exit codes
	if len(stats.ExitCodes) > 0 {
		writeSection(&b, "Exit Codes")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(stats.ExitCodes))
		for code := range stats.ExitCodes {
			codes = append(codes, int(code))
		}
		sort.Ints(codes)

		for _, code := range codes {
			count := stats.ExitCodes[int32(code)]
			label := exitCodeLabel(int32(code))
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, label, count)
		}
		b.WriteString("\n")
	}

	// Console tails of processes that did not exit cleanly
	if tails := renderConsoleTails(stats, cfg.ConsoleTail); tails != "" {
		b.WriteString(tails)
	}

	// Footnotes (diagnostic information)
	footnotes := renderFootnotes(stats, cfg)
	if footnotes != "" {
		b.WriteString(footnotes)
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)

	return b.String()
}

func writeHeader(b *strings.Builder) {
	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                             teachos Exit Summary\n")
	b.WriteString(heavyRule + "\n")
}

func writeSection(b *strings.Builder, title string) {
	b.WriteString(lightRule)
	pad := (len(lightRule)/3 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	writeHeader(&b)

	fmt.Fprintf(&b, "Boot ID:                %s\n", cfg.BootID)
	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(cfg.Duration))

	b.WriteString("(No process statistics were collected)\n\n")

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)

	return b.String()
}

// renderConsoleTails shows the last console lines of every process that
// ended with a non-zero code.
func renderConsoleTails(stats *AggregatedStats, tails map[int][]string) string {
	var b strings.Builder
	for _, p := range stats.Processes {
		if !p.Exited || p.ExitCode == 0 {
			continue
		}
		lines := tails[p.PID]
		if len(lines) == 0 {
			continue
		}
		if b.Len() == 0 {
			writeSection(&b, "Console (failed processes)")
		}
		fmt.Fprintf(&b, "  [%d %s]\n", p.PID, p.Name)
		for _, line := range lines {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

// renderFootnotes adds diagnostic info that doesn't belong in main metrics.
func renderFootnotes(stats *AggregatedStats, cfg SummaryConfig) string {
	var footnotes []string

	if stats.UnknownSyscalls > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[1] Syscall ids outside the table: %d (not counted in task_info)",
			stats.UnknownSyscalls))
	}

	if n := cfg.ConsoleFailures["FAIL"]; n > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[2] Apps reported %d failed checks on the console",
			n))
	}

	if len(footnotes) == 0 {
		return ""
	}

	var b strings.Builder
	writeSection(&b, "Footnotes")
	for _, fn := range footnotes {
		fmt.Fprintf(&b, "  %s\n", fn)
	}
	b.WriteString("\n")
	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int32) string {
	switch code {
	case 0:
		return "(clean)"
	case task.ExitCodeFault:
		return "(fault)"
	case task.ExitCodeShutdown:
		return "(shutdown)"
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
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

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
