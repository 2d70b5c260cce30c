package tui

import (
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/stats"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

// =============================================================================
// Edge Case Tests: Window Sizing
// Common bugs: zero dimensions, very small, very large, negative
// =============================================================================

func TestModel_WindowSize_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"zero dimensions", 0, 0},
		{"negative width", -100, 24},
		{"negative height", 80, -50},
		{"extremely small", 1, 1},
		{"extremely large", 10000, 5000},
		{"very large width", 500, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := New(Config{TargetProcesses: 3})
			newModel, _ := model.Update(tea.WindowSizeMsg{Width: tt.width, Height: tt.height})
			m := newModel.(Model)

			if m.width != tt.width || m.height != tt.height {
				t.Errorf("size = %dx%d, want %dx%d", m.width, m.height, tt.width, tt.height)
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("View() panicked with dimensions (%d, %d): %v", tt.width, tt.height, r)
				}
			}()
			m.stats = sampleStats()
			_ = m.View()
			m.detailedView = true
			_ = m.View()
		})
	}
}

// =============================================================================
// Edge Case Tests: Stats Values
// Common bugs: nil stats, zero values, overflow, negative values
// =============================================================================

func TestModel_Stats_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		stats *stats.AggregatedStats
	}{
		{"nil stats", nil},
		{"all zeros", &stats.AggregatedStats{}},
		{
			"large values",
			&stats.AggregatedStats{
				TotalSyscalls:  999999999999,
				FailedSyscalls: 999999999,
				ConsoleBytes:   999999999999999,
				PerSyscall:     map[abi.SyscallID]int64{abi.SysWrite: 999999999999},
			},
		},
		{
			"negative values",
			&stats.AggregatedStats{
				TotalSyscalls: -100,
				MappedBytes:   -4096,
				Exited:        -1,
			},
		},
		{
			"more failures than calls",
			&stats.AggregatedStats{TotalSyscalls: 1, FailedSyscalls: 5},
		},
		{
			"NaN rate",
			&stats.AggregatedStats{TotalSyscalls: 10, InstantRate: math.NaN()},
		},
		{
			"Inf rate",
			&stats.AggregatedStats{TotalSyscalls: 10, InstantRate: math.Inf(1)},
		},
		{
			"huge latency",
			&stats.AggregatedStats{TotalSyscalls: 1, LatencyMax: time.Duration(math.MaxInt64)},
		},
		{
			"nil maps",
			&stats.AggregatedStats{TotalSyscalls: 3, PerSyscall: nil, ExitCodes: nil},
		},
		{
			"only out of table ids",
			&stats.AggregatedStats{TotalSyscalls: 3, UnknownSyscalls: 3, FailedSyscalls: 3},
		},
		{
			"many exit codes",
			&stats.AggregatedStats{ExitCodes: map[int32]int{-3: 1, -2: 4, 0: 2, 1: 1, 255: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := New(Config{TargetProcesses: 3})
			model.stats = tt.stats

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("View() panicked: %v", r)
				}
			}()
			if out := model.View(); out == "" {
				t.Error("View() returned empty string")
			}
		})
	}
}

func TestExitCodeSectionSorted(t *testing.T) {
	model := New(Config{TargetProcesses: 3})
	model.width = 100
	model.stats = &stats.AggregatedStats{ExitCodes: map[int32]int{7: 1, -2: 1, 0: 1}}

	out := model.renderExitCodes()
	fault := strings.Index(out, "-2 (fault)")
	clean := strings.Index(out, "0:")
	seven := strings.Index(out, "7:")
	if fault < 0 || clean < 0 || seven < 0 {
		t.Fatalf("exit codes missing from %q", out)
	}
	if !(fault < clean && clean < seven) {
		t.Errorf("exit codes not in ascending order: %q", out)
	}
}

// =============================================================================
// Edge Case Tests: Processes
// =============================================================================

func TestProcessTable_EdgeCases(t *testing.T) {
	tests := []struct {
		name  string
		procs []stats.Summary
	}{
		{"single", []stats.Summary{{PID: 0, Name: "hello", Status: task.StatusRunning}}},
		{"empty name", []stats.Summary{{PID: 0, Name: ""}}},
		{"long name", []stats.Summary{{PID: 0, Name: strings.Repeat("x", 200)}}},
		{"unicode name", []stats.Summary{{PID: 0, Name: "日本語のプロセス名"}}},
		{"shutdown exit", []stats.Summary{{PID: 0, Exited: true, ExitCode: task.ExitCodeShutdown}}},
		{"many", func() []stats.Summary {
			var procs []stats.Summary
			for i := 0; i < 1000; i++ {
				procs = append(procs, stats.Summary{PID: i, Name: "p"})
			}
			return procs
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := New(Config{TargetProcesses: len(tt.procs)})
			model.detailedView = true
			model.stats = &stats.AggregatedStats{Processes: tt.procs}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("View() panicked: %v", r)
				}
			}()
			if out := model.View(); !strings.Contains(out, "PID") {
				t.Error("detailed view should render the table")
			}
		})
	}
}

func TestProcessTable_ManyShowsOverflow(t *testing.T) {
	var procs []stats.Summary
	for i := 0; i < 100; i++ {
		procs = append(procs, stats.Summary{PID: i, Name: "p"})
	}
	model := New(Config{TargetProcesses: 100})
	model.stats = &stats.AggregatedStats{Processes: procs}

	if out := model.renderProcessTable(); !strings.Contains(out, "more processes") {
		t.Error("expected overflow marker")
	}
}

func TestConsole_LongLinesTruncated(t *testing.T) {
	console := &mockConsoleSource{lines: map[int][]string{0: {strings.Repeat("a", 500)}}}
	model := New(Config{TargetProcesses: 1, ConsoleSource: console})
	model.width = 60
	model.setStats(&stats.AggregatedStats{Processes: []stats.Summary{{PID: 0, Name: "a"}}})

	out := model.renderConsole()
	if strings.Contains(out, strings.Repeat("a", 100)) {
		t.Error("long console line should be truncated to the window")
	}
	if !strings.Contains(out, "...") {
		t.Error("truncated line should end with ...")
	}
}

// =============================================================================
// Edge Case Tests: Rapid Messages
// =============================================================================

func TestModel_RapidUpdates(t *testing.T) {
	source := &mockStatsSource{stats: sampleStats()}
	model := New(Config{TargetProcesses: 3, StatsSource: source})

	var m tea.Model = model
	for i := 0; i < 1000; i++ {
		m, _ = m.Update(TickMsg(time.Now()))
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	}
	_ = m.View()
}

func TestModel_UnknownMessage(t *testing.T) {
	model := New(Config{TargetProcesses: 3})
	type unknownMsg struct{}

	newModel, cmd := model.Update(unknownMsg{})
	if cmd != nil {
		t.Error("unknown message should not produce a command")
	}
	if newModel.(Model).quitting {
		t.Error("unknown message should not quit")
	}
}
