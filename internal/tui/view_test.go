package tui

import (
	"strings"
	"testing"

	"github.com/randomizedcoder/go-teachos/internal/stats"
)

func TestSummaryViewSections(t *testing.T) {
	model := New(Config{
		TargetProcesses: 3,
		BootID:          "0f8b3c2a-1d2e-4f5a-9b8c-7d6e5f4a3b2c",
		MetricsAddr:     "127.0.0.1:17092",
		MemorySource:    mockMemorySource{total: 2048, free: 1900},
	})
	model.width = 120
	model.height = 50
	model.stats = sampleStats()

	out := model.View()
	for _, want := range []string{
		"teachos",
		"0f8b3c2a",
		"Exited: 1/3",
		"Syscalls",
		"write",
		"yield",
		"Failed (-1)",
		"Syscall Latency",
		"Memory",
		"1900 / 2048",
		"Exit Codes",
		"(fault)",
		"http://127.0.0.1:17092/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary view missing %q", want)
		}
	}
	if strings.Contains(out, "Console [") {
		t.Error("summary view should not show the console")
	}
}

func TestSummaryViewNoStats(t *testing.T) {
	model := New(Config{TargetProcesses: 2})
	out := model.View()

	if !strings.Contains(out, "Booting") {
		t.Error("expected booting status before any stats")
	}
	if strings.Contains(out, "Syscall Latency") {
		t.Error("latency section should need stats")
	}
}

func TestSummaryViewAllExited(t *testing.T) {
	model := New(Config{TargetProcesses: 2})
	model.stats = &stats.AggregatedStats{
		TotalProcesses: 2,
		Exited:         2,
		ExitCodes:      map[int32]int{0: 2},
	}

	out := model.View()
	if !strings.Contains(out, "All processes exited") {
		t.Error("expected completion status")
	}
	if strings.Contains(out, "Exit Codes") {
		t.Error("clean exits should not show the exit code section")
	}
}

func TestDetailedViewShowsTableAndConsole(t *testing.T) {
	console := &mockConsoleSource{lines: map[int][]string{
		0: {"Hello, world!", "FAIL: T.T"},
	}}
	model := New(Config{TargetProcesses: 3, ConsoleSource: console})
	model.width = 120
	model.height = 50
	model.detailedView = true
	model.setStats(sampleStats())

	out := model.View()
	for _, want := range []string{"PID", "hello", "power", "sleep", "running", "-2 (fault)", "Console [0 hello]", "FAIL: T.T", "j/k: select"} {
		if !strings.Contains(out, want) {
			t.Errorf("detailed view missing %q", want)
		}
	}
}

func TestDetailedViewFallsBackWithoutProcesses(t *testing.T) {
	model := New(Config{TargetProcesses: 3})
	model.detailedView = true

	out := model.View()
	if strings.Contains(out, "PID") {
		t.Error("detailed view needs processes")
	}
}

func TestConsoleNoOutput(t *testing.T) {
	model := New(Config{TargetProcesses: 3})
	model.stats = sampleStats()

	if out := model.renderConsole(); !strings.Contains(out, "(no output)") {
		t.Errorf("renderConsole() = %q", out)
	}
}

func TestProcessTableScrollsToSelection(t *testing.T) {
	s := &stats.AggregatedStats{}
	for i := 0; i < 40; i++ {
		s.Processes = append(s.Processes, stats.Summary{PID: i, Name: "p"})
	}
	model := New(Config{TargetProcesses: 40})
	model.height = 24
	model.stats = s
	model.selected = 39

	out := model.renderProcessTable()
	if !strings.Contains(out, "39 ") {
		t.Error("selected row should be visible")
	}
}

func TestTruncateName(t *testing.T) {
	if got := truncateName("short", 12); got != "short" {
		t.Errorf("truncateName(short) = %q", got)
	}
	if got := truncateName("averyveryverylongname", 12); got != "averyveryve…" {
		t.Errorf("truncateName(long) = %q", got)
	}
}
