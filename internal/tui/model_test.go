package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/stats"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

// =============================================================================
// Mock Sources
// =============================================================================

type mockStatsSource struct {
	stats *stats.AggregatedStats
}

func (m *mockStatsSource) Aggregate() *stats.AggregatedStats {
	return m.stats
}

type mockConsoleSource struct {
	lines map[int][]string
	calls []int
}

func (m *mockConsoleSource) RecentLines(pid, n int) []string {
	m.calls = append(m.calls, pid)
	lines := m.lines[pid]
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

type mockMemorySource struct {
	total, free int
}

func (m mockMemorySource) TotalFrames() int { return m.total }
func (m mockMemorySource) FreeFrames() int  { return m.free }

func sampleStats() *stats.AggregatedStats {
	return &stats.AggregatedStats{
		TotalProcesses: 3,
		Ready:          1,
		Running:        1,
		Exited:         1,
		TotalSyscalls:  120,
		FailedSyscalls: 6,
		PerSyscall: map[abi.SyscallID]int64{
			abi.SysWrite: 80,
			abi.SysYield: 40,
		},
		LatencyP50:   2 * time.Microsecond,
		LatencyP95:   8 * time.Microsecond,
		LatencyP99:   20 * time.Microsecond,
		LatencyMax:   3 * time.Millisecond,
		ConsoleBytes: 2048,
		MappedBytes:  8192,
		ExitCodes:    map[int32]int{-2: 1},
		Processes: []stats.Summary{
			{PID: 0, Name: "hello", Status: task.StatusExited, Exited: true, ExitCode: -2, Syscalls: 50, Failed: 1},
			{PID: 1, Name: "power", Status: task.StatusRunning, Syscalls: 60, Failed: 5},
			{PID: 2, Name: "sleep", Status: task.StatusReady, Syscalls: 10},
		},
	}
}

// =============================================================================
// Tests: New
// =============================================================================

func TestNew(t *testing.T) {
	cfg := Config{
		TargetProcesses: 5,
		BootID:          "0f8b3c2a-1d2e-4f5a-9b8c-7d6e5f4a3b2c",
		MetricsAddr:     "localhost:17092",
	}

	model := New(cfg)

	if model.targetProcesses != 5 {
		t.Errorf("targetProcesses = %d, want 5", model.targetProcesses)
	}
	if model.bootID != cfg.BootID {
		t.Errorf("bootID = %s, want %s", model.bootID, cfg.BootID)
	}
	if model.metricsAddr != "localhost:17092" {
		t.Errorf("metricsAddr = %s, want localhost:17092", model.metricsAddr)
	}
	if model.width != 80 {
		t.Errorf("width = %d, want 80", model.width)
	}
	if model.height != 24 {
		t.Errorf("height = %d, want 24", model.height)
	}
}

// =============================================================================
// Tests: Init
// =============================================================================

func TestModel_Init(t *testing.T) {
	model := New(Config{TargetProcesses: 2})
	if cmd := model.Init(); cmd == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"d", false},
		{"r", false},
		{"x", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			model := New(Config{TargetProcesses: 2})
			msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)}
			if tt.key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			} else if tt.key == "esc" {
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			}

			newModel, cmd := model.Update(msg)
			m := newModel.(Model)

			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}
			if tt.wantQuit && cmd == nil {
				t.Error("expected tea.Quit cmd")
			}
		})
	}
}

func TestModel_Update_ToggleDetailedView(t *testing.T) {
	model := New(Config{TargetProcesses: 2})

	if model.detailedView {
		t.Error("detailedView should be false initially")
	}

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}
	newModel, _ := model.Update(msg)
	m := newModel.(Model)
	if !m.detailedView {
		t.Error("detailedView should be true after pressing 'd'")
	}

	newModel, _ = m.Update(msg)
	m = newModel.(Model)
	if m.detailedView {
		t.Error("detailedView should be false after pressing 'd' again")
	}
}

func TestModel_Update_Selection(t *testing.T) {
	console := &mockConsoleSource{lines: map[int][]string{
		0: {"hello"},
		1: {"power 3", "power 9"},
		2: {"zzz"},
	}}
	model := New(Config{TargetProcesses: 3, ConsoleSource: console})
	newModel, _ := model.Update(StatsMsg{Stats: sampleStats()})
	m := newModel.(Model)

	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}
	up := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")}

	for i := 0; i < 5; i++ {
		newModel, _ = m.Update(down)
		m = newModel.(Model)
	}
	if m.selected != 2 {
		t.Errorf("selected = %d after moving past the end, want 2", m.selected)
	}
	if len(m.console) != 1 || m.console[0] != "zzz" {
		t.Errorf("console = %v, want [zzz]", m.console)
	}

	newModel, _ = m.Update(up)
	m = newModel.(Model)
	p, ok := m.SelectedProcess()
	if !ok || p.PID != 1 {
		t.Errorf("SelectedProcess() = %+v, %v; want pid 1", p, ok)
	}
	if len(m.console) != 2 {
		t.Errorf("console = %v, want two power lines", m.console)
	}

	for i := 0; i < 5; i++ {
		newModel, _ = m.Update(up)
		m = newModel.(Model)
	}
	if m.selected != 0 {
		t.Errorf("selected = %d after moving past the start, want 0", m.selected)
	}
}

func TestModel_SelectionClampedWhenProcessesShrink(t *testing.T) {
	model := New(Config{TargetProcesses: 3})
	model.stats = sampleStats()
	model.selected = 2

	smaller := sampleStats()
	smaller.Processes = smaller.Processes[:1]
	newModel, _ := model.Update(StatsMsg{Stats: smaller})
	m := newModel.(Model)

	if m.selected != 0 {
		t.Errorf("selected = %d, want 0", m.selected)
	}
}

// =============================================================================
// Tests: Update - Window Size
// =============================================================================

func TestModel_Update_WindowSize(t *testing.T) {
	model := New(Config{TargetProcesses: 2})

	newModel, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m := newModel.(Model)

	if m.width != 120 {
		t.Errorf("width = %d, want 120", m.width)
	}
	if m.height != 40 {
		t.Errorf("height = %d, want 40", m.height)
	}
}

// =============================================================================
// Tests: Update - Tick
// =============================================================================

func TestModel_Update_Tick(t *testing.T) {
	source := &mockStatsSource{stats: sampleStats()}
	model := New(Config{TargetProcesses: 3, StatsSource: source})

	newModel, cmd := model.Update(TickMsg(time.Now()))
	m := newModel.(Model)

	if m.stats == nil {
		t.Fatal("stats should be set after tick")
	}
	if m.stats.TotalSyscalls != 120 {
		t.Errorf("TotalSyscalls = %d, want 120", m.stats.TotalSyscalls)
	}
	if cmd == nil {
		t.Error("expected tick cmd to be returned")
	}
}

func TestModel_Update_TickWithoutSource(t *testing.T) {
	model := New(Config{TargetProcesses: 3})

	newModel, cmd := model.Update(TickMsg(time.Now()))
	m := newModel.(Model)

	if m.stats != nil {
		t.Error("stats should stay nil without a source")
	}
	if cmd == nil {
		t.Error("expected tick cmd to be returned")
	}
}

// =============================================================================
// Tests: Update - Stats and Quit Messages
// =============================================================================

func TestModel_Update_StatsMsg(t *testing.T) {
	model := New(Config{TargetProcesses: 3})

	newModel, cmd := model.Update(StatsMsg{Stats: sampleStats()})
	m := newModel.(Model)

	if m.stats == nil {
		t.Fatal("stats should be set after StatsMsg")
	}
	if cmd != nil {
		t.Error("StatsMsg should not schedule a command")
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	model := New(Config{TargetProcesses: 3})

	newModel, cmd := model.Update(QuitMsg{})
	m := newModel.(Model)

	if !m.quitting {
		t.Error("quitting should be true after QuitMsg")
	}
	if cmd == nil {
		t.Error("expected tea.Quit cmd")
	}
	if m.View() != "" {
		t.Error("View() should be empty while quitting")
	}
}

// =============================================================================
// Tests: Accessors
// =============================================================================

func TestModel_Progress(t *testing.T) {
	tests := []struct {
		name   string
		target int
		exited int
		want   float64
	}{
		{"no target", 0, 0, 0},
		{"none exited", 4, 0, 0},
		{"half", 4, 2, 0.5},
		{"all", 4, 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := New(Config{TargetProcesses: tt.target})
			model.stats = &stats.AggregatedStats{Exited: tt.exited}
			if got := model.Progress(); got != tt.want {
				t.Errorf("Progress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModel_FailureRate(t *testing.T) {
	model := New(Config{})
	if got := model.FailureRate(); got != 0 {
		t.Errorf("FailureRate() with nil stats = %v, want 0", got)
	}

	model.stats = sampleStats()
	if got := model.FailureRate(); got != 0.05 {
		t.Errorf("FailureRate() = %v, want 0.05", got)
	}
}

func TestModel_FreeFrameRatio(t *testing.T) {
	tests := []struct {
		name string
		src  MemorySource
		want float64
	}{
		{"no source", nil, 1},
		{"empty pool", mockMemorySource{total: 0, free: 0}, 1},
		{"quarter free", mockMemorySource{total: 100, free: 25}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := New(Config{MemorySource: tt.src})
			if got := model.FreeFrameRatio(); got != tt.want {
				t.Errorf("FreeFrameRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: Formatting Helpers
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2_500_000, "2.5M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatNumberWithCommas(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{-5, "0"},
		{42, "42"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatNumberWithCommas(tt.n); got != tt.want {
			t.Errorf("formatNumberWithCommas(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
	if got := formatNumberFixed(1000, 8); got != "   1,000" {
		t.Errorf("formatNumberFixed(1000, 8) = %q", got)
	}
}

func TestFormatMsFromDuration(t *testing.T) {
	if got := formatMsFromDuration(0); got != "0 ms" {
		t.Errorf("formatMsFromDuration(0) = %q", got)
	}
	if got := formatMsFromDuration(250 * time.Microsecond); got != "250 µs" {
		t.Errorf("formatMsFromDuration(250µs) = %q", got)
	}
	if got := formatMsFromDuration(12 * time.Millisecond); got != "12 ms" {
		t.Errorf("formatMsFromDuration(12ms) = %q", got)
	}
}

func TestSendHelpersNilProgram(t *testing.T) {
	// Must not panic without a running program.
	SendStats(nil, sampleStats())
	SendQuit(nil)
}
