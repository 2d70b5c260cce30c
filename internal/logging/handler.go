package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single console line before
	// truncation.
	MaxLineLength = 4096

	// DefaultBufferedLines is the number of lines kept per process when
	// the caller passes zero.
	DefaultBufferedLines = 100
)

// ConsoleHandler receives bytes written by user processes to stdout. It
// copies them to an optional terminal writer, splits them into lines per
// process, keeps the most recent lines for the exit summary and logs each
// completed line.
type ConsoleHandler struct {
	logger  *slog.Logger
	out     io.Writer
	verbose bool
	keep    int

	mu    sync.Mutex
	procs map[int]*procConsole
}

// procConsole is the per-process line state.
type procConsole struct {
	name    string
	partial []byte

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	total  int
}

// NewConsoleHandler creates a console. out may be nil when the terminal
// belongs to the dashboard.
func NewConsoleHandler(logger *slog.Logger, out io.Writer, keep int, verbose bool) *ConsoleHandler {
	if keep <= 0 {
		keep = DefaultBufferedLines
	}
	return &ConsoleHandler{
		logger:  logger,
		out:     out,
		verbose: verbose,
		keep:    keep,
		procs:   make(map[int]*procConsole),
	}
}

// Write handles one write syscall. p aliases user memory and is not
// retained.
func (h *ConsoleHandler) Write(pid int, name string, p []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.out != nil {
		_, _ = h.out.Write(p)
	}

	pc := h.proc(pid, name)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			pc.partial = append(pc.partial, p...)
			if len(pc.partial) > MaxLineLength {
				h.handleLine(pid, pc, string(pc.partial))
				pc.partial = pc.partial[:0]
			}
			return
		}
		pc.partial = append(pc.partial, p[:i]...)
		h.handleLine(pid, pc, string(pc.partial))
		pc.partial = pc.partial[:0]
		p = p[i+1:]
	}
}

// Flush completes any unterminated line of pid. Called once the process
// has exited.
func (h *ConsoleHandler) Flush(pid int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pc, ok := h.procs[pid]
	if !ok || len(pc.partial) == 0 {
		return
	}
	h.handleLine(pid, pc, string(pc.partial))
	pc.partial = pc.partial[:0]
}

func (h *ConsoleHandler) proc(pid int, name string) *procConsole {
	pc, ok := h.procs[pid]
	if !ok {
		pc = &procConsole{name: name, buffer: make([]string, h.keep)}
		h.procs[pid] = pc
	}
	return pc
}

// handleLine stores and logs a single line. Caller holds h.mu.
func (h *ConsoleHandler) handleLine(pid int, pc *procConsole, line string) {
	// Truncate if too long
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	pc.buffer[pc.bufIdx] = line
	pc.bufIdx = (pc.bufIdx + 1) % len(pc.buffer)
	pc.total++

	level := classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "console_line",
		"pid", pid,
		"name", pc.name,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	for _, pattern := range FailurePatterns {
		if strings.Contains(line, pattern) {
			return slog.LevelWarn
		}
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent complete lines of pid,
// oldest first.
func (h *ConsoleHandler) RecentLines(pid, n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	pc, ok := h.procs[pid]
	if !ok {
		return nil
	}

	size := len(pc.buffer)
	if n > size {
		n = size
	}
	if n > pc.total {
		n = pc.total
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (pc.bufIdx - n + i + size) % size
		lines = append(lines, pc.buffer[idx])
	}

	return lines
}

// LineCount returns how many complete lines pid has written.
func (h *ConsoleHandler) LineCount(pid int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pc, ok := h.procs[pid]; ok {
		return pc.total
	}
	return 0
}

// PIDs returns the processes that have written anything, in order.
func (h *ConsoleHandler) PIDs() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	pids := make([]int, 0, len(h.procs))
	for pid := range h.procs {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// FailurePatterns are markers the built-in apps print when a check fails.
var FailurePatterns = []string{
	"FAIL",
	"panic",
	"killed",
}

// CountFailures counts occurrences of failure patterns in the buffered
// lines of every process.
func (h *ConsoleHandler) CountFailures() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)

	for _, pc := range h.procs {
		for _, line := range pc.buffer {
			if line == "" {
				continue
			}
			for _, pattern := range FailurePatterns {
				if strings.Contains(line, pattern) {
					counts[pattern]++
				}
			}
		}
	}

	return counts
}
