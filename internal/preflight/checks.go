// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/randomizedcoder/go-teachos/internal/loader"
	"github.com/randomizedcoder/go-teachos/internal/mm"
)

// Estimates used by the frame budget check.
const (
	// pageTableFrames covers the root table and the intermediate tables of
	// the low image region and the high trap-context region.
	pageTableFrames = 6

	// kernelOverheadFrames is what the kernel address space itself uses.
	kernelOverheadFrames = 8

	// mmapHeadroomFrames is the recommended spare per process for mmap.
	mmapHeadroomFrames = 16
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Input is what the checks inspect.
type Input struct {
	Apps        []string
	Frames      int
	MetricsAddr string
	Registry    *loader.Registry
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(in Input) *Result {
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	images, appCheck := checkApps(in.Registry, in.Apps)
	result.add(appCheck)

	// Without images the frame budget cannot be estimated
	if appCheck.Passed {
		result.add(checkFrameBudget(images, in.Frames))
	}

	result.add(checkKernelStacks(len(in.Apps)))
	result.add(checkMetricsAddr(in.MetricsAddr))

	return result
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// checkApps verifies every app name is registered.
func checkApps(reg *loader.Registry, names []string) ([]*loader.Image, Check) {
	if reg == nil {
		return nil, Check{Name: "apps", Passed: false, Message: "no app registry"}
	}
	if len(names) == 0 {
		return nil, Check{Name: "apps", Passed: false, Message: "no apps to boot"}
	}

	var missing []string
	images := make([]*loader.Image, 0, len(names))
	for _, n := range names {
		img, ok := reg.Lookup(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		images = append(images, img)
	}
	if len(missing) > 0 {
		return nil, Check{
			Name:    "apps",
			Passed:  false,
			Message: fmt.Sprintf("unknown: %s (have %s)", strings.Join(missing, ", "), strings.Join(reg.Names(), ", ")),
		}
	}
	return images, Check{
		Name:    "apps",
		Passed:  true,
		Message: fmt.Sprintf("%d to boot: %s", len(names), strings.Join(names, ", ")),
	}
}

// EstimateFrames returns the frames one loaded image needs before it
// makes any mmap call.
func EstimateFrames(img *loader.Image) int {
	pages := 0
	for _, s := range img.Segments {
		pages += int(mm.VirtAddr(s.VA+s.MemSize).Ceil() - mm.VirtAddr(s.VA).Floor())
	}
	pages += mm.UserStackSize / mm.PageSize
	pages++ // trap context
	pages += mm.KernelStackSize / mm.PageSize
	return pages + pageTableFrames
}

// checkFrameBudget verifies the frame pool can hold every image.
func checkFrameBudget(images []*loader.Image, frames int) Check {
	required := kernelOverheadFrames
	for _, img := range images {
		required += EstimateFrames(img)
	}
	recommended := required + mmapHeadroomFrames*len(images)

	return Check{
		Name:     "frame_budget",
		Required: required,
		Actual:   frames,
		Passed:   frames >= required,
		Warning:  frames < recommended,
		Message:  fmt.Sprintf("%d frames (need %d, recommend %d for mmap)", frames, required, recommended),
	}
}

// MaxKernelStacks returns how many kernel stacks fit between the trampoline
// and the top of user space.
func MaxKernelStacks() int {
	return int((mm.Trampoline - mm.UserSpaceEnd) / (mm.KernelStackSize + mm.PageSize))
}

// checkKernelStacks verifies every slot's kernel stack stays above user space.
func checkKernelStacks(processes int) Check {
	limit := MaxKernelStacks()
	return Check{
		Name:     "kernel_stacks",
		Required: processes,
		Actual:   limit,
		Passed:   processes <= limit,
		Message:  fmt.Sprintf("%d slots (need %d)", limit, processes),
	}
}

// checkMetricsAddr verifies the metrics address can be bound.
func checkMetricsAddr(addr string) Check {
	if addr == "" {
		return Check{
			Name:    "metrics_addr",
			Passed:  true,
			Message: "disabled",
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "metrics_addr",
			Passed:  false,
			Message: fmt.Sprintf("cannot bind %s: %v", addr, err),
		}
	}
	ln.Close()

	return Check{
		Name:    "metrics_addr",
		Passed:  true,
		Message: fmt.Sprintf("%s is free", addr),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "apps":
		return "run with -list to see the built-in apps"
	case "frame_budget":
		return "raise -frames"
	case "kernel_stacks":
		return "boot fewer apps"
	case "metrics_addr":
		return "pick a free port with -metrics, or -metrics \"\" to disable"
	default:
		return "see documentation"
	}
}
