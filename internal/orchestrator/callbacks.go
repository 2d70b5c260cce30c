package orchestrator

import "github.com/randomizedcoder/go-teachos/internal/task"

// chainCallbacks fans each scheduler callback out to every non-nil hook,
// in argument order.
func chainCallbacks(cbs ...task.Callbacks) task.Callbacks {
	var adds []func(int, string)
	var changes []func(int, string, task.Status, task.Status)
	var exits []func(int, string, int32, uint64)
	for _, cb := range cbs {
		if cb.OnAdd != nil {
			adds = append(adds, cb.OnAdd)
		}
		if cb.OnStateChange != nil {
			changes = append(changes, cb.OnStateChange)
		}
		if cb.OnExit != nil {
			exits = append(exits, cb.OnExit)
		}
	}

	var out task.Callbacks
	if len(adds) > 0 {
		out.OnAdd = func(slot int, name string) {
			for _, f := range adds {
				f(slot, name)
			}
		}
	}
	if len(changes) > 0 {
		out.OnStateChange = func(slot int, name string, from, to task.Status) {
			for _, f := range changes {
				f(slot, name, from, to)
			}
		}
	}
	if len(exits) > 0 {
		out.OnExit = func(slot int, name string, code int32, uptimeMicros uint64) {
			for _, f := range exits {
				f(slot, name, code, uptimeMicros)
			}
		}
	}
	return out
}
