package syscalls

import (
	"math"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/mm"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

func (d *Dispatcher) sysWrite(cur *task.ControlBlock, fd, ptr, length uint64) int64 {
	if fd != abi.Stdout {
		d.logger.Debug("write_bad_fd", "pid", cur.Slot(), "fd", fd)
		return -1
	}
	if length > math.MaxInt32 {
		return d.badPointer(cur, "write", ptr, mm.ErrFault)
	}
	buf, err := d.mem.TranslateUserBuffer(cur.Token(), ptr, int(length), mm.AccessRead)
	if err != nil {
		return d.badPointer(cur, "write", ptr, err)
	}
	if d.console != nil {
		for _, seg := range buf.Segments {
			d.console.Write(cur.Slot(), cur.Name(), seg)
		}
	}
	return int64(buf.Len())
}
