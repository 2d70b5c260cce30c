package abi

import "encoding/binary"

// Layouts are little endian with natural alignment, matching what user
// programs declare on their side.

// TimeValSize is the encoded size of TimeVal.
const TimeValSize = 16

// TimeVal is the output of get_time.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// TimeValFromMicros splits a microsecond reading into seconds and microseconds.
func TimeValFromMicros(us uint64) TimeVal {
	return TimeVal{
		Sec:  us / 1_000_000,
		Usec: us % 1_000_000,
	}
}

// Micros returns the value as microseconds.
func (t TimeVal) Micros() uint64 {
	return t.Sec*1_000_000 + t.Usec
}

// MarshalTo encodes t into b, which must hold TimeValSize bytes.
func (t TimeVal) MarshalTo(b []byte) {
	_ = b[TimeValSize-1]
	binary.LittleEndian.PutUint64(b[0:8], t.Sec)
	binary.LittleEndian.PutUint64(b[8:16], t.Usec)
}

// Bytes returns the encoded value.
func (t TimeVal) Bytes() []byte {
	b := make([]byte, TimeValSize)
	t.MarshalTo(b)
	return b
}

// UnmarshalTimeVal decodes a TimeVal from b.
func UnmarshalTimeVal(b []byte) TimeVal {
	_ = b[TimeValSize-1]
	return TimeVal{
		Sec:  binary.LittleEndian.Uint64(b[0:8]),
		Usec: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// Status values as seen by user programs.
const (
	StatusUnInit  uint8 = 0
	StatusReady   uint8 = 1
	StatusRunning uint8 = 2
	StatusExited  uint8 = 3
)

// TaskInfo field offsets.
const (
	taskInfoStatusOff = 0
	taskInfoTimesOff  = 4
	taskInfoTimeOff   = taskInfoTimesOff + 4*MaxSyscallNum + 4

	// TaskInfoSize is the encoded size of TaskInfo.
	TaskInfoSize = taskInfoTimeOff + 8
)

// TaskInfo is the output of task_info.
type TaskInfo struct {
	Status       uint8
	SyscallTimes [MaxSyscallNum]uint32
	// Time is elapsed milliseconds since the process was created.
	Time uint64
}

// MarshalTo encodes info into b, which must hold TaskInfoSize bytes.
// Padding bytes are zeroed.
func (info *TaskInfo) MarshalTo(b []byte) {
	_ = b[TaskInfoSize-1]
	clear(b[:TaskInfoSize])
	b[taskInfoStatusOff] = info.Status
	for i, n := range info.SyscallTimes {
		off := taskInfoTimesOff + 4*i
		binary.LittleEndian.PutUint32(b[off:off+4], n)
	}
	binary.LittleEndian.PutUint64(b[taskInfoTimeOff:taskInfoTimeOff+8], info.Time)
}

// Bytes returns the encoded value.
func (info *TaskInfo) Bytes() []byte {
	b := make([]byte, TaskInfoSize)
	info.MarshalTo(b)
	return b
}

// UnmarshalTaskInfo decodes a TaskInfo from b.
func UnmarshalTaskInfo(b []byte) TaskInfo {
	_ = b[TaskInfoSize-1]
	var info TaskInfo
	info.Status = b[taskInfoStatusOff]
	for i := range info.SyscallTimes {
		off := taskInfoTimesOff + 4*i
		info.SyscallTimes[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	info.Time = binary.LittleEndian.Uint64(b[taskInfoTimeOff : taskInfoTimeOff+8])
	return info
}
