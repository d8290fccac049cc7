package executor

import (
	"github.com/prometheus/procfs"
)

// MemorySampler reports the resident set of a live process in bytes, or 0
// when it cannot be read (the process may already be gone).
type MemorySampler interface {
	Sample(pid int) int64
}

type procSampler struct {
	fs procfs.FS
}

// NewProcSampler samples VmHWM/VmRSS from /proc/<pid>/status.
func NewProcSampler() (MemorySampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return &procSampler{fs: fs}, nil
}

func (s *procSampler) Sample(pid int) int64 {
	p, err := s.fs.Proc(pid)
	if err != nil {
		return 0
	}
	st, err := p.NewStatus()
	if err != nil {
		return 0
	}
	return int64(max(st.VmHWM, st.VmRSS))
}

// noopSampler is used where /proc is unavailable; only the kernel's
// post-exit maxrss is then reported.
type noopSampler struct{}

func (noopSampler) Sample(int) int64 { return 0 }
