package executor

import "bytes"

const (
	// DefaultMaxStdoutBytes caps captured stdout. Output past the cap can
	// never match an answer, so the run is flagged instead of compared.
	DefaultMaxStdoutBytes = 8 << 20

	// maxStderrBytes caps captured stderr, which is only shown to users.
	maxStderrBytes = 64 * 1024

	// stderrTruncatedMsg is appended to stderr when it exceeds the limit.
	stderrTruncatedMsg = "\n... stderr truncated (64 KB limit) ..."
)

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (lb *limitedBuffer) Write(p []byte) (n int, err error) {
	if lb.truncated {
		return len(p), nil // discard silently
	}

	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return len(p), nil
	}

	if len(p) > remaining {
		lb.truncated = true
		lb.buf.Write(p[:remaining])
		return len(p), nil
	}

	return lb.buf.Write(p)
}

// String returns exactly the captured bytes.
func (lb *limitedBuffer) String() string {
	return lb.buf.String()
}

// Truncated reports whether writes past the limit were dropped.
func (lb *limitedBuffer) Truncated() bool {
	return lb.truncated
}
