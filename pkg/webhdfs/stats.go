package webhdfs

import (
	"io"
	"sync/atomic"
)

// Stats counts what a Client has exchanged with the cluster.
type Stats struct {
	Requests      int64  `json:"requests"`
	Failures      int64  `json:"failures"`
	BytesSent     int64  `json:"bytes_sent"`
	BytesReceived int64  `json:"bytes_received"`
	LastError     string `json:"last_error,omitempty"`
}

// clientStats is the live side of Stats. Payload bytes cover file content
// only: acknowledged uploads and the bodies read through OpenFile.
type clientStats struct {
	requests  atomic.Int64
	failures  atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
	lastError atomic.Pointer[string]
}

func (s *clientStats) request() { s.requests.Add(1) }

func (s *clientStats) uploaded(n int64) { s.sent.Add(n) }

func (s *clientStats) downloaded(n int) { s.received.Add(int64(n)) }

func (s *clientStats) failed(err error) {
	msg := err.Error()
	s.failures.Add(1)
	s.lastError.Store(&msg)
}

func (s *clientStats) snapshot() Stats {
	st := Stats{
		Requests:      s.requests.Load(),
		Failures:      s.failures.Load(),
		BytesSent:     s.sent.Load(),
		BytesReceived: s.received.Load(),
	}
	if msg := s.lastError.Load(); msg != nil {
		st.LastError = *msg
	}
	return st
}

// countingBody reports every chunk read from a download body.
type countingBody struct {
	io.ReadCloser
	stats *clientStats
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.stats.downloaded(n)
	}
	return n, err
}
