package docsdk

import (
	"sync/atomic"
	"time"
)

// httpStats tracks transfer traffic for uploads and downloads.
type httpStats struct {
	bytesSent  atomic.Int64
	bytesRecv  atomic.Int64
	lastSentNs atomic.Int64
	lastRecvNs atomic.Int64

	lastErrorValue atomic.Value // string
}

func newHTTPStats() *httpStats {
	s := &httpStats{}
	s.lastErrorValue.Store("")
	return s
}

func (s *httpStats) onSend(n int64) {
	if n <= 0 {
		return
	}
	s.bytesSent.Add(n)
	s.lastSentNs.Store(time.Now().UnixNano())
}

func (s *httpStats) onRecv(n int64) {
	if n <= 0 {
		return
	}
	s.bytesRecv.Add(n)
	s.lastRecvNs.Store(time.Now().UnixNano())
}

func (s *httpStats) setLastError(err error) {
	if err == nil {
		return
	}
	s.lastErrorValue.Store(err.Error())
}

// recordDownloadedDelta adds only forward progress; callbacks report cumulative totals.
func (s *httpStats) recordDownloadedDelta(last *int64, downloaded int64) {
	if downloaded <= *last {
		return
	}
	s.onRecv(downloaded - *last)
	*last = downloaded
}

func (s *httpStats) snapshot() HTTPStatsSnapshot {
	lastErr, _ := s.lastErrorValue.Load().(string)
	return HTTPStatsSnapshot{
		BytesSentTotal: s.bytesSent.Load(),
		BytesRecvTotal: s.bytesRecv.Load(),
		LastSentAtNs:   s.lastSentNs.Load(),
		LastRecvAtNs:   s.lastRecvNs.Load(),
		LastError:      lastErr,
	}
}

// HTTPStatsSnapshot is a stable, JSON-friendly view of transfer traffic.
type HTTPStatsSnapshot struct {
	BytesSentTotal int64  `json:"bytes_sent_total" yaml:"bytes_sent_total"`
	BytesRecvTotal int64  `json:"bytes_recv_total" yaml:"bytes_recv_total"`
	LastSentAtNs   int64  `json:"last_sent_at_ns,omitempty" yaml:"last_sent_at_ns,omitempty"`
	LastRecvAtNs   int64  `json:"last_recv_at_ns,omitempty" yaml:"last_recv_at_ns,omitempty"`
	LastError      string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}
