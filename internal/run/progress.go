package run

import (
	"sync"
	"sync/atomic"
)

// Progress holds live counters for a sync run. The numeric fields are
// atomic so the driver's phase callback can write them while HTTP handlers
// read without locks; the status line has its own small mutex.
type Progress struct {
	ItemsProcessed atomic.Int64
	BytesProcessed atomic.Int64
	ItemsTotal     atomic.Int64
	BytesTotal     atomic.Int64
	ErrorsIgnored  atomic.Int64

	mu     sync.Mutex
	status string
}

// SetStatus replaces the most recent aggregated status line.
func (p *Progress) SetStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Status returns the most recent aggregated status line.
func (p *Progress) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
