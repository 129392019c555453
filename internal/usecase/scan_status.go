package usecase

import (
	"sync"
	"time"

	"FieldScan/internal/domain/models"
)

const defaultStatusLines = 200

// ScanStatus is the polled progress of the current or last batch: a counter
// and a bounded tail of per-ticker log lines.
type ScanStatus struct {
	mu        sync.Mutex
	running   bool
	mode      models.ScanMode
	processed int
	total     int
	startedAt time.Time
	lines     []string
	maxLines  int
	now       func() time.Time
}

// NewScanStatus keeps the last maxLines ticker lines; values below 1 mean 200.
func NewScanStatus(maxLines int) *ScanStatus {
	if maxLines <= 0 {
		maxLines = defaultStatusLines
	}
	return &ScanStatus{maxLines: maxLines, now: time.Now}
}

// Begin resets the counters and lines for a new batch of total tickers.
func (s *ScanStatus) Begin(mode models.ScanMode, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.mode = mode
	s.processed = 0
	s.total = total
	s.startedAt = s.now().UTC()
	s.lines = s.lines[:0]
}

// Advance counts one finished ticker and appends its line.
func (s *ScanStatus) Advance(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	if len(s.lines) == s.maxLines {
		copy(s.lines, s.lines[1:])
		s.lines = s.lines[:len(s.lines)-1]
	}
	s.lines = append(s.lines, line)
}

// Finish marks the batch done. Counters stay readable until the next Begin.
func (s *ScanStatus) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Progress returns a copy safe to serialize.
func (s *ScanStatus) Progress() models.ScanProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.ScanProgress{
		Running:   s.running,
		Mode:      s.mode,
		Processed: s.processed,
		Total:     s.total,
		StartedAt: s.startedAt,
		Lines:     append([]string(nil), s.lines...),
	}
	if n := len(s.lines); n > 0 {
		p.LastLine = s.lines[n-1]
	}
	return p
}
