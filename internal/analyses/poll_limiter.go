package analyses

import (
	"sync"
	"time"
)

const pollLimitWindow = 1 * time.Second

// pollLimiter bounds how often a single analysis contacts the extractor.
// Polls inside the window are served from the stored record.
type pollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window < 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *pollLimiter) Allow(analysisID string) bool {
	if l == nil || l.window == 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[analysisID]; ok {
		if now.Sub(last) < l.window {
			return false
		}
	}
	l.lastHit[analysisID] = now
	return true
}

// Forget drops state for an analysis that will not be polled again.
func (l *pollLimiter) Forget(analysisID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.lastHit, analysisID)
	l.mu.Unlock()
}
