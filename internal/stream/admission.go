package stream

import (
	"sync"
	"time"
)

// Refusal reasons, also used as the stream error metric label.
const (
	refusedPerIP  = "rate_limit"
	refusedBudget = "frame_budget"
)

// admission bounds open frame streams. Every tick of a stream builds a full
// frame, so besides a per-IP stream count each stream reserves its frame
// rate out of a process-wide frames-per-second budget.
type admission struct {
	mu       sync.Mutex
	perIP    map[string]int
	reserved float64
	maxPerIP int
	maxRate  float64
}

func newAdmission(maxPerIP int, maxFrameRate float64) *admission {
	if maxPerIP <= 0 {
		maxPerIP = 10
	}
	if maxFrameRate <= 0 {
		maxFrameRate = 200
	}
	return &admission{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxRate:  maxFrameRate,
	}
}

// frameRate is the frames per second built by a stream ticking at interval.
func frameRate(interval time.Duration) float64 {
	return float64(time.Second) / float64(interval)
}

// ticket is one admitted stream.
type ticket struct {
	a    *admission
	ip   string
	rate float64
	once sync.Once
}

// admit reserves a stream for ip ticking at interval. On refusal the ticket
// is nil and reason says which bound was hit.
func (a *admission) admit(ip string, interval time.Duration) (t *ticket, reason string) {
	rate := frameRate(interval)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.perIP[ip] >= a.maxPerIP {
		return nil, refusedPerIP
	}
	// Small tolerance so ten 10 fps streams fit a 100 fps budget.
	if a.reserved+rate > a.maxRate+1e-9 {
		return nil, refusedBudget
	}
	a.perIP[ip]++
	a.reserved += rate
	return &ticket{a: a, ip: ip, rate: rate}, ""
}

// release returns the stream slot and its frame rate. Idempotent.
func (t *ticket) release() {
	t.once.Do(func() {
		a := t.a
		a.mu.Lock()
		defer a.mu.Unlock()

		a.perIP[t.ip]--
		if a.perIP[t.ip] <= 0 {
			delete(a.perIP, t.ip)
		}
		a.reserved -= t.rate
		if len(a.perIP) == 0 || a.reserved < 1e-9 {
			a.reserved = 0
		}
	})
}

// usage returns the streams open for ip and the frame rate reserved by all
// open streams.
func (a *admission) usage(ip string) (streams int, reserved float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perIP[ip], a.reserved
}
