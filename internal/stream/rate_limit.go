package stream

import (
	"sync"

	"golang.org/x/time/rate"
)

// connLimiter caps concurrent streams per IP and globally, and paces how
// often one IP may open a new stream.
type connLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	attempts    map[string]*rate.Limiter
	total       int
	maxPerIP    int
	maxTotal    int
	rate        rate.Limit
	burst       int
}

func newConnLimiter(maxPerIP int, perSecond float64, burst int) *connLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &connLimiter{
		connections: make(map[string]int),
		attempts:    make(map[string]*rate.Limiter),
		maxPerIP:    maxPerIP,
		maxTotal:    1000, // Default global cap.
		rate:        limit,
		burst:       burst,
	}
}

// acquire registers a new connection for ip. It returns false when the IP
// is connecting too often or a concurrency limit has been reached.
func (l *connLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.attempts[ip]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.attempts[ip] = lim
	}
	if !lim.Allow() {
		return false
	}
	if l.total >= l.maxTotal || l.connections[ip] >= l.maxPerIP {
		return false
	}

	l.connections[ip]++
	l.total++
	return true
}

// release decrements the connection count for ip.
func (l *connLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connections[ip]--
	l.total--
	if l.connections[ip] <= 0 {
		delete(l.connections, ip)
		// Pacing state survives until the bucket has refilled.
		if lim, ok := l.attempts[ip]; ok && (l.rate == rate.Inf || lim.Tokens() >= float64(l.burst)) {
			delete(l.attempts, ip)
		}
	}
}

// count returns the number of active connections for ip.
func (l *connLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}
