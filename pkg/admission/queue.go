package admission

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRefused is returned when the queue denies admission.
var ErrRefused = errors.New("admission refused")

// Config holds the rate limits for one queue.
type Config struct {
	// RatePerSecond is the sustained admission rate. Zero disables the
	// rate check (concurrency is still capped).
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the token-bucket depth. Defaults to RatePerSecond truncated
	// to an integer, minimum 1.
	Burst int `yaml:"burst"`

	// MaxInFlight caps concurrently admitted handlers. Zero means no cap.
	MaxInFlight int `yaml:"max_in_flight"`
}

// Token proves admission was granted. It must be handed back via Done.
type Token struct {
	q *Queue
}

// Queue grants admission tokens for one server instance.
type Queue struct {
	name    string
	limiter *rate.Limiter

	mu       sync.Mutex
	inFlight int
	max      int
}

// NewQueue creates a queue named after its server endpoint.
func NewQueue(name string, cfg Config) *Queue {
	q := &Queue{name: name, max: cfg.MaxInFlight}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RatePerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Ask requests admission. It never blocks: when either the rate bucket is
// empty or the in-flight cap is reached it returns ErrRefused.
func (q *Queue) Ask() (*Token, error) {
	q.mu.Lock()
	if q.max > 0 && q.inFlight >= q.max {
		q.mu.Unlock()
		return nil, ErrRefused
	}
	q.inFlight++
	q.mu.Unlock()

	if q.limiter != nil && !q.limiter.Allow() {
		q.release()
		return nil, ErrRefused
	}
	return &Token{q: q}, nil
}

// Done returns a token to the queue. Calling it again with the same token
// is a no-op.
func (q *Queue) Done(t *Token) {
	if t == nil || t.q != q {
		return
	}
	t.q = nil
	q.release()
}

// InFlight reports how many admitted handlers have not finished yet.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

func (q *Queue) release() {
	q.mu.Lock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	q.mu.Unlock()
}
