// Package resiliency wraps outbound HTTP calls with bounded retries and a
// circuit breaker. The gateway's registry and facilitator reads sit on the
// request path; a flapping upstream must degrade to fast failures instead
// of holding every request for the full timeout.
package resiliency

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// Client retries transient failures with exponential backoff and jitter.
// Only transport errors and 5xx responses are retried; 4xx answers are
// returned as-is.
type Client struct {
	client      *http.Client
	maxRetries  int
	backoffBase time.Duration
	breaker     *CircuitBreaker
}

// New builds a resilient client named for the upstream it guards.
func New(name string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client:      &http.Client{Timeout: timeout},
		maxRetries:  3,
		backoffBase: 50 * time.Millisecond,
		breaker:     NewCircuitBreaker(name, 5, 10*time.Second),
	}
}

// Do executes the request. When the breaker is open the call fails
// immediately without touching the network.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("circuit breaker open for %s", c.breaker.name)
	}

	var resp *http.Response
	var err error
	backoff := c.backoffBase
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 && req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				break
			}
			req.Body = body
		}
		resp, err = c.client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			c.breaker.Success()
			return resp, nil
		}
		if i == c.maxRetries {
			break
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(backoff + jitter(backoff/2))
		backoff *= 2
	}

	c.breaker.Failure()
	return resp, err
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// CircuitBreaker is a minimal closed/open/half-open state machine. It
// opens after threshold consecutive failures and probes again after the
// reset timeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string // "CLOSED", "OPEN", "HALF_OPEN"
}

func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        "CLOSED",
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == "OPEN" {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "CLOSED"
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.failureCount >= cb.threshold {
		cb.state = "OPEN"
	}
}
