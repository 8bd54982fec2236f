// Package health implements liveness and readiness probes for the API
// server. Registered checks run periodically in the background; a check
// must fail several times in a row before a probe flips to unhealthy,
// which keeps a single slow database ping from bouncing the service out
// of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	// failureThreshold is how many consecutive failures flip a probe to
	// unhealthy; successThreshold is how many consecutive passes flip it
	// back.
	failureThreshold = 3
	successThreshold = 1
)

// probe is one registered check plus its rolling state. All state is
// guarded by mu: run executes from a single background goroutine, while
// the HTTP handlers read snapshots from arbitrary ones.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	mu      sync.Mutex
	healthy bool
	lastErr error
	fails   int
	passes  int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	return &probe{
		name:    name,
		timeout: timeout,
		check:   check,
		healthy: true, // assume healthy until proven otherwise
	}
}

func (p *probe) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(checkCtx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = err
	if err != nil {
		p.passes = 0
		p.fails++
		if p.fails >= failureThreshold {
			p.healthy = false
		}
		return
	}
	p.fails = 0
	p.passes++
	if p.passes >= successThreshold {
		p.healthy = true
	}
}

// snapshot returns the current health status and last observed error.
func (p *probe) snapshot() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.lastErr
}

// Service manages liveness and readiness probes and serves their HTTP
// endpoints.
type Service struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// NewService returns a Service in a not-ready state. Call SetReady(true)
// once initialization finishes.
func NewService() *Service {
	return &Service{}
}

// AddLiveness registers a liveness check. Liveness answers "is the
// process functional": goroutine leaks, deadlocks.
func (s *Service) AddLiveness(name string, timeout time.Duration, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, newProbe(name, timeout, check))
}

// AddReadiness registers a readiness check. Readiness answers "can the
// service take traffic": database connectivity, dependency availability.
func (s *Service) AddReadiness(name string, timeout time.Duration, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, newProbe(name, timeout, check))
}

// Start launches one background goroutine per registered probe, each
// running its check at the given interval. Register all probes before
// calling Start.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := make([]*probe, 0, len(s.liveness)+len(s.readiness))
	probes = append(probes, s.liveness...)
	probes = append(probes, s.readiness...)
	s.mu.Unlock()

	for _, p := range probes {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx)
				}
			}
		}()
	}
}

// Stop cancels the background probe goroutines. Safe to call twice.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Set it to false during
// graceful shutdown so the load balancer drains traffic first.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every
// readiness probe currently passes.
func (s *Service) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	return len(s.failures(s.snapshotProbes(false))) == 0
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleLive serves the /livez endpoint: 200 when every liveness probe
// passes, 503 with per-check failure details otherwise.
func (s *Service) HandleLive(w http.ResponseWriter, _ *http.Request) {
	s.writeStatus(w, s.failures(s.snapshotProbes(true)))
}

// HandleReady serves the /readyz endpoint: 200 when the service has been
// marked ready and every readiness probe passes.
func (s *Service) HandleReady(w http.ResponseWriter, _ *http.Request) {
	failures := s.failures(s.snapshotProbes(false))
	if !s.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	s.writeStatus(w, failures)
}

func (s *Service) snapshotProbes(live bool) []*probe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.readiness
	if live {
		src = s.liveness
	}
	probes := make([]*probe, len(src))
	copy(probes, src)
	return probes
}

func (s *Service) failures(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		healthy, err := p.snapshot()
		if healthy {
			continue
		}
		if err != nil {
			failures[p.name] = err.Error()
		} else {
			failures[p.name] = "check is unhealthy"
		}
	}
	return failures
}

func (s *Service) writeStatus(w http.ResponseWriter, failures map[string]string) {
	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
