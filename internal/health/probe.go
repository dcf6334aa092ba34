package health

import (
	"context"
	"sync"
	"time"
)

// Check is a named readiness probe of one dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// CheckResult is what the readiness endpoint reports per dependency.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ProbeRunner evaluates registered checks with a per-check timeout and
// caches the combined result for cacheTTL, so a scraping orchestrator
// cannot hammer the dependencies.
type ProbeRunner struct {
	cacheTTL time.Duration
	timeout  time.Duration

	mu         sync.Mutex
	checks     []Check
	lastRun    time.Time
	lastReady  bool
	lastResult []CheckResult
}

func NewProbeRunner(cacheTTL, timeout time.Duration) *ProbeRunner {
	if cacheTTL <= 0 {
		cacheTTL = time.Second
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ProbeRunner{cacheTTL: cacheTTL, timeout: timeout}
}

func (p *ProbeRunner) Register(name string, probe func(ctx context.Context) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks = append(p.checks, Check{Name: name, Probe: probe})
	p.lastRun = time.Time{}
}

// Ready reports whether every dependency passed, with per-check detail.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastRun) < p.cacheTTL {
		return p.lastReady, p.lastResult
	}

	ready := true
	results := make([]CheckResult, 0, len(p.checks))
	for _, c := range p.checks {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := c.Probe(cctx)
		cancel()
		res := CheckResult{Name: c.Name, Healthy: err == nil}
		if err != nil {
			res.Error = err.Error()
			ready = false
		}
		results = append(results, res)
	}

	p.lastRun = time.Now()
	p.lastReady = ready
	p.lastResult = results
	return ready, results
}
