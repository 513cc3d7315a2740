package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a non-critical component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates a critical component is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 3 * time.Second

// Check is one named component probe.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

// Store wraps a Pinger as a check.
func Store(name string, p Pinger, critical bool) Check {
	return Check{Name: name, Critical: critical, Probe: p.Ping}
}

// Provider wraps a ProviderChecker as a check.
func Provider(name string, p ProviderChecker, critical bool) Check {
	return Check{Name: name, Critical: critical, Probe: p.HealthCheck}
}

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	checks  []Check
	timeout time.Duration
}

// New creates a Service over checks. Nil probes are ignored.
func New(checks ...Check) *Service {
	s := &Service{timeout: DefaultCheckTimeout}
	for _, c := range checks {
		if c.Probe != nil {
			s.checks = append(s.checks, c)
		}
	}
	return s
}

// Check runs every probe concurrently.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.checks))

	var g errgroup.Group
	for i, c := range s.checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			results[i] = CheckOK
			if err := c.Probe(cctx); err != nil {
				results[i] = CheckError
			}
			return nil
		})
	}
	_ = g.Wait()

	status := Healthy
	checks := make(map[string]CheckResult, len(s.checks))
	for i, c := range s.checks {
		checks[c.Name] = results[i]
		if results[i] != CheckError {
			continue
		}
		if c.Critical {
			status = Unhealthy
		} else if status == Healthy {
			status = Degraded
		}
	}

	return Report{Status: status, Checks: checks}
}
