// Package health runs environment diagnostics for keyblast: whether keystrokes
// can be injected, whether a clipboard helper exists, whether the history
// database is usable, and similar. Checks run concurrently, each under its own
// timeout, and are aggregated into one overall status.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a check that does not set its own.
const DefaultTimeout = 5 * time.Second

// CheckResult represents the result of a health check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Critical bool          `json:"critical"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Check is a function that performs a health check.
type Check func(ctx context.Context) CheckResult

// Component represents a health-checkable component.
type Component struct {
	Name     string
	Critical bool // failure makes the overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// Report is the outcome of one Run.
type Report struct {
	Status  Status        `json:"status"`
	Results []CheckResult `json:"results"`
}

// Checker manages health checks.
type Checker struct {
	mu         sync.Mutex
	components []*Component
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Register adds a component. Components report in registration order.
func (c *Checker) Register(component *Component) {
	if component.Timeout == 0 {
		component.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	c.components = append(c.components, component)
	c.mu.Unlock()
}

// RegisterFunc registers a simple health check function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// Run executes every registered check and aggregates the results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	components := append([]*Component(nil), c.components...)
	c.mu.Unlock()

	results := make([]CheckResult, len(components))
	var wg sync.WaitGroup
	for i, comp := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runOne(ctx, comp)
		}()
	}
	wg.Wait()

	return Report{Status: Aggregate(results), Results: results}
}

func runOne(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprint(r),
				}
			}
		}()
		done <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   checkCtx.Err().Error(),
		}
	}

	result.Name = comp.Name
	result.Critical = comp.Critical
	result.Duration = time.Since(start)
	return result
}

// Aggregate folds per-check results into one status. An unhealthy critical
// check makes the whole report unhealthy; an unhealthy optional one only
// degrades it.
func Aggregate(results []CheckResult) Status {
	if len(results) == 0 {
		return StatusUnknown
	}

	degraded := false
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			if r.Critical {
				return StatusUnhealthy
			}
			degraded = true
		case StatusDegraded, StatusUnknown:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Healthy reports whether nothing is unhealthy.
func (r Report) Healthy() bool {
	return r.Status != StatusUnhealthy
}

// Common health checks.

// ErrorCheck turns fn into a check: nil is healthy, an error yields failed.
// Use StatusDegraded as failed for checks whose failure only disables a
// feature.
func ErrorCheck(ok string, failed Status, fn func(ctx context.Context) (string, error)) Check {
	return func(ctx context.Context) CheckResult {
		detail, err := fn(ctx)
		if err != nil {
			return CheckResult{Status: failed, Message: detail, Error: err.Error()}
		}
		msg := ok
		if detail != "" {
			msg = ok + ": " + detail
		}
		return CheckResult{Status: StatusHealthy, Message: msg}
	}
}

// Disabled reports a feature that is switched off in configuration.
func Disabled(what string) Check {
	return func(context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy, Message: what + " disabled"}
	}
}
