package health

import (
	"context"
	"sort"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	defaultTimeout = 3 * time.Second
)

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Report is the health payload.
type Report struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Service encapsulates health-related checks.
type Service struct {
	Version string
	Timeout time.Duration
	Now     func() time.Time

	checks map[string]Pinger
}

// NewService constructs a new health service.
func NewService(version string) *Service {
	return &Service{Version: version, checks: map[string]Pinger{}}
}

// Register adds a named dependency check.
func (s *Service) Register(name string, p Pinger) {
	if p == nil {
		return
	}
	s.checks[name] = p
}

// Check pings every registered dependency concurrently.
func (s *Service) Check(ctx context.Context) Report {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(s.checks))
	for name, p := range s.checks {
		go func(name string, p Pinger) {
			results <- result{name: name, err: p.Ping(ctx)}
		}(name, p)
	}

	report := Report{
		Status:    StatusHealthy,
		Timestamp: s.now().Unix(),
		Version:   s.Version,
		Checks:    make(map[string]string, len(s.checks)),
	}
	for range s.checks {
		r := <-results
		if r.err != nil {
			report.Status = StatusUnhealthy
			report.Checks[r.name] = "error: " + r.err.Error()
			continue
		}
		report.Checks[r.name] = "ok"
	}
	return report
}

// Names lists the registered checks in order.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
