package health

import (
	"context"
	"time"

	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/metrics"
)

// Monitor runs registered checkers on an interval and mirrors the
// results into the component health registry. A dependency flips to
// unhealthy only after Config.Retries consecutive failures, so one
// flaky probe does not flap readiness.
type Monitor struct {
	config Config
	checks map[string]*monitoredCheck
	stopCh chan struct{}
}

type monitoredCheck struct {
	checker Checker
	status  *Status
}

// NewMonitor creates a monitor with the given probe configuration.
func NewMonitor(config Config) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Retries <= 0 {
		config.Retries = DefaultConfig().Retries
	}
	return &Monitor{
		config: config,
		checks: make(map[string]*monitoredCheck),
		stopCh: make(chan struct{}),
	}
}

// Register adds a named checker. Call before Start; the name becomes
// the component name in the health registry.
func (m *Monitor) Register(name string, checker Checker) {
	m.checks[name] = &monitoredCheck{
		checker: checker,
		status:  NewStatus(),
	}
}

// Start begins the probe loop. The first round runs immediately.
func (m *Monitor) Start() {
	ticker := time.NewTicker(m.config.Interval)
	go func() {
		m.probeAll()

		for {
			select {
			case <-ticker.C:
				m.probeAll()
			case <-m.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the probe loop
func (m *Monitor) Stop() {
	close(m.stopCh)
}

// Status returns the tracked status for a registered checker, or nil.
func (m *Monitor) Status(name string) *Status {
	mc, ok := m.checks[name]
	if !ok {
		return nil
	}
	return mc.status
}

func (m *Monitor) probeAll() {
	ctx := context.Background()
	logger := log.WithComponent("health")

	for name, mc := range m.checks {
		if mc.status.InStartPeriod(m.config) {
			continue
		}

		result := mc.checker.Check(ctx)
		mc.status.Update(result, m.config)
		metrics.UpdateComponent(name, mc.status.Healthy, result.Message)

		if !result.Healthy {
			logger.Warn().
				Str("check", name).
				Str("check_type", string(mc.checker.Type())).
				Int("consecutive_failures", mc.status.ConsecutiveFailures).
				Dur("duration", result.Duration).
				Msg(result.Message)
		}
	}
}
