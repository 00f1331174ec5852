package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// HealthState indicates the probed health of a registered tool.
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthReport is a normalized health snapshot for a single tool.
type HealthReport struct {
	Tool         string      `json:"tool"`
	State        HealthState `json:"state"`
	CheckedAt    time.Time   `json:"checked_at"`
	LatencyMS    int64       `json:"latency_ms,omitempty"`
	FailureCount int         `json:"failure_count,omitempty"`
	Cause        string      `json:"cause,omitempty"`
}

const (
	defaultHealthSchedule = "@every 5m"
	defaultProbeTimeout   = 10 * time.Second
)

var healthCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// MonitorConfig controls background health probing.
type MonitorConfig struct {
	Registry *Registry
	// Schedule is a five-field cron expression or @every descriptor.
	// Empty means every five minutes.
	Schedule     string
	ProbeTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Monitor runs scheduled health probes across registered tools and retains
// the latest report per tool.
type Monitor struct {
	registry     *Registry
	schedule     cron.Schedule
	probeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	reportsMu sync.RWMutex
	reports   map[string]HealthReport
}

// NewMonitor creates a health monitor over a frozen registry.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Registry == nil {
		return nil, errors.New("tool: health monitor registry is nil")
	}
	expr := strings.TrimSpace(cfg.Schedule)
	if expr == "" {
		expr = defaultHealthSchedule
	}
	schedule, err := healthCronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("tool: invalid health schedule %q: %w", expr, err)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Monitor{
		registry:     cfg.Registry,
		schedule:     schedule,
		probeTimeout: cfg.ProbeTimeout,
		logger:       cfg.Logger,
		now:          cfg.Now,
		reports:      make(map[string]HealthReport, cfg.Registry.Len()),
	}, nil
}

// Start begins background probing: one sweep immediately, then per schedule.
// Starting a started monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("tool: health monitor is nil")
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		_ = m.RunOnce(loopCtx)
		for {
			next := m.schedule.Next(m.now())
			timer := time.NewTimer(next.Sub(m.now()))
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				_ = m.RunOnce(loopCtx)
			}
		}
	}()

	return nil
}

// Stop terminates background probing and waits for the sweep loop to exit.
func (m *Monitor) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce probes every registered tool concurrently and records the results.
// Probe failures are recorded, not returned; the error covers only sweep
// cancellation.
func (m *Monitor) RunOnce(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range m.registry.List() {
		g.Go(func() error {
			m.probeTool(gctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (m *Monitor) probeTool(ctx context.Context, t *Tool) {
	checkedAt := m.now()
	report := HealthReport{Tool: t.Name(), CheckedAt: checkedAt}

	probe := t.runtime.Probe
	if probe == nil {
		report.State = HealthUnknown
		m.record(report)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	start := time.Now()
	err := probe(probeCtx)
	report.LatencyMS = elapsedMS(start)

	if err != nil {
		report.State = HealthUnhealthy
		report.Cause = lastCauseLabel(err)
		report.FailureCount = m.failureCount(t.Name()) + 1
		m.logger.Warn("tool health probe failed",
			"tool", t.Name(),
			"failures", report.FailureCount,
			"cause", report.Cause,
		)
	} else {
		report.State = HealthHealthy
	}

	m.record(report)
	emitHealthObservation(HealthObservation{
		Tool:         report.Tool,
		State:        report.State,
		DurationMS:   report.LatencyMS,
		FailureCount: report.FailureCount,
		Cause:        report.Cause,
	})
}

func (m *Monitor) failureCount(toolName string) int {
	m.reportsMu.RLock()
	defer m.reportsMu.RUnlock()
	return m.reports[toolName].FailureCount
}

func (m *Monitor) record(report HealthReport) {
	m.reportsMu.Lock()
	defer m.reportsMu.Unlock()
	m.reports[report.Tool] = report
}

// Report returns the latest report for one tool.
func (m *Monitor) Report(toolName string) (HealthReport, bool) {
	m.reportsMu.RLock()
	defer m.reportsMu.RUnlock()
	report, ok := m.reports[toolName]
	return report, ok
}

// Reports returns the latest reports in registry declaration order. Tools
// never probed report state unknown.
func (m *Monitor) Reports() []HealthReport {
	m.reportsMu.RLock()
	defer m.reportsMu.RUnlock()

	out := make([]HealthReport, 0, m.registry.Len())
	for _, name := range m.registry.Names() {
		report, ok := m.reports[name]
		if !ok {
			report = HealthReport{Tool: name, State: HealthUnknown}
		}
		out = append(out, report)
	}
	return out
}
