package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobby-s-dev/weather-lookup/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const probeTimeout = 30 * time.Second

// Looker is the lookup the probe exercises.
type Looker interface {
	Lookup(ctx context.Context, city string) (*models.WeatherResult, error)
}

// ProbeStatus describes the most recent probe run.
type ProbeStatus struct {
	City     string    `json:"city"`
	LastRun  time.Time `json:"last_run"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Duration string    `json:"duration"`
}

// Prober periodically looks up a fixed city so operators can see whether the
// upstream provider is reachable. Probe results are never served as weather data.
type Prober struct {
	lookup   Looker
	logger   *zap.Logger
	city     string
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	last    *ProbeStatus
}

func NewProber(lookup Looker, city, schedule string, logger *zap.Logger) *Prober {
	return &Prober{
		lookup:   lookup,
		logger:   logger,
		city:     city,
		schedule: schedule,
	}
}

// Start registers the probe with cron. An empty schedule leaves it disabled.
func (p *Prober) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.schedule == "" {
		p.logger.Info("Upstream probe disabled")
		return nil
	}

	cronLog := cronLogger{sugar: p.logger.Sugar()}
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	if _, err := c.AddFunc(p.schedule, func() { p.RunNow() }); err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", p.schedule, err)
	}

	c.Start()
	p.cron = c
	p.running = true

	p.logger.Info("Upstream probe started",
		zap.String("schedule", p.schedule),
		zap.String("city", p.city))

	return nil
}

// Stop halts the schedule and waits for a running probe to finish.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	c := p.cron
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Stopping upstream probe")
	<-c.Stop().Done()
}

// RunNow performs one probe synchronously and records its outcome.
func (p *Prober) RunNow() ProbeStatus {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	start := time.Now()
	_, err := p.lookup.Lookup(ctx, p.city)
	elapsed := time.Since(start)

	status := ProbeStatus{
		City:     p.city,
		LastRun:  start,
		Success:  err == nil,
		Duration: elapsed.String(),
	}
	if err != nil {
		status.Error = err.Error()
		p.logger.Warn("Upstream probe failed",
			zap.String("city", p.city),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	} else {
		p.logger.Info("Upstream probe succeeded",
			zap.String("city", p.city),
			zap.Duration("duration", elapsed))
	}

	p.mu.Lock()
	p.last = &status
	p.mu.Unlock()

	return status
}

// Status returns the last recorded probe, if any.
func (p *Prober) Status() (ProbeStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		return ProbeStatus{}, false
	}
	return *p.last, true
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
