package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/config"
)

// Checker watches the run log on an interval and alerts on unhealthy
// syncs. An alert for the same run is sent at most once while that run
// stays inside the lookback window.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger

	sent map[string]time.Time
}

// NewChecker creates a background alert checker. Unset interval and
// lookback fall back to five minutes and 24 hours.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
		sent:      make(map[string]time.Time),
	}
	if c.interval <= 0 {
		c.interval = 5 * time.Minute
	}
	if c.lookback <= 0 {
		c.lookback = 24
	}
	return c
}

// Run checks once immediately and then on every tick until ctx is done.
// Check must not be called concurrently with Run.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("monitoring: checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.Check(ctx)
		select {
		case <-ctx.Done():
			c.log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot and sends the alerts not already sent. It
// returns the number of new alerts.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("monitoring: failed to collect run health", zap.Error(err))
		return 0
	}

	c.forget(snap.CollectedAt.Add(-time.Duration(c.lookback) * time.Hour))

	var fresh []Alert
	for _, a := range c.alerter.Evaluate(snap) {
		k := alertKey(a)
		if _, dup := c.sent[k]; dup {
			continue
		}
		c.sent[k] = snap.CollectedAt
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		c.log.Debug("monitoring: nothing new to alert")
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	c.log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return len(fresh)
}

func (c *Checker) forget(before time.Time) {
	for k, at := range c.sent {
		if at.Before(before) {
			delete(c.sent, k)
		}
	}
}

func alertKey(a Alert) string {
	return fmt.Sprintf("%s/%v", a.Type, a.Details["run_id"])
}
