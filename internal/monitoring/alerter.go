package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed         AlertType = "run_failed"
	AlertCriticalConflicts AlertType = "critical_conflicts"
	AlertStaleSync         AlertType = "stale_sync"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run health against configured thresholds and sends
// alerts via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a != nil && a.cfg.WebhookURL != ""
}

// Evaluate checks a periodic snapshot and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.RunsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "high",
			Message: fmt.Sprintf("%d reconciliation run(s) failed in last %dh",
				snap.RunsFailed, snap.LookbackHours),
			Details: map[string]any{
				"failed":       snap.RunsFailed,
				"total":        snap.RunsTotal,
				"fail_rate":    snap.FailRate,
				"last_failure": snap.LastFailure,
				"run_id":       snap.LastFailedRunID,
			},
			Timestamp: now,
		})
	}

	if snap.CriticalConflicts > a.cfg.CriticalConflictThreshold {
		alerts = append(alerts, a.criticalAlert(snap.LastSuccessRunID, snap.CriticalConflicts, now))
	}

	if a.cfg.StaleAfterHours > 0 {
		cutoff := now.Add(-time.Duration(a.cfg.StaleAfterHours) * time.Hour)
		if snap.LastSuccessAt == nil || snap.LastSuccessAt.Before(cutoff) {
			details := map[string]any{
				"stale_after_hours": a.cfg.StaleAfterHours,
				"run_id":            snap.LastSuccessRunID,
			}
			msg := "no reconciliation run has ever completed"
			if snap.LastSuccessAt != nil {
				details["last_success_at"] = snap.LastSuccessAt.Format(time.RFC3339)
				msg = fmt.Sprintf("no reconciliation run completed in the last %dh", a.cfg.StaleAfterHours)
			}
			alerts = append(alerts, Alert{
				Type:      AlertStaleSync,
				Severity:  "medium",
				Message:   msg,
				Details:   details,
				Timestamp: now,
			})
		}
	}

	return alerts
}

// RunAlerts returns the alerts for a single finished run.
func (a *Alerter) RunAlerts(run *model.Run) []Alert {
	if a == nil || run == nil {
		return nil
	}
	now := time.Now().UTC()

	var alerts []Alert
	if run.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailed,
			Severity: "high",
			Message:  fmt.Sprintf("reconciliation run %s failed: %s", run.ID, run.Error),
			Details: map[string]any{
				"run_id":  run.ID,
				"dry_run": run.DryRun,
				"error":   run.Error,
			},
			Timestamp: now,
		})
	}
	if run.Stats != nil {
		if n := run.Stats.ConflictsBySeverity[model.SeverityCritical]; n > a.cfg.CriticalConflictThreshold {
			alerts = append(alerts, a.criticalAlert(run.ID, n, now))
		}
	}
	return alerts
}

func (a *Alerter) criticalAlert(runID string, n int, now time.Time) Alert {
	return Alert{
		Type:     AlertCriticalConflicts,
		Severity: "high",
		Message: fmt.Sprintf("run %s logged %d critical conflict(s) (threshold %d)",
			runID, n, a.cfg.CriticalConflictThreshold),
		Details: map[string]any{
			"run_id":    runID,
			"critical":  n,
			"threshold": a.cfg.CriticalConflictThreshold,
		},
		Timestamp: now,
	}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.Enabled() || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
