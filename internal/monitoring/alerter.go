package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/philgeps-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSessionFailureRate  AlertType = "session_failure_rate"
	AlertConsecutiveFailures AlertType = "consecutive_failures"
	AlertStaleData           AlertType = "stale_data"
)

// minFailuresForAlert is the fewest sessions a rate or streak alert needs.
const minFailuresForAlert = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *resty.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	for _, h := range snap.Kinds {
		if h.Sessions >= minFailuresForAlert && a.cfg.FailureRateThreshold > 0 && h.FailRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertSessionFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"%s session failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d in last %dh)",
					h.Kind, h.FailRate*100, a.cfg.FailureRateThreshold*100,
					h.Failed, h.Sessions, snap.LookbackHours,
				),
				Details: map[string]any{
					"kind":         string(h.Kind),
					"failure_rate": h.FailRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       h.Failed,
					"sessions":     h.Sessions,
				},
				Timestamp: now,
			})
		}

		if h.ConsecutiveFailures >= minFailuresForAlert {
			alerts = append(alerts, Alert{
				Type:     AlertConsecutiveFailures,
				Severity: "high",
				Message:  fmt.Sprintf("last %d %s sessions failed", h.ConsecutiveFailures, h.Kind),
				Details: map[string]any{
					"kind":                 string(h.Kind),
					"consecutive_failures": h.ConsecutiveFailures,
				},
				Timestamp: now,
			})
		}

		if a.cfg.StaleAfterHours > 0 && h.Logged > 0 {
			limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
			if h.LastSuccess == nil || now.Sub(*h.LastSuccess) > limit {
				msg := fmt.Sprintf("no successful %s session in over %dh", h.Kind, a.cfg.StaleAfterHours)
				details := map[string]any{"kind": string(h.Kind), "stale_after_hours": a.cfg.StaleAfterHours}
				if h.LastSuccess != nil {
					details["last_success"] = h.LastSuccess.Format(time.RFC3339)
				}
				alerts = append(alerts, Alert{
					Type:      AlertStaleData,
					Severity:  "medium",
					Message:   msg,
					Details:   details,
					Timestamp: now,
				})
			}
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
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

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(a.cfg.WebhookURL)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	if resp.IsError() {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode())
	}
	return nil
}
