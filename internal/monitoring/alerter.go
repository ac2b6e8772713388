// Package monitoring turns collection reports into webhook alerts.
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

	"github.com/sells-group/storemap/internal/source"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSourceFailure  AlertType = "source_failure"
	AlertFailedPageRate AlertType = "failed_page_rate"
	AlertEmptySource    AlertType = "empty_source"
)

// minPages is the smallest sample a failed-page rate is judged on.
const minPages = 5

// Config configures alerting. An empty WebhookURL disables delivery but
// Evaluate still works.
type Config struct {
	WebhookURL     string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailedPageRate float64 `yaml:"failed_page_rate" mapstructure:"failed_page_rate"`
}

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a collection report against configured thresholds
// and sends alerts via webhook.
type Alerter struct {
	cfg    Config
	client *http.Client
}

// NewAlerter creates a new Alerter with the given config.
func NewAlerter(cfg Config) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts raised by one collection run, in source order.
func (a *Alerter) Evaluate(rep *source.Report) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for _, o := range rep.Outcomes {
		if o.Err != nil {
			alerts = append(alerts, Alert{
				Type:      AlertSourceFailure,
				Severity:  "high",
				Source:    o.Source,
				Message:   fmt.Sprintf("source %s failed: %v", o.Source, o.Err),
				Details:   map[string]any{"chain": string(o.Chain), "elapsed_s": o.Elapsed.Seconds()},
				Timestamp: now,
			})
			continue
		}
		if o.Result == nil {
			continue
		}

		found, failed := len(o.Result.Locations), len(o.Result.Failed)
		if found == 0 {
			alerts = append(alerts, Alert{
				Type:      AlertEmptySource,
				Severity:  "high",
				Source:    o.Source,
				Message:   fmt.Sprintf("source %s returned no locations", o.Source),
				Details:   map[string]any{"failed_pages": failed},
				Timestamp: now,
			})
			continue
		}

		attempted := found + failed
		rate := float64(failed) / float64(attempted)
		if a.cfg.FailedPageRate > 0 && attempted >= minPages && rate > a.cfg.FailedPageRate {
			alerts = append(alerts, Alert{
				Type:     AlertFailedPageRate,
				Severity: "medium",
				Source:   o.Source,
				Message: fmt.Sprintf("source %s: %.1f%% of pages failed (%d of %d), threshold %.1f%%",
					o.Source, rate*100, failed, attempted, a.cfg.FailedPageRate*100),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.FailedPageRate,
					"failed":       failed,
					"attempted":    attempted,
				},
				Timestamp: now,
			})
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
				zap.String("source", alert.Source),
				zap.Error(err),
			)
			continue
		}
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
