package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/resilience"
	"github.com/sells-group/storemap/internal/source"
)

func outcome(name string, found, failed int) source.Outcome {
	res := &source.Result{
		Locations: make([]model.Location, found),
		Failed:    make([]resilience.DLQEntry, failed),
	}
	return source.Outcome{Source: name, Chain: model.ChainLidl, Result: res}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(Config{FailedPageRate: 0.10})

	rep := &source.Report{Outcomes: []source.Outcome{outcome("lidl", 95, 5)}}
	assert.Empty(t, a.Evaluate(rep))
}

func TestAlerter_Evaluate_SourceFailure(t *testing.T) {
	a := NewAlerter(Config{FailedPageRate: 0.10})

	rep := &source.Report{Outcomes: []source.Outcome{
		{Source: "aldi_nord", Chain: model.ChainAldi, Err: assert.AnError},
	}}

	alerts := a.Evaluate(rep)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSourceFailure, alerts[0].Type)
	assert.Equal(t, "aldi_nord", alerts[0].Source)
	assert.Contains(t, alerts[0].Message, assert.AnError.Error())
}

func TestAlerter_Evaluate_FailedPageRate(t *testing.T) {
	a := NewAlerter(Config{FailedPageRate: 0.10})

	rep := &source.Report{Outcomes: []source.Outcome{outcome("aldi_sued", 12, 8)}}

	alerts := a.Evaluate(rep)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailedPageRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_MinimumPagesRequired(t *testing.T) {
	a := NewAlerter(Config{FailedPageRate: 0.10})

	// 2 of 4 pages failed, below the sample floor.
	rep := &source.Report{Outcomes: []source.Outcome{outcome("lidl", 2, 2)}}
	assert.Empty(t, a.Evaluate(rep))
}

func TestAlerter_Evaluate_ZeroThresholdDisablesRate(t *testing.T) {
	a := NewAlerter(Config{})

	rep := &source.Report{Outcomes: []source.Outcome{outcome("lidl", 10, 90)}}
	assert.Empty(t, a.Evaluate(rep))
}

func TestAlerter_Evaluate_EmptySource(t *testing.T) {
	a := NewAlerter(Config{FailedPageRate: 0.10})

	rep := &source.Report{Outcomes: []source.Outcome{outcome("lidl", 0, 3)}}

	alerts := a.Evaluate(rep)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertEmptySource, alerts[0].Type)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(Config{FailedPageRate: 0.10})

	rep := &source.Report{Outcomes: []source.Outcome{
		{Source: "aldi_nord", Err: assert.AnError},
		outcome("aldi_sued", 50, 50),
		outcome("lidl", 1000, 1),
	}}

	alerts := a.Evaluate(rep)
	require.Len(t, alerts, 2)
	assert.Equal(t, "aldi_nord", alerts[0].Source)
	assert.Equal(t, "aldi_sued", alerts[1].Source)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(Config{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertSourceFailure, Severity: "high", Message: "test alert 1"},
		{Type: AlertEmptySource, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(Config{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertSourceFailure, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(Config{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertSourceFailure, Message: "test"}})
	assert.Equal(t, 0, sent)
}
