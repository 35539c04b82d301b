package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/model"
)

func healthyBids() KindHealth {
	last := collectNow.Add(-2 * time.Hour)
	return KindHealth{
		Kind:        model.KindBidNotice,
		Sessions:    10,
		Succeeded:   9,
		Failed:      1,
		FailRate:    0.1,
		Logged:      30,
		LastSuccess: &last,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5, StaleAfterHours: 36})

	alerts := a.Evaluate(&MetricsSnapshot{
		Kinds:         []KindHealth{healthyBids()},
		LookbackHours: 72,
		CollectedAt:   collectNow,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})

	h := healthyBids()
	h.Sessions, h.Succeeded, h.Failed, h.FailRate = 4, 1, 3, 0.75

	alerts := a.Evaluate(&MetricsSnapshot{Kinds: []KindHealth{h}, LookbackHours: 72, CollectedAt: collectNow})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSessionFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "75.0%")
	assert.Contains(t, alerts[0].Message, "bid_notice")
}

func TestAlerter_Evaluate_MinimumSessionsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.1})

	h := healthyBids()
	h.Sessions, h.Failed, h.FailRate = 2, 2, 1.0

	alerts := a.Evaluate(&MetricsSnapshot{Kinds: []KindHealth{h}, CollectedAt: collectNow})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ConsecutiveFailures(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	h := healthyBids()
	h.ConsecutiveFailures = 3

	alerts := a.Evaluate(&MetricsSnapshot{Kinds: []KindHealth{h}, CollectedAt: collectNow})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertConsecutiveFailures, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "last 3 bid_notice sessions failed")
}

func TestAlerter_Evaluate_StaleData(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StaleAfterHours: 36})

	old := collectNow.Add(-48 * time.Hour)
	stale := healthyBids()
	stale.LastSuccess = &old

	never := KindHealth{Kind: model.KindAward, Logged: 2, Sessions: 2, Failed: 2, FailRate: 1}
	fresh := KindHealth{Kind: model.KindAward}

	alerts := a.Evaluate(&MetricsSnapshot{Kinds: []KindHealth{stale, never, fresh}, CollectedAt: collectNow})
	require.Len(t, alerts, 2, "a kind with no logged sessions is not stale")
	for _, al := range alerts {
		assert.Equal(t, AlertStaleData, al.Type)
		assert.Equal(t, "medium", al.Severity)
	}
	assert.Equal(t, old.Format(time.RFC3339), alerts[0].Details["last_success"])
	assert.NotContains(t, alerts[1].Details, "last_success")
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertSessionFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertStaleData, Severity: "medium", Message: "test alert 2"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertStaleData, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertStaleData, Message: "test"}})
	assert.Equal(t, 0, sent)
}
