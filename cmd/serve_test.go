package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/philgeps-cli/internal/model"
	"github.com/sells-group/philgeps-cli/internal/monitoring"
	"github.com/sells-group/philgeps-cli/internal/scraper"
	"github.com/sells-group/philgeps-cli/internal/store"
)

type testAPI struct {
	api    *apiServer
	store  *store.SQLiteStore
	status *scraper.Status
	runs   chan model.RecordKind
	srv    *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	ta := &testAPI{store: st, status: scraper.NewStatus(), runs: make(chan model.RecordKind, 4)}
	run := func(_ context.Context, kind model.RecordKind) model.RunSummary {
		ta.runs <- kind
		return model.RunSummary{Kind: kind, Success: true}
	}
	ta.api = newAPIServer(context.Background(), st, ta.status, run)
	ta.srv = httptest.NewServer(ta.api.routes())
	t.Cleanup(ta.srv.Close)
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ta.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	return resp, body
}

func TestAPI_Health(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_StatusIdle(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, "idle", body["phase"])
}

func TestAPI_TriggerScrape(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodPost, "/scrape/awards")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "awarded_contract", body["kind"])

	select {
	case kind := <-ta.runs:
		assert.Equal(t, model.KindAward, kind)
	case <-time.After(2 * time.Second):
		t.Fatal("scrape was not started")
	}
	ta.api.wait()
}

func TestAPI_TriggerScrape_BadKind(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodPost, "/scrape/tenders")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "bids or awards")
}

func TestAPI_TriggerScrape_Busy(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, ta.status.Begin(model.KindBidNotice, time.Now()))

	resp, body := ta.do(t, http.MethodPost, "/scrape/bids")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "already running")
	assert.Empty(t, ta.runs)
}

func TestAPI_StopAndResume(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodPost, "/stop")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["stop_requested"])

	resp, _ = ta.do(t, http.MethodPost, "/scrape/bids")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = ta.do(t, http.MethodPost, "/resume")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["stop_requested"])

	resp, _ = ta.do(t, http.MethodPost, "/scrape/bids")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	ta.api.wait()
}

func TestAPI_GetBid(t *testing.T) {
	ta := newTestAPI(t)
	ctx := context.Background()

	resp, _ := ta.do(t, http.MethodGet, "/bids/11223344")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, _, err := ta.store.Upsert(ctx, &model.BidNotice{
		ReferenceNumber: "11223344",
		Title:           model.Ptr("Supply of Office Chairs"),
		Status:          model.DefaultBidStatus,
		URL:             "https://philgeps.gov.ph/tenders/viewBidNotice/11223344",
	})
	require.NoError(t, err)

	resp, body := ta.do(t, http.MethodGet, "/bids/11223344")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Supply of Office Chairs", body["title"])
}

func TestAPI_GetAward_NotFound(t *testing.T) {
	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/awards/A-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", body["error"])
}

func TestAPI_Sessions(t *testing.T) {
	ta := newTestAPI(t)
	ctx := context.Background()

	for _, kind := range []model.RecordKind{model.KindBidNotice, model.KindAward} {
		require.NoError(t, ta.store.AppendSession(ctx, &model.ScrapeSession{
			Kind:      kind,
			StartedAt: time.Now(),
			EndedAt:   time.Now(),
			Success:   true,
		}))
	}

	req, err := http.NewRequest(http.MethodGet, ta.srv.URL+"/sessions?kind=awards", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var got []model.ScrapeSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, model.KindAward, got[0].Kind)

	resp2, _ := ta.do(t, http.MethodGet, "/sessions?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestAPI_CORSPreflight(t *testing.T) {
	ta := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, ta.srv.URL+"/scrape/bids", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, ta.runs)
}

func TestAPI_SessionHealth(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, ta.store.AppendSession(context.Background(), &model.ScrapeSession{
		Kind:       model.KindBidNotice,
		StartedAt:  time.Now().Add(-time.Hour),
		EndedAt:    time.Now(),
		NewRecords: 7,
		Success:    true,
	}))

	resp, err := http.Get(ta.srv.URL + "/health/sessions?hours=24")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 24, snap.LookbackHours)
	require.Len(t, snap.Kinds, 2)
	assert.Equal(t, 1, snap.Kinds[0].Sessions)
	assert.Equal(t, 7, snap.Kinds[0].NewRecords)

	bad, _ := ta.do(t, http.MethodGet, "/health/sessions?hours=0")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}
