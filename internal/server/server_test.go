package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabwatch/tabwatch/internal/risk"
	"github.com/tabwatch/tabwatch/internal/store"
)

type fakeSummarizer struct {
	text string
	err  error
}

func (f *fakeSummarizer) Summarize(context.Context, map[string]int64, string) (string, error) {
	return f.text, f.err
}

type fakeProducer struct {
	events []map[string]interface{}
	err    error
}

func (f *fakeProducer) ProduceEvent(_ context.Context, _ string, ev map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *fakeSummarizer, *fakeProducer) {
	t.Helper()
	st, err := store.Open(context.Background(), store.NewMemoryKV())
	require.NoError(t, err)
	sum := &fakeSummarizer{text: "all quiet"}
	prod := &fakeProducer{}
	return New(st, risk.NewScorer(nil), sum, prod), st, sum, prod
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleEvents(t *testing.T) {
	srv, _, _, prod := newTestServer(t)

	body := `{"events": [
		{"type": "page_visit", "url": "https://example.com/", "domain": "example.com", "timestamp": 1000},
		{"type": "sensitive_field_detected", "field_type": "password", "domain": "example.com", "timestamp": 2000}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.AcceptedCount)
	assert.Zero(t, resp.RejectedCount)

	require.Len(t, prod.events, 2)
	// Missing ids are assigned, page visits are enriched from the UA.
	assert.NotEmpty(t, prod.events[0]["event_id"])
	assert.Equal(t, "Chrome", prod.events[0]["browser"])
	assert.NotEmpty(t, prod.events[0]["os"])
	// Non page-visit events are relayed untouched apart from the id.
	assert.Nil(t, prod.events[1]["browser"])
}

func TestHandleEventsBadJSON(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEventsProducerFailure(t *testing.T) {
	srv, _, _, prod := newTestServer(t)
	prod.err = errors.New("broker unreachable")

	body := `{"events": [{"type": "page_visit", "domain": "example.com"}]}`
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.RejectedCount)
	assert.NotEmpty(t, resp.Errors)
}

func TestHandleActivity(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	ctx := context.Background()
	st.AddDwell(ctx, "https://example.com/", 30*60_000)
	st.AddDwell(ctx, "https://other.net/", 90*60_000)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activity", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var overview struct {
		TotalMs int64 `json:"total_ms"`
		Sites   []struct {
			Domain string `json:"domain"`
		} `json:"sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, int64(120*60_000), overview.TotalMs)
	require.Len(t, overview.Sites, 2)
	assert.Equal(t, "other.net", overview.Sites[0].Domain)
}

func TestHandleRisk(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	st.AppendPageVisit(context.Background(), store.PageVisit{
		URL:    "https://vpn.example/",
		Domain: "vpn.example",
		IPData: &store.IPRecord{IP: "5.6.7.8", Country: "Netherlands", ISP: "M247", IsVPN: true, IsProxy: true},
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/risk", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Domains []struct {
			Domain string `json:"domain"`
			Risk   struct {
				Level string `json:"level"`
			} `json:"risk"`
		} `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Domains, 1)
	assert.Equal(t, "vpn.example", resp.Domains[0].Domain)
	assert.Equal(t, "medium", resp.Domains[0].Risk.Level)
}

func TestInsightsLifecycle(t *testing.T) {
	srv, _, sum, _ := newTestServer(t)
	router := srv.Router()

	// Nothing cached yet.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/insights", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A fresh analysis populates the cache.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/insights", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "all quiet", resp["analysis"])

	// A later failure does not clobber the cached text.
	sum.err = errors.New("model offline")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/insights", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleExport(t *testing.T) {
	srv, st, _, _ := newTestServer(t)
	st.AddDwell(context.Background(), "https://example.com/", 5*60_000)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "example.com")
	assert.Contains(t, rec.Body.String(), "Activity Tracker Report")
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/events", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
