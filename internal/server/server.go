// Package server exposes the dashboard and ingest HTTP surface: event
// intake (relayed onto the Kafka channel), activity and risk reports,
// insights and the downloadable HTML report.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"github.com/rs/zerolog/log"

	"github.com/tabwatch/tabwatch/internal/report"
	"github.com/tabwatch/tabwatch/internal/risk"
	"github.com/tabwatch/tabwatch/internal/store"
)

// Summarizer is the external summarization capability.
type Summarizer interface {
	Summarize(ctx context.Context, activity map[string]int64, trackingSummary string) (string, error)
}

// EventProducer relays accepted events onto the event channel.
type EventProducer interface {
	ProduceEvent(ctx context.Context, key string, event map[string]interface{}) error
}

type Server struct {
	store      *store.Store
	scorer     *risk.Scorer
	summarizer Summarizer
	producer   EventProducer
}

func New(st *store.Store, scorer *risk.Scorer, sum Summarizer, prod EventProducer) *Server {
	return &Server{
		store:      st,
		scorer:     scorer,
		summarizer: sum,
		producer:   prod,
	}
}

// Router builds the chi router with all dashboard routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Get("/health", handleHealth)
	r.Post("/v1/events", s.handleEvents)
	r.Get("/v1/activity", s.handleActivity)
	r.Get("/v1/risk", s.handleRisk)
	r.Get("/v1/insights", s.handleInsights)
	r.Post("/v1/analyze", s.handleAnalyze)
	r.Get("/v1/export", s.handleExport)

	return r
}

type eventBatchRequest struct {
	Events []map[string]interface{} `json:"events"`
}

type eventResponse struct {
	Success       bool     `json:"success"`
	AcceptedCount int      `json:"accepted_count"`
	RejectedCount int      `json:"rejected_count"`
	Errors        []string `json:"errors,omitempty"`
}

// handleEvents is the HTTP intake fallback: events are enriched and relayed
// onto the Kafka channel for the tracker process.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var req eventBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	browser, os := parseUserAgent(r.Header.Get("User-Agent"))

	accepted := 0
	rejected := 0
	var errs []string

	for _, ev := range req.Events {
		if ev["event_id"] == nil {
			ev["event_id"] = uuid.New().String()
		}
		if ev["type"] == "page_visit" && browser != "" {
			if ev["browser"] == nil {
				ev["browser"] = browser
			}
			if ev["os"] == nil {
				ev["os"] = os
			}
		}

		key, _ := ev["domain"].(string)
		if err := s.producer.ProduceEvent(r.Context(), key, ev); err != nil {
			rejected++
			errs = append(errs, err.Error())
			continue
		}
		accepted++
	}

	writeJSON(w, http.StatusOK, eventResponse{
		Success:       rejected == 0,
		AcceptedCount: accepted,
		RejectedCount: rejected,
		Errors:        errs,
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	activity, ok := s.refresh(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.BuildOverview(activity))
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	_, ok := s.refresh(w, r)
	if !ok {
		return
	}
	_, tracking := s.store.Snapshot()

	risks := report.DomainRisks(tracking.PageVisits, s.scorer)
	if risks == nil {
		risks = []report.DomainRisk{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"domains": risks})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.refresh(w, r); !ok {
		return
	}

	cached := s.store.Analysis()
	if cached == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "insights unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analysis": cached})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	activity, ok := s.refresh(w, r)
	if !ok {
		return
	}
	_, tracking := s.store.Snapshot()

	text, err := s.summarizer.Summarize(r.Context(), report.DomainActivity(activity), report.TrackingSummary(tracking))
	if err != nil {
		log.Error().Err(err).Msg("Summarization failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "insights unavailable"})
		return
	}

	s.store.SetAnalysis(r.Context(), text)
	writeJSON(w, http.StatusOK, map[string]string{"analysis": text})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	activity, ok := s.refresh(w, r)
	if !ok {
		return
	}
	_, tracking := s.store.Snapshot()

	filename := fmt.Sprintf("activity-report-%s.html", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := report.WriteHTML(w, activity, tracking, s.scorer); err != nil {
		log.Error().Err(err).Msg("Failed to render HTML report")
	}
}

// refresh re-reads persisted state so the dashboard sees the tracker's
// latest writes. Returns the activity snapshot.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) (store.Activity, bool) {
	if err := s.store.Refresh(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to refresh state")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "state unavailable"})
		return nil, false
	}
	activity, _ := s.store.Snapshot()
	return activity, true
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func parseUserAgent(raw string) (browser, os string) {
	if raw == "" {
		return "", ""
	}
	ua := useragent.New(raw)
	browser, _ = ua.Browser()
	return browser, ua.OS()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
