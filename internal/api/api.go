// Package api exposes the detection engine over a local HTTP API.
//
// Endpoints:
//
//	POST /scan                - run one detection cycle {"elementId","text"}
//	POST /edit                - register a debounced edit event
//	GET  /result              - latest debounced result for ?elementId=
//	POST /action              - record a user action on spans
//	POST /element/blur        - abandon pending scans for an element
//	POST /element/remove      - drop all state for an element
//	POST /categories/enable   - enable a category {"category":"EMAIL"}
//	POST /categories/disable  - disable a category
//	GET  /status              - engine health, backend availability, toggles
//	GET  /metrics             - counters and latency snapshot
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pii-span-detector/internal/config"
	"pii-span-detector/internal/engine"
	"pii-span-detector/internal/fuzzy"
	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/metrics"
	"pii-span-detector/internal/span"
	"pii-span-detector/internal/tracker"
)

const maxScanBody = 4 << 20 // 4 MB of text per scan request

// Server is the detection API server.
type Server struct {
	cfg        *config.Config
	engine     *engine.Engine
	fuzzy      *fuzzy.Adapter // nil = pattern only
	categories *CategoryRegistry
	metrics    *metrics.Metrics // nil = no metrics
	log        *logger.Logger
	startTime  time.Time
	token      string

	sched *engine.Scheduler

	// Latest debounced result per element, overwritten on every delivery
	// and read by GET /result.
	resMu   sync.Mutex
	results map[string]engine.Result
}

// New creates an API server.
func New(cfg *config.Config, eng *engine.Engine, fz *fuzzy.Adapter, reg *CategoryRegistry, m *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New("API", cfg.LogLevel)
	}
	s := &Server{
		cfg:        cfg,
		engine:     eng,
		fuzzy:      fz,
		categories: reg,
		metrics:    m,
		log:        log,
		startTime:  time.Now(),
		token:      cfg.APIToken,
		results:    make(map[string]engine.Result),
	}
	s.sched = engine.NewScheduler(eng, time.Duration(cfg.DebounceMs)*time.Millisecond, s.storeResult)
	if s.token != "" {
		log.Info("auth", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/edit", s.handleEdit)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/action", s.handleAction)
	mux.HandleFunc("/element/blur", s.handleBlur)
	mux.HandleFunc("/element/remove", s.handleRemove)
	mux.HandleFunc("/categories/enable", s.handleCategory(true))
	mux.HandleFunc("/categories/disable", s.handleCategory(false))
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return s.authMiddleware(mux)
}

// ListenAndServe starts the API server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.APIPort)
	s.log.Infof("listen", "API listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("auth", "unauthorized request from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// prefs builds the per-cycle preferences from config defaults and the
// live category registry.
func (s *Server) prefs() engine.Preferences {
	return engine.Preferences{
		Enabled:      true,
		Categories:   s.categories.Enabled(),
		FakeData:     s.cfg.FakeValues(),
		SkipRemoved:  s.cfg.SkipRemoved,
		SkipReplaced: s.cfg.SkipReplaced,
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBody)
	var req struct {
		ElementID string `json:"elementId"`
		Text      string `json:"text"`
		Seq       uint64 `json:"seq"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: need {\"text\":\"...\"}", http.StatusBadRequest)
		return
	}

	scanID := uuid.NewString()
	res, err := s.engine.ScanText(r.Context(), engine.Request{
		ElementID: req.ElementID,
		Text:      req.Text,
		Seq:       req.Seq,
		Prefs:     s.prefs(),
	})
	if err != nil {
		// Cancelled mid-cycle: the result must not be applied.
		s.log.Debugf("scan_abandoned", "%s: %v", scanID, err)
		writeJSON(w, http.StatusOK, map[string]any{
			"scanId": scanID, "superseded": true, "spans": []span.Span{},
		})
		return
	}
	spans := res.Spans
	if spans == nil {
		spans = []span.Span{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scanId":     scanID,
		"seq":        res.Seq,
		"superseded": res.Superseded,
		"spans":      spans,
	})
}

// storeResult is the scheduler's delivery callback. Delivery order is not
// completion order: a slow cycle can arrive after a newer one, so the
// mailbox keeps the highest edit sequence, never the last writer.
func (s *Server) storeResult(elementID string, res engine.Result) {
	s.resMu.Lock()
	if prev, ok := s.results[elementID]; !ok || res.Seq >= prev.Seq {
		s.results[elementID] = res
	}
	s.resMu.Unlock()
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBody)
	var req struct {
		ElementID string `json:"elementId"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ElementID == "" {
		http.Error(w, "invalid request: need {\"elementId\",\"text\"}", http.StatusBadRequest)
		return
	}
	s.sched.Edit(req.ElementID, req.Text, s.prefs())
	writeJSON(w, http.StatusAccepted, map[string]any{
		"scheduled":  req.ElementID,
		"debounceMs": s.cfg.DebounceMs,
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("elementId")
	if id == "" {
		http.Error(w, "need ?elementId=", http.StatusBadRequest)
		return
	}
	s.resMu.Lock()
	res, ok := s.results[id]
	s.resMu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	spans := res.Spans
	if spans == nil {
		spans = []span.Span{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"elementId": id,
		"seq":       res.Seq,
		"spans":     spans,
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxScanBody)
	var req struct {
		ElementID string      `json:"elementId"`
		Action    string      `json:"action"`
		FieldText string      `json:"fieldText"`
		Spans     []span.Span `json:"spans"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ElementID == "" {
		http.Error(w, "invalid request: need {\"elementId\",\"action\",\"spans\"}", http.StatusBadRequest)
		return
	}
	action := tracker.Action(req.Action)
	if !tracker.ValidAction(action) {
		http.Error(w, fmt.Sprintf("unknown action %q", req.Action), http.StatusBadRequest)
		return
	}
	s.engine.OnUserAction(req.ElementID, action, req.Spans, req.FieldText, s.prefs())
	writeJSON(w, http.StatusOK, map[string]any{"recorded": len(req.Spans)})
}

func (s *Server) handleBlur(w http.ResponseWriter, r *http.Request) {
	id, ok := s.elementID(w, r)
	if !ok {
		return
	}
	s.sched.Blur(id)
	writeJSON(w, http.StatusOK, map[string]string{"blurred": id})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.elementID(w, r)
	if !ok {
		return
	}
	s.sched.Remove(id)
	s.resMu.Lock()
	delete(s.results, id)
	s.resMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (s *Server) elementID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		ElementID string `json:"elementId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ElementID == "" {
		http.Error(w, "invalid request: need {\"elementId\":\"...\"}", http.StatusBadRequest)
		return "", false
	}
	return req.ElementID, true
}

func (s *Server) handleCategory(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1024)
		var req struct {
			Category string `json:"category"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" {
			http.Error(w, "invalid request: need {\"category\":\"...\"}", http.StatusBadRequest)
			return
		}
		label := span.Label(strings.ToUpper(req.Category))
		if err := s.categories.Set(label, enable); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		verb := "disabled"
		if enable {
			verb = "enabled"
		}
		s.log.Infof("category_toggle", "%s %s", verb, label)
		writeJSON(w, http.StatusOK, map[string]string{verb: string(label)})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status     string          `json:"status"`
		Uptime     string          `json:"uptime"`
		Categories map[string]bool `json:"categories"`
		Fuzzy      struct {
			Endpoint string `json:"endpoint"`
			Enabled  bool   `json:"enabled"`
			Healthy  bool   `json:"healthy"`
		} `json:"fuzzy"`
	}

	resp := response{
		Status:     "running",
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Categories: make(map[string]bool),
	}
	for l, on := range s.categories.Enabled() {
		resp.Categories[string(l)] = on
	}
	resp.Fuzzy.Endpoint = s.cfg.FuzzyEndpoint
	resp.Fuzzy.Enabled = s.cfg.UseFuzzy
	if s.fuzzy != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Fuzzy.Healthy = s.fuzzy.Healthy(ctx)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
