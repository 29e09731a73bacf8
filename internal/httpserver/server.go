// Package httpserver exposes the records and events of a finished run over HTTP.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
	"github.com/tinytelemetry/pacemaker-logparser/internal/rules"
	"github.com/tinytelemetry/pacemaker-logparser/internal/timestamp"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:3000"

// Server provides a read-only HTTP API over an analysed run.
type Server struct {
	addr      string
	store     model.RecordReader
	engine    *rules.Engine
	runID     string
	window    model.Window
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. window is the run's configured
// window, used when a request names no bounds.
func NewServer(addr string, store model.RecordReader, runID string, window model.Window) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		store:  store,
		engine: rules.NewEngine(),
		runID:  runID,
		window: window,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/events", s.handleEvents)
	r.GET("/api/nodes", s.handleNodes)
	r.GET("/api/components", s.handleComponents)
	r.GET("/api/rules", s.handleRules)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"run_id":       s.runID,
		"uptime":       time.Since(s.startTime).String(),
		"record_count": count,
	})
}

type eventJSON struct {
	Timestamp string   `json:"ts"`
	Node      string   `json:"node"`
	Component string   `json:"component"`
	Payload   string   `json:"payload"`
	Rules     []string `json:"rules"`
	Source    string   `json:"source,omitempty"`
}

// handleEvents runs the rule engine. Optional query parameters: begin and
// end (YYYY-MM-DD or YYYY-MM-DD-HH:MM) and rule (a rule ID).
func (s *Server) handleEvents(c *gin.Context) {
	w, ok := s.requestWindow(c)
	if !ok {
		return
	}
	ruleID := c.Query("rule")
	if ruleID != "" {
		if _, known := rules.Lookup(ruleID); !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown rule " + ruleID})
			return
		}
	}

	res, err := s.engine.Query(c.Request.Context(), s.store, w)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	events := make([]eventJSON, 0, len(res.Events))
	for _, ev := range res.Events {
		if ruleID != "" && !contains(ev.Rules, ruleID) {
			continue
		}
		events = append(events, eventJSON{
			Timestamp: ev.Timestamp.Format(model.TimestampLayout),
			Node:      ev.Node,
			Component: ev.Component,
			Payload:   ev.Payload,
			Rules:     ev.Rules,
			Source:    ev.Source,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"events":  events,
		"count":   len(events),
		"scanned": res.Scanned,
	})
}

func (s *Server) handleNodes(c *gin.Context) {
	nodes, err := s.store.DistinctNodes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list nodes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nonNil(nodes)})
}

func (s *Server) handleComponents(c *gin.Context) {
	components, err := s.store.DistinctComponents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list components"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"components": nonNil(components)})
}

// handleRules lists the rule table with match counts over the run window.
func (s *Server) handleRules(c *gin.Context) {
	res, err := s.engine.Query(c.Request.Context(), s.store, s.window)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	out := make([]gin.H, 0, len(res.Counts))
	for _, rc := range res.Counts {
		out = append(out, gin.H{
			"id":          rc.Rule.ID,
			"name":        rc.Rule.Name,
			"description": rc.Rule.Description,
			"matches":     rc.Count,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

// requestWindow overrides the run window with any bounds in the query.
func (s *Server) requestWindow(c *gin.Context) (model.Window, bool) {
	w := s.window
	for _, b := range []struct {
		param string
		dst   *time.Time
	}{
		{"begin", &w.Begin},
		{"end", &w.End},
	} {
		raw := c.Query(b.param)
		if raw == "" {
			continue
		}
		t, err := timestamp.ParseBound(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": b.param + ": " + err.Error()})
			return model.Window{}, false
		}
		*b.dst = t
	}
	if !w.Begin.IsZero() && !w.End.IsZero() && !w.End.After(w.Begin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be later than begin"})
		return model.Window{}, false
	}
	return w, true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
