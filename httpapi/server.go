// Package httpapi serves an in-memory reference implementation of the remote
// terminal service for local development and end-to-end tests.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
)

const maxCommandBody = 1 << 20

// Server serves the remote terminal API.
type Server struct {
	cfg      Config
	registry *Registry
	hub      *Hub
}

// NewServer constructs a server around registry. Writes to the registry are
// pushed to terminal stream subscribers.
func NewServer(cfg Config, registry *Registry) *Server {
	if cfg.RosterInterval <= 0 {
		cfg.RosterInterval = defaultRosterInterval
	}
	if registry == nil {
		registry = NewRegistry()
	}
	hub := NewHub(cfg.HubDepth)
	registry.OnWrite(hub.Publish)
	return &Server{cfg: cfg, registry: registry, hub: hub}
}

// Registry returns the backing registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Hub returns the update hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+schema.HealthPath, s.handleHealth)
	mux.HandleFunc("GET "+schema.TerminalsPath, s.handleTerminals)
	mux.HandleFunc("GET "+schema.TerminalsPath+"/{id}/content", s.handleContent)
	mux.HandleFunc("POST "+schema.TerminalsPath+"/{id}/command", s.handleCommand)
	mux.HandleFunc("GET "+schema.RosterStreamPath, s.handleRosterStream)
	mux.HandleFunc("GET "+schema.RosterStreamPath+"/{id}", s.handleTerminalStream)
	return withRequestLogging(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.HealthStatus{
		Status:            "healthy",
		ConnectedToITerm2: s.registry.Connected(),
		Timestamp:         schema.NewTimestamp(time.Now()),
	})
}

func (s *Server) handleTerminals(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context())
	terminals, err := s.registry.List()
	if err != nil {
		log.Warn("http terminals list failed", "err", err)
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, terminals)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id := schema.TerminalID(r.PathValue("id"))
	log := logx.WithTerminalCtx(r.Context(), id)
	content, ok, err := s.registry.Content(id)
	if err != nil {
		log.Warn("http content failed", "err", err)
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if !ok {
		writeDetail(w, http.StatusNotFound, "Terminal not found")
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := schema.TerminalID(r.PathValue("id"))
	log := logx.WithTerminalCtx(r.Context(), id)
	if !s.registry.Connected() {
		writeDetail(w, http.StatusServiceUnavailable, errNotConnected.Error())
		return
	}
	var req schema.CommandRequest
	if err := decodeJSON(io.LimitReader(r.Body, maxCommandBody), &req); err != nil {
		log.Warn("http command decode failed", "err", err)
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := schema.NormalizeCommandRequest(id, req)
	if err != nil {
		log.Warn("http command rejected", "err", err)
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := schema.CommandResponse{
		TerminalID: id,
		Command:    req.Command,
		Timestamp:  schema.NewTimestamp(time.Now()),
	}
	if _, err := s.registry.Write(id, req.Command, req.AppendNewline()); err != nil {
		log.Warn("http command failed", "err", err)
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	resp.Success = true
	writeJSON(w, http.StatusOK, resp)
	log.Info("http command ok", "bytes", len(req.Command), "newline", req.AppendNewline())
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
