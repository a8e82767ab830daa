package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/metrics"
	"github.com/JakeFAU/htmlshot/internal/presets"
	"github.com/JakeFAU/htmlshot/internal/render"
)

// DefaultMaxBody caps request bodies when Options leaves it unset.
const DefaultMaxBody int64 = 1 << 20

// requestTimeout bounds a whole request: load, extra wait and capture each
// get up to render.MaxTimeout, plus room for an engine relaunch.
const requestTimeout = 3*render.MaxTimeout + 30*time.Second

// Renderer is the render service as seen by HTTP handlers.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Result, error)
	RenderHTML(ctx context.Context, req render.Request) (string, error)
}

// Options tunes the server.
type Options struct {
	MaxBody int64
}

// Server wires HTTP handlers to the render service.
type Server struct {
	router   chi.Router
	renderer Renderer
	presets  *presets.Table
	maxBody  int64
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(renderer Renderer, table *presets.Table, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == nil {
		table = presets.Empty()
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	metrics.Init()
	s := &Server{
		renderer: renderer,
		presets:  table,
		maxBody:  opts.MaxBody,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/presets", s.listPresets)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/render", s.render)
	r.Post("/render-html", s.renderHTML)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listPresets(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.presets)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	result, err := s.renderer.Render(r.Context(), req)
	if err != nil {
		s.writeRenderError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", result.Format.ContentType())
	h.Set("Cache-Control", "no-store")
	h.Set("Content-Length", strconv.Itoa(len(result.Data)))
	if result.ArchiveURI != "" {
		h.Set("X-Archive-URI", result.ArchiveURI)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		s.logger.Warn("write image", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
}

func (s *Server) renderHTML(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	markup, err := s.renderer.RenderHTML(r.Context(), req)
	if err != nil {
		s.writeRenderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(markup)); err != nil {
		s.logger.Warn("write html", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (render.Request, bool) {
	var req render.Request
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return render.Request{}, false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return render.Request{}, false
	}
	return req, true
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// writeRenderError maps every render failure to 400; the body never carries
// partial image data.
func (s *Server) writeRenderError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Info("render rejected",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("kind", render.ErrorKind(err)),
		zap.Error(err),
	)
	var verr *render.ValidationError
	if errors.As(err, &verr) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: render.ErrValidation.Error(), Details: verr.Details})
		return
	}
	s.writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
