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
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/config"
	"github.com/JakeFAU/logohunter/internal/hunter"
	"github.com/JakeFAU/logohunter/internal/metrics"
	"github.com/JakeFAU/logohunter/internal/progress"
)

const defaultCandidateLimit = 10

// statusClientClosed is the nginx convention for a request whose client went
// away before the answer was ready.
const statusClientClosed = 499

// Hunter is the part of hunter.Hunter the API serves.
type Hunter interface {
	Discover(ctx context.Context, domain string, emitter progress.Emitter) ([]candidate.Candidate, error)
	Hunt(ctx context.Context, domain string, opts hunter.Options, emitter progress.Emitter) (*hunter.Logo, error)
}

// Server wires HTTP handlers to the hunter.
type Server struct {
	router  chi.Router
	hunter  Hunter
	emitter progress.Emitter
	cache   *logoCache
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. emitter may be nil.
func NewServer(
	h Hunter,
	emitter progress.Emitter,
	clock hunter.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hunter:  h,
		emitter: emitter,
		cache:   newLogoCache(cfg.Server.CacheTTL, clock),
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(accessLog(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(huntDeadline(cfg.Server.RequestTimeout))
		if cfg.Auth.Enabled {
			r.Use(requireAPIKey(cfg.Auth.APIKey))
		}
		r.Route("/logos/{domain}", func(r chi.Router) {
			r.Get("/", s.getLogo)
			r.Get("/info", s.getLogoInfo)
			r.Get("/candidates", s.getCandidates)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getLogo(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	opts, err := hunter.ParseOptions(r.URL.Query().Get("format"), r.URL.Query().Get("size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logo, ok := s.hunt(w, r, domain, opts)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", logo.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(logo.Data)))
	w.Header().Set("X-Logo-Processed", strconv.FormatBool(logo.Processed))
	if sel := logo.Selection; sel != nil {
		w.Header().Set("X-Logo-Source", sel.FinalURL)
		w.Header().Set("X-Logo-Score", strconv.Itoa(sel.ValidatedScore))
	}
	if s.cfg.Storage.CacheControl != "" {
		w.Header().Set("Cache-Control", s.cfg.Storage.CacheControl)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(logo.Data); err != nil {
		s.logger.Warn("Write logo failed", zap.String("domain", domain), zap.Error(err))
	}
}

func (s *Server) getLogoInfo(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	logo, ok := s.hunt(w, r, domain, hunter.Options{})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, logo)
}

// hunt serves from the cache or runs the pipeline. It writes the error
// response itself and reports whether the caller should continue.
func (s *Server) hunt(w http.ResponseWriter, r *http.Request, domain string, opts hunter.Options) (*hunter.Logo, bool) {
	key := cacheKey(domain, opts)
	logo, hit := s.cache.get(key)
	if !hit {
		var err error
		logo, err = s.hunter.Hunt(r.Context(), domain, opts, s.emitter)
		if err != nil {
			s.writeHuntError(w, domain, err)
			return nil, false
		}
		s.cache.put(key, logo)
	}
	if logo == nil {
		writeError(w, http.StatusNotFound, "no logo found for "+domain)
		return nil, false
	}
	return logo, true
}

func (s *Server) getCandidates(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	limit := defaultCandidateLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	cands, err := s.hunter.Discover(r.Context(), domain, s.emitter)
	if err != nil {
		s.writeHuntError(w, domain, err)
		return
	}
	total := len(cands)
	if limit > 0 && limit < total {
		cands = cands[:limit]
	}
	writeJSON(w, http.StatusOK, candidatesResponse{Domain: domain, Total: total, Candidates: cands})
}

type candidatesResponse struct {
	Domain     string                `json:"domain"`
	Total      int                   `json:"total"`
	Candidates []candidate.Candidate `json:"candidates"`
}

func (s *Server) writeHuntError(w http.ResponseWriter, domain string, err error) {
	switch {
	case errors.Is(err, hunter.ErrInvalidDomain):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "hunt timed out")
	case errors.Is(err, context.Canceled):
		s.logger.Debug("Hunt abandoned by client", zap.String("domain", domain), zap.Error(err))
		writeError(w, statusClientClosed, "request canceled")
	default:
		s.logger.Error("Hunt failed", zap.String("domain", domain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "hunt failed")
	}
}

func cacheKey(domain string, opts hunter.Options) string {
	return fmt.Sprintf("%s|%s|%dx%d", domain, opts.Format, opts.Width, opts.Height)
}

// Serve runs the server on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; a failed body write means the client left.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
