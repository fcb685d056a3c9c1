// Package httpapi exposes the reconciliation facade over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/devblac/syt-bridge/internal/domain"
	"github.com/devblac/syt-bridge/internal/reconcile"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 64 << 10

// Reconciler is the facade surface the handlers call.
type Reconciler interface {
	CreateDebateFromTransaction(ctx context.Context, in reconcile.CreateDebateInput) (domain.Debate, bool, error)
	SubmitEvidence(ctx context.Context, in reconcile.SubmitEvidenceInput) (domain.Evidence, error)
	GetDebate(ctx context.Context, id int64) (reconcile.DebateWithEvidence, error)
	ListDebates(ctx context.Context) ([]domain.Debate, error)
	UpdateDebate(ctx context.Context, id int64, in reconcile.UpdateDebateInput) (domain.Debate, error)
	ListEvidence(ctx context.Context, debateIDPg int64) ([]domain.Evidence, error)
	LiveDebates(ctx context.Context) ([]reconcile.LiveDebate, error)
	VoteStatus(ctx context.Context, debateIDPg int64, addr string) (domain.VoteProof, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Service    Reconciler
	Logger     *slog.Logger
	RateLimit  RateLimit
	// TrustProxy takes the client address from X-Real-IP/X-Forwarded-For.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool
	Health     http.Handler
	Metrics    http.Handler
}

// Server routes HTTP requests to the facade.
type Server struct {
	svc     Reconciler
	log     *slog.Logger
	limiter *RateLimiter
	router  http.Handler
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		svc:     cfg.Service,
		log:     log,
		limiter: NewRateLimiter(cfg.RateLimit),
	}
	s.router = s.buildRouter(cfg)
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/healthz", cfg.Health)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/debate", func(d chi.Router) {
		d.Get("/", s.listDebates)
		d.With(s.limiter.Middleware).Post("/", s.createDebate)
		d.Get("/live", s.liveDebates)
		d.Get("/{id}", s.getDebate)
		d.With(s.limiter.Middleware).Patch("/{id}", s.updateDebate)
		d.Get("/{id}/vote", s.voteStatus)
	})
	r.Route("/evidence", func(e chi.Router) {
		e.Get("/", s.listEvidence)
		e.With(s.limiter.Middleware).Post("/", s.submitEvidence)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (s *Server) createDebate(w http.ResponseWriter, r *http.Request) {
	var in reconcile.CreateDebateInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, created, err := s.svc.CreateDebateFromTransaction(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, rec)
}

func (s *Server) listDebates(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListDebates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// liveDebates serves a partial view when some chains could not be read in
// time; unread entries have a null state.
func (s *Server) liveDebates(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.LiveDebates(r.Context())
	if err != nil && list == nil {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.log.Warn("serving partial live view", "debates", len(list), "error", err)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getDebate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.GetDebate(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) updateDebate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in reconcile.UpdateDebateInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.UpdateDebate(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) voteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	proof, err := s.svc.VoteStatus(r.Context(), id, r.URL.Query().Get("address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

func (s *Server) submitEvidence(w http.ResponseWriter, r *http.Request) {
	var in reconcile.SubmitEvidenceInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	ev, err := s.svc.SubmitEvidence(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) listEvidence(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("debateIdPg")
	if raw == "" {
		s.writeError(w, r, fmt.Errorf("%w: debateIdPg is required", domain.ErrInvalidInput))
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: debateIdPg must be an integer", domain.ErrInvalidInput))
		return
	}
	list, err := s.svc.ListEvidence(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidInput)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", domain.ErrInvalidInput)
	}
	return id, nil
}
