// Package inspector serves a read-only HTTP view of the live node store and
// the action log while developing a site.
package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegraph/internal/eventstore"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/metrics"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
	shutdownTimeout    = 5 * time.Second
)

// Options configures a Server. Store is required; the rest are optional.
type Options struct {
	Addr      string
	Store     *store.Store
	Log       eventstore.Store
	SessionID string
	Registry  *prom.Registry
	Logger    *slog.Logger
}

// Server is the inspector HTTP server.
type Server struct {
	opts    Options
	logger  *slog.Logger
	adapter *ferrors.HTTPErrorAdapter
	handler http.Handler
	srv     *http.Server
	addr    string
}

// ActionsResponse is the payload of the /actions endpoint.
type ActionsResponse struct {
	SessionID string              `json:"session_id"`
	Counts    map[string]int      `json:"counts"`
	Recent    []eventstore.Record `json:"recent"`
}

// NodeResponse is the payload of the /nodes/{id} endpoint.
type NodeResponse struct {
	Node       *node.Node          `json:"node"`
	Dependents []string            `json:"dependents"`
	History    []eventstore.Record `json:"history,omitempty"`
}

// New builds the inspector. It does not listen until Start is called.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, ferrors.ValidationError("inspector requires a store").Build()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:    opts,
		logger:  logger,
		adapter: ferrors.NewHTTPErrorAdapter(logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /actions", s.handleActions)
	mux.HandleFunc("GET /nodes/{id}", s.handleNode)
	if opts.Registry != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(opts.Registry))
	}
	s.handler = chain(logger, s.adapter, mux)
	return s, nil
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string { return s.addr }

// Start binds the listener and serves in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to bind inspector").
			WithContext("addr", s.opts.Addr).
			Build()
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Inspector server stopped", logfields.Error(err))
		}
	}()
	s.logger.Info("State inspector listening", slog.String("addr", s.addr))
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("inspector shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.opts.Store.Snapshot())
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Log == nil {
		s.adapter.WriteErrorResponse(w, r, ferrors.NotFoundError("action log is disabled").Build())
		return
	}
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			s.adapter.WriteErrorResponse(w, r, ferrors.ValidationError("invalid limit").
				WithContext("limit", raw).
				WithContext("max", maxRecentLimit).
				Build())
			return
		}
		limit = n
	}

	recent, err := s.opts.Log.Recent(r.Context(), limit)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, ferrors.WrapError(err, ferrors.CategoryPersistence, "failed to read action log").Build())
		return
	}
	counts, err := s.opts.Log.CountByType(r.Context(), s.opts.SessionID)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, ferrors.WrapError(err, ferrors.CategoryPersistence, "failed to count actions").Build())
		return
	}
	if recent == nil {
		recent = []eventstore.Record{}
	}
	writeJSON(w, ActionsResponse{SessionID: s.opts.SessionID, Counts: counts, Recent: recent})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, ok := s.opts.Store.GetNode(id)
	if !ok {
		s.adapter.WriteErrorResponse(w, r, ferrors.NotFoundError("node not found").WithContext("id", id).Build())
		return
	}
	resp := NodeResponse{Node: n, Dependents: s.opts.Store.DependentPaths(id)}
	if resp.Dependents == nil {
		resp.Dependents = []string{}
	}
	if s.opts.Log != nil {
		history, err := s.opts.Log.ByNode(r.Context(), id)
		if err != nil {
			s.adapter.WriteErrorResponse(w, r, ferrors.WrapError(err, ferrors.CategoryPersistence, "failed to read node history").Build())
			return
		}
		resp.History = history
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
