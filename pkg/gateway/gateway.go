// Package gateway exposes the suggest engine over HTTP.
//
// GET /v1/suggest is the public endpoint. It is guarded by a per-client token
// bucket and a global in-flight bound, and every outcome is either a success
// body or one of the engine's error codes. The /v1/items, /v1/index and
// /v1/stats routes are for operators and are not rate limited.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/bastiangx/suggestserve/internal/logger"
	"github.com/bastiangx/suggestserve/internal/utils"
	"github.com/bastiangx/suggestserve/pkg/catalog"
	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/store"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

// Error codes used only by operator routes.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidItem  = "INVALID_ITEM"
)

// maxAdminBody bounds operator request bodies.
const maxAdminBody = 8 << 20

// Catalog is the write side used by operator routes.
type Catalog interface {
	Upsert(ctx context.Context, items []item.Item, refresh bool) ([]item.Item, error)
	Remove(ctx context.Context, id uint32) error
	SetPopularity(ctx context.Context, id uint32, popularity float64) error
	Refresh(ctx context.Context) (*index.Snapshot, error)
	Status() catalog.Status
}

// Config holds gateway options.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	ShutdownPeriod time.Duration
	MaxQueryRunes  int
	AdminToken     string

	RequestsPerSecond float64
	Burst             int
	MaxInFlight       int
	ClientTTL         time.Duration
	MaxClients        int
	// TrustClientID keys rate limits on X-Client-ID instead of the remote
	// address. Enable only behind a proxy that sets the header.
	TrustClientID bool
}

// Gateway is the HTTP front of the engine.
type Gateway struct {
	cfg      Config
	engine   suggest.ISuggester
	catalog  Catalog
	limiter  *clientLimiter
	inflight *inFlight
	handler  http.Handler
}

// New builds the gateway. catalog may be nil, which disables operator
// write routes.
func New(cfg Config, engine suggest.ISuggester, cat Catalog) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		engine:   engine,
		catalog:  cat,
		limiter:  newClientLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.ClientTTL, cfg.MaxClients),
		inflight: newInFlight(cfg.MaxInFlight),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/suggest", g.handleSuggest)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	mux.HandleFunc("GET /v1/stats", withAdminToken(cfg.AdminToken, g.handleStats))
	if cat != nil {
		mux.HandleFunc("POST /v1/items", withAdminToken(cfg.AdminToken, g.handleUpsert))
		mux.HandleFunc("DELETE /v1/items/{id}", withAdminToken(cfg.AdminToken, g.handleRemove))
		mux.HandleFunc("PUT /v1/items/{id}/popularity", withAdminToken(cfg.AdminToken, g.handlePopularity))
		mux.HandleFunc("POST /v1/index/refresh", withAdminToken(cfg.AdminToken, g.handleRefresh))
	}

	g.handler = withRequestID(withAccessLog(logger.New("http"), withRecovery(mux)))
	return g
}

// Handler returns the root handler with all middleware applied.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return err
	}
	return g.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      g.handler,
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
		IdleTimeout:  g.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Infof("HTTP gateway listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		period := g.cfg.ShutdownPeriod
		if period <= 0 {
			period = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), period)
		defer cancel()
		log.Info("HTTP gateway shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func (g *Gateway) handleSuggest(w http.ResponseWriter, r *http.Request) {
	client := clientKey(r, g.cfg.TrustClientID)
	if !g.inflight.TryAcquire() {
		writeRateLimited(w, r, time.Second, client, "server busy")
		return
	}
	defer g.inflight.Release()

	if ok, retryAfter := g.limiter.Allow(client); !ok {
		writeRateLimited(w, r, retryAfter, client, "client over rate")
		return
	}

	params := r.URL.Query()
	text := params.Get("q")
	if reason := utils.CheckQuery(text, g.cfg.MaxQueryRunes); reason != "" {
		writeError(w, r, &suggest.Error{Kind: suggest.KindInvalidQuery, Msg: reason})
		return
	}

	limit := 0
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, &suggest.Error{Kind: suggest.KindInvalidQuery, Msg: "limit must be an integer"})
			return
		}
		limit = n
	}

	res, err := g.engine.Suggest(r.Context(), suggest.Query{
		Text:     text,
		Language: params.Get("lang"),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeBody(w, r, http.StatusOK, SuggestResponse{
		Query:       res.Query,
		Suggestions: res.Suggestions,
		TookMs:      float64(res.Took.Microseconds()) / 1000,
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeBody(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Engine  suggest.Stats   `json:"engine" msgpack:"engine"`
	Catalog *catalog.Status `json:"catalog,omitempty" msgpack:"catalog,omitempty"`
	Clients int             `json:"clients" msgpack:"clients"`
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Engine: g.engine.Stats(), Clients: g.limiter.Len()}
	if g.catalog != nil {
		st := g.catalog.Status()
		resp.Catalog = &st
	}
	writeBody(w, r, http.StatusOK, resp)
}

// UpsertRequest is the body of POST /v1/items.
type UpsertRequest struct {
	Items   []item.Item `json:"items"`
	Refresh bool        `json:"refresh"`
}

// UpsertResponse lists the stored items with their ids.
type UpsertResponse struct {
	Items      []item.Item `json:"items" msgpack:"items"`
	Generation uint64      `json:"generation" msgpack:"generation"`
}

func (g *Gateway) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody)).Decode(&req); err != nil {
		writeBody(w, r, http.StatusBadRequest, ErrorResponse{ErrorCode: CodeInvalidItem, Message: "malformed request body"})
		return
	}
	stored, err := g.catalog.Upsert(r.Context(), req.Items, req.Refresh)
	if err != nil {
		g.writeAdminError(w, r, err)
		return
	}
	writeBody(w, r, http.StatusOK, UpsertResponse{Items: stored, Generation: g.engine.Stats().Generation})
}

func (g *Gateway) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := g.catalog.Remove(r.Context(), id); err != nil {
		g.writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PopularityRequest is the body of PUT /v1/items/{id}/popularity.
type PopularityRequest struct {
	Popularity *float64 `json:"popularity"`
}

func (g *Gateway) handlePopularity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PopularityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody)).Decode(&req); err != nil || req.Popularity == nil {
		writeBody(w, r, http.StatusBadRequest, ErrorResponse{ErrorCode: CodeInvalidItem, Message: "body must be {\"popularity\": <number>}"})
		return
	}
	if err := g.catalog.SetPopularity(r.Context(), id, *req.Popularity); err != nil {
		g.writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := g.catalog.Refresh(r.Context()); err != nil {
		g.writeAdminError(w, r, err)
		return
	}
	g.handleStats(w, r)
}

func (g *Gateway) writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, item.ErrInvalidItem):
		writeBody(w, r, http.StatusBadRequest, ErrorResponse{ErrorCode: CodeInvalidItem, Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeBody(w, r, http.StatusNotFound, ErrorResponse{ErrorCode: CodeNotFound})
	default:
		writeError(w, r, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		writeBody(w, r, http.StatusBadRequest, ErrorResponse{ErrorCode: CodeInvalidItem, Message: "id must be a positive integer"})
		return 0, false
	}
	return uint32(id), true
}
