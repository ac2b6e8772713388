// Package api serves the deduplicator, the map-link parser, the distance
// calculator and the stored locations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/storemap/internal/address"
	"github.com/sells-group/storemap/internal/linkdedup"
	"github.com/sells-group/storemap/internal/model"
	"github.com/sells-group/storemap/internal/nearest"
	"github.com/sells-group/storemap/internal/store"
)

const defaultMaxBodyBytes = 8 << 20

// Options tunes the router.
type Options struct {
	AllowedOrigins []string // default "*"
	MaxBodyBytes   int64
	Nearest        nearest.Options
}

type server struct {
	store store.Store
	opts  Options
}

// NewRouter builds the HTTP handler. st may be nil, in which case
// /v1/locations answers 503.
func NewRouter(st store.Store, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &server{store: st, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/dedup", s.dedup)
		r.Post("/parse", s.parse)
		r.Post("/nearest", s.minDistances)
		r.Get("/locations", s.locations)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type linksRequest struct {
	Links []string `json:"links"`
}

type dedupResponse struct {
	Links []string `json:"links"`
}

func (s *server) dedup(w http.ResponseWriter, r *http.Request) {
	var req linksRequest
	if !s.decode(w, r, &req) {
		return
	}
	links := linkdedup.DropPrefixes(req.Links)
	if links == nil {
		links = []string{}
	}
	writeJSON(w, http.StatusOK, dedupResponse{Links: links})
}

type parseError struct {
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

type parseResponse struct {
	Addresses []model.GeoAddress `json:"addresses"`
	Errors    []parseError       `json:"errors"`
}

func (s *server) parse(w http.ResponseWriter, r *http.Request) {
	var req linksRequest
	if !s.decode(w, r, &req) {
		return
	}
	addrs, failed := address.Split(address.ParseMapLinks(req.Links))
	resp := parseResponse{Addresses: addrs, Errors: make([]parseError, len(failed))}
	if resp.Addresses == nil {
		resp.Addresses = []model.GeoAddress{}
	}
	for i, f := range failed {
		resp.Errors[i] = parseError{Input: f.Input, Reason: f.Reason}
	}
	writeJSON(w, http.StatusOK, resp)
}

type nearestRequest struct {
	A        []model.Coordinate `json:"a"`
	B        []model.Coordinate `json:"b"`
	Strategy string             `json:"strategy,omitempty"`
}

type nearestResponse struct {
	Distances []float64        `json:"distances"`
	Summary   *nearest.Summary `json:"summary,omitempty"`
}

// statusClientClosedRequest is nginx's non-standard code for a request the
// client gave up on.
const statusClientClosedRequest = 499

func (s *server) minDistances(w http.ResponseWriter, r *http.Request) {
	var req nearestRequest
	if !s.decode(w, r, &req) {
		return
	}
	opts := s.opts.Nearest
	if req.Strategy != "" {
		strategy, err := nearest.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Strategy = strategy
	}

	distances, err := nearest.MinDistances(r.Context(), req.A, req.B, opts)
	if err != nil {
		var empty *nearest.EmptyReferenceSetError
		switch {
		case errors.As(err, &empty):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, context.Canceled):
			zap.L().Info("api: nearest abandoned by client", zap.Int("a", len(req.A)), zap.Int("b", len(req.B)))
			writeError(w, statusClientClosedRequest, "request cancelled")
		case errors.Is(err, context.DeadlineExceeded):
			zap.L().Warn("api: nearest timed out", zap.Int("a", len(req.A)), zap.Int("b", len(req.B)))
			writeError(w, http.StatusServiceUnavailable, "request timed out")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	resp := nearestResponse{Distances: distances}
	if len(distances) > 0 {
		summary, err := nearest.Summarize(distances)
		if err == nil {
			resp.Summary = &summary
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) locations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	q := r.URL.Query()
	filter := store.LocationFilter{Source: q.Get("source")}
	if c := q.Get("chain"); c != "" {
		chain, err := model.ParseChain(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Chain = chain
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	locs, err := s.store.ListLocations(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list locations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list locations failed")
		return
	}
	if locs == nil {
		locs = []model.Location{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locs, "count": len(locs)})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
