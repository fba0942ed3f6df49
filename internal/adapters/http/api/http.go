// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/scout/internal/adapters/repository"
	service "github.com/okian/scout/internal/app"
	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/coerce"
	"github.com/okian/scout/internal/domain/consolidate"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
)

// maxBodyBytes bounds every request body. A full event's worth of QR codes
// fits comfortably.
const maxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	SubmitQRs(ctx context.Context, payloads []string) (service.SubmitResult, error)
	RawQR(ctx context.Context, id string) (model.RawQR, error)
	Blocklist(ctx context.Context, id string) error
	SetOverride(ctx context.Context, id string, fields map[string]any) error

	RunPass(ctx context.Context) (service.PassResult, error)
	Audit(ctx context.Context) ([]audit.Warning, error)
	TIMs(ctx context.Context, kind model.Kind, match int, team string) ([]model.Record, error)

	SubmitPit(ctx context.Context, kind model.PitKind, data map[string]any) (string, error)
	ConsolidatePit(ctx context.Context, kind model.PitKind, data map[string]any) (model.Record, error)
	GetPit(ctx context.Context, kind model.PitKind, team string) (model.Record, error)

	SubmitSuperscout(ctx context.Context, collection string, data map[string]any) (model.Record, error)
	SuperscoutTeam(ctx context.Context, team string) (model.Record, error)
}

// Server wires HTTP routes for the scouting API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	qrHandler     *QRHandler
	passHandler   *PassHandler
	pitHandler    *PitHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		qrHandler:     NewQRHandler(deps),
		passHandler:   NewPassHandler(deps),
		pitHandler:    NewPitHandler(deps),
	}
}

// Router returns a chi router with every route registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(limitBody)
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Post("/qrs", MetricsMiddleware(s.qrHandler.HandleSubmit, "qrs"))
	r.Get("/qrs/{id}", MetricsMiddleware(s.qrHandler.HandleGet, "qr"))
	r.Post("/qrs/{id}/blocklist", MetricsMiddleware(s.qrHandler.HandleBlocklist, "qr_blocklist"))
	r.Put("/qrs/{id}/override", MetricsMiddleware(s.qrHandler.HandleOverride, "qr_override"))

	r.Post("/passes", MetricsMiddleware(s.passHandler.HandleRunPass, "passes"))
	r.Get("/audit", MetricsMiddleware(s.passHandler.HandleAudit, "audit"))
	r.Get("/tims/{kind}", MetricsMiddleware(s.passHandler.HandleTIMs, "tims"))

	r.Post("/pit/{kind}", MetricsMiddleware(s.pitHandler.HandleSubmit, "pit"))
	r.Get("/pit/{kind}/{team}", MetricsMiddleware(s.pitHandler.HandleGet, "pit_team"))

	r.Post("/superscout/{collection}", MetricsMiddleware(s.pitHandler.HandleSuperscout, "superscout"))
	r.Get("/superscout/teams/{team}", MetricsMiddleware(s.pitHandler.HandleSuperscoutTeam, "superscout_team"))
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates a service error into its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case isBadRequest(err):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var badRequestKinds = []error{
	ErrBadRequest,
	service.ErrUnknownPitKind,
	service.ErrUnknownTIMKind,
	service.ErrInvalidOverride,
	repository.ErrUnknownCollection,
	schema.ErrUnknownCollection,
	consolidate.ErrUnknownPitField,
	consolidate.ErrPitValue,
	consolidate.ErrMissingKey,
	coerce.ErrTypeCoercion,
	coerce.ErrEnumLookup,
	coerce.ErrUnsupportedType,
}

func isBadRequest(err error) bool {
	for _, kind := range badRequestKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// decodeBody reads a JSON body into v, wrapping failures as ErrBadRequest.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return wrapBadRequest(err)
	}
	return nil
}
