// Package handler wires the verifier node HTTP API to the node service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ciphera/internal/node"
	"ciphera/internal/transport/form"
	"ciphera/pkg/platform/httputil"
)

// Service defines the node operations the handler exposes.
type Service interface {
	Register(ctx context.Context, req node.RegisterRequest) (*node.RegisterResult, error)
	Verify(ctx context.Context, probe []byte) (*node.VerifyResult, error)
	ClassifierLookup(ctx context.Context, label string) (*node.LookupResult, error)
}

// Handler exposes the node wire protocol.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a node handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// NewRouter builds the node's HTTP router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Post("/register", h.HandleRegister)
	r.Post("/verify-face", h.HandleVerify)
	r.Post("/classifier-lookup", h.HandleClassifierLookup)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// HandleRegister handles POST /register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := form.Parse(r); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req := node.RegisterRequest{
		Enrollment: form.Enrollment(r),
		Samples:    form.Samples(r),
	}

	result, err := h.service.Register(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "registration failed",
			"identity", req.Enrollment.Email,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleVerify handles POST /verify-face. Negative votes are 200 responses.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := form.Parse(r); err != nil {
		httputil.WriteError(w, err)
		return
	}
	probe, err := form.Probe(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Verify(ctx, probe)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// lookupRequest is the body for POST /classifier-lookup.
type lookupRequest struct {
	Label string `json:"label"`
}

// HandleClassifierLookup handles POST /classifier-lookup.
func (h *Handler) HandleClassifierLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req lookupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.ClassifierLookup(ctx, req.Label)
	if err != nil {
		h.logger.ErrorContext(ctx, "classifier lookup failed",
			"label", req.Label,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
