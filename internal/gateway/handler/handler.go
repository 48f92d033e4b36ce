// Package handler wires the gateway HTTP API to the gateway service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ciphera/internal/gateway"
	"ciphera/internal/sessiontoken"
	"ciphera/internal/transport/form"
	dErrors "ciphera/pkg/domain-errors"
	"ciphera/pkg/platform/httputil"
	"ciphera/pkg/requestcontext"
)

// Service defines the gateway operations the handler exposes.
type Service interface {
	Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.RegisterResult, error)
	Verify(ctx context.Context, probe []byte) (*gateway.VerifyResult, error)
	ClassifierLookup(ctx context.Context, label string) (*gateway.ClassifierResult, error)
}

// TokenValidator checks session tokens for the introspection endpoint.
type TokenValidator interface {
	Validate(token string) (*sessiontoken.Claims, error)
}

// Handler exposes the gateway API.
type Handler struct {
	service Service
	tokens  TokenValidator
	logger  *slog.Logger
}

// New constructs a gateway handler with its dependencies.
func New(service Service, tokens TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, logger: logger}
}

// Register mounts the gateway endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/register", h.HandleRegister)
	r.Post("/api/signin", h.HandleSignIn)
	r.Post("/api/signin/classifier", h.HandleClassifierSignIn)
	r.Get("/api/session", h.HandleSession)
}

// HandleRegister handles POST /api/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	if err := form.Parse(r); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req := gateway.RegisterRequest{
		Enrollment: form.Enrollment(r),
		Samples:    form.Samples(r),
	}

	result, err := h.service.Register(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "registration failed",
			"request_id", requestcontext.RequestID(ctx),
			"identity", req.Enrollment.Email,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration accepted",
		"request_id", requestcontext.RequestID(ctx),
		"identity", req.Enrollment.Email,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleSignIn handles POST /api/signin. A rejected probe is still a 200;
// the body carries authenticated=false and the vote list.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

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
		h.logger.ErrorContext(ctx, "verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verification completed",
		"request_id", requestcontext.RequestID(ctx),
		"authenticated", result.Authenticated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// classifierRequest is the body for POST /api/signin/classifier.
type classifierRequest struct {
	Label string `json:"label"`
}

// HandleClassifierSignIn handles POST /api/signin/classifier.
func (h *Handler) HandleClassifierSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req classifierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.ClassifierLookup(ctx, req.Label)
	if err != nil {
		h.logger.ErrorContext(ctx, "classifier lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"label", req.Label,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleSession handles GET /api/session: bearer token introspection.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
		return
	}

	claims, err := h.tokens.Validate(strings.TrimSpace(token))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claims)
}
