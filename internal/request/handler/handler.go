package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"golden/internal/request/models"
	"golden/internal/request/permission"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	audit "golden/pkg/platform/audit"
	"golden/pkg/platform/httputil"
	authmw "golden/pkg/platform/middleware/auth"
	"golden/pkg/requestcontext"
)

// Service defines the request operations exposed over HTTP.
type Service interface {
	CreateDraft(ctx context.Context, profile models.Profile, role id.Role) (*models.Request, error)
	Ingest(ctx context.Context, profile models.Profile, origin models.Origin) (*models.Request, error)
	Get(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error)
	UpdateProfile(ctx context.Context, requestID id.RequestID, role id.Role, profile models.Profile) (*models.Request, error)
	Submit(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error)
	CompleteQuarantine(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error)
	Approve(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error)
	Reject(ctx context.Context, requestID id.RequestID, role id.Role, reason string) (*models.Request, error)
	ComplianceApprove(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error)
	ComplianceBlock(ctx context.Context, requestID id.RequestID, role id.Role, reason string) (*models.Request, error)
	StartGoldenEdit(ctx context.Context, sourceID id.RequestID, role id.Role) (*models.Request, error)
	Capabilities(ctx context.Context, requestID id.RequestID, role id.Role) (permission.Capabilities, error)
	History(ctx context.Context, requestID id.RequestID, role id.Role) ([]audit.Event, error)
	Worklist(ctx context.Context, role id.Role) ([]*models.Request, error)
}

// Handler wires request endpoints to the request service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the user-facing endpoints. The router must already carry
// the auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/requests", h.HandleCreate)
	r.Get("/requests/{id}", h.HandleGet)
	r.Put("/requests/{id}/profile", h.HandleUpdateProfile)
	r.Get("/requests/{id}/capabilities", h.HandleCapabilities)
	r.Get("/requests/{id}/history", h.HandleHistory)
	r.Post("/requests/{id}/submit", h.transition(models.ActionSubmit))
	r.Post("/requests/{id}/complete-quarantine", h.transition(models.ActionCompleteQuarantine))
	r.Post("/requests/{id}/approve", h.transition(models.ActionApprove))
	r.Post("/requests/{id}/reject", h.transition(models.ActionReject))
	r.Post("/requests/{id}/compliance-approve", h.transition(models.ActionComplianceApprove))
	r.Post("/requests/{id}/compliance-block", h.transition(models.ActionComplianceBlock))
	r.Post("/requests/{id}/golden-edit", h.HandleStartGoldenEdit)
	r.Get("/worklist", h.HandleWorklist)
}

// RegisterIngest mounts POST /ingest. The router must already carry the
// admin token middleware.
func (h *Handler) RegisterIngest(r chi.Router) {
	r.Post("/ingest", h.HandleIngest)
}

// HandleCreate handles POST /requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, ok := h.requireRole(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.CreateDraft(ctx, req.Profile(), role)
	if err != nil {
		h.fail(ctx, w, "create request failed", err)
		return
	}
	h.logger.InfoContext(ctx, "request created",
		"request_id", requestcontext.RequestID(ctx),
		"record_id", created.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRequest(created))
}

// HandleIngest handles POST /ingest.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IngestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.Ingest(ctx, req.Profile.Profile(), req.ParsedOrigin())
	if err != nil {
		h.fail(ctx, w, "ingest failed", err)
		return
	}
	h.logger.InfoContext(ctx, "request ingested",
		"request_id", requestcontext.RequestID(ctx),
		"record_id", created.ID.String(),
		"origin", string(created.Origin),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRequest(created))
}

// HandleGet handles GET /requests/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, requestID, ok := h.target(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(ctx, requestID, role)
	if err != nil {
		h.fail(ctx, w, "get request failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(rec))
}

// HandleUpdateProfile handles PUT /requests/{id}/profile.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, requestID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.UpdateProfile(ctx, requestID, role, req.Profile())
	if err != nil {
		h.fail(ctx, w, "update profile failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(rec))
}

// HandleCapabilities handles GET /requests/{id}/capabilities.
func (h *Handler) HandleCapabilities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, requestID, ok := h.target(w, r)
	if !ok {
		return
	}
	caps, err := h.service.Capabilities(ctx, requestID, role)
	if err != nil {
		h.fail(ctx, w, "capabilities failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &CapabilitiesResponse{
		RequestID:    requestID.String(),
		Role:         string(role),
		Capabilities: caps,
	})
}

// HandleHistory handles GET /requests/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, requestID, ok := h.target(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(ctx, requestID, role)
	if err != nil {
		h.fail(ctx, w, "history failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &HistoryResponse{RequestID: requestID.String(), Events: events})
}

// HandleStartGoldenEdit handles POST /requests/{id}/golden-edit. The response
// is the new shadow request.
func (h *Handler) HandleStartGoldenEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, sourceID, ok := h.target(w, r)
	if !ok {
		return
	}
	shadow, err := h.service.StartGoldenEdit(ctx, sourceID, role)
	if err != nil {
		h.fail(ctx, w, "golden edit failed", err)
		return
	}
	h.logger.InfoContext(ctx, "golden edit started",
		"request_id", requestcontext.RequestID(ctx),
		"record_id", shadow.ID.String(),
		"source_id", sourceID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRequest(shadow))
}

// HandleWorklist handles GET /worklist.
func (h *Handler) HandleWorklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, ok := h.requireRole(w, r)
	if !ok {
		return
	}
	recs, err := h.service.Worklist(ctx, role)
	if err != nil {
		h.fail(ctx, w, "worklist failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromWorklist(string(role), recs))
}

// transition builds the handler for a lifecycle action on /requests/{id}.
func (h *Handler) transition(action models.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		role, requestID, ok := h.target(w, r)
		if !ok {
			return
		}

		var reason string
		if action == models.ActionReject || action == models.ActionComplianceBlock {
			var req DecisionRequest
			if r.ContentLength != 0 {
				if err := httputil.DecodeJSON(r, &req); err != nil {
					httputil.WriteError(w, err)
					return
				}
			}
			reason = req.Reason
		}

		rec, err := h.apply(ctx, action, requestID, role, reason)
		if err != nil {
			h.fail(ctx, w, string(action)+" failed", err)
			return
		}
		h.logger.InfoContext(ctx, "request transitioned",
			"request_id", requestcontext.RequestID(ctx),
			"record_id", rec.ID.String(),
			"action", string(action),
			"status", string(rec.Status),
		)
		httputil.WriteJSON(w, http.StatusOK, FromRequest(rec))
	}
}

func (h *Handler) apply(ctx context.Context, action models.Action, requestID id.RequestID, role id.Role, reason string) (*models.Request, error) {
	switch action {
	case models.ActionSubmit:
		return h.service.Submit(ctx, requestID, role)
	case models.ActionCompleteQuarantine:
		return h.service.CompleteQuarantine(ctx, requestID, role)
	case models.ActionApprove:
		return h.service.Approve(ctx, requestID, role)
	case models.ActionReject:
		return h.service.Reject(ctx, requestID, role, reason)
	case models.ActionComplianceApprove:
		return h.service.ComplianceApprove(ctx, requestID, role)
	case models.ActionComplianceBlock:
		return h.service.ComplianceBlock(ctx, requestID, role, reason)
	}
	return nil, dErrors.New(dErrors.CodeInternal, "unsupported action")
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request) (id.Role, bool) {
	role := authmw.GetRole(r.Context())
	if role == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return role, true
}

// target resolves the caller's role and the {id} path parameter.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (id.Role, id.RequestID, bool) {
	role, ok := h.requireRole(w, r)
	if !ok {
		return "", id.RequestID{}, false
	}
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", id.RequestID{}, false
	}
	return role, requestID, true
}

// fail logs err and writes it. Duplicate conflicts carry the conflicting
// record in the body.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	args := []any{
		"request_id", requestcontext.RequestID(ctx),
		"code", string(dErrors.CodeOf(err)),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}

	var dup *models.DuplicateConflictError
	if errors.As(err, &dup) {
		httputil.WriteJSON(w, http.StatusConflict, &DuplicateConflictResponse{
			Error:            string(dErrors.CodeDuplicateConflict),
			ErrorDescription: dErrors.MessageOf(err),
			Conflict:         dup.Conflict,
		})
		return
	}
	httputil.WriteError(w, err)
}
