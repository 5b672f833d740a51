package performancehandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/performance"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

func actorFrom(w http.ResponseWriter, r *http.Request) (performance.Actor, bool) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return performance.Actor{}, false
	}
	return performance.Actor{UserID: user.UserID, RoleName: user.RoleName, RequestID: requestID}, true
}

func quarterRequest(w http.ResponseWriter, r *http.Request) (performance.Actor, performance.QuarterRef, bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return performance.Actor{}, performance.QuarterRef{}, false
	}
	quarter, ok := performance.ParseQuarter(chi.URLParam(r, "quarter"))
	if !ok {
		api.Fail(w, http.StatusNotFound, "not_found", "unknown quarter", actor.RequestID)
		return performance.Actor{}, performance.QuarterRef{}, false
	}
	return actor, performance.QuarterRef{
		UserID:         chi.URLParam(r, "userID"),
		AnnualTargetID: chi.URLParam(r, "annualTargetID"),
		Quarter:        quarter,
	}, true
}

// decodeRequest resolves the actor and quarter, then decodes and validates the JSON body.
func decodeRequest(w http.ResponseWriter, r *http.Request, payload any) (performance.Actor, performance.QuarterRef, bool) {
	actor, ref, ok := quarterRequest(w, r)
	if !ok {
		return actor, ref, false
	}
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", actor.RequestID)
		return actor, ref, false
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, actor.RequestID) {
		return actor, ref, false
	}
	return actor, ref, true
}

func phaseParam(w http.ResponseWriter, r *http.Request) (performance.Phase, bool) {
	phase, ok := performance.ParsePhase(chi.URLParam(r, "phase"))
	if !ok {
		api.Fail(w, http.StatusNotFound, "not_found", "unknown phase", middleware.GetRequestID(r.Context()))
		return "", false
	}
	return phase, true
}

func respond(w http.ResponseWriter, r *http.Request, view performance.DocumentView, err error) {
	if err != nil {
		writeError(w, r, view, err)
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	if len(view.Warnings) > 0 {
		api.SuccessWithWarnings(w, view, view.Warnings, requestID)
		return
	}
	api.Success(w, view, requestID)
}

// writeError maps domain failures onto the envelope. The last known-good view rides
// along as data when the service loaded one.
func writeError(w http.ResponseWriter, r *http.Request, view performance.DocumentView, err error) {
	requestID := middleware.GetRequestID(r.Context())
	var data any
	if view.Exists || len(view.Quarters) > 0 {
		data = view
	}

	var verr *performance.ValidationError
	var terr *performance.TransportError
	switch {
	case errors.As(err, &verr):
		api.FailWithData(w, http.StatusUnprocessableEntity, "validation_error", "validation failed", map[string]any{"fields": verr.Issues}, data, requestID)
	case errors.Is(err, performance.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", requestID)
	case errors.Is(err, performance.ErrAnnualTargetNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "annual target not found", requestID)
	case errors.Is(err, performance.ErrObjectiveNotFound),
		errors.Is(err, performance.ErrKPINotFound),
		errors.Is(err, performance.ErrQuarterNotFound):
		api.FailWithData(w, http.StatusNotFound, "not_found", err.Error(), nil, data, requestID)
	case errors.Is(err, performance.ErrBusy):
		api.FailWithData(w, http.StatusConflict, "busy", err.Error(), nil, data, requestID)
	case errors.Is(err, performance.ErrInvalidTransition):
		api.FailWithData(w, http.StatusConflict, "invalid_transition", err.Error(), nil, data, requestID)
	case errors.Is(err, performance.ErrNotEditable), errors.Is(err, performance.ErrOutsideWindow):
		api.FailWithData(w, http.StatusConflict, "not_editable", err.Error(), nil, data, requestID)
	case errors.As(err, &terr):
		slog.Warn("performance collaborator failed", "op", terr.Op, "err", terr.Err)
		api.FailWithData(w, http.StatusBadGateway, "upstream_failed", "storage or delivery failed", nil, data, requestID)
	default:
		slog.Error("performance request failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "request failed", requestID)
	}
}
