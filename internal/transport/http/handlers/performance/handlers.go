package performancehandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/auth"
	"pms/internal/domain/performance"
	"pms/internal/transport/http/api"
	"pms/internal/transport/http/middleware"
	"pms/internal/transport/http/shared"
)

type Handler struct {
	Service *performance.Service
	Perms   middleware.PermissionStore
}

func NewHandler(service *performance.Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermPerformanceRead, h.Perms)
	write := middleware.RequirePermission(auth.PermPerformanceWrite, h.Perms)
	review := middleware.RequirePermission(auth.PermPerformanceReview, h.Perms)
	committee := middleware.RequirePermission(auth.PermPerformanceCommittee, h.Perms)

	r.With(middleware.RequirePermission(auth.PermAnnualTargetsRead, h.Perms)).Get("/annual-targets", h.handleListAnnualTargets)

	r.Route("/performance/{annualTargetID}/employees/{userID}", func(r chi.Router) {
		r.With(read).Get("/", h.handleGet)

		r.Route("/quarters/{quarter}", func(r chi.Router) {
			r.With(write).Post("/objectives", h.handleAddObjective)
			r.With(write).Put("/objectives/{objectiveID}", h.handleUpdateObjective)
			r.With(write).Delete("/objectives/{objectiveID}", h.handleDeleteObjective)
			r.With(write).Post("/objectives/{objectiveID}/kpis", h.handleAddKPI)
			r.With(write).Put("/objectives/{objectiveID}/kpis/{kpiID}", h.handleUpdateKPI)
			r.With(write).Delete("/objectives/{objectiveID}/kpis/{kpiID}", h.handleDeleteKPI)
			r.With(write).Put("/supervisor", h.handleChangeSupervisor)
			r.With(write).Put("/kpis/{kpiID}/achievement", h.handleRecordAchievement)

			r.Route("/{phase}", func(r chi.Router) {
				r.With(review).Put("/kpis/{kpiID}/comment", h.handleSetComment)
				r.With(write).Post("/submit", h.handleSubmit)
				r.With(write).Post("/recall", h.handleRecall)
				r.With(review).Post("/approve", h.handleApprove)
				r.With(review).Post("/send-back", h.handleSendBack)
				r.With(committee).Post("/committee/accept", h.handleCommitteeAccept)
				r.With(committee).Post("/committee/send-back", h.handleCommitteeSendBack)
				r.With(committee).Post("/committee/unaccept", h.handleCommitteeUnaccept)
			})
		})
	})
}

func (h *Handler) handleListAnnualTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.Service.ListAnnualTargets(r.Context())
	if err != nil {
		api.Fail(w, http.StatusBadGateway, "annual_target_list_failed", "failed to list annual targets", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, targets, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	view, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "userID"), chi.URLParam(r, "annualTargetID"))
	if err != nil {
		writeError(w, r, performance.DocumentView{}, err)
		return
	}
	api.Success(w, view, actor.RequestID)
}

func (h *Handler) handleAddObjective(w http.ResponseWriter, r *http.Request) {
	var payload performance.ObjectiveInput
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	view, err := h.Service.AddObjective(r.Context(), actor, ref, payload)
	respond(w, r, view, err)
}

func (h *Handler) handleUpdateObjective(w http.ResponseWriter, r *http.Request) {
	var payload performance.ObjectiveInput
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	view, err := h.Service.UpdateObjective(r.Context(), actor, ref, chi.URLParam(r, "objectiveID"), payload)
	respond(w, r, view, err)
}

func (h *Handler) handleDeleteObjective(w http.ResponseWriter, r *http.Request) {
	actor, ref, ok := quarterRequest(w, r)
	if !ok {
		return
	}
	view, err := h.Service.DeleteObjective(r.Context(), actor, ref, chi.URLParam(r, "objectiveID"))
	respond(w, r, view, err)
}

func (h *Handler) handleAddKPI(w http.ResponseWriter, r *http.Request) {
	var payload performance.KPIInput
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	view, err := h.Service.AddKPI(r.Context(), actor, ref, chi.URLParam(r, "objectiveID"), payload)
	respond(w, r, view, err)
}

func (h *Handler) handleUpdateKPI(w http.ResponseWriter, r *http.Request) {
	var payload performance.KPIInput
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	view, err := h.Service.UpdateKPI(r.Context(), actor, ref, chi.URLParam(r, "kpiID"), payload)
	respond(w, r, view, err)
}

func (h *Handler) handleDeleteKPI(w http.ResponseWriter, r *http.Request) {
	actor, ref, ok := quarterRequest(w, r)
	if !ok {
		return
	}
	view, err := h.Service.DeleteKPI(r.Context(), actor, ref, chi.URLParam(r, "kpiID"))
	respond(w, r, view, err)
}

type supervisorPayload struct {
	SupervisorID string `json:"supervisorId" validate:"required"`
}

func (h *Handler) handleChangeSupervisor(w http.ResponseWriter, r *http.Request) {
	var payload supervisorPayload
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	view, err := h.Service.ChangeSupervisor(r.Context(), actor, ref, payload.SupervisorID)
	respond(w, r, view, err)
}

func (h *Handler) handleRecordAchievement(w http.ResponseWriter, r *http.Request) {
	// An omitted ratingScore clears the rating rather than decoding to 0.
	payload := performance.AchievementInput{RatingScore: performance.Unrated}
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	view, err := h.Service.RecordAchievement(r.Context(), actor, ref, chi.URLParam(r, "kpiID"), payload)
	respond(w, r, view, err)
}

type commentPayload struct {
	Comment string `json:"comment" validate:"max=4000"`
}

func (h *Handler) handleSetComment(w http.ResponseWriter, r *http.Request) {
	var payload commentPayload
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	phase, ok := phaseParam(w, r)
	if !ok {
		return
	}
	view, err := h.Service.SetComment(r.Context(), actor, ref, phase, chi.URLParam(r, "kpiID"), payload.Comment)
	respond(w, r, view, err)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Submit)
}

func (h *Handler) handleRecall(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Recall)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Approve)
}

func (h *Handler) handleCommitteeAccept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.CommitteeAccept)
}

func (h *Handler) handleCommitteeUnaccept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.CommitteeUnaccept)
}

type sendBackPayload struct {
	Subject string `json:"subject" validate:"max=200"`
	Reason  string `json:"reason" validate:"required,max=4000"`
	Flow    string `json:"flow" validate:"omitempty,oneof=direct notification-center"`
}

func (p sendBackPayload) message() performance.Message {
	return performance.Message{Subject: p.Subject, Body: p.Reason}
}

func (h *Handler) handleSendBack(w http.ResponseWriter, r *http.Request) {
	var payload sendBackPayload
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	phase, ok := phaseParam(w, r)
	if !ok {
		return
	}
	flow, ok := performance.ParseSendBackFlow(payload.Flow)
	if !ok {
		shared.FailValidation(w, actor.RequestID, []shared.ValidationIssue{{Field: "flow", Reason: "must be direct or notification-center"}})
		return
	}
	view, err := h.Service.SendBack(r.Context(), actor, ref, phase, flow, payload.message())
	respond(w, r, view, err)
}

func (h *Handler) handleCommitteeSendBack(w http.ResponseWriter, r *http.Request) {
	var payload sendBackPayload
	actor, ref, ok := decodeRequest(w, r, &payload)
	if !ok {
		return
	}
	phase, ok := phaseParam(w, r)
	if !ok {
		return
	}
	view, err := h.Service.CommitteeSendBack(r.Context(), actor, ref, phase, payload.message())
	respond(w, r, view, err)
}

type transitionFunc func(ctx context.Context, actor performance.Actor, ref performance.QuarterRef, phase performance.Phase) (performance.DocumentView, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ref, ok := quarterRequest(w, r)
	if !ok {
		return
	}
	phase, ok := phaseParam(w, r)
	if !ok {
		return
	}
	view, err := fn(r.Context(), actor, ref, phase)
	respond(w, r, view, err)
}
