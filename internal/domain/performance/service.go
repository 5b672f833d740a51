package performance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pms/internal/domain/auth"
)

type Notifier interface {
	Notify(ctx context.Context, kind, recipientID string, payload map[string]any) error
	SendBackEmail(ctx context.Context, recipientID, subject, body string) error
}

// Locker guards a quarterly target against a second in-flight operation.
// ok is false when another holder owns the key.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID, requestID string, before, after any) error
}

type Enqueuer interface {
	Enqueue(jobType, key string, run func(context.Context) (any, error))
}

type TransitionRecorder interface {
	RecordTransition(op, outcome string)
}

type Actor struct {
	UserID    string
	RoleName  string
	RequestID string
}

func (a Actor) isAdmin() bool {
	return a.RoleName == auth.RoleAdmin
}

// QuarterRef addresses one quarterly target of one document.
type QuarterRef struct {
	UserID         string
	AnnualTargetID string
	Quarter        Quarter
}

func (r QuarterRef) key() string {
	return lockKeyPrefix + r.AnnualTargetID + ":" + r.UserID + ":" + string(r.Quarter)
}

func (r QuarterRef) entityID() string {
	return r.AnnualTargetID + "/" + r.UserID + "/" + string(r.Quarter)
}

type Service struct {
	Store    StoreAPI
	Notifier Notifier
	Locker   Locker
	Audit    Auditor
	Jobs     Enqueuer
	Metrics  TransitionRecorder
	Now      func() time.Time
	NewID    IDFunc
}

func NewService(store StoreAPI, notifier Notifier, locker Locker) *Service {
	return &Service{
		Store:    store,
		Notifier: notifier,
		Locker:   locker,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

type notice struct {
	kind      string
	recipient string
	email     *Message
}

type mutation struct {
	op          string
	phase       Phase
	checkWindow bool
	authorize   func(Actor, QuarterRef, PersonalQuarterlyTarget) error
	apply       func(PersonalQuarterlyTarget, AnnualTarget, time.Time) (PersonalQuarterlyTarget, error)
	notices     func(QuarterRef, PersonalQuarterlyTarget) []notice
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

// Get returns the document and its derived view. A missing document yields the zero state.
func (s *Service) Get(ctx context.Context, actor Actor, userID, annualTargetID string) (DocumentView, error) {
	annual, err := s.annualTarget(ctx, annualTargetID)
	if err != nil {
		return DocumentView{}, err
	}
	doc, exists, err := s.load(ctx, userID, annualTargetID)
	if err != nil {
		return DocumentView{}, err
	}
	if !canRead(actor, doc) {
		return DocumentView{}, ErrForbidden
	}
	return BuildView(doc, annual, exists, s.now()), nil
}

func (s *Service) ListAnnualTargets(ctx context.Context) ([]AnnualTarget, error) {
	targets, err := s.Store.ListAnnualTargets(ctx)
	if err != nil {
		return nil, &TransportError{Op: "list annual targets", Err: err}
	}
	return targets, nil
}

// ImportAnnualTargets upserts validated templates.
func (s *Service) ImportAnnualTargets(ctx context.Context, targets []AnnualTarget) error {
	for _, target := range targets {
		if err := target.Validate(); err != nil {
			return fmt.Errorf("annual target %q: %w", target.ID, err)
		}
		if err := s.Store.UpsertAnnualTarget(ctx, target); err != nil {
			return &TransportError{Op: "upsert annual target", Err: err}
		}
	}
	return nil
}

func (s *Service) AddObjective(ctx context.Context, actor Actor, ref QuarterRef, in ObjectiveInput) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "objective.create", phase: PhaseAgreement, checkWindow: true, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, annual AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return AddObjective(t, in, annual.RatingScales, s.newID, now)
		},
	})
}

func (s *Service) UpdateObjective(ctx context.Context, actor Actor, ref QuarterRef, objectiveID string, in ObjectiveInput) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "objective.update", phase: PhaseAgreement, checkWindow: true, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return UpdateObjective(t, objectiveID, in, now)
		},
	})
}

func (s *Service) DeleteObjective(ctx context.Context, actor Actor, ref QuarterRef, objectiveID string) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "objective.delete", phase: PhaseAgreement, checkWindow: true, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return DeleteObjective(t, objectiveID, now)
		},
	})
}

func (s *Service) AddKPI(ctx context.Context, actor Actor, ref QuarterRef, objectiveID string, in KPIInput) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "kpi.create", phase: PhaseAgreement, checkWindow: true, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, annual AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return AddKPI(t, objectiveID, in, annual.RatingScales, s.newID, now)
		},
	})
}

func (s *Service) UpdateKPI(ctx context.Context, actor Actor, ref QuarterRef, kpiID string, in KPIInput) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "kpi.update", phase: PhaseAgreement, checkWindow: true, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return UpdateKPI(t, kpiID, in, now)
		},
	})
}

func (s *Service) DeleteKPI(ctx context.Context, actor Actor, ref QuarterRef, kpiID string) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "kpi.delete", phase: PhaseAgreement, checkWindow: true, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return DeleteKPI(t, kpiID, now)
		},
	})
}

func (s *Service) ChangeSupervisor(ctx context.Context, actor Actor, ref QuarterRef, supervisorID string) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "supervisor.change", phase: PhaseAgreement, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return ChangeSupervisor(t, supervisorID, now)
		},
	})
}

func (s *Service) RecordAchievement(ctx context.Context, actor Actor, ref QuarterRef, kpiID string, in AchievementInput) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: "achievement.record", phase: PhaseAssessment, checkWindow: true, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return RecordAchievement(t, kpiID, in, now)
		},
	})
}

func (s *Service) SetComment(ctx context.Context, actor Actor, ref QuarterRef, phase Phase, kpiID, text string) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".comment", phase: phase, authorize: supervisorOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, _ time.Time) (PersonalQuarterlyTarget, error) {
			return SetComment(t, phase, kpiID, text)
		},
	})
}

func (s *Service) Submit(ctx context.Context, actor Actor, ref QuarterRef, phase Phase) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".submit", phase: phase, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return Submit(t, phase, now)
		},
		notices: func(_ QuarterRef, t PersonalQuarterlyTarget) []notice {
			return []notice{{kind: phaseKind(phase, "submit"), recipient: t.SupervisorID}}
		},
	})
}

func (s *Service) Recall(ctx context.Context, actor Actor, ref QuarterRef, phase Phase) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".recall", phase: phase, authorize: ownerOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return Recall(t, phase, now)
		},
		notices: func(_ QuarterRef, t PersonalQuarterlyTarget) []notice {
			return []notice{{kind: phaseKind(phase, "recall"), recipient: t.SupervisorID}}
		},
	})
}

func (s *Service) Approve(ctx context.Context, actor Actor, ref QuarterRef, phase Phase) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".approve", phase: phase, authorize: supervisorOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return Approve(t, phase, now)
		},
		notices: func(r QuarterRef, _ PersonalQuarterlyTarget) []notice {
			return []notice{{kind: phaseKind(phase, "approve"), recipient: r.UserID}}
		},
	})
}

func (s *Service) SendBack(ctx context.Context, actor Actor, ref QuarterRef, phase Phase, flow SendBackFlow, msg Message) (DocumentView, error) {
	msg.SentBy = actor.UserID
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".sendBack", phase: phase, authorize: supervisorOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return SendBack(t, phase, flow, msg, now)
		},
		notices: func(r QuarterRef, t PersonalQuarterlyTarget) []notice {
			return []notice{{kind: KindSendBack, recipient: r.UserID, email: t.Cycle(phase).SendBackMessage}}
		},
	})
}

func (s *Service) CommitteeAccept(ctx context.Context, actor Actor, ref QuarterRef, phase Phase) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".committee.accept", phase: phase, authorize: committeeOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, _ time.Time) (PersonalQuarterlyTarget, error) {
			return CommitteeAccept(t, phase)
		},
		notices: func(r QuarterRef, t PersonalQuarterlyTarget) []notice {
			out := []notice{{kind: KindCommitteeAccept, recipient: r.UserID}}
			if t.SupervisorID != "" && t.SupervisorID != r.UserID {
				out = append(out, notice{kind: KindCommitteeAccept, recipient: t.SupervisorID})
			}
			return out
		},
	})
}

func (s *Service) CommitteeSendBack(ctx context.Context, actor Actor, ref QuarterRef, phase Phase, msg Message) (DocumentView, error) {
	msg.SentBy = actor.UserID
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".committee.sendBack", phase: phase, authorize: committeeOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, now time.Time) (PersonalQuarterlyTarget, error) {
			return CommitteeSendBack(t, phase, msg, now)
		},
		notices: func(r QuarterRef, _ PersonalQuarterlyTarget) []notice {
			return []notice{{kind: KindCommitteeSendBack, recipient: r.UserID}}
		},
	})
}

func (s *Service) CommitteeUnaccept(ctx context.Context, actor Actor, ref QuarterRef, phase Phase) (DocumentView, error) {
	return s.mutate(ctx, actor, ref, mutation{
		op: string(phase) + ".committee.unaccept", phase: phase, authorize: committeeOrAdmin,
		apply: func(t PersonalQuarterlyTarget, _ AnnualTarget, _ time.Time) (PersonalQuarterlyTarget, error) {
			return CommitteeUnaccept(t, phase)
		},
	})
}

// mutate runs one operation: guard, load, authorize, apply, replace, audit, notify.
// On failure the returned view is the last known-good state when one was loaded.
func (s *Service) mutate(ctx context.Context, actor Actor, ref QuarterRef, m mutation) (DocumentView, error) {
	if s.Locker != nil {
		release, ok, err := s.Locker.TryAcquire(ctx, ref.key())
		if err != nil {
			s.record(m.op, "error")
			return DocumentView{}, &TransportError{Op: "acquire quarter guard", Err: err}
		}
		if !ok {
			s.record(m.op, "busy")
			return DocumentView{}, ErrBusy
		}
		defer release()
	}

	annual, err := s.annualTarget(ctx, ref.AnnualTargetID)
	if err != nil {
		s.record(m.op, "error")
		return DocumentView{}, err
	}
	doc, exists, err := s.load(ctx, ref.UserID, ref.AnnualTargetID)
	if err != nil {
		s.record(m.op, "error")
		return DocumentView{}, err
	}
	now := s.now()
	current := BuildView(doc, annual, exists, now)

	target, ok := doc.Target(ref.Quarter)
	if !ok {
		target = NewQuarterlyTarget(ref.Quarter)
	}
	if err := m.authorize(actor, ref, target); err != nil {
		s.record(m.op, "forbidden")
		return current, err
	}
	if m.checkWindow && !annual.WithinWindow(ref.Quarter, m.phase, now) {
		s.record(m.op, "rejected")
		return current, ErrOutsideWindow
	}
	next, err := m.apply(target, annual, now)
	if err != nil {
		s.record(m.op, "rejected")
		return current, err
	}

	updated := doc.WithTarget(next)
	if err := updated.Validate(); err != nil {
		s.record(m.op, "rejected")
		return current, err
	}
	saved, err := s.Store.ReplacePersonalPerformance(ctx, updated)
	if err != nil {
		s.record(m.op, "error")
		return current, &TransportError{Op: "replace personal performance", Err: err}
	}

	s.audit(ctx, actor, ref, m.op, target, next)

	var warnings []string
	if m.notices != nil {
		for _, n := range m.notices(ref, next) {
			warnings = append(warnings, s.deliver(ctx, actor, ref, m.phase, n)...)
		}
	}
	s.record(m.op, "ok")

	view := BuildView(saved, annual, true, now)
	view.Warnings = warnings
	return view, nil
}

func (s *Service) annualTarget(ctx context.Context, annualTargetID string) (AnnualTarget, error) {
	annual, err := s.Store.GetAnnualTarget(ctx, annualTargetID)
	if errors.Is(err, ErrAnnualTargetNotFound) {
		return AnnualTarget{}, err
	}
	if err != nil {
		return AnnualTarget{}, &TransportError{Op: "get annual target", Err: err}
	}
	return annual, nil
}

func (s *Service) load(ctx context.Context, userID, annualTargetID string) (PersonalPerformance, bool, error) {
	doc, err := s.Store.GetPersonalPerformance(ctx, userID, annualTargetID)
	if errors.Is(err, ErrNotFound) {
		return NewPersonalPerformance(userID, annualTargetID), false, nil
	}
	if err != nil {
		return PersonalPerformance{}, false, &TransportError{Op: "get personal performance", Err: err}
	}
	return doc, true, nil
}

// deliveryStep is one channel of a notice. Steps fail and redeliver independently so a
// retry never repeats a channel that already went out.
type deliveryStep struct {
	channel string
	send    func(context.Context) error
}

// deliver sends one notice and returns a warning per channel that failed.
func (s *Service) deliver(ctx context.Context, actor Actor, ref QuarterRef, phase Phase, n notice) []string {
	if s.Notifier == nil || n.recipient == "" {
		return nil
	}
	payload := map[string]any{
		"annualTargetId": ref.AnnualTargetID,
		"userId":         ref.UserID,
		"quarter":        string(ref.Quarter),
		"phase":          string(phase),
		"actorId":        actor.UserID,
	}
	steps := []deliveryStep{{
		channel: channelNotification,
		send: func(ctx context.Context) error {
			return s.Notifier.Notify(ctx, n.kind, n.recipient, payload)
		},
	}}
	if n.email != nil {
		email := *n.email
		steps = append(steps, deliveryStep{
			channel: channelEmail,
			send: func(ctx context.Context) error {
				return s.Notifier.SendBackEmail(ctx, n.recipient, email.Subject, email.Body)
			},
		})
	}

	var warnings []string
	for _, step := range steps {
		if warning := s.attempt(ctx, n, step); warning != "" {
			warnings = append(warnings, warning)
		}
	}
	return warnings
}

// attempt runs one step. A failure is logged and only that step is queued for redelivery.
func (s *Service) attempt(ctx context.Context, n notice, step deliveryStep) string {
	err := step.send(ctx)
	if err == nil {
		return ""
	}
	slog.Warn("notification delivery failed", "kind", n.kind, "channel", step.channel, "recipientId", n.recipient, "err", err)
	if s.Jobs != nil {
		s.Jobs.Enqueue(JobNotificationResend, step.channel+":"+n.recipient, func(ctx context.Context) (any, error) {
			return map[string]any{"kind": n.kind, "channel": step.channel, "recipientId": n.recipient}, step.send(ctx)
		})
	}
	return fmt.Sprintf("%s %s to %s not delivered", n.kind, step.channel, n.recipient)
}

func (s *Service) audit(ctx context.Context, actor Actor, ref QuarterRef, action string, before, after PersonalQuarterlyTarget) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Record(ctx, actor.UserID, action, auditEntityQuarter, ref.entityID(), actor.RequestID, auditSnapshot(before), auditSnapshot(after)); err != nil {
		slog.Warn("audit performance transition failed", "err", err)
	}
}

func (s *Service) record(op, outcome string) {
	if s.Metrics != nil {
		s.Metrics.RecordTransition(op, outcome)
	}
}

func auditSnapshot(t PersonalQuarterlyTarget) map[string]any {
	return map[string]any{
		"supervisorId":           t.SupervisorID,
		"totalWeight":            TotalWeight(t.Objectives),
		"agreementStatus":        t.Agreement.Status,
		"agreementReviewStatus":  t.Agreement.ReviewStatus,
		"assessmentStatus":       t.Assessment.Status,
		"assessmentReviewStatus": t.Assessment.ReviewStatus,
	}
}

func phaseKind(phase Phase, action string) string {
	return string(phase) + "." + action
}

func ownerOrAdmin(actor Actor, ref QuarterRef, _ PersonalQuarterlyTarget) error {
	if actor.isAdmin() || (actor.UserID != "" && actor.UserID == ref.UserID) {
		return nil
	}
	return ErrForbidden
}

func supervisorOrAdmin(actor Actor, _ QuarterRef, t PersonalQuarterlyTarget) error {
	if actor.isAdmin() || (t.SupervisorID != "" && actor.UserID == t.SupervisorID) {
		return nil
	}
	return ErrForbidden
}

func committeeOrAdmin(actor Actor, _ QuarterRef, _ PersonalQuarterlyTarget) error {
	if actor.isAdmin() || actor.RoleName == auth.RoleCommittee {
		return nil
	}
	return ErrForbidden
}

func canRead(actor Actor, doc PersonalPerformance) bool {
	if actor.isAdmin() || actor.RoleName == auth.RoleCommittee || actor.UserID == doc.UserID {
		return true
	}
	for _, t := range doc.QuarterlyTargets {
		if t.SupervisorID != "" && t.SupervisorID == actor.UserID {
			return true
		}
	}
	return false
}
