package performance

import (
	"fmt"
	"strings"
	"time"
)

// Lifecycle operations take a target by value and return the next value.
// The input is never mutated.

func setStatus(c *ReviewCycle, status Status, now time.Time) {
	if c.Status == status {
		return
	}
	c.Status = status
	c.StatusUpdatedAt = now
}

// CanSubmit reports whether the phase may be submitted: supervisor set, weight exactly 100, not Approved.
func CanSubmit(t PersonalQuarterlyTarget, phase Phase) bool {
	status := t.Cycle(phase).Status
	return strings.TrimSpace(t.SupervisorID) != "" &&
		WeightComplete(t.Objectives) &&
		status != StatusApproved
}

// CanEdit reports whether content of the phase may be changed by its owner right now.
func CanEdit(t PersonalQuarterlyTarget, annual AnnualTarget, phase Phase, now time.Time) bool {
	status := t.Cycle(phase).Status
	return annual.WithinWindow(t.Quarter, phase, now) &&
		t.Editable(phase) &&
		status != StatusSubmitted &&
		status != StatusApproved
}

func Submit(t PersonalQuarterlyTarget, phase Phase, now time.Time) (PersonalQuarterlyTarget, error) {
	status := t.Cycle(phase).Status
	if status == StatusApproved || status == StatusSubmitted {
		return t, invalidTransition("submit", phase, status)
	}
	verr := &ValidationError{}
	if strings.TrimSpace(t.SupervisorID) == "" {
		verr.add("supervisorId", "a supervisor must be selected")
	}
	if total := TotalWeight(t.Objectives); total != RequiredTotalWeight {
		verr.add("weight", fmt.Sprintf("total weight must be exactly %d, got %d", RequiredTotalWeight, total))
	}
	if err := verr.orNil(); err != nil {
		return t, err
	}
	next := t.Clone()
	setStatus(next.cycleRef(phase), StatusSubmitted, now)
	return next, nil
}

// Recall withdraws a submission. A cycle under committee send-back returns to CommitteeSendBack.
func Recall(t PersonalQuarterlyTarget, phase Phase, now time.Time) (PersonalQuarterlyTarget, error) {
	cycle := t.Cycle(phase)
	if cycle.Status != StatusSubmitted {
		return t, invalidTransition("recall", phase, cycle.Status)
	}
	next := t.Clone()
	target := StatusDraft
	if cycle.CommitteeSendBack {
		target = StatusCommitteeSendBack
	}
	setStatus(next.cycleRef(phase), target, now)
	return next, nil
}

// Approve leaves the committee flags untouched.
func Approve(t PersonalQuarterlyTarget, phase Phase, now time.Time) (PersonalQuarterlyTarget, error) {
	status := t.Cycle(phase).Status
	if status != StatusSubmitted {
		return t, invalidTransition("approve", phase, status)
	}
	next := t.Clone()
	setStatus(next.cycleRef(phase), StatusApproved, now)
	return next, nil
}

// SendBack stores the supervisor's reason on the cycle. The direct flow moves the
// cycle to SendBack; the notification-center flow acts on a Submitted cycle and
// leaves its status as is.
func SendBack(t PersonalQuarterlyTarget, phase Phase, flow SendBackFlow, msg Message, now time.Time) (PersonalQuarterlyTarget, error) {
	msg, err := normalizeMessage(msg, phase, now)
	if err != nil {
		return t, err
	}
	status := t.Cycle(phase).Status
	switch flow {
	case FlowDirect:
		if status == StatusSubmitted || status == StatusApproved {
			return t, invalidTransition("send back", phase, status)
		}
	case FlowNotificationCenter:
		if status != StatusSubmitted {
			return t, invalidTransition("send back", phase, status)
		}
	default:
		return t, newValidationError("flow", "unknown send-back flow")
	}
	next := t.Clone()
	cycle := next.cycleRef(phase)
	cycle.SendBackMessage = &msg
	if flow == FlowDirect {
		setStatus(cycle, StatusSendBack, now)
	}
	return next, nil
}

// ChangeSupervisor resets every non-Approved cycle to Draft when the reviewer changes.
func ChangeSupervisor(t PersonalQuarterlyTarget, supervisorID string, now time.Time) (PersonalQuarterlyTarget, error) {
	supervisorID = strings.TrimSpace(supervisorID)
	if supervisorID == "" {
		return t, newValidationError("supervisorId", "required")
	}
	next := t.Clone()
	if next.SupervisorID == supervisorID {
		return next, nil
	}
	next.SupervisorID = supervisorID
	for _, phase := range Phases {
		cycle := next.cycleRef(phase)
		if cycle.Status != StatusApproved {
			setStatus(cycle, StatusDraft, now)
		}
	}
	return next, nil
}

// SetComment overwrites the current reviewer comment; history is untouched.
func SetComment(t PersonalQuarterlyTarget, phase Phase, kpiID, text string) (PersonalQuarterlyTarget, error) {
	oi, ki, ok := t.findKPI(kpiID)
	if !ok {
		return t, ErrKPINotFound
	}
	next := t.Clone()
	next.Objectives[oi].KPIs[ki].comment(phase).Current = strings.TrimSpace(text)
	return next, nil
}

func CommitteeAccept(t PersonalQuarterlyTarget, phase Phase) (PersonalQuarterlyTarget, error) {
	cycle := t.Cycle(phase)
	if cycle.Status != StatusApproved || cycle.ReviewStatus == ReviewStatusReviewed {
		return t, invalidTransition("committee accept", phase, cycle.Status)
	}
	next := t.Clone()
	promoteComments(&next, phase)
	ref := next.cycleRef(phase)
	ref.ReviewStatus = ReviewStatusReviewed
	ref.CommitteeSendBack = false
	ref.CommitteeSendBackMessage = nil
	return next, nil
}

// CommitteeSendBack returns an approved cycle to the employee for rework.
func CommitteeSendBack(t PersonalQuarterlyTarget, phase Phase, msg Message, now time.Time) (PersonalQuarterlyTarget, error) {
	msg, err := normalizeMessage(msg, phase, now)
	if err != nil {
		return t, err
	}
	cycle := t.Cycle(phase)
	if cycle.Status != StatusApproved {
		return t, invalidTransition("committee send back", phase, cycle.Status)
	}
	next := t.Clone()
	promoteComments(&next, phase)
	ref := next.cycleRef(phase)
	ref.CommitteeSendBack = true
	ref.CommitteeSendBackMessage = &msg
	ref.ReviewStatus = ReviewStatusNotReviewed
	setStatus(ref, StatusCommitteeSendBack, now)
	return next, nil
}

// CommitteeUnaccept is a local correction: no comment promotion, no notification.
func CommitteeUnaccept(t PersonalQuarterlyTarget, phase Phase) (PersonalQuarterlyTarget, error) {
	cycle := t.Cycle(phase)
	if cycle.ReviewStatus != ReviewStatusReviewed {
		return t, invalidTransition("committee unaccept", phase, cycle.Status)
	}
	next := t.Clone()
	next.cycleRef(phase).ReviewStatus = ReviewStatusNotReviewed
	return next, nil
}

func normalizeMessage(msg Message, phase Phase, now time.Time) (Message, error) {
	msg.Body = strings.TrimSpace(msg.Body)
	if msg.Body == "" {
		return msg, newValidationError("reason", "a reason is required")
	}
	msg.Subject = strings.TrimSpace(msg.Subject)
	if msg.Subject == "" {
		msg.Subject = fmt.Sprintf(defaultSendBackSubject, phase)
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	return msg, nil
}
