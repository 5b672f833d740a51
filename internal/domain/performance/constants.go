package performance

import "strings"

// Phase selects which review cycle of a quarterly target an operation acts on.
type Phase string

const (
	PhaseAgreement  Phase = "agreement"
	PhaseAssessment Phase = "assessment"
)

var Phases = []Phase{PhaseAgreement, PhaseAssessment}

func ParsePhase(raw string) (Phase, bool) {
	switch Phase(strings.ToLower(strings.TrimSpace(raw))) {
	case PhaseAgreement:
		return PhaseAgreement, true
	case PhaseAssessment:
		return PhaseAssessment, true
	}
	return "", false
}

type Status string

const (
	StatusDraft             Status = "Draft"
	StatusSubmitted         Status = "Submitted"
	StatusApproved          Status = "Approved"
	StatusSendBack          Status = "SendBack"
	StatusCommitteeSendBack Status = "CommitteeSendBack"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusSendBack, StatusCommitteeSendBack:
		return true
	}
	return false
}

type ReviewStatus string

const (
	ReviewStatusNotReviewed ReviewStatus = "NotReviewed"
	ReviewStatusReviewed    ReviewStatus = "Reviewed"
)

type Quarter string

const (
	Q1 Quarter = "Q1"
	Q2 Quarter = "Q2"
	Q3 Quarter = "Q3"
	Q4 Quarter = "Q4"
)

var Quarters = []Quarter{Q1, Q2, Q3, Q4}

func ParseQuarter(raw string) (Quarter, bool) {
	q := Quarter(strings.ToUpper(strings.TrimSpace(raw)))
	for _, candidate := range Quarters {
		if q == candidate {
			return q, true
		}
	}
	return "", false
}

// SendBackFlow distinguishes the two supervisor send-back entry points.
type SendBackFlow string

const (
	// FlowDirect is the supervisor acting from the record itself; it sets the SendBack status.
	FlowDirect SendBackFlow = "direct"
	// FlowNotificationCenter acts on a submitted record from the work queue and leaves the status alone.
	FlowNotificationCenter SendBackFlow = "notification-center"
)

func ParseSendBackFlow(raw string) (SendBackFlow, bool) {
	switch SendBackFlow(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FlowDirect:
		return FlowDirect, true
	case FlowNotificationCenter:
		return FlowNotificationCenter, true
	}
	return "", false
}

const (
	KindAgreementSubmit    = "agreement.submit"
	KindAgreementRecall    = "agreement.recall"
	KindAgreementApprove   = "agreement.approve"
	KindAssessmentSubmit   = "assessment.submit"
	KindAssessmentRecall   = "assessment.recall"
	KindAssessmentApprove  = "assessment.approve"
	KindCommitteeAccept    = "committee.accept"
	KindCommitteeSendBack  = "committee.sendBack"
	KindSendBack           = "send-back"
	JobNotificationResend  = "notification_redelivery"
	channelNotification    = "notification"
	channelEmail           = "email"
	auditEntityQuarter     = "personal_quarterly_target"
	lockKeyPrefix          = "pms:quarter:"
	defaultSendBackSubject = "Performance %s sent back"
)

const (
	RequiredTotalWeight = 100
	MinKPIWeight        = 1
	MaxKPIWeight        = 100
	Unrated             = -1
	// CommentHistoryDepth is how many promoted comments a trail keeps.
	CommentHistoryDepth = 1
)
