package notifications

import "pms/internal/domain/performance"

type template struct {
	title string
	body  string
}

// templates maps notification kinds to their title and body. %s is the quarter, then the phase.
var templates = map[string]template{
	performance.KindAgreementSubmit:   {"Agreement submitted", "A performance agreement for %s was submitted for your %s review."},
	performance.KindAgreementRecall:   {"Agreement recalled", "The performance agreement for %s was recalled from %s review."},
	performance.KindAgreementApprove:  {"Agreement approved", "Your performance agreement for %s was approved (%s)."},
	performance.KindAssessmentSubmit:  {"Assessment submitted", "A performance assessment for %s was submitted for your %s review."},
	performance.KindAssessmentRecall:  {"Assessment recalled", "The performance assessment for %s was recalled from %s review."},
	performance.KindAssessmentApprove: {"Assessment approved", "Your performance assessment for %s was approved (%s)."},
	performance.KindCommitteeAccept:   {"Committee review accepted", "The committee accepted the %s %s."},
	performance.KindCommitteeSendBack: {"Committee sent back", "The committee sent back the %s %s for rework."},
	performance.KindSendBack:          {"Sent back", "Your %s %s was sent back by your supervisor."},
}

const defaultPageSize = 20
