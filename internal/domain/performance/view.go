package performance

import "time"

type PhaseView struct {
	Status                   Status       `json:"status"`
	ReviewStatus             ReviewStatus `json:"reviewStatus"`
	CanEdit                  bool         `json:"canEdit"`
	CanSubmit                bool         `json:"canSubmit"`
	CommitteeSendBack        bool         `json:"committeeSendBack"`
	CommitteeSendBackMessage *Message     `json:"committeeSendBackMessage,omitempty"`
	SendBackMessage          *Message     `json:"sendBackMessage,omitempty"`
}

type QuarterView struct {
	Quarter        Quarter   `json:"quarter"`
	TotalWeight    int       `json:"totalWeight"`
	WeightExceeded bool      `json:"weightExceeded"`
	Agreement      PhaseView `json:"agreement"`
	Assessment     PhaseView `json:"assessment"`
	OverallScore   ScoreView `json:"overallScore"`
}

// DocumentView is the read model returned alongside the stored document.
type DocumentView struct {
	Exists   bool                `json:"exists"`
	Document PersonalPerformance `json:"document"`
	Quarters []QuarterView       `json:"quarters"`
	Warnings []string            `json:"warnings,omitempty"`
}

func BuildView(doc PersonalPerformance, annual AnnualTarget, exists bool, now time.Time) DocumentView {
	view := DocumentView{Exists: exists, Document: doc, Quarters: make([]QuarterView, 0, len(doc.QuarterlyTargets))}
	for _, t := range doc.QuarterlyTargets {
		view.Quarters = append(view.Quarters, QuarterView{
			Quarter:        t.Quarter,
			TotalWeight:    TotalWeight(t.Objectives),
			WeightExceeded: WeightExceeded(t.Objectives),
			Agreement:      buildPhaseView(t, annual, PhaseAgreement, now),
			Assessment:     buildPhaseView(t, annual, PhaseAssessment, now),
			OverallScore:   BuildScoreView(t.Objectives, annual.RatingScales),
		})
	}
	return view
}

func buildPhaseView(t PersonalQuarterlyTarget, annual AnnualTarget, phase Phase, now time.Time) PhaseView {
	cycle := t.Cycle(phase)
	return PhaseView{
		Status:                   cycle.Status,
		ReviewStatus:             cycle.ReviewStatus,
		CanEdit:                  CanEdit(t, annual, phase, now),
		CanSubmit:                CanSubmit(t, phase),
		CommitteeSendBack:        cycle.CommitteeSendBack,
		CommitteeSendBackMessage: cycle.CommitteeSendBackMessage,
		SendBackMessage:          cycle.SendBackMessage,
	}
}
