package performance

import (
	"time"
)

type RatingScale struct {
	Score int     `json:"score" yaml:"score"`
	Name  string  `json:"name" yaml:"name"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Color string  `json:"color" yaml:"color"`
}

// Message is a send-back reason shown to the employee.
type Message struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentBy  string    `json:"sentBy,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

type Attachment struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
}

type KPI struct {
	ID                string        `json:"id"`
	Indicator         string        `json:"indicator"`
	Weight            int           `json:"weight"`
	Baseline          string        `json:"baseline"`
	Target            string        `json:"target"`
	RatingScales      []RatingScale `json:"ratingScales"`
	RatingScore       int           `json:"ratingScore"`
	ActualAchieved    string        `json:"actualAchieved,omitempty"`
	Evidence          string        `json:"evidence,omitempty"`
	Attachments       []Attachment  `json:"attachments,omitempty"`
	AgreementComment  CommentTrail  `json:"agreementComment"`
	AssessmentComment CommentTrail  `json:"assessmentComment"`
}

func (k *KPI) comment(phase Phase) *CommentTrail {
	if phase == PhaseAssessment {
		return &k.AssessmentComment
	}
	return &k.AgreementComment
}

func (k KPI) IsRated() bool {
	return k.RatingScore != Unrated
}

type Objective struct {
	ID            string `json:"id"`
	PerspectiveID string `json:"perspectiveId"`
	Name          string `json:"name"`
	Initiative    string `json:"initiative"`
	KPIs          []KPI  `json:"kpis"`
}

// ReviewCycle is the per-phase workflow state of a quarterly target.
type ReviewCycle struct {
	Status                   Status       `json:"status"`
	StatusUpdatedAt          time.Time    `json:"statusUpdatedAt"`
	ReviewStatus             ReviewStatus `json:"reviewStatus"`
	CommitteeSendBack        bool         `json:"committeeSendBack"`
	CommitteeSendBackMessage *Message     `json:"committeeSendBackMessage,omitempty"`
	SendBackMessage          *Message     `json:"sendBackMessage,omitempty"`
}

func newReviewCycle() ReviewCycle {
	return ReviewCycle{Status: StatusDraft, ReviewStatus: ReviewStatusNotReviewed}
}

type PersonalQuarterlyTarget struct {
	Quarter      Quarter     `json:"quarter"`
	SupervisorID string      `json:"supervisorId"`
	IsEditable   *bool       `json:"isEditable,omitempty"`
	Objectives   []Objective `json:"objectives"`
	Agreement    ReviewCycle `json:"agreement"`
	Assessment   ReviewCycle `json:"assessment"`
}

// NewQuarterlyTarget returns a Draft target. Q1 starts locked until its weights total 100.
func NewQuarterlyTarget(q Quarter) PersonalQuarterlyTarget {
	t := PersonalQuarterlyTarget{
		Quarter:    q,
		Objectives: []Objective{},
		Agreement:  newReviewCycle(),
		Assessment: newReviewCycle(),
	}
	if q == Q1 {
		locked := false
		t.IsEditable = &locked
	}
	return t
}

func (t PersonalQuarterlyTarget) Cycle(phase Phase) ReviewCycle {
	if phase == PhaseAssessment {
		return t.Assessment
	}
	return t.Agreement
}

func (t *PersonalQuarterlyTarget) cycleRef(phase Phase) *ReviewCycle {
	if phase == PhaseAssessment {
		return &t.Assessment
	}
	return &t.Agreement
}

// Editable reports whether the isEditable gate lets the given phase mutate content.
// On Q1 the flag tracks weight completion, so it does not gate Q1's own agreement edits.
func (t PersonalQuarterlyTarget) Editable(phase Phase) bool {
	if t.Quarter == Q1 && phase == PhaseAgreement {
		return true
	}
	if t.IsEditable == nil {
		return true
	}
	return *t.IsEditable
}

func (t PersonalQuarterlyTarget) findKPI(kpiID string) (int, int, bool) {
	for oi, obj := range t.Objectives {
		for ki, kpi := range obj.KPIs {
			if kpi.ID == kpiID {
				return oi, ki, true
			}
		}
	}
	return 0, 0, false
}

func (t PersonalQuarterlyTarget) findObjective(objectiveID string) (int, bool) {
	for i, obj := range t.Objectives {
		if obj.ID == objectiveID {
			return i, true
		}
	}
	return 0, false
}

// Clone returns a deep copy so transitions never alias the caller's slices.
func (t PersonalQuarterlyTarget) Clone() PersonalQuarterlyTarget {
	out := t
	if t.IsEditable != nil {
		v := *t.IsEditable
		out.IsEditable = &v
	}
	out.Agreement = t.Agreement.clone()
	out.Assessment = t.Assessment.clone()
	out.Objectives = make([]Objective, len(t.Objectives))
	for i, obj := range t.Objectives {
		out.Objectives[i] = obj.clone()
	}
	return out
}

func (c ReviewCycle) clone() ReviewCycle {
	out := c
	if c.CommitteeSendBackMessage != nil {
		msg := *c.CommitteeSendBackMessage
		out.CommitteeSendBackMessage = &msg
	}
	if c.SendBackMessage != nil {
		msg := *c.SendBackMessage
		out.SendBackMessage = &msg
	}
	return out
}

func (o Objective) clone() Objective {
	out := o
	out.KPIs = make([]KPI, len(o.KPIs))
	for i, kpi := range o.KPIs {
		out.KPIs[i] = kpi.clone()
	}
	return out
}

func (k KPI) clone() KPI {
	out := k
	out.RatingScales = cloneRatingScales(k.RatingScales)
	if k.Attachments != nil {
		out.Attachments = append([]Attachment(nil), k.Attachments...)
	}
	out.AgreementComment = k.AgreementComment.clone()
	out.AssessmentComment = k.AssessmentComment.clone()
	return out
}

func cloneRatingScales(scales []RatingScale) []RatingScale {
	if scales == nil {
		return nil
	}
	return append([]RatingScale(nil), scales...)
}

type PersonalPerformance struct {
	ID               string                    `json:"id,omitempty"`
	UserID           string                    `json:"userId"`
	AnnualTargetID   string                    `json:"annualTargetId"`
	QuarterlyTargets []PersonalQuarterlyTarget `json:"quarterlyTargets"`
	CreatedAt        time.Time                 `json:"createdAt"`
	UpdatedAt        time.Time                 `json:"updatedAt"`
}

// NewPersonalPerformance builds the zero-state document with one Draft target per quarter.
func NewPersonalPerformance(userID, annualTargetID string) PersonalPerformance {
	doc := PersonalPerformance{UserID: userID, AnnualTargetID: annualTargetID}
	for _, q := range Quarters {
		doc.QuarterlyTargets = append(doc.QuarterlyTargets, NewQuarterlyTarget(q))
	}
	return doc
}

func (d PersonalPerformance) Target(q Quarter) (PersonalQuarterlyTarget, bool) {
	for _, t := range d.QuarterlyTargets {
		if t.Quarter == q {
			return t.Clone(), true
		}
	}
	return PersonalQuarterlyTarget{}, false
}

// WithTarget returns a copy of the document with the target for t.Quarter replaced or appended.
func (d PersonalPerformance) WithTarget(t PersonalQuarterlyTarget) PersonalPerformance {
	out := d
	out.QuarterlyTargets = make([]PersonalQuarterlyTarget, 0, len(d.QuarterlyTargets)+1)
	replaced := false
	for _, existing := range d.QuarterlyTargets {
		if existing.Quarter == t.Quarter {
			out.QuarterlyTargets = append(out.QuarterlyTargets, t)
			replaced = true
			continue
		}
		out.QuarterlyTargets = append(out.QuarterlyTargets, existing)
	}
	if !replaced {
		out.QuarterlyTargets = append(out.QuarterlyTargets, t)
	}
	return out
}

// Validate checks the document-level invariants enforced before persistence.
func (d PersonalPerformance) Validate() error {
	if d.UserID == "" || d.AnnualTargetID == "" {
		return newValidationError("document", "userId and annualTargetId are required")
	}
	seen := map[Quarter]bool{}
	for _, t := range d.QuarterlyTargets {
		if _, ok := ParseQuarter(string(t.Quarter)); !ok {
			return newValidationError("quarter", "unknown quarter "+string(t.Quarter))
		}
		if seen[t.Quarter] {
			return newValidationError("quarter", "duplicate quarter "+string(t.Quarter))
		}
		seen[t.Quarter] = true
	}
	return nil
}

// QuarterPeriod holds the editing windows of one quarter. Zero times mean "open".
type QuarterPeriod struct {
	Quarter         Quarter   `json:"quarter" yaml:"quarter"`
	AgreementStart  time.Time `json:"agreementStart" yaml:"agreement_start"`
	AgreementEnd    time.Time `json:"agreementEnd" yaml:"agreement_end"`
	AssessmentStart time.Time `json:"assessmentStart" yaml:"assessment_start"`
	AssessmentEnd   time.Time `json:"assessmentEnd" yaml:"assessment_end"`
}

type AnnualTarget struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Year         int             `json:"year" yaml:"year"`
	RatingScales []RatingScale   `json:"ratingScales" yaml:"rating_scales"`
	Periods      []QuarterPeriod `json:"periods" yaml:"periods"`
}

// WithinWindow reports whether now falls within the phase window for the quarter.
// Quarters without a configured period are always open.
func (a AnnualTarget) WithinWindow(q Quarter, phase Phase, now time.Time) bool {
	for _, p := range a.Periods {
		if p.Quarter != q {
			continue
		}
		start, end := p.AgreementStart, p.AgreementEnd
		if phase == PhaseAssessment {
			start, end = p.AssessmentStart, p.AssessmentEnd
		}
		if !start.IsZero() && now.Before(start) {
			return false
		}
		if !end.IsZero() && now.After(end) {
			return false
		}
		return true
	}
	return true
}
