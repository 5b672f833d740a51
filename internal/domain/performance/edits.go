package performance

import (
	"strings"
	"time"
)

// IDFunc generates identifiers for new objectives and KPIs.
type IDFunc func() string

type KPIInput struct {
	Indicator string `json:"indicator" validate:"required,max=500"`
	Weight    int    `json:"weight" validate:"min=1,max=100"`
	Baseline  string `json:"baseline" validate:"max=500"`
	Target    string `json:"target" validate:"max=500"`
}

type ObjectiveInput struct {
	PerspectiveID string     `json:"perspectiveId" validate:"required"`
	Name          string     `json:"name" validate:"required,max=300"`
	Initiative    string     `json:"initiative" validate:"max=300"`
	KPIs          []KPIInput `json:"kpis" validate:"dive"`
}

type AchievementInput struct {
	ActualAchieved string       `json:"actualAchieved" validate:"max=2000"`
	RatingScore    int          `json:"ratingScore" validate:"min=-1"`
	Evidence       string       `json:"evidence" validate:"max=2000"`
	Attachments    []Attachment `json:"attachments" validate:"dive"`
}

func beginEdit(t PersonalQuarterlyTarget, phase Phase) (PersonalQuarterlyTarget, error) {
	if !t.Editable(phase) {
		return t, ErrNotEditable
	}
	if status := t.Cycle(phase).Status; status == StatusApproved {
		return t, invalidTransition("edit", phase, status)
	}
	return t.Clone(), nil
}

// finishEdit forces the phase back to Draft. Q1 agreement edits also recompute isEditable.
func finishEdit(t PersonalQuarterlyTarget, phase Phase, now time.Time) PersonalQuarterlyTarget {
	setStatus(t.cycleRef(phase), StatusDraft, now)
	if t.Quarter == Q1 && phase == PhaseAgreement {
		complete := WeightComplete(t.Objectives)
		t.IsEditable = &complete
	}
	return t
}

func newKPI(id string, in KPIInput, scales []RatingScale) KPI {
	return KPI{
		ID:           id,
		Indicator:    strings.TrimSpace(in.Indicator),
		Weight:       in.Weight,
		Baseline:     strings.TrimSpace(in.Baseline),
		Target:       strings.TrimSpace(in.Target),
		RatingScales: cloneRatingScales(scales),
		RatingScore:  Unrated,
	}
}

// AddObjective appends an objective with its KPIs. Each KPI receives its own copy of scales.
func AddObjective(t PersonalQuarterlyTarget, in ObjectiveInput, scales []RatingScale, newID IDFunc, now time.Time) (PersonalQuarterlyTarget, error) {
	next, err := beginEdit(t, PhaseAgreement)
	if err != nil {
		return t, err
	}
	verr := validateObjectiveFields(next.Objectives, in, "")
	obj := Objective{
		ID:            newID(),
		PerspectiveID: strings.TrimSpace(in.PerspectiveID),
		Name:          strings.TrimSpace(in.Name),
		Initiative:    strings.TrimSpace(in.Initiative),
		KPIs:          []KPI{},
	}
	for _, kin := range in.KPIs {
		if kerr := validateKPIInput(kin, obj.KPIs, ""); len(kerr.Issues) > 0 {
			verr.Issues = append(verr.Issues, kerr.Issues...)
			continue
		}
		obj.KPIs = append(obj.KPIs, newKPI(newID(), kin, scales))
	}
	if err := verr.orNil(); err != nil {
		return t, err
	}
	next.Objectives = append(next.Objectives, obj)
	return finishEdit(next, PhaseAgreement, now), nil
}

// UpdateObjective changes the perspective/name/initiative triple. KPIs are kept.
func UpdateObjective(t PersonalQuarterlyTarget, objectiveID string, in ObjectiveInput, now time.Time) (PersonalQuarterlyTarget, error) {
	next, err := beginEdit(t, PhaseAgreement)
	if err != nil {
		return t, err
	}
	idx, ok := next.findObjective(objectiveID)
	if !ok {
		return t, ErrObjectiveNotFound
	}
	if err := validateObjectiveFields(next.Objectives, in, objectiveID).orNil(); err != nil {
		return t, err
	}
	obj := &next.Objectives[idx]
	obj.PerspectiveID = strings.TrimSpace(in.PerspectiveID)
	obj.Name = strings.TrimSpace(in.Name)
	obj.Initiative = strings.TrimSpace(in.Initiative)
	return finishEdit(next, PhaseAgreement, now), nil
}

func DeleteObjective(t PersonalQuarterlyTarget, objectiveID string, now time.Time) (PersonalQuarterlyTarget, error) {
	next, err := beginEdit(t, PhaseAgreement)
	if err != nil {
		return t, err
	}
	idx, ok := next.findObjective(objectiveID)
	if !ok {
		return t, ErrObjectiveNotFound
	}
	next.Objectives = append(next.Objectives[:idx], next.Objectives[idx+1:]...)
	return finishEdit(next, PhaseAgreement, now), nil
}

// AddKPI checks bounds and indicator uniqueness only. A total above 100 is allowed
// while editing and reported through WeightExceeded.
func AddKPI(t PersonalQuarterlyTarget, objectiveID string, in KPIInput, scales []RatingScale, newID IDFunc, now time.Time) (PersonalQuarterlyTarget, error) {
	next, err := beginEdit(t, PhaseAgreement)
	if err != nil {
		return t, err
	}
	idx, ok := next.findObjective(objectiveID)
	if !ok {
		return t, ErrObjectiveNotFound
	}
	if err := validateKPIInput(in, next.Objectives[idx].KPIs, "").orNil(); err != nil {
		return t, err
	}
	next.Objectives[idx].KPIs = append(next.Objectives[idx].KPIs, newKPI(newID(), in, scales))
	return finishEdit(next, PhaseAgreement, now), nil
}

// UpdateKPI replaces the plan fields of a KPI; rating, achievement and comments are kept.
func UpdateKPI(t PersonalQuarterlyTarget, kpiID string, in KPIInput, now time.Time) (PersonalQuarterlyTarget, error) {
	next, err := beginEdit(t, PhaseAgreement)
	if err != nil {
		return t, err
	}
	oi, ki, ok := next.findKPI(kpiID)
	if !ok {
		return t, ErrKPINotFound
	}
	if err := validateKPIInput(in, next.Objectives[oi].KPIs, kpiID).orNil(); err != nil {
		return t, err
	}
	kpi := &next.Objectives[oi].KPIs[ki]
	kpi.Indicator = strings.TrimSpace(in.Indicator)
	kpi.Weight = in.Weight
	kpi.Baseline = strings.TrimSpace(in.Baseline)
	kpi.Target = strings.TrimSpace(in.Target)
	return finishEdit(next, PhaseAgreement, now), nil
}

func DeleteKPI(t PersonalQuarterlyTarget, kpiID string, now time.Time) (PersonalQuarterlyTarget, error) {
	next, err := beginEdit(t, PhaseAgreement)
	if err != nil {
		return t, err
	}
	oi, ki, ok := next.findKPI(kpiID)
	if !ok {
		return t, ErrKPINotFound
	}
	kpis := next.Objectives[oi].KPIs
	next.Objectives[oi].KPIs = append(kpis[:ki], kpis[ki+1:]...)
	return finishEdit(next, PhaseAgreement, now), nil
}

// RecordAchievement is the assessment-phase edit and forces the assessment back to Draft.
func RecordAchievement(t PersonalQuarterlyTarget, kpiID string, in AchievementInput, now time.Time) (PersonalQuarterlyTarget, error) {
	next, err := beginEdit(t, PhaseAssessment)
	if err != nil {
		return t, err
	}
	oi, ki, ok := next.findKPI(kpiID)
	if !ok {
		return t, ErrKPINotFound
	}
	kpi := &next.Objectives[oi].KPIs[ki]
	if !validRating(*kpi, in.RatingScore) {
		return t, newValidationError("ratingScore", "score is not part of the KPI rating scale")
	}
	kpi.ActualAchieved = strings.TrimSpace(in.ActualAchieved)
	kpi.RatingScore = in.RatingScore
	kpi.Evidence = strings.TrimSpace(in.Evidence)
	kpi.Attachments = append([]Attachment(nil), in.Attachments...)
	return finishEdit(next, PhaseAssessment, now), nil
}

func validRating(kpi KPI, score int) bool {
	if score == Unrated {
		return true
	}
	if len(kpi.RatingScales) == 0 {
		return score >= 0
	}
	for _, scale := range kpi.RatingScales {
		if scale.Score == score {
			return true
		}
	}
	return false
}

func validateObjectiveFields(existing []Objective, in ObjectiveInput, selfID string) *ValidationError {
	verr := &ValidationError{}
	if strings.TrimSpace(in.PerspectiveID) == "" {
		verr.add("perspectiveId", "required")
	}
	if strings.TrimSpace(in.Name) == "" {
		verr.add("name", "required")
	}
	for _, obj := range existing {
		if obj.ID == selfID {
			continue
		}
		if sameTriple(obj, in.PerspectiveID, in.Name, in.Initiative) {
			verr.add("objective", "an objective with this perspective, name and initiative already exists")
			break
		}
	}
	return verr
}
