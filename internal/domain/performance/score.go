package performance

import (
	"github.com/shopspring/decimal"
)

const scoreNotAvailable = "N/A"

// OverallScore is the weight-adjusted mean of rated KPIs rounded half away from zero.
// ok is false when nothing is rated or the rated weight sums to zero.
func OverallScore(objectives []Objective) (score int, ok bool) {
	weighted := decimal.Zero
	weights := decimal.Zero
	for _, obj := range objectives {
		for _, kpi := range obj.KPIs {
			if !kpi.IsRated() {
				continue
			}
			w := decimal.NewFromInt(int64(kpi.Weight))
			weighted = weighted.Add(decimal.NewFromInt(int64(kpi.RatingScore)).Mul(w))
			weights = weights.Add(w)
		}
	}
	if weights.IsZero() {
		return 0, false
	}
	return int(weighted.Div(weights).Round(0).IntPart()), true
}

// MatchRatingScale finds the band with Min <= score <= Max.
func MatchRatingScale(scales []RatingScale, score int) (RatingScale, bool) {
	value := float64(score)
	for _, scale := range scales {
		if value >= scale.Min && value <= scale.Max {
			return scale, true
		}
	}
	return RatingScale{}, false
}

type ScoreView struct {
	Score *int   `json:"score"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

func BuildScoreView(objectives []Objective, scales []RatingScale) ScoreView {
	score, ok := OverallScore(objectives)
	if !ok {
		return ScoreView{Label: scoreNotAvailable}
	}
	view := ScoreView{Score: &score, Label: scoreNotAvailable}
	if band, found := MatchRatingScale(scales, score); found {
		view.Label = band.Name
		view.Color = band.Color
	}
	return view
}
