package performance

// CommentTrail is a reviewer comment with a bounded history of earlier generations.
type CommentTrail struct {
	Current string   `json:"current"`
	History []string `json:"history,omitempty"`
}

// Previous returns the most recently promoted comment, or "".
func (c CommentTrail) Previous() string {
	if len(c.History) == 0 {
		return ""
	}
	return c.History[0]
}

// Promote moves Current to the front of History and clears Current.
// History keeps at most CommentHistoryDepth entries.
func (c CommentTrail) Promote() CommentTrail {
	history := make([]string, 0, CommentHistoryDepth)
	history = append(history, c.Current)
	for _, h := range c.History {
		if len(history) >= CommentHistoryDepth {
			break
		}
		history = append(history, h)
	}
	return CommentTrail{Current: "", History: history}
}

func (c CommentTrail) clone() CommentTrail {
	out := c
	if c.History != nil {
		out.History = append([]string(nil), c.History...)
	}
	return out
}

func promoteComments(t *PersonalQuarterlyTarget, phase Phase) {
	for oi := range t.Objectives {
		for ki := range t.Objectives[oi].KPIs {
			trail := t.Objectives[oi].KPIs[ki].comment(phase)
			*trail = trail.Promote()
		}
	}
}
