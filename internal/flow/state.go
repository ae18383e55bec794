// Package flow implements the conversation state machine that collects a
// user's ranked values and demographics, shows a review screen with per-field
// edit controls, and hands a confirmed submission to report generation.
package flow

import "github.com/soaringjerry/valuesreport/internal/services"

// State is a position in the conversation.
type State string

const (
	StateEntry       State = "entry"
	StateAccessCheck State = "access_check"
	StateTopFive     State = "top_five"
	StateNextFive    State = "next_five"
	StateAge         State = "age"
	StateCountry     State = "country"
	StateOccupation  State = "occupation"
	StateReview      State = "review"
	StateGenerating  State = "generating"
	StateCancelled   State = "cancelled"
	StateDone        State = "done"
)

// Terminal reports whether the session ends in s.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateDone
}

// collectionOrder is the forward chain of field states.
var collectionOrder = []State{StateTopFive, StateNextFive, StateAge, StateCountry, StateOccupation}

// nextAfter returns the state following a collection state; the last field
// always leads to review.
func nextAfter(s State) State {
	for i, st := range collectionOrder {
		if st == s && i+1 < len(collectionOrder) {
			return collectionOrder[i+1]
		}
	}
	return StateReview
}

func isCollection(s State) bool {
	for _, st := range collectionOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Review actions.
const (
	ActionEditTopFive    = "edit_top_five"
	ActionEditNextFive   = "edit_next_five"
	ActionEditAge        = "edit_age"
	ActionEditCountry    = "edit_country"
	ActionEditOccupation = "edit_occupation"
	ActionConfirm        = "confirm"
)

var editTargets = map[string]State{
	ActionEditTopFive:    StateTopFive,
	ActionEditNextFive:   StateNextFive,
	ActionEditAge:        StateAge,
	ActionEditCountry:    StateCountry,
	ActionEditOccupation: StateOccupation,
}

// Session is one user's in-progress conversation.
type Session struct {
	UserID        int64
	Username      string
	AccessCode    string
	TopValues     []string
	TopCategories []string
	NextValues    []string
	Age           int
	Country       string
	Occupation    string
	State         State

	// editing is set by a review edit action so the field returns straight
	// to review instead of continuing the forward chain.
	editing bool
}

func (s *Session) clone() *Session {
	c := *s
	c.TopValues = append([]string(nil), s.TopValues...)
	c.TopCategories = append([]string(nil), s.TopCategories...)
	c.NextValues = append([]string(nil), s.NextValues...)
	return &c
}

// Submission converts a completed session into its persisted form.
func (s *Session) Submission() *services.Submission {
	return &services.Submission{
		UserID:        s.UserID,
		Username:      s.Username,
		AccessCode:    s.AccessCode,
		TopValues:     append([]string(nil), s.TopValues...),
		TopCategories: append([]string(nil), s.TopCategories...),
		NextValues:    append([]string(nil), s.NextValues...),
		Age:           s.Age,
		Country:       s.Country,
		Occupation:    s.Occupation,
	}
}
