// Package session keeps the per-user working state of an analysis: the
// selected drugs and the patient's organ-function stages.
//
// State is a value. Every transition returns a new State and leaves the
// receiver untouched, so a State handed to the engine never changes
// underneath it.
package session

import (
	"fmt"

	"github.com/pharmref-mcp-server/internal/domain"
)

// AlcoholHistory is recorded with the session and printed on reports. The
// engine does not read it.
type AlcoholHistory string

const (
	AlcoholNone    AlcoholHistory = "none"
	AlcoholSocial  AlcoholHistory = "social"
	AlcoholChronic AlcoholHistory = "chronic"
)

// IsValid validates the alcohol history value.
func (a AlcoholHistory) IsValid() bool {
	switch a {
	case AlcoholNone, AlcoholSocial, AlcoholChronic:
		return true
	default:
		return false
	}
}

// ParseAlcoholHistory maps "" to none.
func ParseAlcoholHistory(s string) (AlcoholHistory, error) {
	if s == "" {
		return AlcoholNone, nil
	}
	a := AlcoholHistory(s)
	if !a.IsValid() {
		return "", domain.NewValidationError("alcohol_history", "must be one of none, social, chronic", s)
	}
	return a, nil
}

// State is the analysis input assembled by a user.
type State struct {
	Drugs          []domain.Drug       `json:"drugs"`
	HepaticStage   domain.HepaticStage `json:"hepatic_stage"`
	RenalStage     domain.RenalStage   `json:"renal_stage"`
	AlcoholHistory AlcoholHistory      `json:"alcohol_history"`
}

// NewState returns the initial state: no drugs, normal function on both
// axes, no alcohol history.
func NewState() State {
	return State{
		Drugs:          []domain.Drug{},
		HepaticStage:   domain.HepaticNormal,
		RenalStage:     domain.RenalNormal,
		AlcoholHistory: AlcoholNone,
	}
}

// HasDrug reports whether a drug with the id is selected.
func (s State) HasDrug(id string) bool {
	for _, d := range s.Drugs {
		if d.ID == id {
			return true
		}
	}
	return false
}

// DrugIDs returns the selected ids in selection order.
func (s State) DrugIDs() []string {
	ids := make([]string, len(s.Drugs))
	for i, d := range s.Drugs {
		ids[i] = d.ID
	}
	return ids
}

// AddDrug appends the drug unless one with the same id is already selected.
func (s State) AddDrug(d domain.Drug) State {
	if s.HasDrug(d.ID) {
		return s
	}
	drugs := make([]domain.Drug, 0, len(s.Drugs)+1)
	drugs = append(drugs, s.Drugs...)
	s.Drugs = append(drugs, d)
	return s
}

// RemoveDrug drops the drug with id. An unknown id leaves the selection as is.
func (s State) RemoveDrug(id string) State {
	drugs := make([]domain.Drug, 0, len(s.Drugs))
	for _, d := range s.Drugs {
		if d.ID != id {
			drugs = append(drugs, d)
		}
	}
	s.Drugs = drugs
	return s
}

// ClearDrugs empties the selection and keeps the stages.
func (s State) ClearDrugs() State {
	s.Drugs = []domain.Drug{}
	return s
}

// SetHepaticStage returns a copy at the given Child-Pugh stage.
func (s State) SetHepaticStage(stage domain.HepaticStage) State {
	s.HepaticStage = stage
	return s
}

// SetRenalStage returns a copy at the given CKD stage.
func (s State) SetRenalStage(stage domain.RenalStage) State {
	s.RenalStage = stage
	return s
}

// SetAlcoholHistory records the alcohol history. The engine does not read it.
func (s State) SetAlcoholHistory(a AlcoholHistory) State {
	s.AlcoholHistory = a
	return s
}

// Action is a state transition.
type Action interface {
	apply(State) State
}

type (
	AddDrug           struct{ Drug domain.Drug }
	RemoveDrug        struct{ ID string }
	ClearDrugs        struct{}
	SetHepaticStage   struct{ Stage domain.HepaticStage }
	SetRenalStage     struct{ Stage domain.RenalStage }
	SetAlcoholHistory struct{ History AlcoholHistory }
)

func (a AddDrug) apply(s State) State { return s.AddDrug(a.Drug) }
func (a RemoveDrug) apply(s State) State { return s.RemoveDrug(a.ID) }
func (ClearDrugs) apply(s State) State { return s.ClearDrugs() }
func (a SetHepaticStage) apply(s State) State { return s.SetHepaticStage(a.Stage) }
func (a SetRenalStage) apply(s State) State { return s.SetRenalStage(a.Stage) }
func (a SetAlcoholHistory) apply(s State) State { return s.SetAlcoholHistory(a.History) }

// Reduce applies the actions in order.
func Reduce(state State, actions ...Action) State {
	for _, a := range actions {
		if a == nil {
			continue
		}
		state = a.apply(state)
	}
	return state
}

// Validate checks the stage and alcohol values.
func (s State) Validate() error {
	if !s.HepaticStage.IsValid() {
		return fmt.Errorf("invalid session: %w", domain.NewValidationError("hepatic_stage", "unknown stage", s.HepaticStage))
	}
	if !s.RenalStage.IsValid() {
		return fmt.Errorf("invalid session: %w", domain.NewValidationError("renal_stage", "unknown stage", s.RenalStage))
	}
	if !s.AlcoholHistory.IsValid() {
		return fmt.Errorf("invalid session: %w", domain.NewValidationError("alcohol_history", "unknown value", s.AlcoholHistory))
	}
	return nil
}
