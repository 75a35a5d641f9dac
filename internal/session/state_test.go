package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmref-mcp-server/internal/domain"
)

func drug(id string) domain.Drug {
	return domain.Drug{ID: id, NameEN: id, Hepatotoxicity: domain.HepaticToxicity{Grade: domain.GradeC}}
}

func TestNewState(t *testing.T) {
	s := NewState()

	assert.Empty(t, s.Drugs)
	assert.Equal(t, domain.HepaticNormal, s.HepaticStage)
	assert.Equal(t, domain.RenalNormal, s.RenalStage)
	assert.Equal(t, AlcoholNone, s.AlcoholHistory)
	assert.NoError(t, s.Validate())
}

func TestAddDrug_DuplicateIsNoOp(t *testing.T) {
	s := NewState().AddDrug(drug("ibuprofen"))

	again := s.AddDrug(drug("ibuprofen"))

	assert.Equal(t, []string{"ibuprofen"}, again.DrugIDs())
}

func TestTransitionsLeaveReceiverUntouched(t *testing.T) {
	base := NewState().AddDrug(drug("a"))

	added := base.AddDrug(drug("b"))
	removed := added.RemoveDrug("a")
	cleared := added.ClearDrugs()
	staged := base.SetHepaticStage(domain.ChildPughC).SetRenalStage(domain.CKDDialysis)

	assert.Equal(t, []string{"a"}, base.DrugIDs())
	assert.Equal(t, []string{"a", "b"}, added.DrugIDs())
	assert.Equal(t, []string{"b"}, removed.DrugIDs())
	assert.Empty(t, cleared.Drugs)
	assert.Equal(t, domain.HepaticNormal, base.HepaticStage)
	assert.Equal(t, domain.ChildPughC, staged.HepaticStage)
	assert.Equal(t, domain.CKDDialysis, staged.RenalStage)
}

func TestReduce(t *testing.T) {
	s := Reduce(NewState(),
		AddDrug{Drug: drug("gentamicin")},
		AddDrug{Drug: drug("vancomycin")},
		AddDrug{Drug: drug("gentamicin")},
		RemoveDrug{ID: "missing"},
		SetHepaticStage{Stage: domain.ChildPughB},
		SetRenalStage{Stage: domain.CKDG4},
		SetAlcoholHistory{History: AlcoholChronic},
		nil,
	)

	assert.Equal(t, []string{"gentamicin", "vancomycin"}, s.DrugIDs())
	assert.Equal(t, domain.ChildPughB, s.HepaticStage)
	assert.Equal(t, domain.CKDG4, s.RenalStage)
	assert.Equal(t, AlcoholChronic, s.AlcoholHistory)

	s = Reduce(s, ClearDrugs{})
	assert.Empty(t, s.Drugs)
	assert.Equal(t, domain.CKDG4, s.RenalStage, "clearing drugs keeps the stages")
}

func TestValidate(t *testing.T) {
	assert.Error(t, NewState().SetHepaticStage("G4").Validate())
	assert.Error(t, NewState().SetRenalStage("C").Validate())
	assert.Error(t, NewState().SetAlcoholHistory("daily").Validate())
}

func TestParseAlcoholHistory(t *testing.T) {
	a, err := ParseAlcoholHistory("")
	require.NoError(t, err)
	assert.Equal(t, AlcoholNone, a)

	a, err = ParseAlcoholHistory("social")
	require.NoError(t, err)
	assert.Equal(t, AlcoholSocial, a)

	_, err = ParseAlcoholHistory("heavy")
	assert.Error(t, err)
}
