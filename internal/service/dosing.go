package service

import (
	"fmt"
	"strings"

	"github.com/pharmref-mcp-server/internal/domain"
)

// Fixed dosing texts. Absence of data is expressed with these placeholders,
// never with an error.
const (
	StandardDose                = "standard dose"
	NoInformation               = "no information"
	HepaticNormalRecommendation = "Hepatic function normal - use standard recommended dose"
	RenalNormalRecommendation   = "Renal function normal - use standard recommended dose"
	HepaticGradeCaution         = "Grade A/B medication - review reference information"
	RenalGradeCaution           = "Nephrotoxic medication - monitor creatinine and eGFR periodically"
)

// avoidanceMarkers flag dosing text that contraindicates use at a stage.
// Korean markers cover dosing text written in the Korean dataset.
var avoidanceMarkers = []string{"contraindicated", "avoid", "금기", "회피"}

// ContainsAvoidanceMarker reports whether dosing text contraindicates use.
func ContainsAvoidanceMarker(dose string) bool {
	lower := strings.ToLower(dose)
	for _, m := range avoidanceMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func caution(text string) *string {
	return &text
}

// ResolveHepaticDosing returns the hepatic dosing guidance for the stage.
// Normal liver function has no stored entry, so guidance is synthesized.
func ResolveHepaticDosing(drug *domain.Drug, stage domain.HepaticStage) *domain.DosingGuidance {
	if stage == domain.HepaticNormal {
		g := &domain.DosingGuidance{
			Dose:           StandardDose,
			Recommendation: HepaticNormalRecommendation,
		}
		if grade := drug.Hepatotoxicity.Grade; grade == domain.GradeA || grade == domain.GradeB {
			g.Caution = caution(HepaticGradeCaution)
		}
		return g
	}

	return &domain.DosingGuidance{
		Dose:           drug.CirrhosisDosing.ForStage(stage),
		Recommendation: "",
	}
}

// ResolveRenalDosing returns the renal dosing guidance for the stage, or nil
// when the drug has no renal record or no renal dosing table.
func ResolveRenalDosing(drug *domain.Drug, stage domain.RenalStage) *domain.DosingGuidance {
	if drug.Nephrotoxicity == nil || drug.RenalDosing == nil {
		return nil
	}

	if stage == domain.RenalNormal {
		dose := drug.RenalDosing.GFR90Plus
		if dose == "" {
			dose = StandardDose
		}
		g := &domain.DosingGuidance{
			Dose:           dose,
			Recommendation: RenalNormalRecommendation,
		}
		if grade := drug.Nephrotoxicity.Grade; grade == domain.GradeN1 || grade == domain.GradeN2 {
			g.Caution = caution(RenalGradeCaution)
		}
		return g
	}

	dose := drug.RenalDosing.ForStage(stage)
	if dose == "" {
		dose = NoInformation
	}
	g := &domain.DosingGuidance{
		Dose:           dose,
		Recommendation: "",
	}
	if ContainsAvoidanceMarker(dose) {
		g.Caution = caution(fmt.Sprintf("Use with caution at CKD %s", stage))
	}
	return g
}

// ResolveDosing resolves guidance for either axis from an untyped stage value.
// Unknown axes or stage values yield nil.
func ResolveDosing(drug *domain.Drug, axis domain.Axis, stage string) *domain.DosingGuidance {
	switch axis {
	case domain.AxisHepatic:
		s := domain.HepaticStage(stage)
		if !s.IsValid() {
			return nil
		}
		return ResolveHepaticDosing(drug, s)
	case domain.AxisRenal:
		s := domain.RenalStage(stage)
		if !s.IsValid() {
			return nil
		}
		return ResolveRenalDosing(drug, s)
	default:
		return nil
	}
}
