package service

import (
	"fmt"

	"github.com/pharmref-mcp-server/internal/domain"
)

// Per-drug warning texts. The first warning in a list is the primary one.
const (
	WarnHepaticGradeA   = "Grade A medication - review reference information"
	WarnHepaticGradeB   = "Grade B medication - review reference information"
	WarnCholestatic     = "Cholestatic pattern - biliary excretion is reduced in cirrhosis"
	WarnRenalGradeN1    = "Well-known nephrotoxin - high renal risk medication"
	WarnRenalGradeN2    = "Highly likely nephrotoxin - elevated renal risk"
	WarnHemodynamic     = "Hemodynamic injury pattern - risk rises with hypotension or dehydration"
	WarnTubularNecrosis = "Acute tubular necrosis risk - watch dose and treatment duration"
	WarnNotDialyzable   = "Not removed by dialysis - watch for accumulation"
	WarnDialyzable      = "Removed by dialysis - consider a supplemental dose after dialysis"
)

// HepaticWarnings lists the hepatic warnings for a drug at a Child-Pugh stage.
func HepaticWarnings(drug *domain.Drug, stage domain.HepaticStage) []string {
	warnings := make([]string, 0)

	switch drug.Hepatotoxicity.Grade {
	case domain.GradeA:
		warnings = append(warnings, WarnHepaticGradeA)
	case domain.GradeB:
		warnings = append(warnings, WarnHepaticGradeB)
	}

	if stage != domain.HepaticNormal {
		dosing := ResolveHepaticDosing(drug, stage)
		if dosing.Caution != nil {
			warnings = append(warnings, *dosing.Caution)
		}
		if ContainsAvoidanceMarker(dosing.Dose) {
			warnings = append(warnings, fmt.Sprintf("Avoid use at Child-Pugh %s", stage))
		}
	}

	if drug.Hepatotoxicity.Pattern == domain.PatternCholestatic && stage != domain.HepaticNormal {
		warnings = append(warnings, WarnCholestatic)
	}

	return warnings
}

// RenalWarnings lists the renal warnings for a drug at a CKD stage. A drug
// without a renal record has none.
func RenalWarnings(drug *domain.Drug, stage domain.RenalStage) []string {
	warnings := make([]string, 0)
	renal := drug.Nephrotoxicity
	if renal == nil {
		return warnings
	}

	switch renal.Grade {
	case domain.GradeN1:
		warnings = append(warnings, WarnRenalGradeN1)
	case domain.GradeN2:
		warnings = append(warnings, WarnRenalGradeN2)
	}

	if stage != domain.RenalNormal {
		if dosing := ResolveRenalDosing(drug, stage); dosing != nil && ContainsAvoidanceMarker(dosing.Dose) {
			warnings = append(warnings, fmt.Sprintf("Avoid use at CKD %s", stage))
		}
	}

	if renal.Pattern == domain.PatternHemodynamic && stage != domain.RenalNormal {
		warnings = append(warnings, WarnHemodynamic)
	}
	if renal.Pattern == domain.PatternTubularNecrosis {
		warnings = append(warnings, WarnTubularNecrosis)
	}

	if stage == domain.CKDDialysis {
		switch renal.Dialyzability() {
		case domain.DialyzableNo:
			warnings = append(warnings, WarnNotDialyzable)
		case domain.DialyzableYes:
			warnings = append(warnings, WarnDialyzable)
		}
	}

	return warnings
}
