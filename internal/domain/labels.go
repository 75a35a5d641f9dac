package domain

import "fmt"

// Display labels for presentation. Callers must not hardcode grade or stage text.

var hepaticGradeLabels = map[HepaticGrade]string{
	GradeA: "Grade A (Well-known)",
	GradeB: "Grade B (Highly likely)",
	GradeC: "Grade C (Probable)",
	GradeD: "Grade D (Possible)",
	GradeE: "Grade E (Unlikely)",
}

var renalGradeLabels = map[RenalGrade]string{
	GradeN1: "N1 (Well-known)",
	GradeN2: "N2 (Highly likely)",
	GradeN3: "N3 (Probable)",
	GradeN4: "N4 (Possible)",
	GradeN5: "N5 (Unlikely)",
}

var gradeDescriptions = map[int]string{
	0: "Well-known cause of organ injury with many published cases",
	1: "Highly likely cause with a consistent body of case reports",
	2: "Probable cause with a small number of reported cases",
	3: "Possible cause with rare or poorly documented cases",
	4: "Unlikely cause; no convincing reports of injury",
}

var hepaticStageLabels = map[HepaticStage]string{
	HepaticNormal: "Normal",
	ChildPughA:    "Child-Pugh A (compensated)",
	ChildPughB:    "Child-Pugh B (moderate)",
	ChildPughC:    "Child-Pugh C (decompensated)",
}

var renalStageLabels = map[RenalStage]string{
	RenalNormal: "Normal (eGFR ≥90)",
	CKDG2:       "CKD G2 (eGFR 60-89)",
	CKDG3a:      "CKD G3a (eGFR 45-59)",
	CKDG3b:      "CKD G3b (eGFR 30-44)",
	CKDG4:       "CKD G4 (eGFR 15-29)",
	CKDG5:       "CKD G5 (eGFR <15)",
	CKDDialysis: "On dialysis",
}

var renalStageShortLabels = map[RenalStage]string{
	RenalNormal: "Normal",
	CKDG2:       "G2",
	CKDG3a:      "G3a",
	CKDG3b:      "G3b",
	CKDG4:       "G4",
	CKDG5:       "G5",
	CKDDialysis: "Dialysis",
}

var hepaticPatternLabels = map[HepaticPattern]string{
	PatternHepatocellular: "Hepatocellular",
	PatternCholestatic:    "Cholestatic",
	PatternMixed:          "Mixed",
}

var renalPatternLabels = map[RenalPattern]string{
	PatternTubularNecrosis: "Acute tubular necrosis (ATN)",
	PatternInterstitial:    "Acute interstitial nephritis (AIN)",
	PatternGlomerular:      "Glomerular injury",
	PatternHemodynamic:     "Hemodynamic (pre-renal)",
	PatternObstructive:     "Obstructive (crystal nephropathy)",
	PatternRenalMixed:      "Mixed",
}

var alertLevelLabels = map[AlertLevel]string{
	LevelInfo1:    "Reference",
	LevelInfo2:    "Reference",
	LevelInfo3:    "Info",
	LevelInfo4:    "Info",
	LevelCritical: "Reference",
	LevelHigh:     "Reference",
	LevelMedium:   "Info",
	LevelLow:      "Info",
}

var riskLevelLabels = map[RiskLevel]string{
	RiskVeryHigh: "Very high",
	RiskHigh:     "High",
	RiskModerate: "Moderate",
	RiskLow:      "Low",
	RiskVeryLow:  "Very low",
	RiskUnknown:  "No data",
}

func lookup[K comparable](m map[K]string, key K) string {
	if label, ok := m[key]; ok {
		return label
	}
	return fmt.Sprint(key)
}

// HepaticGradeLabel returns the display label of a hepatic grade.
func HepaticGradeLabel(g HepaticGrade) string { return lookup(hepaticGradeLabels, g) }

// RenalGradeLabel returns the display label of a renal grade.
func RenalGradeLabel(g RenalGrade) string { return lookup(renalGradeLabels, g) }

// GradeDescription explains a grade by its rank, shared by both axes.
func GradeDescription(rank int) string {
	return gradeDescriptions[rank]
}

// HepaticStageLabel returns the display label of a Child-Pugh stage.
func HepaticStageLabel(s HepaticStage) string { return lookup(hepaticStageLabels, s) }

// RenalStageLabel returns the display label of a CKD stage, with its eGFR range.
func RenalStageLabel(s RenalStage) string { return lookup(renalStageLabels, s) }

// RenalStageShortLabel returns the compact CKD stage label.
func RenalStageShortLabel(s RenalStage) string { return lookup(renalStageShortLabels, s) }

// HepaticPatternLabel returns the display label of a liver injury pattern.
func HepaticPatternLabel(p HepaticPattern) string { return lookup(hepaticPatternLabels, p) }

// RenalPatternLabel returns the display label of a kidney injury pattern.
func RenalPatternLabel(p RenalPattern) string { return lookup(renalPatternLabels, p) }

// AlertLevelLabel returns the display label of an alert level.
func AlertLevelLabel(l AlertLevel) string { return lookup(alertLevelLabels, l) }

// RiskLevelLabel returns the display label of a risk level.
func RiskLevelLabel(r RiskLevel) string { return lookup(riskLevelLabels, r) }

// ScoreLevelLabel places an aggregate score on the five-band scale.
func ScoreLevelLabel(score int) string {
	switch {
	case score >= 80:
		return "Level 5 (very high)"
	case score >= 60:
		return "Level 4 (high)"
	case score >= 40:
		return "Level 3 (moderate)"
	case score >= 20:
		return "Level 2 (low)"
	default:
		return "Level 1 (very low)"
	}
}
