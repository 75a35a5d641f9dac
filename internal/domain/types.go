// Package domain contains the core entities of the organ-toxicity reference:
// drug records with their hepatic and renal toxicity gradings, patient
// condition stages for both axes, and declarative alert rules.
//
// Grades follow the LiverTox likelihood scale (A..E) for the liver and the
// analogous N1..N5 scale for the kidney. Hepatic stages follow Child-Pugh
// classes; renal stages follow KDIGO CKD G-categories plus dialysis.
package domain

import (
	"errors"
	"fmt"
)

// Axis selects one of the two independent toxicity dimensions.
type Axis string

const (
	AxisHepatic Axis = "hepatic"
	AxisRenal   Axis = "renal"
)

// IsValid reports whether the axis is known.
func (a Axis) IsValid() bool {
	return a == AxisHepatic || a == AxisRenal
}

// HepaticGrade is the likelihood that a drug causes liver injury.
// A is the most severe (well-known) and E the least (unlikely).
type HepaticGrade string

const (
	GradeA HepaticGrade = "A"
	GradeB HepaticGrade = "B"
	GradeC HepaticGrade = "C"
	GradeD HepaticGrade = "D"
	GradeE HepaticGrade = "E"
)

// AllHepaticGrades returns the hepatic grades from most to least severe.
func AllHepaticGrades() []HepaticGrade {
	return []HepaticGrade{GradeA, GradeB, GradeC, GradeD, GradeE}
}

// IsValid validates the hepatic grade.
func (g HepaticGrade) IsValid() bool {
	return g.Rank() >= 0
}

// Rank returns 0 for the most severe grade and 4 for the least, -1 if unknown.
func (g HepaticGrade) Rank() int {
	switch g {
	case GradeA:
		return 0
	case GradeB:
		return 1
	case GradeC:
		return 2
	case GradeD:
		return 3
	case GradeE:
		return 4
	default:
		return -1
	}
}

// String returns the string representation
func (g HepaticGrade) String() string {
	return string(g)
}

// RenalGrade is the likelihood that a drug causes kidney injury.
// N1 is the most severe (well-known) and N5 the least (unlikely).
type RenalGrade string

const (
	GradeN1 RenalGrade = "N1"
	GradeN2 RenalGrade = "N2"
	GradeN3 RenalGrade = "N3"
	GradeN4 RenalGrade = "N4"
	GradeN5 RenalGrade = "N5"
)

// AllRenalGrades returns the renal grades from most to least severe.
func AllRenalGrades() []RenalGrade {
	return []RenalGrade{GradeN1, GradeN2, GradeN3, GradeN4, GradeN5}
}

// IsValid validates the renal grade.
func (g RenalGrade) IsValid() bool {
	return g.Rank() >= 0
}

// Rank returns 0 for the most severe grade and 4 for the least, -1 if unknown.
func (g RenalGrade) Rank() int {
	switch g {
	case GradeN1:
		return 0
	case GradeN2:
		return 1
	case GradeN3:
		return 2
	case GradeN4:
		return 3
	case GradeN5:
		return 4
	default:
		return -1
	}
}

// String returns the string representation
func (g RenalGrade) String() string {
	return string(g)
}

// HepaticPattern is the biochemical pattern of drug-induced liver injury.
type HepaticPattern string

const (
	PatternHepatocellular HepaticPattern = "hepatocellular"
	PatternCholestatic    HepaticPattern = "cholestatic"
	PatternMixed          HepaticPattern = "mixed"
)

// IsValid validates the hepatic injury pattern.
func (p HepaticPattern) IsValid() bool {
	switch p {
	case PatternHepatocellular, PatternCholestatic, PatternMixed:
		return true
	default:
		return false
	}
}

// RenalPattern is the mechanism class of drug-induced kidney injury.
type RenalPattern string

const (
	PatternTubularNecrosis RenalPattern = "acute_tubular_necrosis"
	PatternInterstitial    RenalPattern = "acute_interstitial"
	PatternGlomerular      RenalPattern = "glomerular"
	PatternHemodynamic     RenalPattern = "hemodynamic"
	PatternObstructive     RenalPattern = "obstructive"
	PatternRenalMixed      RenalPattern = "mixed"
)

// IsValid validates the renal injury pattern.
func (p RenalPattern) IsValid() bool {
	switch p {
	case PatternTubularNecrosis, PatternInterstitial, PatternGlomerular,
		PatternHemodynamic, PatternObstructive, PatternRenalMixed:
		return true
	default:
		return false
	}
}

// HepaticStage is the patient's liver function expressed as a Child-Pugh class.
type HepaticStage string

const (
	HepaticNormal HepaticStage = "normal"
	ChildPughA    HepaticStage = "A"
	ChildPughB    HepaticStage = "B"
	ChildPughC    HepaticStage = "C"
)

// AllHepaticStages returns the hepatic stages in increasing severity.
func AllHepaticStages() []HepaticStage {
	return []HepaticStage{HepaticNormal, ChildPughA, ChildPughB, ChildPughC}
}

// IsValid validates the hepatic stage.
func (s HepaticStage) IsValid() bool {
	switch s {
	case HepaticNormal, ChildPughA, ChildPughB, ChildPughC:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s HepaticStage) String() string {
	return string(s)
}

// RenalStage is the patient's kidney function expressed as a CKD category.
type RenalStage string

const (
	RenalNormal RenalStage = "normal"
	CKDG2       RenalStage = "G2"
	CKDG3a      RenalStage = "G3a"
	CKDG3b      RenalStage = "G3b"
	CKDG4       RenalStage = "G4"
	CKDG5       RenalStage = "G5"
	CKDDialysis RenalStage = "dialysis"
)

// AllRenalStages returns the renal stages in increasing severity.
func AllRenalStages() []RenalStage {
	return []RenalStage{RenalNormal, CKDG2, CKDG3a, CKDG3b, CKDG4, CKDG5, CKDDialysis}
}

// IsValid validates the renal stage.
func (s RenalStage) IsValid() bool {
	switch s {
	case RenalNormal, CKDG2, CKDG3a, CKDG3b, CKDG4, CKDG5, CKDDialysis:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s RenalStage) String() string {
	return string(s)
}

// ParseHepaticStage converts user input into a HepaticStage.
// An empty string selects the normal stage.
func ParseHepaticStage(value string) (HepaticStage, error) {
	if value == "" {
		return HepaticNormal, nil
	}
	stage := HepaticStage(value)
	if !stage.IsValid() {
		return "", NewValidationError("hepatic_stage", "must be one of normal, A, B, C", value)
	}
	return stage, nil
}

// ParseRenalStage converts user input into a RenalStage.
// An empty string selects the normal stage.
func ParseRenalStage(value string) (RenalStage, error) {
	if value == "" {
		return RenalNormal, nil
	}
	stage := RenalStage(value)
	if !stage.IsValid() {
		return "", NewValidationError("renal_stage", "must be one of normal, G2, G3a, G3b, G4, G5, dialysis", value)
	}
	return stage, nil
}

// Dialyzability is the tri-state answer to whether dialysis removes a drug.
type Dialyzability string

const (
	DialyzableYes     Dialyzability = "yes"
	DialyzableNo      Dialyzability = "no"
	DialyzableUnknown Dialyzability = "unknown"
)

// HepaticToxicity is the liver toxicity record every drug carries.
type HepaticToxicity struct {
	Grade         HepaticGrade   `json:"grade"`
	Pattern       HepaticPattern `json:"pattern"`
	Mechanism     string         `json:"mechanism"`
	DoseDependent bool           `json:"dose_dependent"`
}

// RenalToxicity is the optional kidney toxicity record.
type RenalToxicity struct {
	Grade         RenalGrade   `json:"grade"`
	Pattern       RenalPattern `json:"pattern"`
	Mechanism     string       `json:"mechanism"`
	DoseDependent bool         `json:"dose_dependent"`
	Dialyzable    *bool        `json:"dialyzable,omitempty"`
}

// Dialyzability resolves the optional dialyzable flag.
func (r *RenalToxicity) Dialyzability() Dialyzability {
	if r == nil || r.Dialyzable == nil {
		return DialyzableUnknown
	}
	if *r.Dialyzable {
		return DialyzableYes
	}
	return DialyzableNo
}

// CirrhosisDosing holds free-text guidance for the three Child-Pugh classes.
// Normal liver function has no stored entry.
type CirrhosisDosing struct {
	ChildA string `json:"child_A"`
	ChildB string `json:"child_B"`
	ChildC string `json:"child_C"`
}

// ForStage returns the stored text for a non-normal stage.
func (d CirrhosisDosing) ForStage(stage HepaticStage) string {
	switch stage {
	case ChildPughA:
		return d.ChildA
	case ChildPughB:
		return d.ChildB
	case ChildPughC:
		return d.ChildC
	default:
		return ""
	}
}

// RenalDosing holds free-text guidance for every renal stage, normal included.
type RenalDosing struct {
	GFR90Plus  string `json:"gfr_90_plus"`
	GFR60To89  string `json:"gfr_60_89"`
	GFR45To59  string `json:"gfr_45_59"`
	GFR30To44  string `json:"gfr_30_44"`
	GFR15To29  string `json:"gfr_15_29"`
	GFRBelow15 string `json:"gfr_below_15"`
	Dialysis   string `json:"dialysis"`
}

// ForStage returns the table column mapped to the stage.
func (d RenalDosing) ForStage(stage RenalStage) string {
	switch stage {
	case RenalNormal:
		return d.GFR90Plus
	case CKDG2:
		return d.GFR60To89
	case CKDG3a:
		return d.GFR45To59
	case CKDG3b:
		return d.GFR30To44
	case CKDG4:
		return d.GFR15To29
	case CKDG5:
		return d.GFRBelow15
	case CKDDialysis:
		return d.Dialysis
	default:
		return ""
	}
}

// Drug is a reference record. Nephrotoxicity and RenalDosing are nil when
// no renal data exists for the drug.
type Drug struct {
	ID              string          `json:"id"`
	NameLocal       string          `json:"name_kr"`
	NameEN          string          `json:"name_en"`
	BrandNamesLocal []string        `json:"brand_names_kr"`
	BrandNamesEN    []string        `json:"brand_names_en,omitempty"`
	DrugClass       string          `json:"drug_class"`
	DrugClassEN     string          `json:"drug_class_en,omitempty"`
	Hepatotoxicity  HepaticToxicity `json:"hepatotoxicity"`
	CirrhosisDosing CirrhosisDosing `json:"cirrhosis_dosing"`
	ClinicalPearls  []string        `json:"clinical_pearls"`
	Nephrotoxicity  *RenalToxicity  `json:"nephrotoxicity,omitempty"`
	RenalDosing     *RenalDosing    `json:"renal_dosing,omitempty"`
	RenalPearls     []string        `json:"renal_clinical_pearls,omitempty"`
}

// HasRenalData reports whether the drug carries a renal toxicity record.
func (d *Drug) HasRenalData() bool {
	return d.Nephrotoxicity != nil
}

// Validation errors for reference data integrity
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidHepaticGrade = errors.New("invalid hepatic grade")
	ErrInvalidRenalGrade   = errors.New("invalid renal grade")
	ErrInvalidAlertLevel   = errors.New("invalid alert level")
)

// ValidateDrug checks the fields the engine relies on before a drug is persisted.
func ValidateDrug(d *Drug) error {
	if d == nil {
		return NewValidationError("drug", "is required", nil)
	}
	if d.ID == "" {
		return NewValidationError("id", "is required", d.ID)
	}
	if d.NameEN == "" && d.NameLocal == "" {
		return NewValidationError("name_en", "a reference or local name is required", d.NameEN)
	}
	if !d.Hepatotoxicity.Grade.IsValid() {
		return fmt.Errorf("drug %s: %w: %q", d.ID, ErrInvalidHepaticGrade, d.Hepatotoxicity.Grade)
	}
	if d.Hepatotoxicity.Pattern != "" && !d.Hepatotoxicity.Pattern.IsValid() {
		return NewValidationError("hepatotoxicity.pattern", "unknown hepatic pattern", d.Hepatotoxicity.Pattern)
	}
	if d.Nephrotoxicity != nil {
		if !d.Nephrotoxicity.Grade.IsValid() {
			return fmt.Errorf("drug %s: %w: %q", d.ID, ErrInvalidRenalGrade, d.Nephrotoxicity.Grade)
		}
		if d.Nephrotoxicity.Pattern != "" && !d.Nephrotoxicity.Pattern.IsValid() {
			return NewValidationError("nephrotoxicity.pattern", "unknown renal pattern", d.Nephrotoxicity.Pattern)
		}
	}
	return nil
}
