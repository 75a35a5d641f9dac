package domain

// DosingGuidance is the dosing text resolved for one drug at one stage.
// Caution is nil when no caution applies.
type DosingGuidance struct {
	Dose           string  `json:"dose"`
	Recommendation string  `json:"recommendation"`
	Caution        *string `json:"caution,omitempty"`
}

// RiskLevel buckets an aggregate or per-drug risk.
type RiskLevel string

const (
	RiskVeryHigh RiskLevel = "very_high"
	RiskHigh     RiskLevel = "high"
	RiskModerate RiskLevel = "moderate"
	RiskLow      RiskLevel = "low"
	RiskVeryLow  RiskLevel = "very_low"
	RiskUnknown  RiskLevel = "unknown"
)

// GradeCounts tallies selected drugs per grade on one axis.
// Keys are the grade strings (A..E or N1..N5); every grade is present.
type GradeCounts map[string]int

// AxisSummary is the aggregate result for one axis.
type AxisSummary struct {
	Score         int         `json:"score"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	GradeCounts   GradeCounts `json:"grade_counts"`
	RelevantCount int         `json:"relevant_count"`
}

// HepaticDrugAnalysis is the per-drug hepatic view.
type HepaticDrugAnalysis struct {
	Grade     HepaticGrade    `json:"grade"`
	Pattern   HepaticPattern  `json:"pattern"`
	RiskLevel RiskLevel       `json:"risk_level"`
	Dosing    *DosingGuidance `json:"dosing"`
	Warnings  []string        `json:"warnings"`
}

// RenalDrugAnalysis is the per-drug renal view. Grade is empty and Dosing
// nil when the drug has no renal data.
type RenalDrugAnalysis struct {
	Grade         RenalGrade      `json:"grade,omitempty"`
	Pattern       RenalPattern    `json:"pattern,omitempty"`
	RiskLevel     RiskLevel       `json:"risk_level"`
	Dialyzability Dialyzability   `json:"dialyzability"`
	Dosing        *DosingGuidance `json:"dosing"`
	Warnings      []string        `json:"warnings"`
}

// DrugAnalysis combines both axes for one selected drug.
type DrugAnalysis struct {
	DrugID    string              `json:"drug_id"`
	NameEN    string              `json:"name_en"`
	NameLocal string              `json:"name_kr"`
	Hepatic   HepaticDrugAnalysis `json:"hepatic"`
	Renal     RenalDrugAnalysis   `json:"renal"`
}

// AnalysisResult is everything presentation needs for one selection.
type AnalysisResult struct {
	HepaticStage HepaticStage     `json:"hepatic_stage"`
	RenalStage   RenalStage       `json:"renal_stage"`
	Hepatic      AxisSummary      `json:"hepatic"`
	Renal        AxisSummary      `json:"renal"`
	Drugs        []DrugAnalysis   `json:"drugs"`
	Alerts       []TriggeredAlert `json:"alerts"`
}
