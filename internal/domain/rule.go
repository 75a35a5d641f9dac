package domain

// AlertLevel is the informational severity of an alert rule.
// info1 is the most urgent and info4 the least.
type AlertLevel string

const (
	LevelInfo1 AlertLevel = "info1"
	LevelInfo2 AlertLevel = "info2"
	LevelInfo3 AlertLevel = "info3"
	LevelInfo4 AlertLevel = "info4"

	// Legacy severity names still found in older exports.
	LevelCritical AlertLevel = "critical"
	LevelHigh     AlertLevel = "high"
	LevelMedium   AlertLevel = "medium"
	LevelLow      AlertLevel = "low"
)

// levelRank is the fixed ordering table used to sort triggered alerts.
var levelRank = map[AlertLevel]int{
	LevelInfo1:    0,
	LevelInfo2:    1,
	LevelInfo3:    2,
	LevelInfo4:    3,
	LevelCritical: 0,
	LevelHigh:     1,
	LevelMedium:   2,
	LevelLow:      3,
}

// unknownLevelRank places unrecognised levels after every known level.
const unknownLevelRank = 4

// Rank returns 0 for the most urgent level and 3 for the least.
func (l AlertLevel) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return unknownLevelRank
}

// IsValid validates the alert level.
func (l AlertLevel) IsValid() bool {
	_, ok := levelRank[l]
	return ok
}

// AlertCategory tags which axis view an alert belongs to.
type AlertCategory string

const (
	CategoryHepato   AlertCategory = "hepato"
	CategoryRenal    AlertCategory = "renal"
	CategoryCombined AlertCategory = "combined"
)

// IsValid validates the alert category.
func (c AlertCategory) IsValid() bool {
	switch c {
	case CategoryHepato, CategoryRenal, CategoryCombined:
		return true
	default:
		return false
	}
}

// AlertRule is a declarative predicate set. Every predicate is optional;
// a rule with none of them set always triggers for a non-empty selection.
type AlertRule struct {
	ID                  string         `json:"id"`
	Condition           string         `json:"condition,omitempty"`
	Level               AlertLevel     `json:"alert_level"`
	Category            AlertCategory  `json:"alert_category,omitempty"`
	Title               string         `json:"title"`
	Message             string         `json:"message"`
	Icon                string         `json:"icon"`
	RequiredDrugs       []string       `json:"required_drugs,omitempty"`
	RequiredDrugClasses []string       `json:"required_drug_classes,omitempty"`
	RequiredChildPugh   []HepaticStage `json:"required_child_pugh,omitempty"`
	RequiredCKDStage    []RenalStage   `json:"required_ckd_stage,omitempty"`
	MinGradeADrugs      int            `json:"min_grade_a_drugs,omitempty"`
	MinGradeN1Drugs     int            `json:"min_grade_n1_drugs,omitempty"`
	RequiresAllDrugs    bool           `json:"requires_all_drugs,omitempty"`
}

// TriggeredAlert is a rule that fired together with the drug ids that caused it.
type TriggeredAlert struct {
	AlertRule
	TriggeredBy []string `json:"triggered_by"`
}

// legacyCombinationRules lists the interaction rules that were evaluated with
// all-of semantics before the requires_all_drugs field existed.
var legacyCombinationRules = map[string]struct{}{
	"meropenem_valproate":      {},
	"cipro_theophylline":       {},
	"cipro_tizanidine":         {},
	"allopurinol_azathioprine": {},
}

// IsLegacyCombinationRule reports whether id was a hard-coded combination rule.
func IsLegacyCombinationRule(id string) bool {
	_, ok := legacyCombinationRules[id]
	return ok
}

// MigrateRule fills fields added after the first rule schema version:
// the all-of flag for legacy combination rules and the default category.
func MigrateRule(rule AlertRule) AlertRule {
	if IsLegacyCombinationRule(rule.ID) {
		rule.RequiresAllDrugs = true
	}
	if rule.Category == "" {
		rule.Category = CategoryHepato
	}
	return rule
}

// MigrateRules applies MigrateRule to every rule and returns a new slice.
func MigrateRules(rules []AlertRule) []AlertRule {
	out := make([]AlertRule, len(rules))
	for i, r := range rules {
		out[i] = MigrateRule(r)
	}
	return out
}

// ValidateRule checks a rule before it is persisted. Predicate consistency is
// not checked; empty and zero-valued predicates are legal.
func ValidateRule(r *AlertRule) error {
	if r == nil {
		return NewValidationError("rule", "is required", nil)
	}
	if r.ID == "" {
		return NewValidationError("id", "is required", r.ID)
	}
	if !r.Level.IsValid() {
		return NewValidationError("alert_level", ErrInvalidAlertLevel.Error(), r.Level)
	}
	if r.Category != "" && !r.Category.IsValid() {
		return NewValidationError("alert_category", "must be one of hepato, renal, combined", r.Category)
	}
	for _, s := range r.RequiredChildPugh {
		if !s.IsValid() {
			return NewValidationError("required_child_pugh", "unknown hepatic stage", s)
		}
	}
	for _, s := range r.RequiredCKDStage {
		if !s.IsValid() {
			return NewValidationError("required_ckd_stage", "unknown renal stage", s)
		}
	}
	return nil
}
