package service

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/internal/domain"
)

// AlertEngine evaluates declarative alert rules against a drug selection
// and the patient's hepatic and renal stages.
type AlertEngine struct {
	logger *logrus.Logger
}

// NewAlertEngine creates a new alert engine
func NewAlertEngine(logger *logrus.Logger) *AlertEngine {
	return &AlertEngine{logger: logger}
}

// Evaluate returns the triggered rules ordered by level, most urgent first.
// Rules of equal level keep their input order.
func (e *AlertEngine) Evaluate(drugs []domain.Drug, hepaticStage domain.HepaticStage, renalStage domain.RenalStage, rules []domain.AlertRule) []domain.TriggeredAlert {
	triggered := make([]domain.TriggeredAlert, 0)
	if len(drugs) == 0 {
		return triggered
	}

	for i := range rules {
		provenance, ok := EvaluateRule(&rules[i], drugs, hepaticStage, renalStage)
		if !ok {
			continue
		}
		triggered = append(triggered, domain.TriggeredAlert{
			AlertRule:   rules[i],
			TriggeredBy: provenance,
		})
	}

	sort.SliceStable(triggered, func(a, b int) bool {
		return triggered[a].Level.Rank() < triggered[b].Level.Rank()
	})

	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"drug_count":      len(drugs),
			"rule_count":      len(rules),
			"triggered_count": len(triggered),
			"hepatic_stage":   hepaticStage,
			"renal_stage":     renalStage,
		}).Debug("Completed alert rule evaluation")
	}

	return triggered
}

// EvaluateRule checks one rule. It returns the deduplicated ids of the drugs
// that satisfied the rule and whether the rule triggered. Predicates are
// checked in a fixed order and the first failing one stops evaluation.
func EvaluateRule(rule *domain.AlertRule, drugs []domain.Drug, hepaticStage domain.HepaticStage, renalStage domain.RenalStage) ([]string, bool) {
	var provenance []string

	if len(rule.RequiredDrugs) > 0 {
		present := presentDrugIDs(rule.RequiredDrugs, drugs)
		if rule.RequiresAllDrugs {
			if len(present) < len(rule.RequiredDrugs) {
				return nil, false
			}
		} else if len(present) == 0 {
			return nil, false
		}
		provenance = append(provenance, present...)
	}

	if len(rule.RequiredChildPugh) > 0 && !containsStage(rule.RequiredChildPugh, hepaticStage) {
		return nil, false
	}

	// A zero minimum count means the predicate is absent.
	if rule.MinGradeADrugs != 0 {
		ids := hepaticGradeIDs(drugs, domain.GradeA)
		if len(ids) < rule.MinGradeADrugs {
			return nil, false
		}
		provenance = append(provenance, ids...)
	}

	if rule.MinGradeN1Drugs != 0 {
		ids := renalGradeIDs(drugs, domain.GradeN1)
		if len(ids) < rule.MinGradeN1Drugs {
			return nil, false
		}
		provenance = append(provenance, ids...)
	}

	if len(rule.RequiredCKDStage) > 0 && !containsStage(rule.RequiredCKDStage, renalStage) {
		return nil, false
	}

	if len(rule.RequiredDrugClasses) > 0 {
		var matched []string
		for i := range drugs {
			if MatchesAnyDrugClass(&drugs[i], rule.RequiredDrugClasses) {
				matched = append(matched, drugs[i].ID)
			}
		}
		if len(matched) == 0 {
			return nil, false
		}
		provenance = append(provenance, matched...)
	}

	if len(rule.RequiredDrugs) > 0 && len(provenance) == 0 {
		return nil, false
	}

	return dedupe(provenance), true
}

// MatchesAnyDrugClass reports whether a drug matches one of the class
// substrings. The class label and reference name are compared
// case-insensitively; the local name requires an exact substring.
func MatchesAnyDrugClass(drug *domain.Drug, classes []string) bool {
	drugClass := strings.ToLower(drug.DrugClass)
	nameEN := strings.ToLower(drug.NameEN)
	for _, c := range classes {
		lower := strings.ToLower(c)
		if strings.Contains(drugClass, lower) ||
			strings.Contains(nameEN, lower) ||
			strings.Contains(drug.NameLocal, c) {
			return true
		}
	}
	return false
}

// FilterAlertsByCategory keeps the alerts whose category is one of the given
// categories. Alerts without a category count as hepato.
func FilterAlertsByCategory(alerts []domain.TriggeredAlert, categories ...domain.AlertCategory) []domain.TriggeredAlert {
	out := make([]domain.TriggeredAlert, 0, len(alerts))
	for _, a := range alerts {
		category := a.Category
		if category == "" {
			category = domain.CategoryHepato
		}
		for _, c := range categories {
			if category == c {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// presentDrugIDs returns the required ids found in the selection, in rule order.
func presentDrugIDs(required []string, drugs []domain.Drug) []string {
	var present []string
	for _, id := range required {
		for i := range drugs {
			if drugs[i].ID == id {
				present = append(present, id)
				break
			}
		}
	}
	return present
}

func hepaticGradeIDs(drugs []domain.Drug, grade domain.HepaticGrade) []string {
	var ids []string
	for i := range drugs {
		if drugs[i].Hepatotoxicity.Grade == grade {
			ids = append(ids, drugs[i].ID)
		}
	}
	return ids
}

func renalGradeIDs(drugs []domain.Drug, grade domain.RenalGrade) []string {
	var ids []string
	for i := range drugs {
		if drugs[i].Nephrotoxicity != nil && drugs[i].Nephrotoxicity.Grade == grade {
			ids = append(ids, drugs[i].ID)
		}
	}
	return ids
}

func containsStage[S comparable](stages []S, stage S) bool {
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
