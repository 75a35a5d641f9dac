package service

import (
	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/internal/domain"
)

// Analyzer composes dosing, scoring and alert evaluation into one result.
// It holds no state between calls and never caches results.
type Analyzer struct {
	logger *logrus.Logger
	alerts *AlertEngine
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		logger: logger,
		alerts: NewAlertEngine(logger),
	}
}

// Analyze computes per-drug dosing and warnings for both axes, aggregate
// scores, grade counts and the ordered triggered alerts.
func (a *Analyzer) Analyze(drugs []domain.Drug, hepaticStage domain.HepaticStage, renalStage domain.RenalStage, rules []domain.AlertRule) *domain.AnalysisResult {
	result := &domain.AnalysisResult{
		HepaticStage: hepaticStage,
		RenalStage:   renalStage,
		Drugs:        make([]domain.DrugAnalysis, 0, len(drugs)),
	}

	for i := range drugs {
		result.Drugs = append(result.Drugs, AnalyzeDrug(&drugs[i], hepaticStage, renalStage))
	}

	hepaticScore := ScoreHepatic(drugs, hepaticStage)
	hepaticCounts := CountHepaticGrades(drugs)
	result.Hepatic = domain.AxisSummary{
		Score:         hepaticScore,
		RiskLevel:     RiskLevelForScore(hepaticScore),
		GradeCounts:   hepaticCounts,
		RelevantCount: hepaticCounts[string(domain.GradeA)] + hepaticCounts[string(domain.GradeB)],
	}

	renalScore := ScoreRenal(drugs, renalStage)
	renalCounts := CountRenalGrades(drugs)
	result.Renal = domain.AxisSummary{
		Score:         renalScore,
		RiskLevel:     RiskLevelForScore(renalScore),
		GradeCounts:   renalCounts,
		RelevantCount: renalCounts[string(domain.GradeN1)] + renalCounts[string(domain.GradeN2)],
	}

	result.Alerts = a.alerts.Evaluate(drugs, hepaticStage, renalStage, rules)

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"drug_count":    len(drugs),
			"hepatic_score": hepaticScore,
			"renal_score":   renalScore,
			"alert_count":   len(result.Alerts),
		}).Debug("Analysis completed")
	}

	return result
}

// AnalyzeDrug builds the per-drug view for both axes.
func AnalyzeDrug(drug *domain.Drug, hepaticStage domain.HepaticStage, renalStage domain.RenalStage) domain.DrugAnalysis {
	da := domain.DrugAnalysis{
		DrugID:    drug.ID,
		NameEN:    drug.NameEN,
		NameLocal: drug.NameLocal,
		Hepatic: domain.HepaticDrugAnalysis{
			Grade:     drug.Hepatotoxicity.Grade,
			Pattern:   drug.Hepatotoxicity.Pattern,
			RiskLevel: HepaticRiskLevel(drug),
			Dosing:    ResolveHepaticDosing(drug, hepaticStage),
			Warnings:  HepaticWarnings(drug, hepaticStage),
		},
		Renal: domain.RenalDrugAnalysis{
			RiskLevel:     RenalRiskLevel(drug),
			Dialyzability: drug.Nephrotoxicity.Dialyzability(),
			Dosing:        ResolveRenalDosing(drug, renalStage),
			Warnings:      RenalWarnings(drug, renalStage),
		},
	}
	if drug.Nephrotoxicity != nil {
		da.Renal.Grade = drug.Nephrotoxicity.Grade
		da.Renal.Pattern = drug.Nephrotoxicity.Pattern
	}
	return da
}
