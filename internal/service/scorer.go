package service

import (
	"math"

	"github.com/pharmref-mcp-server/internal/domain"
)

// Base scores per grade rank, shared by both axes.
var gradeBaseScore = [5]float64{100, 75, 50, 25, 10}

var gradeRiskLevel = [5]domain.RiskLevel{
	domain.RiskVeryHigh,
	domain.RiskHigh,
	domain.RiskModerate,
	domain.RiskLow,
	domain.RiskVeryLow,
}

var hepaticMultiplier = map[domain.HepaticStage]float64{
	domain.HepaticNormal: 0.5,
	domain.ChildPughA:    1.0,
	domain.ChildPughB:    1.5,
	domain.ChildPughC:    2.0,
}

var renalMultiplier = map[domain.RenalStage]float64{
	domain.RenalNormal: 0.5,
	domain.CKDG2:       0.8,
	domain.CKDG3a:      1.0,
	domain.CKDG3b:      1.3,
	domain.CKDG4:       1.7,
	domain.CKDG5:       2.0,
	domain.CKDDialysis: 2.5,
}

const (
	severestGradePenalty = 20
	secondGradePenalty   = 10
	maxScore             = 100
)

// ScoreHepatic returns the aggregate hepatic risk score in [0,100].
func ScoreHepatic(drugs []domain.Drug, stage domain.HepaticStage) int {
	if len(drugs) == 0 {
		return 0
	}
	multiplier := hepaticMultiplier[stage]

	total := 0.0
	for i := range drugs {
		total += baseScore(drugs[i].Hepatotoxicity.Grade.Rank()) * multiplier
	}
	avg := total / float64(len(drugs))

	counts := CountHepaticGrades(drugs)
	return finalizeScore(avg, counts[string(domain.GradeA)], counts[string(domain.GradeB)])
}

// ScoreRenal returns the aggregate renal risk score in [0,100]. Drugs without
// a renal record are left out of the average.
func ScoreRenal(drugs []domain.Drug, stage domain.RenalStage) int {
	multiplier := renalMultiplier[stage]

	total := 0.0
	scored := 0
	for i := range drugs {
		if drugs[i].Nephrotoxicity == nil {
			continue
		}
		total += baseScore(drugs[i].Nephrotoxicity.Grade.Rank()) * multiplier
		scored++
	}
	if scored == 0 {
		return 0
	}
	avg := total / float64(scored)

	// Penalty counts span the whole selection.
	counts := CountRenalGrades(drugs)
	return finalizeScore(avg, counts[string(domain.GradeN1)], counts[string(domain.GradeN2)])
}

func baseScore(rank int) float64 {
	if rank < 0 || rank >= len(gradeBaseScore) {
		return 0
	}
	return gradeBaseScore[rank]
}

func finalizeScore(avg float64, severest, second int) int {
	penalty := 0.0
	if severest > 1 {
		penalty = severestGradePenalty
	} else if second > 1 {
		penalty = secondGradePenalty
	}
	// Round half up, then clamp.
	score := int(math.Floor(avg + penalty + 0.5))
	if score > maxScore {
		return maxScore
	}
	return score
}

// CountHepaticGrades tallies the selection per hepatic grade.
func CountHepaticGrades(drugs []domain.Drug) domain.GradeCounts {
	counts := make(domain.GradeCounts, 5)
	for _, g := range domain.AllHepaticGrades() {
		counts[string(g)] = 0
	}
	for i := range drugs {
		g := drugs[i].Hepatotoxicity.Grade
		if g.IsValid() {
			counts[string(g)]++
		}
	}
	return counts
}

// CountRenalGrades tallies the selection per renal grade. Drugs without a
// renal record fall in no bucket.
func CountRenalGrades(drugs []domain.Drug) domain.GradeCounts {
	counts := make(domain.GradeCounts, 5)
	for _, g := range domain.AllRenalGrades() {
		counts[string(g)] = 0
	}
	for i := range drugs {
		if drugs[i].Nephrotoxicity == nil {
			continue
		}
		g := drugs[i].Nephrotoxicity.Grade
		if g.IsValid() {
			counts[string(g)]++
		}
	}
	return counts
}

// HepaticRiskLevel maps a drug's hepatic grade to its risk level.
func HepaticRiskLevel(drug *domain.Drug) domain.RiskLevel {
	return riskLevelForRank(drug.Hepatotoxicity.Grade.Rank())
}

// RenalRiskLevel maps a drug's renal grade to its risk level, or unknown
// when the drug has no renal record.
func RenalRiskLevel(drug *domain.Drug) domain.RiskLevel {
	if drug.Nephrotoxicity == nil {
		return domain.RiskUnknown
	}
	return riskLevelForRank(drug.Nephrotoxicity.Grade.Rank())
}

func riskLevelForRank(rank int) domain.RiskLevel {
	if rank < 0 || rank >= len(gradeRiskLevel) {
		return domain.RiskUnknown
	}
	return gradeRiskLevel[rank]
}

// RiskLevelForScore places an aggregate score in a risk band.
func RiskLevelForScore(score int) domain.RiskLevel {
	switch {
	case score >= 80:
		return domain.RiskVeryHigh
	case score >= 60:
		return domain.RiskHigh
	case score >= 40:
		return domain.RiskModerate
	case score >= 20:
		return domain.RiskLow
	default:
		return domain.RiskVeryLow
	}
}
