package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/pharmref-mcp-server/internal/domain"
)

const reportRule = "======================================="

// ReportOptions carries the context printed in the report header.
type ReportOptions struct {
	GeneratedAt    time.Time
	AlcoholHistory string
}

// FormatTextReport renders an analysis as a plain-text report.
func FormatTextReport(result *domain.AnalysisResult, opts ReportOptions) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line(reportRule)
	line("        PharmRef reference report")
	line(reportRule)
	line("")
	line("Generated: %s", opts.GeneratedAt.Format("2006-01-02 15:04:05"))
	line("")
	line("[ Conditions ]")
	line("- Liver function: %s", domain.HepaticStageLabel(result.HepaticStage))
	line("- Kidney function: %s", domain.RenalStageLabel(result.RenalStage))
	if opts.AlcoholHistory != "" {
		line("- Alcohol history: %s", opts.AlcoholHistory)
	}
	line("")
	line("[ Hepatic reference score ]")
	line("- Score: %d/100 (%s)", result.Hepatic.Score, domain.ScoreLevelLabel(result.Hepatic.Score))
	line("- Drugs reviewed: %d", len(result.Drugs))
	for _, g := range domain.AllHepaticGrades() {
		line("  - Grade %s: %d", g, result.Hepatic.GradeCounts[string(g)])
	}
	line("")
	line("[ Renal reference score ]")
	line("- Score: %d/100 (%s)", result.Renal.Score, domain.ScoreLevelLabel(result.Renal.Score))
	for _, g := range domain.AllRenalGrades() {
		line("  - %s: %d", g, result.Renal.GradeCounts[string(g)])
	}

	if len(result.Alerts) > 0 {
		line("")
		line("[ Notices ]")
		for _, a := range result.Alerts {
			line("- %s [%s] %s", categoryTag(a.Category), domain.AlertLevelLabel(a.Level), a.Title)
			line("  %s", a.Message)
		}
	}

	line("")
	line("[ Per-drug information ]")
	for _, d := range result.Drugs {
		line("")
		line("> %s (%s)", d.NameLocal, d.NameEN)
		line("  [Hepatic] %s", domain.HepaticGradeLabel(d.Hepatic.Grade))
		line("    Pattern: %s", d.Hepatic.Pattern)
		if result.HepaticStage != domain.HepaticNormal && d.Hepatic.Dosing != nil {
			line("    Child-Pugh %s: %s", result.HepaticStage, d.Hepatic.Dosing.Dose)
			if d.Hepatic.Dosing.Recommendation != "" {
				line("    Note: %s", d.Hepatic.Dosing.Recommendation)
			}
			if d.Hepatic.Dosing.Caution != nil {
				line("    Note: %s", *d.Hepatic.Dosing.Caution)
			}
		}
		if d.Renal.Grade == "" {
			line("  [Renal] no data")
			continue
		}
		line("  [Renal] %s", domain.RenalGradeLabel(d.Renal.Grade))
		line("    Pattern: %s", d.Renal.Pattern)
		if result.RenalStage != domain.RenalNormal && d.Renal.Dosing != nil {
			line("    CKD %s: %s", result.RenalStage, d.Renal.Dosing.Dose)
		}
	}

	line("")
	line(reportRule)
	line("  For education and reference only.")
	line("  Consult a qualified professional.")
	b.WriteString(reportRule)
	return b.String()
}

func categoryTag(c domain.AlertCategory) string {
	switch c {
	case domain.CategoryHepato:
		return "[Hepatic]"
	case domain.CategoryRenal:
		return "[Renal]"
	default:
		return "[Combined]"
	}
}
