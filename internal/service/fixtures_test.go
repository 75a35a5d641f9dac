package service

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func boolPtr(b bool) *bool { return &b }

func hepaticDrug(id string, grade domain.HepaticGrade) domain.Drug {
	return domain.Drug{
		ID:        id,
		NameEN:    id,
		NameLocal: id + "_kr",
		DrugClass: "test class",
		Hepatotoxicity: domain.HepaticToxicity{
			Grade:   grade,
			Pattern: domain.PatternHepatocellular,
		},
		CirrhosisDosing: domain.CirrhosisDosing{
			ChildA: "no adjustment",
			ChildB: "reduce dose by 50%",
			ChildC: "contraindicated",
		},
	}
}

func renalDrug(id string, hGrade domain.HepaticGrade, rGrade domain.RenalGrade, pattern domain.RenalPattern) domain.Drug {
	d := hepaticDrug(id, hGrade)
	d.Nephrotoxicity = &domain.RenalToxicity{
		Grade:   rGrade,
		Pattern: pattern,
	}
	d.RenalDosing = &domain.RenalDosing{
		GFR90Plus:  "500 mg q12h",
		GFR60To89:  "500 mg q12h",
		GFR45To59:  "250 mg q12h",
		GFR30To44:  "250 mg q24h",
		GFR15To29:  "avoid - use alternative",
		GFRBelow15: "",
		Dialysis:   "contraindicated",
	}
	return d
}
