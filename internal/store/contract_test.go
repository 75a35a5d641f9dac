package store

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/pharmref-mcp-server/internal/domain"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testDrug(id string, grade domain.HepaticGrade) domain.Drug {
	return domain.Drug{
		ID:              id,
		NameEN:          id,
		NameLocal:       id,
		BrandNamesLocal: []string{},
		DrugClass:       "test class",
		Hepatotoxicity:  domain.HepaticToxicity{Grade: grade, Pattern: domain.PatternMixed},
		CirrhosisDosing: domain.CirrhosisDosing{ChildA: "no adjustment", ChildB: "reduce", ChildC: "avoid"},
		ClinicalPearls:  []string{},
	}
}

func testRule(id string) domain.AlertRule {
	return domain.AlertRule{
		ID:            id,
		Level:         domain.LevelInfo2,
		Category:      domain.CategoryRenal,
		Title:         id,
		RequiredDrugs: []string{"a"},
	}
}

// storeContractSuite runs the same behavioral checks against every Store
// implementation.
type storeContractSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
}

func (s *storeContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *storeContractSuite) TearDownTest() {
	s.store.Close()
}

func (s *storeContractSuite) TestDrugCRUD() {
	_, err := s.store.GetDrug(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)

	drug := testDrug("valproic_acid", domain.GradeA)
	s.Require().NoError(s.store.SaveDrug(s.ctx, &drug))

	got, err := s.store.GetDrug(s.ctx, "valproic_acid")
	s.Require().NoError(err)
	s.Equal(drug, *got)

	drug.Hepatotoxicity.Grade = domain.GradeB
	s.Require().NoError(s.store.SaveDrug(s.ctx, &drug))
	got, err = s.store.GetDrug(s.ctx, "valproic_acid")
	s.Require().NoError(err)
	s.Equal(domain.GradeB, got.Hepatotoxicity.Grade)

	n, err := s.store.CountDrugs(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	s.Require().NoError(s.store.DeleteDrug(s.ctx, "valproic_acid"))
	s.ErrorIs(s.store.DeleteDrug(s.ctx, "valproic_acid"), domain.ErrNotFound)
}

func (s *storeContractSuite) TestSaveDrugValidates() {
	bad := testDrug("x", "Z")
	s.ErrorIs(s.store.SaveDrug(s.ctx, &bad), domain.ErrInvalidHepaticGrade)
}

func (s *storeContractSuite) TestListDrugsOrderedByID() {
	drugs := []domain.Drug{
		testDrug("vancomycin", domain.GradeE),
		testDrug("amikacin", domain.GradeE),
		testDrug("calcium_gluconate", domain.GradeE),
	}
	s.Require().NoError(s.store.ReplaceDrugs(s.ctx, drugs))

	got, err := s.store.ListDrugs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"amikacin", "calcium_gluconate", "vancomycin"}, drugIDs(got))

	// Replacing clears what was there before.
	s.Require().NoError(s.store.ReplaceDrugs(s.ctx, drugs[:1]))
	n, err := s.store.CountDrugs(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *storeContractSuite) TestRulesKeepDatasetOrder() {
	rules := []domain.AlertRule{testRule("zeta"), testRule("alpha"), testRule("cipro_tizanidine")}
	s.Require().NoError(s.store.ReplaceRules(s.ctx, rules))

	added := testRule("beta")
	s.Require().NoError(s.store.SaveRule(s.ctx, &added))

	// Updating an existing rule keeps its position.
	updated := testRule("zeta")
	updated.Title = "updated"
	s.Require().NoError(s.store.SaveRule(s.ctx, &updated))

	got, err := s.store.ListRules(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"zeta", "alpha", "cipro_tizanidine", "beta"}, ruleIDs(got))
	s.Equal("updated", got[0].Title)
	s.True(got[2].RequiresAllDrugs, "legacy combination rules are migrated on write")

	rule, err := s.store.GetRule(s.ctx, "alpha")
	s.Require().NoError(err)
	s.Equal(domain.CategoryRenal, rule.Category)

	s.Require().NoError(s.store.DeleteRule(s.ctx, "alpha"))
	_, err = s.store.GetRule(s.ctx, "alpha")
	s.ErrorIs(err, domain.ErrNotFound)

	n, err := s.store.CountRules(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *storeContractSuite) TestSettings() {
	_, err := s.store.GetSetting(s.ctx, SettingDatasetVersion)
	s.ErrorIs(err, domain.ErrNotFound)

	s.Require().NoError(s.store.SetSetting(s.ctx, SettingDatasetVersion, "1"))
	s.Require().NoError(s.store.SetSetting(s.ctx, SettingDatasetVersion, "2"))

	v, err := s.store.GetSetting(s.ctx, SettingDatasetVersion)
	s.Require().NoError(err)
	s.Equal("2", v)
}

func (s *storeContractSuite) TestSeedIfEmpty() {
	result, err := SeedIfEmpty(s.ctx, s.store, newTestLogger())
	s.Require().NoError(err)
	s.Positive(result.Drugs)
	s.Equal(27, result.Rules)

	again, err := SeedIfEmpty(s.ctx, s.store, newTestLogger())
	s.Require().NoError(err)
	s.Equal(SeedResult{}, again)

	s.NoError(s.store.Ping(s.ctx))
}

func drugIDs(drugs []domain.Drug) []string {
	ids := make([]string, len(drugs))
	for i, d := range drugs {
		ids[i] = d.ID
	}
	return ids
}

func ruleIDs(rules []domain.AlertRule) []string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

func (s *storeContractSuite) TestRevisionMovesOnDataWrites() {
	start, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)

	drug := testDrug("a", domain.GradeB)
	s.Require().NoError(s.store.SaveDrug(s.ctx, &drug))
	afterDrug, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)
	s.Greater(afterDrug, start)

	rule := testRule("r1")
	s.Require().NoError(s.store.SaveRule(s.ctx, &rule))
	s.Require().NoError(s.store.DeleteRule(s.ctx, "r1"))
	afterRule, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)
	s.Greater(afterRule, afterDrug)

	// Settings are not cached, so they leave the revision alone.
	s.Require().NoError(s.store.SetSetting(s.ctx, "k", "v"))
	afterSetting, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)
	s.Equal(afterRule, afterSetting)
}
