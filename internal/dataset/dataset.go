// Package dataset ships the built-in drug reference and alert rule set
// used to seed an empty store.
package dataset

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/pharmref-mcp-server/internal/domain"
)

// Version identifies the bundled reference data.
const Version = "2026.03"

//go:embed data/drugs.json data/rules.json
var files embed.FS

// Drugs returns the bundled drug records ordered by id.
func Drugs() ([]domain.Drug, error) {
	var drugs []domain.Drug
	if err := decode("data/drugs.json", &drugs); err != nil {
		return nil, err
	}
	for i := range drugs {
		if err := domain.ValidateDrug(&drugs[i]); err != nil {
			return nil, fmt.Errorf("invalid bundled drug at index %d: %w", i, err)
		}
	}
	return drugs, nil
}

// Rules returns the bundled alert rules in dataset order: hepatic rules
// first, then renal and combined rules. Legacy combination rules come back
// with RequiresAllDrugs set.
func Rules() ([]domain.AlertRule, error) {
	var rules []domain.AlertRule
	if err := decode("data/rules.json", &rules); err != nil {
		return nil, err
	}
	rules = domain.MigrateRules(rules)
	for i := range rules {
		if err := domain.ValidateRule(&rules[i]); err != nil {
			return nil, fmt.Errorf("invalid bundled rule %s: %w", rules[i].ID, err)
		}
	}
	return rules, nil
}

func decode(name string, v any) error {
	raw, err := files.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}
