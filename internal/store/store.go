// Package store persists the drug reference and the alert rule set.
//
// The engine never touches a store directly: callers load drugs and rules
// here and hand plain slices to the service package.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/internal/dataset"
	"github.com/pharmref-mcp-server/internal/domain"
	"github.com/pharmref-mcp-server/internal/metrics"
)

// Setting keys written by the store helpers.
const (
	SettingDatasetVersion = "dataset_version"
	SettingSeededAt       = "seeded_at"
	SettingImportedAt     = "imported_at"
)

// Store defines the persistence operations for drugs, rules and settings.
type Store interface {
	// GetDrug returns domain.ErrNotFound when no drug has the id.
	GetDrug(ctx context.Context, id string) (*domain.Drug, error)
	// ListDrugs returns every drug ordered by id.
	ListDrugs(ctx context.Context) ([]domain.Drug, error)
	CountDrugs(ctx context.Context) (int, error)
	// SaveDrug validates and upserts a drug.
	SaveDrug(ctx context.Context, drug *domain.Drug) error
	DeleteDrug(ctx context.Context, id string) error
	// ReplaceDrugs clears the table and bulk-adds drugs in one transaction.
	ReplaceDrugs(ctx context.Context, drugs []domain.Drug) error

	// GetRule returns domain.ErrNotFound when no rule has the id.
	GetRule(ctx context.Context, id string) (*domain.AlertRule, error)
	// ListRules returns every rule in dataset order. New rules go last.
	ListRules(ctx context.Context) ([]domain.AlertRule, error)
	CountRules(ctx context.Context) (int, error)
	SaveRule(ctx context.Context, rule *domain.AlertRule) error
	DeleteRule(ctx context.Context, id string) error
	ReplaceRules(ctx context.Context, rules []domain.AlertRule) error

	// GetSetting returns domain.ErrNotFound for unknown keys.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Revision changes whenever any drug or rule changes, including
	// changes made by another process on the same database.
	Revision(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Snapshot is the export format. The rule list keeps its historical
// "alerts" key so files written by earlier releases still import.
type Snapshot struct {
	Drugs      []domain.Drug      `json:"drugs"`
	Alerts     []domain.AlertRule `json:"alerts"`
	ExportedAt time.Time          `json:"exported_at"`
}

// SeedResult reports what SeedIfEmpty wrote.
type SeedResult struct {
	Drugs int `json:"drugs"`
	Rules int `json:"rules"`
}

// SeedIfEmpty loads the bundled dataset into whichever of the two tables is
// empty. A table that already has rows is left alone.
func SeedIfEmpty(ctx context.Context, s Store, logger *logrus.Logger) (SeedResult, error) {
	var result SeedResult

	drugCount, err := s.CountDrugs(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count drugs: %w", err)
	}
	if drugCount == 0 {
		drugs, err := dataset.Drugs()
		if err != nil {
			return result, err
		}
		if err := s.ReplaceDrugs(ctx, drugs); err != nil {
			return result, fmt.Errorf("failed to seed drugs: %w", err)
		}
		result.Drugs = len(drugs)
	}

	ruleCount, err := s.CountRules(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count rules: %w", err)
	}
	if ruleCount == 0 {
		rules, err := dataset.Rules()
		if err != nil {
			return result, err
		}
		if err := s.ReplaceRules(ctx, rules); err != nil {
			return result, fmt.Errorf("failed to seed rules: %w", err)
		}
		result.Rules = len(rules)
	}

	if result.Drugs > 0 || result.Rules > 0 {
		if err := markSeeded(ctx, s); err != nil {
			return result, err
		}
		logger.WithFields(logrus.Fields{
			"drugs":   result.Drugs,
			"rules":   result.Rules,
			"version": dataset.Version,
		}).Info("Seeded reference data")
	}
	return result, nil
}

// Reset replaces both tables with the bundled dataset.
func Reset(ctx context.Context, s Store, logger *logrus.Logger) (SeedResult, error) {
	drugs, err := dataset.Drugs()
	if err != nil {
		return SeedResult{}, err
	}
	rules, err := dataset.Rules()
	if err != nil {
		return SeedResult{}, err
	}

	if err := s.ReplaceDrugs(ctx, drugs); err != nil {
		return SeedResult{}, fmt.Errorf("failed to reset drugs: %w", err)
	}
	if err := s.ReplaceRules(ctx, rules); err != nil {
		return SeedResult{}, fmt.Errorf("failed to reset rules: %w", err)
	}
	if err := markSeeded(ctx, s); err != nil {
		return SeedResult{}, err
	}

	logger.WithFields(logrus.Fields{
		"drugs": len(drugs),
		"rules": len(rules),
	}).Warn("Reference data reset to bundled dataset")
	return SeedResult{Drugs: len(drugs), Rules: len(rules)}, nil
}

func markSeeded(ctx context.Context, s Store) error {
	if err := s.SetSetting(ctx, SettingDatasetVersion, dataset.Version); err != nil {
		return fmt.Errorf("failed to record dataset version: %w", err)
	}
	if err := s.SetSetting(ctx, SettingSeededAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record seed time: %w", err)
	}
	return nil
}

// Export reads both tables into a snapshot.
func Export(ctx context.Context, s Store, now time.Time) (*Snapshot, error) {
	drugs, err := s.ListDrugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drugs: %w", err)
	}
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return &Snapshot{Drugs: drugs, Alerts: rules, ExportedAt: now.UTC()}, nil
}

// Import replaces a table only when the snapshot carries a non-empty list
// for it. Imported rules are migrated before they are stored.
func Import(ctx context.Context, s Store, snap *Snapshot, logger *logrus.Logger) (SeedResult, error) {
	var result SeedResult
	if snap == nil {
		return result, domain.NewValidationError("snapshot", "is required", nil)
	}

	for i := range snap.Drugs {
		if err := domain.ValidateDrug(&snap.Drugs[i]); err != nil {
			return result, fmt.Errorf("invalid drug at index %d: %w", i, err)
		}
	}
	rules := domain.MigrateRules(snap.Alerts)
	for i := range rules {
		if err := domain.ValidateRule(&rules[i]); err != nil {
			return result, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
	}

	if len(snap.Drugs) > 0 {
		if err := s.ReplaceDrugs(ctx, snap.Drugs); err != nil {
			return result, fmt.Errorf("failed to import drugs: %w", err)
		}
		result.Drugs = len(snap.Drugs)
	}
	if len(rules) > 0 {
		if err := s.ReplaceRules(ctx, rules); err != nil {
			return result, fmt.Errorf("failed to import rules: %w", err)
		}
		result.Rules = len(rules)
	}

	if err := s.SetSetting(ctx, SettingImportedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return result, fmt.Errorf("failed to record import time: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"drugs": result.Drugs,
		"rules": result.Rules,
	}).Info("Imported reference data")
	return result, nil
}

// ExportJSON writes an indented snapshot to w.
func ExportJSON(ctx context.Context, s Store, w io.Writer, now time.Time) error {
	snap, err := Export(ctx, s, now)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}

// ImportJSON decodes a snapshot from r and imports it.
func ImportJSON(ctx context.Context, s Store, r io.Reader, logger *logrus.Logger) (SeedResult, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return SeedResult{}, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return Import(ctx, s, &snap, logger)
}

// ExportFileName returns the conventional export file name for a date.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("pharmref_data_%s.json", now.Format("2006-01-02"))
}

// observe records the operation and marks backend failures as StoreErrors.
// Not-found and validation errors pass through unchanged.
func observe(backend, operation string, err error) error {
	metrics.RecordStoreOperation(backend, operation, err)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return err
	}
	return &domain.StoreError{Backend: backend, Operation: operation, Err: err}
}
