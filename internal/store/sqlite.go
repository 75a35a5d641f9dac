package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pharmref-mcp-server/internal/domain"
)

const sqliteBackend = "sqlite"

// SQLiteStore implements Store on a local SQLite file. Records are kept as
// JSON documents next to the columns used for ordering.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the database file and its schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// NewSQLiteStoreWithDB wraps an open handle whose schema already exists.
func NewSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS drugs (
		id TEXT PRIMARY KEY,
		name_en TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		doc TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alert_rules_position ON alert_rules(position);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS data_revision (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO data_revision (id, value) VALUES (1, 0);
	`
	for _, table := range []string{"drugs", "alert_rules"} {
		for _, event := range []string{"INSERT", "UPDATE", "DELETE"} {
			schema += fmt.Sprintf(`
	CREATE TRIGGER IF NOT EXISTS %[1]s_revision_%[2]s AFTER %[3]s ON %[1]s
	BEGIN
		UPDATE data_revision SET value = value + 1 WHERE id = 1;
	END;
	`, table, strings.ToLower(event), event)
		}
	}

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDrug(s scanner) (*domain.Drug, error) {
	var doc string
	if err := s.Scan(&doc); err != nil {
		return nil, err
	}
	drug := &domain.Drug{}
	if err := json.Unmarshal([]byte(doc), drug); err != nil {
		return nil, fmt.Errorf("failed to decode drug: %w", err)
	}
	return drug, nil
}

func scanRule(s scanner) (*domain.AlertRule, error) {
	var doc string
	if err := s.Scan(&doc); err != nil {
		return nil, err
	}
	rule := &domain.AlertRule{}
	if err := json.Unmarshal([]byte(doc), rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}
	return rule, nil
}

// GetDrug retrieves a drug by id.
func (s *SQLiteStore) GetDrug(ctx context.Context, id string) (*domain.Drug, error) {
	row := s.db.QueryRowContext(ctx, "SELECT doc FROM drugs WHERE id = ?", id)
	drug, err := scanDrug(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("drug %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, observe(sqliteBackend, "get_drug", fmt.Errorf("failed to get drug: %w", err))
	}
	return drug, observe(sqliteBackend, "get_drug", nil)
}

// ListDrugs returns every drug ordered by id.
func (s *SQLiteStore) ListDrugs(ctx context.Context) ([]domain.Drug, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM drugs ORDER BY id")
	if err != nil {
		return nil, observe(sqliteBackend, "list_drugs", fmt.Errorf("failed to query drugs: %w", err))
	}
	defer rows.Close()

	result := []domain.Drug{}
	for rows.Next() {
		drug, err := scanDrug(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, *drug)
	}
	return result, observe(sqliteBackend, "list_drugs", rows.Err())
}

// CountDrugs returns the number of stored drugs.
func (s *SQLiteStore) CountDrugs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM drugs").Scan(&count)
	if err != nil {
		return 0, observe(sqliteBackend, "count_drugs", fmt.Errorf("failed to count drugs: %w", err))
	}
	return count, observe(sqliteBackend, "count_drugs", nil)
}

// SaveDrug validates and upserts a drug.
func (s *SQLiteStore) SaveDrug(ctx context.Context, drug *domain.Drug) error {
	if err := domain.ValidateDrug(drug); err != nil {
		return err
	}
	doc, err := json.Marshal(drug)
	if err != nil {
		return fmt.Errorf("failed to encode drug: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drugs (id, name_en, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name_en = excluded.name_en,
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`, drug.ID, drug.NameEN, string(doc), time.Now())
	if err != nil {
		err = fmt.Errorf("failed to save drug: %w", err)
	}
	return observe(sqliteBackend, "save_drug", err)
}

// DeleteDrug removes a drug. Deleting an unknown id returns
// domain.ErrNotFound.
func (s *SQLiteStore) DeleteDrug(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM drugs WHERE id = ?", id)
	if err != nil {
		return observe(sqliteBackend, "delete_drug", fmt.Errorf("failed to delete drug: %w", err))
	}
	return observe(sqliteBackend, "delete_drug", affected(result, "drug", id))
}

// ReplaceDrugs clears the table and inserts drugs in one transaction.
func (s *SQLiteStore) ReplaceDrugs(ctx context.Context, drugs []domain.Drug) error {
	for i := range drugs {
		if err := domain.ValidateDrug(&drugs[i]); err != nil {
			return err
		}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM drugs"); err != nil {
			return fmt.Errorf("failed to clear drugs: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO drugs (id, name_en, doc, updated_at) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for i := range drugs {
			doc, err := json.Marshal(&drugs[i])
			if err != nil {
				return fmt.Errorf("failed to encode drug %s: %w", drugs[i].ID, err)
			}
			if _, err := stmt.ExecContext(ctx, drugs[i].ID, drugs[i].NameEN, string(doc), now); err != nil {
				return fmt.Errorf("failed to insert drug %s: %w", drugs[i].ID, err)
			}
		}
		return nil
	})
	return observe(sqliteBackend, "replace_drugs", err)
}

// GetRule retrieves a rule by id.
func (s *SQLiteStore) GetRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT doc FROM alert_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, observe(sqliteBackend, "get_rule", fmt.Errorf("failed to get rule: %w", err))
	}
	return rule, observe(sqliteBackend, "get_rule", nil)
}

// ListRules returns every rule in dataset order.
func (s *SQLiteStore) ListRules(ctx context.Context) ([]domain.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM alert_rules ORDER BY position, id")
	if err != nil {
		return nil, observe(sqliteBackend, "list_rules", fmt.Errorf("failed to query rules: %w", err))
	}
	defer rows.Close()

	result := []domain.AlertRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, *rule)
	}
	return result, observe(sqliteBackend, "list_rules", rows.Err())
}

// CountRules returns the number of stored rules.
func (s *SQLiteStore) CountRules(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_rules").Scan(&count)
	if err != nil {
		return 0, observe(sqliteBackend, "count_rules", fmt.Errorf("failed to count rules: %w", err))
	}
	return count, observe(sqliteBackend, "count_rules", nil)
}

// SaveRule validates and upserts a rule. An existing rule keeps its
// position; a new one is appended.
func (s *SQLiteStore) SaveRule(ctx context.Context, rule *domain.AlertRule) error {
	if err := domain.ValidateRule(rule); err != nil {
		return err
	}
	migrated := domain.MigrateRule(*rule)
	doc, err := json.Marshal(&migrated)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, position, category, doc, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM alert_rules), ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`, migrated.ID, string(migrated.Category), string(doc), time.Now())
	if err != nil {
		err = fmt.Errorf("failed to save rule: %w", err)
	}
	return observe(sqliteBackend, "save_rule", err)
}

// DeleteRule removes a rule.
func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return observe(sqliteBackend, "delete_rule", fmt.Errorf("failed to delete rule: %w", err))
	}
	return observe(sqliteBackend, "delete_rule", affected(result, "rule", id))
}

// ReplaceRules clears the table and inserts rules, positioned in slice
// order, in one transaction.
func (s *SQLiteStore) ReplaceRules(ctx context.Context, rules []domain.AlertRule) error {
	for i := range rules {
		if err := domain.ValidateRule(&rules[i]); err != nil {
			return err
		}
	}
	migrated := domain.MigrateRules(rules)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM alert_rules"); err != nil {
			return fmt.Errorf("failed to clear rules: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO alert_rules (id, position, category, doc, updated_at) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for i := range migrated {
			doc, err := json.Marshal(&migrated[i])
			if err != nil {
				return fmt.Errorf("failed to encode rule %s: %w", migrated[i].ID, err)
			}
			if _, err := stmt.ExecContext(ctx, migrated[i].ID, i, string(migrated[i].Category), string(doc), now); err != nil {
				return fmt.Errorf("failed to insert rule %s: %w", migrated[i].ID, err)
			}
		}
		return nil
	})
	return observe(sqliteBackend, "replace_rules", err)
}

// GetSetting reads a setting.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting writes a setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// Revision returns the data revision. Triggers bump it on every drug or
// rule change, whichever connection or process made it.
func (s *SQLiteStore) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM data_revision WHERE id = 1").Scan(&rev)
	if err != nil {
		return 0, observe(sqliteBackend, "revision", fmt.Errorf("failed to read data revision: %w", err))
	}
	return rev, nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func affected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}
