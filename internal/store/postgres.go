package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmref-mcp-server/internal/domain"
)

const postgresBackend = "postgres"

// PostgresStore implements Store on a shared Postgres database. The schema
// is created by the migrations package.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool and verifies the connection.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func decodeDrug(doc []byte) (*domain.Drug, error) {
	drug := &domain.Drug{}
	if err := json.Unmarshal(doc, drug); err != nil {
		return nil, fmt.Errorf("failed to decode drug: %w", err)
	}
	return drug, nil
}

func decodeRule(doc []byte) (*domain.AlertRule, error) {
	rule := &domain.AlertRule{}
	if err := json.Unmarshal(doc, rule); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}
	return rule, nil
}

// GetDrug retrieves a drug by id.
func (s *PostgresStore) GetDrug(ctx context.Context, id string) (*domain.Drug, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "SELECT doc FROM drugs WHERE id = $1", id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("drug %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, observe(postgresBackend, "get_drug", fmt.Errorf("failed to get drug: %w", err))
	}
	observe(postgresBackend, "get_drug", nil)
	return decodeDrug(doc)
}

// ListDrugs returns every drug ordered by id.
func (s *PostgresStore) ListDrugs(ctx context.Context) ([]domain.Drug, error) {
	rows, err := s.pool.Query(ctx, "SELECT doc FROM drugs ORDER BY id COLLATE \"C\"")
	if err != nil {
		return nil, observe(postgresBackend, "list_drugs", fmt.Errorf("failed to list drugs: %w", err))
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, observe(postgresBackend, "list_drugs", fmt.Errorf("failed to scan drugs: %w", err))
	}

	result := make([]domain.Drug, 0, len(docs))
	for _, doc := range docs {
		drug, err := decodeDrug(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, *drug)
	}
	return result, observe(postgresBackend, "list_drugs", nil)
}

// CountDrugs returns the number of stored drugs.
func (s *PostgresStore) CountDrugs(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM drugs").Scan(&count); err != nil {
		return 0, observe(postgresBackend, "count_drugs", fmt.Errorf("failed to count drugs: %w", err))
	}
	return count, observe(postgresBackend, "count_drugs", nil)
}

// SaveDrug validates and upserts a drug.
func (s *PostgresStore) SaveDrug(ctx context.Context, drug *domain.Drug) error {
	if err := domain.ValidateDrug(drug); err != nil {
		return err
	}
	doc, err := json.Marshal(drug)
	if err != nil {
		return fmt.Errorf("failed to encode drug: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO drugs (id, name_en, doc, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name_en = EXCLUDED.name_en,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at
	`, drug.ID, drug.NameEN, string(doc), time.Now())
	if err != nil {
		err = fmt.Errorf("failed to save drug: %w", err)
	}
	return observe(postgresBackend, "save_drug", err)
}

// DeleteDrug removes a drug.
func (s *PostgresStore) DeleteDrug(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM drugs WHERE id = $1", id)
	if err != nil {
		return observe(postgresBackend, "delete_drug", fmt.Errorf("failed to delete drug: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("drug %s: %w", id, domain.ErrNotFound)
	}
	return observe(postgresBackend, "delete_drug", nil)
}

// ReplaceDrugs clears the table and inserts drugs in one transaction.
func (s *PostgresStore) ReplaceDrugs(ctx context.Context, drugs []domain.Drug) error {
	for i := range drugs {
		if err := domain.ValidateDrug(&drugs[i]); err != nil {
			return err
		}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM drugs"); err != nil {
			return fmt.Errorf("failed to clear drugs: %w", err)
		}

		batch := &pgx.Batch{}
		now := time.Now()
		for i := range drugs {
			doc, err := json.Marshal(&drugs[i])
			if err != nil {
				return fmt.Errorf("failed to encode drug %s: %w", drugs[i].ID, err)
			}
			batch.Queue("INSERT INTO drugs (id, name_en, doc, updated_at) VALUES ($1, $2, $3, $4)",
				drugs[i].ID, drugs[i].NameEN, string(doc), now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert drugs: %w", err)
		}
		return nil
	})
	return observe(postgresBackend, "replace_drugs", err)
}

// GetRule retrieves a rule by id.
func (s *PostgresStore) GetRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "SELECT doc FROM alert_rules WHERE id = $1", id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return decodeRule(doc)
}

// ListRules returns every rule in dataset order.
func (s *PostgresStore) ListRules(ctx context.Context) ([]domain.AlertRule, error) {
	rows, err := s.pool.Query(ctx, "SELECT doc FROM alert_rules ORDER BY position, id")
	if err != nil {
		return nil, observe(postgresBackend, "list_rules", fmt.Errorf("failed to list rules: %w", err))
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, observe(postgresBackend, "list_rules", fmt.Errorf("failed to scan rules: %w", err))
	}

	result := make([]domain.AlertRule, 0, len(docs))
	for _, doc := range docs {
		rule, err := decodeRule(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, observe(postgresBackend, "list_rules", nil)
}

// CountRules returns the number of stored rules.
func (s *PostgresStore) CountRules(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alert_rules").Scan(&count); err != nil {
		return 0, observe(postgresBackend, "count_rules", fmt.Errorf("failed to count rules: %w", err))
	}
	return count, observe(postgresBackend, "count_rules", nil)
}

// SaveRule validates and upserts a rule, appending new rules.
func (s *PostgresStore) SaveRule(ctx context.Context, rule *domain.AlertRule) error {
	if err := domain.ValidateRule(rule); err != nil {
		return err
	}
	migrated := domain.MigrateRule(*rule)
	doc, err := json.Marshal(&migrated)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alert_rules (id, position, category, doc, updated_at)
		VALUES ($1, (SELECT COALESCE(MAX(position), -1) + 1 FROM alert_rules), $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at
	`, migrated.ID, string(migrated.Category), string(doc), time.Now())
	if err != nil {
		err = fmt.Errorf("failed to save rule: %w", err)
	}
	return observe(postgresBackend, "save_rule", err)
}

// DeleteRule removes a rule.
func (s *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM alert_rules WHERE id = $1", id)
	if err != nil {
		return observe(postgresBackend, "delete_rule", fmt.Errorf("failed to delete rule: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	return observe(postgresBackend, "delete_rule", nil)
}

// ReplaceRules clears the table and inserts rules in slice order.
func (s *PostgresStore) ReplaceRules(ctx context.Context, rules []domain.AlertRule) error {
	for i := range rules {
		if err := domain.ValidateRule(&rules[i]); err != nil {
			return err
		}
	}
	migrated := domain.MigrateRules(rules)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM alert_rules"); err != nil {
			return fmt.Errorf("failed to clear rules: %w", err)
		}

		batch := &pgx.Batch{}
		now := time.Now()
		for i := range migrated {
			doc, err := json.Marshal(&migrated[i])
			if err != nil {
				return fmt.Errorf("failed to encode rule %s: %w", migrated[i].ID, err)
			}
			batch.Queue("INSERT INTO alert_rules (id, position, category, doc, updated_at) VALUES ($1, $2, $3, $4, $5)",
				migrated[i].ID, i, string(migrated[i].Category), string(doc), now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert rules: %w", err)
		}
		return nil
	})
	return observe(postgresBackend, "replace_rules", err)
}

// GetSetting reads a setting.
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, "SELECT value FROM settings WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting writes a setting.
func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// Revision returns the data revision maintained by the data_revision
// triggers.
func (s *PostgresStore) Revision(ctx context.Context) (int64, error) {
	var rev int64
	if err := s.pool.QueryRow(ctx, "SELECT value FROM data_revision WHERE id = 1").Scan(&rev); err != nil {
		return 0, observe(postgresBackend, "revision", fmt.Errorf("failed to read data revision: %w", err))
	}
	return rev, nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool belongs to database.DB.
func (s *PostgresStore) Close() error {
	return nil
}
