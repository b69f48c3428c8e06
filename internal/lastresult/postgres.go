package lastresult

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"medlens/internal/common/errors"
	"medlens/internal/models"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS last_result (
	id       TEXT PRIMARY KEY,
	payload  JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`
	upsertSQL = `INSERT INTO last_result (id, payload, saved_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`
	selectSQL = `SELECT payload FROM last_result WHERE id = $1`
	deleteSQL = `DELETE FROM last_result WHERE id = $1`
)

// PostgresStore keeps the slot as one row keyed by Key.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table when it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTableSQL); err != nil {
		return errors.NewLastResultStoreError("migrate", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, result *models.AnalysisResult, interactions []models.InteractionWarning) error {
	record := newRecord(result, interactions)
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.NewLastResultStoreError("save", fmt.Errorf("marshal record: %w", err))
	}

	savedAt := time.UnixMilli(record.Timestamp).UTC()
	if _, err := p.db.ExecContext(ctx, upsertSQL, Key, payload, savedAt); err != nil {
		return errors.NewLastResultStoreError("save", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context) (*Record, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, selectSQL, Key).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewLastResultStoreError("load", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, errors.NewLastResultStoreError("load", fmt.Errorf("decode record: %w", err))
	}
	return &record, nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, deleteSQL, Key); err != nil {
		return errors.NewLastResultStoreError("clear", err)
	}
	return nil
}
