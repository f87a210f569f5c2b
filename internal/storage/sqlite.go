package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	sqliteObservationColumns = `id, crop_name, county, date, price, unit, created_at`

	sqliteInsertSQL = `INSERT INTO commodity_pricing (` + sqliteObservationColumns + `)
        VALUES (?,?,?,?,?,?,?)
        ON CONFLICT (crop_name, county, date) DO NOTHING`
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS commodity_pricing (
		id         TEXT PRIMARY KEY,
		crop_name  TEXT NOT NULL CHECK (length(crop_name) > 0),
		county     TEXT NOT NULL CHECK (length(county) > 0),
		date       TEXT NOT NULL,
		price      TEXT NOT NULL,
		unit       TEXT NOT NULL CHECK (length(unit) > 0),
		created_at TEXT NOT NULL,
		UNIQUE (crop_name, county, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commodity_pricing_date ON commodity_pricing(date)`,
}

// SQLiteStore is a single-file price history used for local runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
// ":memory:" yields a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database.sqlite_path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// FetchHistory lists every observation for the pair, oldest first.
func (s *SQLiteStore) FetchHistory(ctx context.Context, cropName, county string) ([]PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteObservationColumns+`
        FROM commodity_pricing
        WHERE crop_name = ? AND county = ?
        ORDER BY date ASC`, cropName, county)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return collectSQLiteObservations(rows)
}

// InsertObservations persists observations in one transaction, skipping natural-key duplicates.
func (s *SQLiteStore) InsertObservations(ctx context.Context, observations []PriceObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert observations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	inserted := 0
	for _, obs := range observations {
		obs = prepareObservation(obs, now)
		res, execErr := tx.ExecContext(ctx, sqliteInsertSQL, sqliteArgs(obs)...)
		if execErr != nil {
			return 0, fmt.Errorf("insert observation: %w", execErr)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert observations: %w", err)
	}
	return inserted, nil
}

// CreateObservation inserts a single observation and returns it as stored.
func (s *SQLiteStore) CreateObservation(ctx context.Context, obs PriceObservation) (PriceObservation, error) {
	obs = prepareObservation(obs, time.Now())
	res, err := s.db.ExecContext(ctx, sqliteInsertSQL, sqliteArgs(obs)...)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("create observation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return PriceObservation{}, ErrDuplicateObservation
	}
	return s.GetObservation(ctx, obs.ID)
}

// GetObservation loads a single observation by id.
func (s *SQLiteStore) GetObservation(ctx context.Context, id uuid.UUID) (PriceObservation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteObservationColumns+`
        FROM commodity_pricing WHERE id = ?`, id.String())
	obs, err := scanSQLiteObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PriceObservation{}, ErrNotFound
	}
	if err != nil {
		return PriceObservation{}, fmt.Errorf("get observation: %w", err)
	}
	return obs, nil
}

// ListObservations pages through observations matching the filter.
func (s *SQLiteStore) ListObservations(ctx context.Context, filter ObservationFilter) ([]PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteObservationColumns+`
        FROM commodity_pricing
        WHERE (?1 = '' OR crop_name = ?1)
          AND (?2 = '' OR county = ?2)
        ORDER BY date, crop_name, county
        LIMIT ?3 OFFSET ?4`, filter.CropName, filter.County, filter.limit(), filter.offset())
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	return collectSQLiteObservations(rows)
}

// ListRecent lists the newest observations for the pair, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, cropName, county string, limit int) ([]PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteObservationColumns+`
        FROM commodity_pricing
        WHERE crop_name = ? AND county = ?
        ORDER BY date DESC
        LIMIT ?`, cropName, county, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent observations: %w", err)
	}
	return collectSQLiteObservations(rows)
}

// CountObservations counts stored observations.
func (s *SQLiteStore) CountObservations(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commodity_pricing`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}

func sqliteArgs(obs PriceObservation) []any {
	return []any{
		obs.ID.String(),
		obs.CropName,
		obs.County,
		obs.Date.Format(DateLayout),
		obs.Price.String(),
		obs.Unit,
		obs.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func collectSQLiteObservations(rows *sql.Rows) ([]PriceObservation, error) {
	defer rows.Close()

	observations := make([]PriceObservation, 0)
	for rows.Next() {
		obs, err := scanSQLiteObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return observations, nil
}

func scanSQLiteObservation(row rowScanner) (PriceObservation, error) {
	var idStr, cropName, county, dateStr, priceStr, unit, createdStr string
	if err := row.Scan(&idStr, &cropName, &county, &dateStr, &priceStr, &unit, &createdStr); err != nil {
		return PriceObservation{}, err
	}

	date, err := ParseDate(dateStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse date: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse created_at: %w", err)
	}

	return buildObservation(idStr, cropName, county, date, priceStr, unit, createdAt)
}

var _ Repository = (*SQLiteStore)(nil)
