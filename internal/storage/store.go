package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned when a lookup by id matches nothing.
	ErrNotFound = errors.New("storage: observation not found")
	// ErrDuplicateObservation is returned when (crop_name, county, date) already exists.
	ErrDuplicateObservation = errors.New("storage: observation already exists for crop, county and date")
)

const (
	observationColumns = `id::text, crop_name, county, date, price::text, unit, created_at`

	insertObservationSQL = `INSERT INTO commodity_pricing (
        id,
        crop_name,
        county,
        date,
        price,
        unit,
        created_at
    ) VALUES (
        $1::uuid,$2,$3,$4,$5::numeric,$6,$7
    )
    ON CONFLICT (crop_name, county, date) DO NOTHING;`

	createObservationSQL = `INSERT INTO commodity_pricing (
        id,
        crop_name,
        county,
        date,
        price,
        unit,
        created_at
    ) VALUES (
        $1::uuid,$2,$3,$4,$5::numeric,$6,$7
    )
    ON CONFLICT (crop_name, county, date) DO NOTHING
    RETURNING ` + observationColumns + `;`

	fetchHistorySQL = `SELECT ` + observationColumns + `
    FROM commodity_pricing
    WHERE crop_name = $1
      AND county = $2
    ORDER BY date ASC;`

	getObservationSQL = `SELECT ` + observationColumns + `
    FROM commodity_pricing
    WHERE id = $1::uuid;`

	listObservationsSQL = `SELECT ` + observationColumns + `
    FROM commodity_pricing
    WHERE ($1 = '' OR crop_name = $1)
      AND ($2 = '' OR county = $2)
    ORDER BY date, crop_name, county
    OFFSET $3
    LIMIT $4;`

	listRecentSQL = `SELECT ` + observationColumns + `
    FROM commodity_pricing
    WHERE crop_name = $1
      AND county = $2
    ORDER BY date DESC
    LIMIT $3;`

	countObservationsSQL = `SELECT COUNT(*) FROM commodity_pricing;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// HistoryReader returns the full ordered history for a crop/county pair.
type HistoryReader interface {
	FetchHistory(ctx context.Context, cropName, county string) ([]PriceObservation, error)
}

// ObservationStore defines operations for price observation persistence.
type ObservationStore interface {
	HistoryReader
	InsertObservations(ctx context.Context, observations []PriceObservation) (int, error)
	CreateObservation(ctx context.Context, obs PriceObservation) (PriceObservation, error)
	GetObservation(ctx context.Context, id uuid.UUID) (PriceObservation, error)
	ListObservations(ctx context.Context, filter ObservationFilter) ([]PriceObservation, error)
	ListRecent(ctx context.Context, cropName, county string, limit int) ([]PriceObservation, error)
	CountObservations(ctx context.Context) (int64, error)
}

// Repository is an ObservationStore that owns a connection.
type Repository interface {
	ObservationStore
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL-backed price history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Exec runs a raw statement. Used for schema migrations.
func (s *Store) Exec(ctx context.Context, sql string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("exec statement: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Closing the session releases the lock anyway, so an unlock failure is ignored.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// FetchHistory lists every observation for the pair, oldest first.
func (s *Store) FetchHistory(ctx context.Context, cropName, county string) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, fetchHistorySQL, cropName, county)
	if queryErr != nil {
		return nil, fmt.Errorf("fetch history: %w", queryErr)
	}
	return collectObservations(rows, 0)
}

// InsertObservations persists observations in one transaction, skipping natural-key duplicates.
func (s *Store) InsertObservations(ctx context.Context, observations []PriceObservation) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert observations: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	inserted := 0
	for _, obs := range observations {
		obs = prepareObservation(obs, now)
		tag, execErr := tx.Exec(ctx, insertObservationSQL,
			obs.ID.String(),
			obs.CropName,
			obs.County,
			obs.Date,
			obs.Price.String(),
			obs.Unit,
			obs.CreatedAt,
		)
		if execErr != nil {
			return 0, fmt.Errorf("insert observation: %w", execErr)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert observations: %w", err)
	}
	return inserted, nil
}

// CreateObservation inserts a single observation and returns it as stored.
func (s *Store) CreateObservation(ctx context.Context, obs PriceObservation) (PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, err
	}

	obs = prepareObservation(obs, time.Now())
	row := pool.QueryRow(ctx, createObservationSQL,
		obs.ID.String(),
		obs.CropName,
		obs.County,
		obs.Date,
		obs.Price.String(),
		obs.Unit,
		obs.CreatedAt,
	)

	created, scanErr := scanObservation(row)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return PriceObservation{}, ErrDuplicateObservation
	}
	if scanErr != nil {
		return PriceObservation{}, fmt.Errorf("create observation: %w", scanErr)
	}
	return created, nil
}

// GetObservation loads a single observation by id.
func (s *Store) GetObservation(ctx context.Context, id uuid.UUID) (PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, err
	}

	obs, scanErr := scanObservation(pool.QueryRow(ctx, getObservationSQL, id.String()))
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return PriceObservation{}, ErrNotFound
	}
	if scanErr != nil {
		return PriceObservation{}, fmt.Errorf("get observation: %w", scanErr)
	}
	return obs, nil
}

// ListObservations pages through observations matching the filter.
func (s *Store) ListObservations(ctx context.Context, filter ObservationFilter) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsSQL, filter.CropName, filter.County, filter.offset(), filter.limit())
	if queryErr != nil {
		return nil, fmt.Errorf("list observations: %w", queryErr)
	}
	return collectObservations(rows, filter.limit())
}

// ListRecent lists the newest observations for the pair, newest first.
func (s *Store) ListRecent(ctx context.Context, cropName, county string, limit int) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSQL, cropName, county, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	return collectObservations(rows, limit)
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectObservations(rows pgx.Rows, capacity int) ([]PriceObservation, error) {
	defer rows.Close()

	if capacity < 0 {
		capacity = 0
	}
	observations := make([]PriceObservation, 0, capacity)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanObservation(row rowScanner) (PriceObservation, error) {
	var (
		idStr     string
		cropName  string
		county    string
		date      time.Time
		priceStr  string
		unit      string
		createdAt time.Time
	)

	if err := row.Scan(&idStr, &cropName, &county, &date, &priceStr, &unit, &createdAt); err != nil {
		return PriceObservation{}, err
	}

	return buildObservation(idStr, cropName, county, date, priceStr, unit, createdAt)
}

func buildObservation(idStr, cropName, county string, date time.Time, priceStr, unit string, createdAt time.Time) (PriceObservation, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse observation id: %w", err)
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse price: %w", err)
	}

	return PriceObservation{
		ID:        id,
		CropName:  cropName,
		County:    county,
		Date:      NormalizeDate(date),
		Price:     price,
		Unit:      unit,
		CreatedAt: createdAt,
	}, nil
}

var (
	_ Repository     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
