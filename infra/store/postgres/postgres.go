// Package postgres implements the record source and prediction store on
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	corelogger "github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/infra/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS metro_historical_data (
    id BIGSERIAL PRIMARY KEY,
    date DATE NOT NULL,
    time_slot TIME NOT NULL,
    station TEXT NOT NULL,
    district TEXT,
    in_count INTEGER NOT NULL DEFAULT 0,
    out_count INTEGER NOT NULL DEFAULT 0,
    temperature DOUBLE PRECISION,
    humidity DOUBLE PRECISION,
    wind_speed DOUBLE PRECISION,
    is_transfer BOOLEAN NOT NULL DEFAULT FALSE,
    UNIQUE (date, time_slot, station)
);
CREATE INDEX IF NOT EXISTS idx_historical_station ON metro_historical_data (LOWER(station));
CREATE TABLE IF NOT EXISTS metro_prediction_data (
    id BIGSERIAL PRIMARY KEY,
    date DATE NOT NULL,
    time_slot TIME NOT NULL,
    station TEXT NOT NULL,
    district TEXT,
    predicted_in_count INTEGER NOT NULL,
    predicted_out_count INTEGER NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (date, time_slot, station)
);`

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// Options tunes a Store.
type Options struct {
	BatchSize int
	Migrate   bool
	Logger    corelogger.Logger
}

// Store reads historical records from and writes predictions to PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
	log       corelogger.Logger
}

// Open connects to dsn and checks the historical table against the
// required column contract.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if opts.Migrate {
		if _, err := pool.Exec(ctx, schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	cols, err := columns(ctx, pool)
	if err == nil && len(cols) == 0 {
		err = &model.ConfigurationError{Field: store.HistoricalTable, Reason: "table does not exist"}
	}
	if err == nil {
		err = store.CheckColumns(cols)
	}
	if err != nil {
		pool.Close()
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = store.DefaultBatchSize
	}
	return &Store{pool: pool, batchSize: opts.BatchSize, log: corelogger.OrNop(opts.Logger)}, nil
}

func columns(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`,
		store.HistoricalTable)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// selectList casts DATE and TIME to text so rows decode like SQLite's.
func selectList(cols string) string {
	cols = strings.Replace(cols, "date, time_slot", "date::text, to_char(time_slot, 'HH24:MI')", 1)
	return cols
}

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "$?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func window(start, end model.Date, stations []string) *where {
	w := &where{}
	if !start.IsZero() {
		w.add("date >= $?::date", start.String())
	}
	if !end.IsZero() {
		w.add("date <= $?::date", end.String())
	}
	if st := model.NormalizeStations(stations); len(st) > 0 {
		w.add("LOWER(station) = ANY($?)", st)
	}
	return w
}

// Fetch returns the inclusive window ordered by date and time slot, reading
// it in pages of BatchSize until the window is exhausted.
func (s *Store) Fetch(ctx context.Context, start, end model.Date, stations []string) ([]model.HistoricalRecord, error) {
	w := window(start, end, stations)
	n := len(w.args)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY date, time_slot, station LIMIT $%d OFFSET $%d",
		selectList(store.HistoricalColumns), store.HistoricalTable, w, n+1, n+2)
	var out []model.HistoricalRecord
	for offset := 0; ; offset += s.batchSize {
		args := append(append([]any{}, w.args...), s.batchSize, offset)
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		page, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.HistoricalRecord, error) {
			return store.ScanRecord(r)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < s.batchSize {
			break
		}
	}
	s.log.Debugf("postgres: fetched %d records for %s..%s", len(out), start, end)
	return out, nil
}

// Recent returns at most limit records, newest first. An empty station
// covers every station.
func (s *Store) Recent(ctx context.Context, station string, limit int) ([]model.HistoricalRecord, error) {
	w := window(model.Date{}, model.Date{}, []string{station})
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY date DESC, time_slot DESC, station LIMIT $%d",
		selectList(store.HistoricalColumns), store.HistoricalTable, w, len(w.args)+1)
	rows, err := s.pool.Query(ctx, query, append(w.args, limit)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.HistoricalRecord, error) {
		return store.ScanRecord(r)
	})
}

// Stations lists distinct stations with their district, sorted by name.
func (s *Store) Stations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT station, COALESCE(MAX(district), '') FROM "+store.HistoricalTable+" GROUP BY station ORDER BY station")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Station, error) {
		var st model.Station
		err := r.Scan(&st.Name, &st.District)
		return st, err
	})
}

// Summary describes the historical table.
func (s *Store) Summary(ctx context.Context) (model.Summary, error) {
	sum := model.Summary{Features: store.FeatureNames()}
	var first, last *string
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*), MIN(date)::text, MAX(date)::text, COUNT(DISTINCT station) FROM "+store.HistoricalTable).
		Scan(&sum.TotalRecords, &first, &last, &sum.StationCount)
	if err != nil {
		return sum, err
	}
	for _, p := range []struct {
		src *string
		dst **model.Date
	}{{first, &sum.FirstDate}, {last, &sum.LastDate}} {
		if p.src == nil {
			continue
		}
		d, err := model.ParseDate(*p.src)
		if err != nil {
			return sum, err
		}
		*p.dst = &d
	}
	return sum, nil
}

// Insert adds historical records in one transaction. A record whose identity
// already exists aborts the insert with a DuplicateKeyError.
func (s *Store) Insert(ctx context.Context, recs []model.HistoricalRecord) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	query := "INSERT INTO " + store.HistoricalTable + " (" + store.HistoricalColumns +
		") VALUES ($1::date, $2::time, $3, $4, $5, $6, $7, $8, $9, $10)"
	for _, r := range recs {
		_, err := tx.Exec(ctx, query, r.Date.String(), r.TimeSlot.String(), r.Station, nullString(r.District),
			r.InCount, r.OutCount, r.Temperature, r.Humidity, r.WindSpeed, r.IsTransfer)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return 0, &model.DuplicateKeyError{Key: r.Key()}
			}
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Save upserts predictions on (date, time_slot, station) in one batch.
func (s *Store) Save(ctx context.Context, res []model.PredictionResult) (int, error) {
	if len(res) == 0 {
		return 0, nil
	}
	const q = `INSERT INTO metro_prediction_data
        (date, time_slot, station, district, predicted_in_count, predicted_out_count, updated_at)
        VALUES ($1::date, $2::time, $3, $4, $5, $6, now())
        ON CONFLICT (date, time_slot, station) DO UPDATE SET
            district = EXCLUDED.district,
            predicted_in_count = EXCLUDED.predicted_in_count,
            predicted_out_count = EXCLUDED.predicted_out_count,
            updated_at = EXCLUDED.updated_at`
	batch := &pgx.Batch{}
	for _, r := range res {
		batch.Queue(q, r.Date.String(), r.TimeSlot.String(), r.Station, nullString(r.District),
			r.PredictedInCount, r.PredictedOutCount)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(res), nil
}

// Query lists stored predictions ordered by date, time slot and station.
func (s *Store) Query(ctx context.Context, f model.PredictionFilter) ([]model.PredictionResult, error) {
	w := window(f.Start, f.End, f.Stations)
	query := "SELECT " + selectList(store.PredictionColumns) + " FROM " + store.PredictionTable + w.String() +
		" ORDER BY date, time_slot, station"
	args := w.args
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.PredictionResult, error) {
		return store.ScanPrediction(r)
	})
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
