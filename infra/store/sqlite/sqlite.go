// Package sqlite implements the record source and prediction store on an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	corelogger "github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	"github.com/YDUTSEVOLDN/Subway/infra/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS metro_historical_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    time_slot TEXT NOT NULL,
    station TEXT NOT NULL,
    district TEXT,
    in_count INTEGER NOT NULL DEFAULT 0,
    out_count INTEGER NOT NULL DEFAULT 0,
    temperature REAL,
    humidity REAL,
    wind_speed REAL,
    is_transfer INTEGER NOT NULL DEFAULT 0,
    UNIQUE (date, time_slot, station)
);
CREATE INDEX IF NOT EXISTS idx_historical_station ON metro_historical_data (station);
CREATE TABLE IF NOT EXISTS metro_prediction_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    time_slot TEXT NOT NULL,
    station TEXT NOT NULL,
    district TEXT,
    predicted_in_count INTEGER NOT NULL,
    predicted_out_count INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (date, time_slot, station)
);`

// Options tunes a Store.
type Options struct {
	// BatchSize is the Fetch page size.
	BatchSize int
	// Migrate creates missing tables before the column check.
	Migrate bool
	Logger  corelogger.Logger
}

// Store reads historical records from and writes predictions to SQLite.
type Store struct {
	db        *sql.DB
	batchSize int
	log       corelogger.Logger
}

// Open opens the database at path and checks the historical table against
// the required column contract.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	s, err := newStore(ctx, db, opts)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (open err: %w)", cerr, err)
		}
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	if opts.Migrate {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	cols, err := columns(ctx, db, store.HistoricalTable)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &model.ConfigurationError{Field: store.HistoricalTable, Reason: "table does not exist"}
	}
	if err := store.CheckColumns(cols); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = store.DefaultBatchSize
	}
	return &Store{db: db, batchSize: opts.BatchSize, log: corelogger.OrNop(opts.Logger)}, nil
}

func columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Fetch returns the inclusive window ordered by date and time slot, reading
// it in pages of BatchSize until the window is exhausted.
func (s *Store) Fetch(ctx context.Context, start, end model.Date, stations []string) ([]model.HistoricalRecord, error) {
	where, args := s.window(start, end, stations)
	query := "SELECT " + store.HistoricalColumns + " FROM " + store.HistoricalTable + where +
		" ORDER BY date, time_slot, station LIMIT ? OFFSET ?"
	var out []model.HistoricalRecord
	for offset := 0; ; offset += s.batchSize {
		page, err := s.fetchPage(ctx, query, append(args, s.batchSize, offset))
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < s.batchSize {
			break
		}
	}
	s.log.Debugf("sqlite: fetched %d records for %s..%s", len(out), start, end)
	return out, nil
}

func (s *Store) fetchPage(ctx context.Context, query string, args []any) ([]model.HistoricalRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.HistoricalRecord
	for rows.Next() {
		rec, err := store.ScanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) window(start, end model.Date, stations []string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !start.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, start.String())
	}
	if !end.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, end.String())
	}
	if st := model.NormalizeStations(stations); len(st) > 0 {
		conds = append(conds, "LOWER(station) IN ("+strings.TrimSuffix(strings.Repeat("?,", len(st)), ",")+")")
		for _, v := range st {
			args = append(args, v)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Recent returns at most limit records, newest first. An empty station
// covers every station.
func (s *Store) Recent(ctx context.Context, station string, limit int) ([]model.HistoricalRecord, error) {
	where, args := s.window(model.Date{}, model.Date{}, []string{station})
	query := "SELECT " + store.HistoricalColumns + " FROM " + store.HistoricalTable + where +
		" ORDER BY date DESC, time_slot DESC, station LIMIT ?"
	return s.fetchPage(ctx, query, append(args, limit))
}

// Stations lists distinct stations with their district, sorted by name.
func (s *Store) Stations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT station, COALESCE(MAX(district), '') FROM "+store.HistoricalTable+" GROUP BY station ORDER BY station")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Station
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(&st.Name, &st.District); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Summary describes the historical table.
func (s *Store) Summary(ctx context.Context) (model.Summary, error) {
	sum := model.Summary{Features: store.FeatureNames()}
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(date), MAX(date), COUNT(DISTINCT station) FROM "+store.HistoricalTable).
		Scan(&sum.TotalRecords, &first, &last, &sum.StationCount)
	if err != nil {
		return sum, err
	}
	if first.Valid {
		d, err := model.ParseDate(first.String)
		if err != nil {
			return sum, err
		}
		sum.FirstDate = &d
	}
	if last.Valid {
		d, err := model.ParseDate(last.String)
		if err != nil {
			return sum, err
		}
		sum.LastDate = &d
	}
	return sum, nil
}

// Insert adds historical records in one transaction. A record whose identity
// already exists aborts the insert with a DuplicateKeyError.
func (s *Store) Insert(ctx context.Context, recs []model.HistoricalRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+store.HistoricalTable+
		" ("+store.HistoricalColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range recs {
		_, err := stmt.ExecContext(ctx, r.Date.String(), r.TimeSlot.String(), r.Station, nullString(r.District),
			r.InCount, r.OutCount, store.NullFloat(r.Temperature), store.NullFloat(r.Humidity), store.NullFloat(r.WindSpeed), r.IsTransfer)
		if err != nil {
			var se sqlite3.Error
			if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
				return 0, &model.DuplicateKeyError{Key: r.Key()}
			}
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Save upserts predictions on (date, time_slot, station).
func (s *Store) Save(ctx context.Context, res []model.PredictionResult) (int, error) {
	if len(res) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+store.PredictionTable+`
        (date, time_slot, station, district, predicted_in_count, predicted_out_count, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (date, time_slot, station) DO UPDATE SET
            district = excluded.district,
            predicted_in_count = excluded.predicted_in_count,
            predicted_out_count = excluded.predicted_out_count,
            updated_at = excluded.updated_at`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()
	now := time.Now().Unix()
	for _, r := range res {
		if _, err := stmt.ExecContext(ctx, r.Date.String(), r.TimeSlot.String(), r.Station, nullString(r.District),
			r.PredictedInCount, r.PredictedOutCount, now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(res), nil
}

// Query lists stored predictions ordered by date, time slot and station.
func (s *Store) Query(ctx context.Context, f model.PredictionFilter) ([]model.PredictionResult, error) {
	where, args := s.window(f.Start, f.End, f.Stations)
	query := "SELECT " + store.PredictionColumns + " FROM " + store.PredictionTable + where +
		" ORDER BY date, time_slot, station"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.PredictionResult
	for rows.Next() {
		r, err := store.ScanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
