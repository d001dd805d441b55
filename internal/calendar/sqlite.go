package calendar

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore persists events in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("calendar sqlite: open: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("calendar sqlite: set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("calendar sqlite: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CheckAvailability(ctx context.Context, start, end time.Time) (Availability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, start_ns, end_ns FROM events
		 WHERE start_ns < ? AND end_ns > ? ORDER BY start_ns ASC`,
		end.UnixNano(), start.UnixNano(),
	)
	if err != nil {
		return Availability{}, fmt.Errorf("calendar sqlite: query range: %w", err)
	}
	defer rows.Close()

	var conflicts []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return Availability{}, err
		}
		conflicts = append(conflicts, e)
	}
	if err := rows.Err(); err != nil {
		return Availability{}, fmt.Errorf("calendar sqlite: iterate range: %w", err)
	}
	return availabilityOf(start, end, conflicts), nil
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	if in.End.Before(in.Start) {
		return Event{}, ErrInvalidRange
	}
	e := Event{
		ID:          "event_" + uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Start:       in.Start.UTC(),
		End:         in.End.UTC(),
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, start_ns, end_ns, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Start.UnixNano(), e.End.UnixNano(), now, now,
	)
	if err != nil {
		return Event{}, fmt.Errorf("calendar sqlite: insert: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, fmt.Errorf("calendar sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanEvent(tx.QueryRowContext(ctx,
		`SELECT id, title, description, start_ns, end_ns FROM events WHERE id = ?`, id))
	if errors.Is(err, ErrEventNotFound) {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return Event{}, err
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return Event{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, start_ns = ?, end_ns = ?, updated_at = ? WHERE id = ?`,
		updated.Title, updated.Description, updated.Start.UnixNano(), updated.End.UnixNano(),
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return Event{}, fmt.Errorf("calendar sqlite: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Event{}, fmt.Errorf("calendar sqlite: commit: %w", err)
	}
	updated.Start, updated.End = updated.Start.UTC(), updated.End.UTC()
	return updated, nil
}

func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("calendar sqlite: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("calendar sqlite: delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		e              Event
		startNs, endNs int64
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &startNs, &endNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, fmt.Errorf("calendar sqlite: scan: %w", err)
	}
	e.Start = time.Unix(0, startNs).UTC()
	e.End = time.Unix(0, endNs).UTC()
	return e, nil
}
