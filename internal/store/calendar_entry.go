package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/dukerupert/cinesync/internal/model"
)

// EntryStore is the local SQLite calendar. IDs are decimal row ids.
type EntryStore struct {
	db *sql.DB
}

func NewEntryStore(db *sql.DB) *EntryStore {
	return &EntryStore{db: db}
}

const entryColumns = `id, title, description, location, start_time, end_time, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (model.CalendarEntry, error) {
	var e model.CalendarEntry
	var id int64
	err := row.Scan(&id, &e.Title, &e.Description, &e.Location, &e.Start, &e.End, &e.CreatedAt, &e.UpdatedAt)
	e.ID = strconv.FormatInt(id, 10)
	return e, err
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entry id %q", id)
	}
	return n, nil
}

func (s *EntryStore) Create(ctx context.Context, in model.EntryInput) (*model.CalendarEntry, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_entries (title, description, location, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?)`,
		in.Title, in.Description, in.Location, in.Start.UTC(), in.End.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert calendar entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, strconv.FormatInt(id, 10))
}

func (s *EntryStore) GetByID(ctx context.Context, id string) (*model.CalendarEntry, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}

	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM calendar_entries WHERE id = ?`, n,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calendar entry: %w", err)
	}
	return &e, nil
}

// Query returns entries overlapping [start, end) whose description contains
// the given text, in insertion order.
func (s *EntryStore) Query(ctx context.Context, start, end time.Time, descriptionContains string) ([]model.CalendarEntry, error) {
	return s.list(ctx,
		`SELECT `+entryColumns+` FROM calendar_entries
		 WHERE start_time < ? AND end_time > ? AND instr(description, ?) > 0
		 ORDER BY id ASC`,
		end.UTC(), start.UTC(), descriptionContains,
	)
}

// ListByDateRange returns entries overlapping [start, end) ordered by start.
func (s *EntryStore) ListByDateRange(ctx context.Context, start, end time.Time) ([]model.CalendarEntry, error) {
	return s.list(ctx,
		`SELECT `+entryColumns+` FROM calendar_entries
		 WHERE start_time < ? AND end_time > ?
		 ORDER BY start_time ASC, id ASC`,
		end.UTC(), start.UTC(),
	)
}

func (s *EntryStore) ListAll(ctx context.Context) ([]model.CalendarEntry, error) {
	return s.list(ctx, `SELECT `+entryColumns+` FROM calendar_entries ORDER BY start_time ASC, id ASC`)
}

func (s *EntryStore) list(ctx context.Context, query string, args ...any) ([]model.CalendarEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calendar entries: %w", err)
	}
	defer rows.Close()

	var entries []model.CalendarEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *EntryStore) Update(ctx context.Context, id string, in model.EntryInput) (*model.CalendarEntry, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE calendar_entries
		 SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		in.Title, in.Description, in.Location, in.Start.UTC(), in.End.UTC(), n,
	)
	if err != nil {
		return nil, fmt.Errorf("update calendar entry: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("update calendar entry %s: not found", id)
	}

	return s.GetByID(ctx, id)
}

func (s *EntryStore) Delete(ctx context.Context, id string) error {
	n, err := parseID(id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM calendar_entries WHERE id = ?", n); err != nil {
		return fmt.Errorf("delete calendar entry: %w", err)
	}
	return nil
}
