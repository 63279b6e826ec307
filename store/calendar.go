package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned for events without a title or with an end that
// does not follow the start.
var ErrInvalidEvent = errors.New("invalid event")

// Event is a calendar entry. Times are stored with second precision.
type Event struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string
	Attendees   []string
	CreatedAt   time.Time
}

// Duration returns the length of the event.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// CreateEvent stores ev and returns it with its ID and creation time set.
func (s *DB) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	if strings.TrimSpace(ev.Title) == "" {
		return Event{}, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if !ev.End.After(ev.Start) {
		return Event{}, fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}

	ev.ID = uuid.New().String()
	ev.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO events (id, title, start_at, end_at, description, location, attendees, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.Title,
		ev.Start.Unix(),
		ev.End.Unix(),
		ev.Description,
		ev.Location,
		strings.Join(ev.Attendees, ","),
		ev.CreatedAt.Unix(),
	)
	if err != nil {
		return Event{}, fmt.Errorf("failed to insert event: %w", err)
	}
	return ev, nil
}

// GetEvent loads an event by ID. A missing event yields sql.ErrNoRows.
func (s *DB) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, title, start_at, end_at, description, location, attendees, created_at
	FROM events WHERE id = ?
	`, id)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// EventsBetween returns events starting in [from, to), earliest first. A
// limit of zero or less returns every match.
func (s *DB) EventsBetween(ctx context.Context, from, to time.Time, limit int) ([]Event, error) {
	query := `
	SELECT id, title, start_at, end_at, description, location, attendees, created_at
	FROM events
	WHERE start_at >= ? AND start_at < ?
	ORDER BY start_at, created_at
	`
	args := []any{from.Unix(), to.Unix()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryEvents(ctx, query, args...)
}

// Conflicts returns events that overlap [start, end), earliest first.
func (s *DB) Conflicts(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.queryEvents(ctx, `
	SELECT id, title, start_at, end_at, description, location, attendees, created_at
	FROM events
	WHERE start_at < ? AND end_at > ?
	ORDER BY start_at, created_at
	`, end.Unix(), start.Unix())
}

func (s *DB) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (Event, error) {
	var (
		ev                      Event
		startAt, endAt, created int64
		attendees               string
	)
	err := row.Scan(&ev.ID, &ev.Title, &startAt, &endAt, &ev.Description, &ev.Location, &attendees, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	ev.Start = time.Unix(startAt, 0)
	ev.End = time.Unix(endAt, 0)
	ev.CreatedAt = time.Unix(created, 0)
	ev.Attendees = splitList(attendees)
	return ev, nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
