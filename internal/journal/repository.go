package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Repository stores and lists journal entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps entries in the journal_entries table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e. ID and RecordedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if e.ID == "" {
		e.ID = "jrn-" + uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	e.RecordedAt = e.RecordedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO journal_entries
		   (id, recorded_at, kind, profile_id, link_state, tier, stability, temperature, humidity, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RecordedAt.Format(timeLayout), string(e.Kind),
		e.ProfileID, e.LinkState, e.Tier,
		nullable(e.Stability), nullable(e.Temperature), nullable(e.Humidity),
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// nullable maps a nil pointer to SQL NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, filter.Kind)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM journal_entries " + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := `SELECT id, recorded_at, kind, profile_id, link_state, tier, stability, temperature, humidity, message
		FROM journal_entries ` + where + `
		ORDER BY recorded_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		recordedAt string
		kind       string
		stability  sql.NullInt64
		temp, hum  sql.NullFloat64
	)
	if err := rows.Scan(&e.ID, &recordedAt, &kind, &e.ProfileID, &e.LinkState, &e.Tier,
		&stability, &temp, &hum, &e.Message); err != nil {
		return Entry{}, fmt.Errorf("scanning journal entry: %w", err)
	}

	t, err := time.Parse(timeLayout, recordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing journal timestamp %q: %w", recordedAt, err)
	}
	e.RecordedAt = t
	e.Kind = Kind(kind)

	if stability.Valid {
		v := int(stability.Int64)
		e.Stability = &v
	}
	if temp.Valid {
		e.Temperature = &temp.Float64
	}
	if hum.Valid {
		e.Humidity = &hum.Float64
	}
	return e, nil
}
