package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/medwatch/internal/infrastructure/database"
	"github.com/nerrad567/medwatch/migrations"
)

// openTestRepo returns a repository over a migrated in-memory database.
func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestSQLiteRepository_CreateFillsDefaults(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	e := &Entry{Kind: KindLinkState, LinkState: "connected-live", Message: "connected-awaiting-data -> connected-live"}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.RecordedAt.IsZero() {
		t.Errorf("Create() left ID=%q RecordedAt=%v", e.ID, e.RecordedAt)
	}
	if e.RecordedAt.Location() != time.UTC {
		t.Errorf("RecordedAt location = %v, want UTC", e.RecordedAt.Location())
	}
}

func TestSQLiteRepository_CreateInvalidKind(t *testing.T) {
	repo := openTestRepo(t)
	err := repo.Create(context.Background(), &Entry{Kind: "reading"})
	if !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Create() error = %v, want ErrInvalidKind", err)
	}
}

func TestSQLiteRepository_RoundTripsOptionalFields(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	stability, temp, hum := 57, 1.0, 40.0
	in := &Entry{
		RecordedAt:  t0,
		Kind:        KindTierChange,
		ProfileID:   "vacina",
		Tier:        "CRITICAL",
		Stability:   &stability,
		Temperature: &temp,
		Humidity:    &hum,
		Message:     "CRITICAL: Vacinas out of range!",
	}
	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, &Entry{RecordedAt: t0.Add(time.Second), Kind: KindLinkError, Message: "unknown: EOF"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{Kind: KindTierChange})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List(tier_change) = %d entries (total %d), want 1", len(res.Entries), res.Total)
	}
	got := res.Entries[0]
	if got.ID != in.ID || !got.RecordedAt.Equal(t0) || got.Tier != "CRITICAL" {
		t.Errorf("entry = %+v", got)
	}
	if got.Stability == nil || *got.Stability != 57 {
		t.Errorf("Stability = %v, want 57", got.Stability)
	}
	if got.Temperature == nil || *got.Temperature != 1 || got.Humidity == nil || *got.Humidity != 40 {
		t.Errorf("Temperature/Humidity = %v/%v", got.Temperature, got.Humidity)
	}

	res, err = repo.List(ctx, Filter{Kind: KindLinkError})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if e := res.Entries[0]; e.Stability != nil || e.Temperature != nil || e.Humidity != nil {
		t.Errorf("link error entry has measurements: %+v", e)
	}
}

func TestSQLiteRepository_ListOrderAndPaging(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &Entry{RecordedAt: t0.Add(time.Duration(i) * time.Minute), Kind: KindLinkState, Message: string(rune('a' + i))}
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	// Same timestamp as the last one: insertion order breaks the tie.
	if err := repo.Create(ctx, &Entry{RecordedAt: t0.Add(4 * time.Minute), Kind: KindLinkState, Message: "f"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 6 || res.Limit != 3 {
		t.Errorf("Total=%d Limit=%d, want 6/3", res.Total, res.Limit)
	}
	var got string
	for _, e := range res.Entries {
		got += e.Message
	}
	if got != "fed" {
		t.Errorf("page 1 = %q, want \"fed\"", got)
	}

	res, err = repo.List(ctx, Filter{Limit: 3, Offset: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got = ""
	for _, e := range res.Entries {
		got += e.Message
	}
	if got != "cba" {
		t.Errorf("page 2 = %q, want \"cba\"", got)
	}
}

func TestSQLiteRepository_ListClamp(t *testing.T) {
	repo := openTestRepo(t)

	tests := []struct {
		name      string
		filter    Filter
		wantLimit int
	}{
		{"default", Filter{}, DefaultLimit},
		{"negative", Filter{Limit: -5, Offset: -1}, DefaultLimit},
		{"max", Filter{Limit: 1000}, MaxLimit},
		{"exact", Filter{Limit: 10}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Limit != tt.wantLimit || res.Offset != 0 {
				t.Errorf("Limit=%d Offset=%d, want %d/0", res.Limit, res.Offset, tt.wantLimit)
			}
			if res.Entries == nil {
				t.Error("Entries is nil, want empty slice")
			}
		})
	}

	if _, err := repo.List(context.Background(), Filter{Kind: "bogus"}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("List(bogus) error = %v, want ErrInvalidKind", err)
	}
}
