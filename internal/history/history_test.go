package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"deviation-classifier-go/internal/types"
)

var (
	inferred = types.Classification{Severity: 3, Urgency: 3, Trend: 2, Type: 2, Routing: 2, Category: 1}
	final    = types.Classification{Severity: 5, Urgency: 4, Trend: 2, Type: 2, Routing: 2, Category: 1}
)

func TestNop(t *testing.T) {
	var s Store = Nop{}
	rec := &Record{Location: "Setor 3", Text: "risco de queda", Inferred: inferred, Final: final}
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rec.ID == uuid.Nil || rec.CreatedAt.IsZero() {
		t.Error("Save should assign id and timestamp")
	}
	recs, err := s.Recent(context.Background(), 10)
	if err != nil || recs == nil || len(recs) != 0 {
		t.Errorf("expected empty non-nil list, got %v, %v", recs, err)
	}
}

func TestMemory_RecentNewestFirst(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	for _, loc := range []string{"a", "b", "c", "d"} {
		if err := m.Save(ctx, &Record{Location: loc, Inferred: inferred, Final: inferred}); err != nil {
			t.Fatal(err)
		}
	}

	recs, _ := m.Recent(ctx, 0)
	if len(recs) != 3 {
		t.Fatalf("expected capacity to bound records, got %d", len(recs))
	}
	if recs[0].Location != "d" || recs[2].Location != "b" {
		t.Errorf("unexpected order %v, %v", recs[0].Location, recs[2].Location)
	}

	recs, _ = m.Recent(ctx, 1)
	if len(recs) != 1 || recs[0].Location != "d" {
		t.Errorf("unexpected limited result %+v", recs)
	}
}

func TestRecord_Corrected(t *testing.T) {
	if (Record{Inferred: inferred, Final: inferred}).Corrected() {
		t.Error("identical records are not a correction")
	}
	if !(Record{Inferred: inferred, Final: final}).Corrected() {
		t.Error("expected correction")
	}
}

type fakeRow struct {
	values []any
}

func (f fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = f.values[i].(uuid.UUID)
		case *string:
			*p = f.values[i].(string)
		case *bool:
			*p = f.values[i].(bool)
		case *[]byte:
			*p = f.values[i].([]byte)
		case *time.Time:
			*p = f.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanRecord(t *testing.T) {
	id := uuid.New()
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	row := fakeRow{values: []any{
		id, "Setor 3", "risco de queda", true,
		[]byte(`{"severity":3,"urgency":3,"trend":2,"type":2,"routing":2,"category":1}`),
		[]byte(`{"severity":5,"urgency":4,"trend":2,"type":2,"routing":2,"category":1}`),
		now,
	}}

	rec, err := scanRecord(row)
	if err != nil {
		t.Fatalf("scanRecord failed: %v", err)
	}
	if rec.ID != id || rec.Location != "Setor 3" || !rec.HadAudio || !rec.CreatedAt.Equal(now) {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Inferred != inferred || rec.Final != final {
		t.Errorf("classifications not decoded: %+v", rec)
	}

	row.values[5] = []byte(`{"severity":9,"urgency":4,"trend":2,"type":2,"routing":2,"category":1}`)
	if _, err := scanRecord(row); err == nil {
		t.Error("expected out-of-domain stored record to be rejected")
	}
}

// TestPostgres runs against a real database when HISTORY_TEST_DSN is set.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("HISTORY_TEST_DSN")
	if dsn == "" {
		t.Skip("HISTORY_TEST_DSN not set")
	}
	ctx := context.Background()
	p, err := Open(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	rec := &Record{Location: "Setor 3", Text: "risco de queda", Inferred: inferred, Final: final}
	if err := p.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	recs, err := p.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	for _, r := range recs {
		if r.ID == rec.ID {
			if r.Final != final || r.Inferred != inferred {
				t.Errorf("round trip mismatch %+v", r)
			}
			return
		}
	}
	t.Error("saved record not returned by Recent")
}
