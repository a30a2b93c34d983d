// Package history keeps a log of finished classifications.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"deviation-classifier-go/internal/types"
)

// Record is one classified deviation: what went in, what the model said and
// what was returned after review.
type Record struct {
	ID        uuid.UUID            `json:"id"`
	Location  string               `json:"local"`
	Text      string               `json:"text"`
	HadAudio  bool                 `json:"had_audio"`
	Inferred  types.Classification `json:"inferred"`
	Final     types.Classification `json:"final"`
	CreatedAt time.Time            `json:"created_at"`
}

// Corrected reports whether review changed the model's record.
func (r Record) Corrected() bool { return r.Inferred != r.Final }

type Store interface {
	Save(ctx context.Context, rec *Record) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// DefaultLimit applies when Recent is called with a non-positive limit.
const DefaultLimit = 50

func normalize(rec *Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

// Nop discards records.
type Nop struct{}

func (Nop) Save(_ context.Context, rec *Record) error {
	normalize(rec)
	return nil
}

func (Nop) Recent(context.Context, int) ([]Record, error) { return []Record{}, nil }

// Memory keeps the last Cap records in process.
type Memory struct {
	Cap int

	mu   sync.Mutex
	recs []Record
}

func NewMemory(capacity int) *Memory { return &Memory{Cap: capacity} }

func (m *Memory) Save(_ context.Context, rec *Record) error {
	normalize(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	if m.Cap > 0 && len(m.recs) > m.Cap {
		m.recs = m.recs[len(m.recs)-m.Cap:]
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, min(limit, len(m.recs)))
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.recs[i])
	}
	return out, nil
}
