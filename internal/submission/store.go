package submission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/signalnine/agentarena/internal/execution"
)

// Store persists submission records. Implementations are safe for
// concurrent use and return copies; callers never share a record with the
// store.
type Store interface {
	// Create stores a new record, assigning Seq and timestamps.
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Mutate applies fn to the stored record atomically. When fn fails
	// nothing is written.
	Mutate(ctx context.Context, id string, fn func(*Record) error) (*Record, error)
	ListByTask(ctx context.Context, taskID string) ([]*Record, error)
	ListByUser(ctx context.Context, userID string) ([]*Record, error)
	List(ctx context.Context) ([]*Record, error)
}

// MemoryStore keeps records in a map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	seq     int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]*Record{}, now: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" {
		return execution.Errorf(execution.ErrValidation, "submission id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return execution.Errorf(execution.ErrValidation, "submission %s already exists", r.ID)
	}
	s.seq++
	r.Seq = s.seq
	Stamp(r, s.now())
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, execution.Errorf(execution.ErrNotFound, "submission %s not found", id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id string, fn func(*Record) error) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, execution.Errorf(execution.ErrNotFound, "submission %s not found", id)
	}
	work := r.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.ID, work.Seq, work.CreatedAt = r.ID, r.Seq, r.CreatedAt
	work.UpdatedAt = s.now()
	s.records[id] = work
	return work.Clone(), nil
}

func (s *MemoryStore) ListByTask(ctx context.Context, taskID string) ([]*Record, error) {
	return s.list(ctx, func(r *Record) bool { return r.TaskID == taskID })
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	return s.list(ctx, func(r *Record) bool { return r.UserID == userID })
}

func (s *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	return s.list(ctx, func(*Record) bool { return true })
}

func (s *MemoryStore) list(ctx context.Context, keep func(*Record) bool) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []*Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.Unlock()
	SortBySeq(out)
	return out, nil
}

// Stamp fills CreatedAt and UpdatedAt on a new record.
func Stamp(r *Record, now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}

// SortBySeq orders records by creation.
func SortBySeq(rs []*Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Seq < rs[j].Seq })
}
