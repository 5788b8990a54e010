// Package result persists submission records as JSON files, one per
// submission.
package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/signalnine/agentarena/internal/execution"
	"github.com/signalnine/agentarena/internal/submission"
)

// FileStore implements submission.Store on a directory. Records are
// cached in memory and every change is written through.
type FileStore struct {
	dir string

	mu      sync.Mutex
	records map[string]*submission.Record
	seq     int64
	now     func() time.Time
}

// OpenFileStore loads every record under dir/submissions, creating the
// directory if needed. Unreadable files fail the open rather than being
// skipped, so a corrupt store is noticed.
func OpenFileStore(dir string) (*FileStore, error) {
	subDir := filepath.Join(dir, "submissions")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating submissions dir: %w", err)
	}
	s := &FileStore{dir: subDir, records: map[string]*submission.Record{}, now: time.Now}
	entries, err := os.ReadDir(subDir)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		r, err := ReadRecord(filepath.Join(subDir, e.Name()))
		if err != nil {
			return nil, err
		}
		s.records[r.ID] = r
		if r.Seq > s.seq {
			s.seq = r.Seq
		}
	}
	return s, nil
}

// Dir is the directory records are written to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Create(ctx context.Context, r *submission.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" || strings.ContainsAny(r.ID, `/\`) {
		return execution.Errorf(execution.ErrValidation, "invalid submission id %q", r.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return execution.Errorf(execution.ErrValidation, "submission %s already exists", r.ID)
	}
	s.seq++
	r.Seq = s.seq
	submission.Stamp(r, s.now())
	if err := WriteRecord(s.path(r.ID), r); err != nil {
		s.seq--
		return err
	}
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*submission.Record, error) {
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

func (s *FileStore) Mutate(ctx context.Context, id string, fn func(*submission.Record) error) (*submission.Record, error) {
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
	if err := WriteRecord(s.path(id), work); err != nil {
		return nil, err
	}
	s.records[id] = work
	return work.Clone(), nil
}

func (s *FileStore) ListByTask(ctx context.Context, taskID string) ([]*submission.Record, error) {
	return s.list(ctx, func(r *submission.Record) bool { return r.TaskID == taskID })
}

func (s *FileStore) ListByUser(ctx context.Context, userID string) ([]*submission.Record, error) {
	return s.list(ctx, func(r *submission.Record) bool { return r.UserID == userID })
}

func (s *FileStore) List(ctx context.Context) ([]*submission.Record, error) {
	return s.list(ctx, func(*submission.Record) bool { return true })
}

func (s *FileStore) list(ctx context.Context, keep func(*submission.Record) bool) ([]*submission.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []*submission.Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.Unlock()
	submission.SortBySeq(out)
	return out, nil
}

// WriteRecord writes r as indented JSON, replacing path atomically.
func WriteRecord(path string, r *submission.Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling submission: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing submission: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing submission: %w", err)
	}
	return nil
}

func ReadRecord(path string) (*submission.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading submission: %w", err)
	}
	var r submission.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing submission %s: %w", filepath.Base(path), err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("parsing submission %s: %w", filepath.Base(path), errors.New("missing id"))
	}
	return &r, nil
}

var _ submission.Store = (*FileStore)(nil)
