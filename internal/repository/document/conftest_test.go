package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aero-edu/aero/internal/db"
	"github.com/aero-edu/aero/internal/domain"
)

var errStore = errors.New("store down")

// fakeStore is an in-memory implementation of the consumer interface.
// failOn makes the named operation return errStore.
type fakeStore struct {
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	failOn map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
		failOn: map[string]bool{},
	}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if f.failOn["hset"] {
		return errStore
	}
	m, ok := f.hashes[key]
	if !ok {
		m = map[string]string{}
		f.hashes[key] = m
	}
	for k, v := range fields {
		m[k] = v
	}
	return nil
}

func (f *fakeStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if f.failOn["hsetmulti"] {
		return errStore
	}
	for _, it := range items {
		if err := f.HSet(ctx, it.Key, it.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.failOn["hgetall"] {
		return nil, errStore
	}
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if f.failOn["hgetallmulti"] {
		return nil, errStore
	}
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		m, _ := f.HGetAll(ctx, k)
		out[i] = m
	}
	return out, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if f.failOn["del"] {
		return errStore
	}
	for _, k := range keys {
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	if f.failOn["exists"] {
		return false, errStore
	}
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...string) error {
	if f.failOn["sadd"] {
		return errStore
	}
	s, ok := f.sets[key]
	if !ok {
		s = map[string]struct{}{}
		f.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (f *fakeStore) SRem(_ context.Context, key string, members ...string) error {
	if f.failOn["srem"] {
		return errStore
	}
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

func (f *fakeStore) SMembers(_ context.Context, key string) ([]string, error) {
	if f.failOn["smembers"] {
		return nil, errStore
	}
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func newTestRepo(t *testing.T) (*Repo, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	return New(fs, "aero:"), fs
}

func testDocument(id, scope string, status domain.IngestStatus) domain.Document {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	return domain.Document{
		ID:        id,
		Title:     "Algebra basics",
		Source:    domain.SourcePDF,
		Scope:     scope,
		TextLen:   4200,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:           ChunkID(docID, i),
			DocumentID:   docID,
			Seq:          i,
			Text:         "chunk text",
			Vector:       []float32{float32(i), 1, 0},
			ModelVersion: "m/3",
		}
	}
	return chunks
}
