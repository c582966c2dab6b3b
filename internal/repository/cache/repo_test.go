package cache

import (
	"context"
	"errors"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/aero-edu/aero/internal/db"
	"github.com/aero-edu/aero/internal/domain"
)

var errStore = errors.New("store down")

// fakeStore is an in-memory implementation of the consumer interface.
// failOn makes the named operation return errStore.
type fakeStore struct {
	kv     map[string][]byte
	sets   map[string]map[string]struct{}
	failOn map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:     map[string][]byte{},
		sets:   map[string]map[string]struct{}{},
		failOn: map[string]bool{},
	}
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if f.failOn["get"] {
		return nil, errStore
	}
	v, ok := f.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	if f.failOn["set"] {
		return errStore
	}
	f.kv[key] = value
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if f.failOn["del"] {
		return errStore
	}
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.sets, k)
	}
	return nil
}

func (f *fakeStore) Expire(_ context.Context, _ string, _ time.Duration) error {
	if f.failOn["expire"] {
		return errStore
	}
	return nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	if f.failOn["scan"] {
		return nil, errStore
	}
	var out []string
	for k := range f.kv {
		if ok, _ := path.Match(pattern, k); ok || strings.HasPrefix(k, strings.TrimSuffix(pattern, "*")) {
			out = append(out, k)
		}
	}
	return out, nil
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

func testEntry(fp, scope string, chunkIDs ...string) Entry {
	docIDs := make([]string, 0, len(chunkIDs))
	for _, c := range chunkIDs {
		docIDs = append(docIDs, strings.SplitN(c, "#", 2)[0])
	}
	return Entry{
		Fingerprint: fp,
		Scope:       scope,
		Answer:      "A prime number has exactly two divisors.",
		ChunkIDs:    chunkIDs,
		DocumentIDs: docIDs,
		CreatedAt:   time.Now().UTC(),
		TTLSec:      3600,
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "aero:")
	ctx := context.Background()

	e := testEntry("fp-1", "math-7", "doc-1#0000", "doc-1#0001")
	if err := repo.Put(ctx, e, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, found, err := repo.Get(ctx, "math-7", "fp-1")
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if got.Answer != e.Answer || len(got.ChunkIDs) != 2 {
		t.Errorf("entry lost in round trip: %+v", got)
	}
}

func TestGet_Miss(t *testing.T) {
	repo := New(newFakeStore(), "aero:")

	_, found, err := repo.Get(context.Background(), "math-7", "nope")
	if err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}
}

func TestGet_StoreDownIsUnavailable(t *testing.T) {
	fs := newFakeStore()
	fs.failOn["get"] = true
	repo := New(fs, "aero:")

	_, found, err := repo.Get(context.Background(), "math-7", "fp-1")
	if found {
		t.Error("expected no hit")
	}
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestGet_CorruptEntryIsMiss(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "aero:")

	fs.kv["aero:resp:math-7:fp-1"] = []byte("{not json")
	_, found, err := repo.Get(context.Background(), "math-7", "fp-1")
	if err != nil || found {
		t.Fatalf("corrupt entry should be a miss, got found=%v err=%v", found, err)
	}
}

func TestEntry_Expired(t *testing.T) {
	e := Entry{CreatedAt: time.Now().Add(-2 * time.Hour), TTLSec: 3600}
	if !e.Expired(time.Now()) {
		t.Error("entry past its TTL should be expired")
	}

	e = Entry{CreatedAt: time.Now(), TTLSec: 3600}
	if e.Expired(time.Now()) {
		t.Error("fresh entry should not be expired")
	}
}

func TestInvalidateChunks_RemovesLinkedEntries(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "aero:")
	ctx := context.Background()

	// Two entries share chunk doc-1#0000; a third is unrelated.
	if err := repo.Put(ctx, testEntry("fp-1", "math-7", "doc-1#0000", "doc-1#0001"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Put(ctx, testEntry("fp-2", "math-7", "doc-1#0000"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Put(ctx, testEntry("fp-3", "math-7", "doc-2#0000"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := repo.InvalidateChunks(ctx, []string{"doc-1#0000", "doc-1#0001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 invalidated entries, got %d", n)
	}

	if _, found, _ := repo.Get(ctx, "math-7", "fp-1"); found {
		t.Error("fp-1 survived invalidation")
	}
	if _, found, _ := repo.Get(ctx, "math-7", "fp-2"); found {
		t.Error("fp-2 survived invalidation")
	}
	if _, found, _ := repo.Get(ctx, "math-7", "fp-3"); !found {
		t.Error("unrelated entry was invalidated")
	}

	// Reverse-index keys must go too.
	if len(fs.sets["aero:respidx:doc-1#0000"]) != 0 {
		t.Error("reverse index key survived invalidation")
	}
}

func TestInvalidateChunks_Empty(t *testing.T) {
	repo := New(newFakeStore(), "aero:")

	n, err := repo.InvalidateChunks(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("expected no-op, got n=%d err=%v", n, err)
	}
}

func TestInvalidateChunks_StoreDown(t *testing.T) {
	fs := newFakeStore()
	fs.failOn["smembers"] = true
	repo := New(fs, "aero:")

	_, err := repo.InvalidateChunks(context.Background(), []string{"doc-1#0000"})
	if !errors.Is(err, domain.ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable, got %v", err)
	}
}

func TestFlushScope(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "aero:")
	ctx := context.Background()

	if err := repo.Put(ctx, testEntry("fp-1", "math-7", "doc-1#0000"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Put(ctx, testEntry("fp-2", "bio-7", "doc-9#0000"), time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.FlushScope(ctx, "math-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, found, _ := repo.Get(ctx, "math-7", "fp-1"); found {
		t.Error("scope entry survived flush")
	}
	if _, found, _ := repo.Get(ctx, "bio-7", "fp-2"); !found {
		t.Error("other scope was flushed")
	}
}

func TestPut_PartialFailureNeverLeavesUnlinkedEntry(t *testing.T) {
	ctx := context.Background()

	// Entry write fails after the links went in: dangling links are fine,
	// they expire on their own.
	fs := newFakeStore()
	repo := New(fs, "aero:")
	fs.failOn["set"] = true
	if err := repo.Put(ctx, testEntry("fp-1", "math-7", "d-1#0000"), time.Hour); err == nil {
		t.Fatal("expected error")
	}
	if _, found, _ := repo.Get(ctx, "math-7", "fp-1"); found {
		t.Error("unreachable entry was written")
	}

	// Link write fails first: the entry must not be written either, or a
	// later InvalidateChunks could never find it.
	fs = newFakeStore()
	repo = New(fs, "aero:")
	fs.failOn["sadd"] = true
	if err := repo.Put(ctx, testEntry("fp-1", "math-7", "d-1#0000"), time.Hour); err == nil {
		t.Fatal("expected error")
	}
	if _, found, _ := repo.Get(ctx, "math-7", "fp-1"); found {
		t.Error("entry written without its reverse-index links")
	}
}
