package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"piiguard/internal/anonymizer"
	"piiguard/internal/core"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	sess := NewSession("s-1")
	sess.Mapping.Assign(core.EntityPerson, "Alice")
	sess.History = append(sess.History, core.Message{Role: "user", Content: "hi <PERSON_1>"})

	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "s-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mapping.Len() != 1 {
		t.Errorf("mapping length = %d, want 1", got.Mapping.Len())
	}
	if orig, ok := got.Mapping.Lookup("<PERSON_1>"); !ok || orig != "Alice" {
		t.Errorf("Lookup(<PERSON_1>) = %q, %v", orig, ok)
	}
	if len(got.History) != 1 {
		t.Errorf("history length = %d, want 1", len(got.History))
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on missing session = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	sess := NewSession("s-1")
	if err := store.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	// Mutating the retrieved copy must not affect stored state.
	got, _ := store.Get(ctx, "s-1")
	got.Mapping.Assign(core.EntityPerson, "Bob")

	again, _ := store.Get(ctx, "s-1")
	if again.Mapping.Len() != 0 {
		t.Errorf("stored mapping mutated through a retrieved copy: len = %d", again.Mapping.Len())
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	_ = store.Put(ctx, NewSession("s-1"))
	if err := store.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "s-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// Deleting twice is fine.
	if err := store.Delete(ctx, "s-1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(NewMemoryStore(0))
	defer m.Close()
	ctx := context.Background()

	sess, err := m.GetOrCreate(ctx, "fresh")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID != "fresh" || sess.Mapping.Len() != 0 {
		t.Errorf("unexpected new session: %+v", sess)
	}

	// Not persisted until Commit.
	if _, err := m.Get(ctx, "fresh"); !errors.Is(err, ErrNotFound) {
		t.Errorf("uncommitted session should be absent, got %v", err)
	}

	sess.Mapping.Assign(core.EntityPerson, "Alice")
	if err := m.Commit(ctx, sess); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := m.Get(ctx, "fresh")
	if err != nil {
		t.Fatalf("Get after commit: %v", err)
	}
	if got.Mapping.Len() != 1 {
		t.Errorf("committed mapping length = %d, want 1", got.Mapping.Len())
	}
}

func TestManagerLockSerializesTurns(t *testing.T) {
	m := NewManager(NewMemoryStore(0))
	defer m.Close()
	ctx := context.Background()

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("shared")
			defer unlock()

			sess, err := m.GetOrCreate(ctx, "shared")
			if err != nil {
				t.Error(err)
				return
			}
			res := anonymizer.Anonymize("Bob", []core.EntitySpan{
				{Type: core.EntityPerson, Start: 0, End: 3, Confidence: 0.9},
			}, sess.Mapping)
			sess.Mapping = res.Mapping
			if err := m.Commit(ctx, sess); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := m.Get(ctx, "shared")
	if err != nil {
		t.Fatal(err)
	}
	// Same value always dedups to a single placeholder, no lost updates.
	if got.Mapping.Len() != 1 {
		t.Errorf("mapping length = %d, want 1", got.Mapping.Len())
	}
	if got.Mapping.Counters[core.EntityPerson] != 1 {
		t.Errorf("PERSON counter = %d, want 1", got.Mapping.Counters[core.EntityPerson])
	}
}

func TestSessionCloneIndependence(t *testing.T) {
	sess := NewSession("s")
	sess.History = []core.Message{{Role: "user", Content: "a"}}
	c := sess.Clone()
	c.History[0].Content = "b"
	c.Mapping.Assign(core.EntityPerson, "X")

	if sess.History[0].Content != "a" {
		t.Error("clone shares history with original")
	}
	if sess.Mapping.Len() != 0 {
		t.Error("clone shares mapping with original")
	}
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore("memory", "", time.Minute)
	if err != nil {
		t.Fatalf("NewStore(memory): %v", err)
	}
	_ = store.Close()

	if _, err := NewStore("redis", "", 0); err == nil {
		t.Error("redis backend without URL should fail")
	}
	if _, err := NewStore("etcd", "", 0); err == nil {
		t.Error("unknown backend should fail")
	}
}
