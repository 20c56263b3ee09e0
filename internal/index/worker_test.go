package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/bidfetch/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func register(t *testing.T, s *storage.Store, numbers ...string) {
	t.Helper()
	for _, n := range numbers {
		if _, err := s.RegisterItemNumber(n); err != nil {
			t.Fatalf("RegisterItemNumber(%q): %v", n, err)
		}
	}
}

func seqs(t *testing.T, s *storage.Store) map[string]string {
	t.Helper()
	entries, err := s.ListItemIndex(0, 0)
	if err != nil {
		t.Fatalf("ListItemIndex: %v", err)
	}
	out := map[string]string{}
	for _, e := range entries {
		if e.InternalSeq != nil {
			out[e.ItemNumber()] = *e.InternalSeq
		}
	}
	return out
}

func TestFormatSeq(t *testing.T) {
	if got := FormatSeq(42); got != "ITEM0000042" {
		t.Errorf("FormatSeq(42) = %q", got)
	}
}

func TestWorker_RunOnceAssignsInOrder(t *testing.T) {
	store := openTestStore(t)
	register(t, store, "ABC-1", "ABC-2-X", "DEF")

	w := NewWorker(store, time.Hour)
	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 3 {
		t.Fatalf("assigned %d, want 3", n)
	}

	got := seqs(t, store)
	want := map[string]string{"ABC-1": "ITEM0000001", "ABC-2-X": "ITEM0000002", "DEF": "ITEM0000003"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("seq[%s] = %q, want %q", k, got[k], v)
		}
	}

	n, err = w.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second RunOnce = %d, %v; want 0, nil", n, err)
	}
}

func TestWorker_ContinuesFromMax(t *testing.T) {
	store := openTestStore(t)
	register(t, store, "A-1")
	w := NewWorker(store, time.Hour)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	register(t, store, "A-2", "A-1")
	if n, err := w.RunOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("RunOnce = %d, %v; want 1, nil", n, err)
	}
	if got := seqs(t, store)["A-2"]; got != "ITEM0000002" {
		t.Errorf("seq[A-2] = %q, want ITEM0000002", got)
	}
}

func TestWorker_Rebuild(t *testing.T) {
	store := openTestStore(t)
	if err := store.SavePOHeader(storage.POHeader{PONumber: "1"}); err != nil {
		t.Fatal(err)
	}
	err := store.AddLineItems([]storage.LineItem{
		{PONumber: "1", ItemNumber: "ABC-123"},
		{PONumber: "1", ItemNumber: "ABC-123"},
		{PONumber: "1", ItemNumber: "XYZ"},
	})
	if err != nil {
		t.Fatal(err)
	}
	register(t, store, "XYZ")

	w := NewWorker(store, time.Hour)
	added, err := w.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if n, _ := store.CountItemIndex(); n != 2 {
		t.Errorf("index size = %d, want 2", n)
	}
}

type failingStore struct {
	ItemStore
}

func (failingStore) ItemsWithoutSeq(int) ([]storage.ItemIndexEntry, error) {
	return nil, errors.New("disk gone")
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	register(t, store, "R-1")

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(store, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for seqs(t, store)["R-1"] == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for sequence assignment")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWorker_RunOnceError(t *testing.T) {
	w := NewWorker(failingStore{}, time.Hour)
	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error from failing store")
	}
}
