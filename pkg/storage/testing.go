package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// StoreTestSuite runs the same behavioural checks against any Store implementation.
type StoreTestSuite struct {
	NewStore func(t *testing.T) Store
}

// RunAllTests runs all store tests against the provided implementation.
func (s *StoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("PutGet", s.TestPutGet)
	t.Run("LatestWins", s.TestLatestWins)
	t.Run("ListSorted", s.TestListSorted)
	t.Run("NotFound", s.TestNotFound)
	t.Run("NilReading", s.TestNilReading)
	t.Run("ConcurrentPuts", s.TestConcurrentPuts)
}

// TestPutGet checks a single round trip.
func (s *StoreTestSuite) TestPutGet(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	at := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	if err := store.Put(ctx, &Reading{Name: "Speed", Value: 80.0, ReceivedAt: at}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "Speed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value != 80.0 {
		t.Errorf("expected 80.0, got %f", got.Value)
	}
	if !got.ReceivedAt.Equal(at) {
		t.Errorf("expected %v, got %v", at, got.ReceivedAt)
	}
	if got.Count != 1 {
		t.Errorf("expected count 1, got %d", got.Count)
	}
}

// TestLatestWins checks that a second Put replaces the value and bumps the count.
func (s *StoreTestSuite) TestLatestWins(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, v := range []float64{10, 20, 30} {
		if err := store.Put(ctx, &Reading{Name: "Speed", Value: v}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := store.Get(ctx, "Speed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Value != 30 {
		t.Errorf("expected latest value 30, got %f", got.Value)
	}
	if got.Count != 3 {
		t.Errorf("expected count 3, got %d", got.Count)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("expected ReceivedAt to be set")
	}
}

// TestListSorted checks List ordering.
func (s *StoreTestSuite) TestListSorted(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, name := range []string{"Speed", "AmbientTemperature", "EngineRPM"} {
		if err := store.Put(ctx, &Reading{Name: name, Value: 1}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"AmbientTemperature", "EngineRPM", "Speed"}
	if len(list) != len(want) {
		t.Fatalf("expected %d readings, got %d", len(want), len(list))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Name, name)
		}
	}
}

// TestNotFound checks the error type for unknown signals.
func (s *StoreTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "Missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Name != "Missing" {
		t.Errorf("expected name Missing, got %s", nf.Name)
	}

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
}

// TestNilReading checks that a nil reading is rejected.
func (s *StoreTestSuite) TestNilReading(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	if err := store.Put(context.Background(), nil); err == nil {
		t.Error("expected error for nil reading")
	}
}

// TestConcurrentPuts checks counts under concurrent writers.
func (s *StoreTestSuite) TestConcurrentPuts(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := store.Put(ctx, &Reading{Name: "Speed", Value: float64(i)}); err != nil {
					t.Errorf("Put failed: %v", err)
				}
				if err := store.Put(ctx, &Reading{Name: fmt.Sprintf("Sensor%d", w), Value: float64(i)}); err != nil {
					t.Errorf("Put failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	got, err := store.Get(ctx, "Speed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Count != writers*perWriter {
		t.Errorf("expected count %d, got %d", writers*perWriter, got.Count)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != writers+1 {
		t.Errorf("expected %d signals, got %d", writers+1, len(list))
	}
}
