package store

import (
	"context"
	"testing"
)

func TestPlan_Roundtrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	plan := []byte(`{"plan_id":"p1","operations":[]}`)
	if err := s.SavePlan(ctx, "p1", plan); err != nil {
		t.Fatalf("SavePlan() failed: %v", err)
	}

	loaded, ok, err := s.LoadPlan(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadPlan() failed: %v", err)
	}
	if !ok {
		t.Fatal("plan not found after save")
	}
	if string(loaded) != string(plan) {
		t.Errorf("loaded plan = %s, want %s", loaded, plan)
	}
}

func TestSavePlan_Immutable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SavePlan(ctx, "p1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("SavePlan() failed: %v", err)
	}
	// Re-saving the same id is a silent no-op.
	if err := s.SavePlan(ctx, "p1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("second SavePlan() failed: %v", err)
	}

	loaded, _, err := s.LoadPlan(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadPlan() failed: %v", err)
	}
	if string(loaded) != `{"v":1}` {
		t.Errorf("plan overwritten: got %s, want original", loaded)
	}
}

func TestLoadPlan_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.LoadPlan(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LoadPlan() failed: %v", err)
	}
	if ok {
		t.Error("ok = true for missing plan")
	}
}

func TestSaveResult_LatestRunWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveResult(ctx, "p1", []byte(`{"run":1}`)); err != nil {
		t.Fatalf("SaveResult() failed: %v", err)
	}
	// A re-execution overwrites the previous result.
	if err := s.SaveResult(ctx, "p1", []byte(`{"run":2}`)); err != nil {
		t.Fatalf("second SaveResult() failed: %v", err)
	}

	loaded, ok, err := s.LoadResult(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadResult() failed: %v", err)
	}
	if !ok {
		t.Fatal("result not found after save")
	}
	if string(loaded) != `{"run":2}` {
		t.Errorf("result = %s, want latest run", loaded)
	}
}

func TestLoadResult_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.LoadResult(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LoadResult() failed: %v", err)
	}
	if ok {
		t.Error("ok = true for never-executed plan")
	}
}
