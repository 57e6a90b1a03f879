package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/ranking"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func standing(stage int, id string, utility float64) model.StageStanding {
	return model.StageStanding{TeamID: id, Stage: stage, CumulativeUtility: utility, RegisteredAt: epoch}
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	if count := store.Count(ctx, 1); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	if err := store.Upsert(ctx, standing(1, "alpha", 12.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx, 1); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	st, err := store.Rank(ctx, 1, "alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Rank != 1 {
		t.Errorf("expected rank 1, got %d", st.Rank)
	}
	if st.CumulativeUtility != 12.5 {
		t.Errorf("expected utility 12.5, got %f", st.CumulativeUtility)
	}

	rows, err := store.TopN(ctx, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].TeamID != "alpha" {
		t.Errorf("expected [alpha], got %+v", rows)
	}
}

func TestTreapStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	_ = store.Upsert(ctx, standing(1, "alpha", 10))
	_ = store.Upsert(ctx, standing(1, "beta", 20))

	// Standings may go down as well as up; the latest fold wins.
	_ = store.Upsert(ctx, standing(1, "beta", 5))

	if count := store.Count(ctx, 1); count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
	st, _ := store.Rank(ctx, 1, "alpha")
	if st.Rank != 1 {
		t.Errorf("expected alpha rank 1, got %d", st.Rank)
	}
	st, _ = store.Rank(ctx, 1, "beta")
	if st.Rank != 2 || st.CumulativeUtility != 5 {
		t.Errorf("expected beta rank 2 utility 5, got rank %d utility %f", st.Rank, st.CumulativeUtility)
	}
}

func TestTreapStore_RankingChain(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	rows := []model.StageStanding{
		{TeamID: "d", Stage: 1, CumulativeUtility: 30, MaxSingleItemUtility: 5, ItemsWon: 2, RegisteredAt: epoch},
		{TeamID: "c", Stage: 1, CumulativeUtility: 30, MaxSingleItemUtility: 5, ItemsWon: 2, RegisteredAt: epoch.Add(-time.Hour)},
		{TeamID: "b", Stage: 1, CumulativeUtility: 30, MaxSingleItemUtility: 5, ItemsWon: 3, RegisteredAt: epoch},
		{TeamID: "a", Stage: 1, CumulativeUtility: 30, MaxSingleItemUtility: 8, ItemsWon: 1, RegisteredAt: epoch},
		{TeamID: "e", Stage: 1, CumulativeUtility: 31, RegisteredAt: epoch},
		{TeamID: "f", Stage: 1, CumulativeUtility: 30, MaxSingleItemUtility: 5, ItemsWon: 2, RegisteredAt: epoch},
	}
	for _, r := range rows {
		if err := store.Upsert(ctx, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []string{"e", "a", "b", "c", "d", "f"}
	got, _ := store.TopN(ctx, 1, 10)
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].TeamID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].TeamID)
		}
		if got[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, got[i].Rank)
		}
		st, err := store.Rank(ctx, 1, id)
		if err != nil || st.Rank != i+1 {
			t.Errorf("Rank(%s): expected %d, got %d (%v)", id, i+1, st.Rank, err)
		}
	}
}

func TestTreapStore_StagesAreSeparate(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	_ = store.Upsert(ctx, standing(2, "alpha", 1))
	_ = store.Upsert(ctx, standing(1, "alpha", 50))
	_ = store.Upsert(ctx, standing(1, "beta", 40))

	if got := store.Stages(ctx); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected stages [1 2], got %v", got)
	}
	if count := store.Count(ctx, 2); count != 1 {
		t.Errorf("expected 1 standing in stage 2, got %d", count)
	}
	st, _ := store.Rank(ctx, 2, "alpha")
	if st.CumulativeUtility != 1 {
		t.Errorf("expected stage 2 utility 1, got %f", st.CumulativeUtility)
	}
	if _, err := store.Rank(ctx, 2, "beta"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTreapStore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	if _, err := store.TopN(ctx, 1, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := store.Rank(ctx, 1, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Upsert(ctx, model.StageStanding{Stage: 1}); !errors.Is(err, ErrInvalidStanding) {
		t.Errorf("expected ErrInvalidStanding, got %v", err)
	}
	rows, err := store.TopN(ctx, 9, 5)
	if err != nil || len(rows) != 0 {
		t.Errorf("expected empty stage, got %v (%v)", rows, err)
	}
}

func TestTreapStore_RankCorrectnessUnderStress(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	rng := rand.New(rand.NewSource(7))
	const numTeams = 1000
	all := make([]model.StageStanding, 0, numTeams)
	for i := 0; i < numTeams; i++ {
		st := model.StageStanding{
			TeamID:               fmt.Sprintf("team_%04d", i),
			Stage:                1,
			CumulativeUtility:    float64(rng.Intn(200)),
			MaxSingleItemUtility: float64(rng.Intn(10)),
			ItemsWon:             rng.Intn(5),
			RegisteredAt:         epoch.Add(time.Duration(rng.Intn(3)) * time.Hour),
		}
		all = append(all, st)
		if err := store.Upsert(ctx, st); err != nil {
			t.Fatalf("failed to insert %s: %v", st.TeamID, err)
		}
	}
	// Re-fold a tenth of them.
	for i := 0; i < numTeams; i += 10 {
		all[i].CumulativeUtility = float64(rng.Intn(200))
		_ = store.Upsert(ctx, all[i])
	}

	ranking.Sort(all)
	for _, want := range all {
		got, err := store.Rank(ctx, 1, want.TeamID)
		if err != nil {
			t.Fatalf("Rank(%s): %v", want.TeamID, err)
		}
		if got.Rank != want.Rank {
			t.Errorf("%s: expected rank %d, got %d", want.TeamID, want.Rank, got.Rank)
		}
	}

	for _, limit := range []int{1, 10, 100, 1000, 1500} {
		rows, err := store.TopN(ctx, 1, limit)
		if err != nil {
			t.Fatalf("TopN(%d) failed: %v", limit, err)
		}
		if len(rows) != min(limit, numTeams) {
			t.Errorf("TopN(%d) returned %d rows", limit, len(rows))
		}
		for i := range rows {
			if rows[i].TeamID != all[i].TeamID {
				t.Errorf("TopN(%d) row %d: expected %s, got %s", limit, i, all[i].TeamID, rows[i].TeamID)
				break
			}
		}
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	const numGoroutines, numUpdates = 10, 100
	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				teamID := fmt.Sprintf("team%d_%d", id, j%20)
				if err := store.Upsert(ctx, standing(1+id%2, teamID, float64(j))); err != nil {
					t.Errorf("goroutine %d: unexpected error: %v", id, err)
				}
				_, _ = store.TopN(ctx, 1+id%2, 5)
			}
		}(g)
	}
	wg.Wait()

	total := store.Count(ctx, 1) + store.Count(ctx, 2)
	if total != numGoroutines*20 {
		t.Errorf("expected %d standings, got %d", numGoroutines*20, total)
	}
}

func TestTreapStore_PeriodicSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx, WithSnapshotInterval(10*time.Millisecond), WithTopCacheSize(2))
	defer store.Close()

	if snap := store.Snapshot(); snap == nil || len(snap.Top) != 0 {
		t.Fatalf("expected an empty initial snapshot, got %+v", snap)
	}

	_ = store.Upsert(ctx, standing(1, "a", 3))
	_ = store.Upsert(ctx, standing(1, "b", 2))
	_ = store.Upsert(ctx, standing(1, "c", 1))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := store.Snapshot(); snap.Counts[1] == 3 {
			if len(snap.Top[1]) != 2 || snap.Top[1][0].TeamID != "a" {
				t.Errorf("unexpected top cache: %+v", snap.Top[1])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("snapshot never caught up")
}

func TestTreapStore_CloseBehavior(t *testing.T) {
	store := NewTreapStore(context.Background())
	if err := store.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// Writes still work after Close; only the background loop stops.
	if err := store.Upsert(context.Background(), standing(1, "late", 1)); err != nil {
		t.Errorf("unexpected error after close: %v", err)
	}
}

func BenchmarkTreapStore_Upsert(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = store.Upsert(ctx, standing(1, fmt.Sprintf("team_%d", i%10_000), float64(i%997)))
	}
}

func BenchmarkTreapStore_MixedLoad(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	for i := 0; i < 10_000; i++ {
		_ = store.Upsert(ctx, standing(1, fmt.Sprintf("team_%d", i), float64(i%997)))
	}

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			switch i % 4 {
			case 0:
				_ = store.Upsert(ctx, standing(1, fmt.Sprintf("team_%d", i%10_000), float64(i%997)))
			case 1:
				_, _ = store.Rank(ctx, 1, fmt.Sprintf("team_%d", i%10_000))
			case 2:
				_, _ = store.TopN(ctx, 1, 50)
			default:
				store.Count(ctx, 1)
			}
			i++
		}
	})
}
