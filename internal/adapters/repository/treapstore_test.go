package repository

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/okian/whodunit/internal/domain/model"
)

func TestTreapLedger_BasicOperations(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()

	if count := l.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	if err := l.ApplyDelta(ctx, 20, 1, "culprit_joined"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := l.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	entry, err := l.Rank(ctx, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 || entry.Score != 1 {
		t.Errorf("expected rank 1 score 1, got %+v", entry)
	}
	if entry.Nickname != "user-20" {
		t.Errorf("expected default nickname, got %q", entry.Nickname)
	}

	entries, err := l.Ranking(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != 20 {
		t.Errorf("unexpected ranking %+v", entries)
	}
}

func TestTreapLedger_UnknownUserStartsAtZero(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()

	if err := l.ApplyDelta(ctx, 30, 0, "detective_assigned"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, err := l.Rank(ctx, 30)
	if err != nil {
		t.Fatalf("zero delta should still register the user: %v", err)
	}
	if entry.Score != 0 {
		t.Errorf("expected score 0, got %d", entry.Score)
	}

	if err := l.ApplyDelta(ctx, 31, -2, "penalty"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, _ = l.Rank(ctx, 31)
	if entry.Score != -2 {
		t.Errorf("expected score -2, got %d", entry.Score)
	}
}

func TestTreapLedger_Ordering(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()

	// Registration order: 5, 3, 9, 1.
	for _, id := range []int64{5, 3, 9, 1} {
		if _, err := l.Register(ctx, id, ""); err != nil {
			t.Fatalf("register %d: %v", id, err)
		}
	}
	_ = l.ApplyDelta(ctx, 9, 4, "x")
	_ = l.ApplyDelta(ctx, 3, 2, "x")
	_ = l.ApplyDelta(ctx, 1, 2, "x")

	entries, err := l.Ranking(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{9, 3, 1, 5}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, id := range want {
		if entries[i].UserID != id {
			t.Errorf("position %d: expected user %d, got %d", i, id, entries[i].UserID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}

	top, _ := l.Ranking(ctx, 2)
	if len(top) != 2 || top[1].UserID != 3 {
		t.Errorf("unexpected top 2: %+v", top)
	}
}

func TestTreapLedger_TieBreaking(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()

	// Same score, registered in descending id order; earlier registration wins.
	for _, id := range []int64{40, 30, 20, 10} {
		_ = l.ApplyDelta(ctx, id, 3, "x")
	}
	entries, _ := l.Ranking(ctx, 10)
	for i, id := range []int64{40, 30, 20, 10} {
		if entries[i].UserID != id {
			t.Errorf("position %d: expected %d, got %d", i, id, entries[i].UserID)
		}
	}

	// Registration order survives score changes.
	_ = l.ApplyDelta(ctx, 40, 1, "x")
	_ = l.ApplyDelta(ctx, 40, -1, "x")
	entries, _ = l.Ranking(ctx, 1)
	if entries[0].UserID != 40 {
		t.Errorf("expected 40 to keep first place, got %d", entries[0].UserID)
	}
}

func TestTreapLedger_RankingIsStable(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()
	r := rand.New(rand.NewSource(7))
	for i := int64(1); i <= 200; i++ {
		_ = l.ApplyDelta(ctx, i, int64(r.Intn(5)), "x")
	}

	first, _ := l.Ranking(ctx, 200)
	for n := 0; n < 5; n++ {
		again, _ := l.Ranking(ctx, 200)
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("ranking changed between reads at %d: %+v vs %+v", i, first[i], again[i])
			}
		}
	}

	for i := 1; i < len(first); i++ {
		if first[i-1].Score < first[i].Score {
			t.Fatalf("ranking not sorted at %d", i)
		}
	}
	for _, e := range first {
		got, err := l.Rank(ctx, e.UserID)
		if err != nil {
			t.Fatalf("rank %d: %v", e.UserID, err)
		}
		if got.Rank != e.Rank {
			t.Errorf("user %d: Rank=%d Ranking=%d", e.UserID, got.Rank, e.Rank)
		}
	}
}

func TestTreapLedger_ConcurrentDeltas(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()

	const rounds = 200
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		for _, d := range []int64{1, 1, -1} {
			wg.Add(1)
			go func(delta int64) {
				defer wg.Done()
				if err := l.ApplyDelta(ctx, 20, delta, "x"); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}(d)
		}
	}
	wg.Wait()

	entry, err := l.Rank(ctx, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Score != rounds {
		t.Errorf("lost updates: expected %d, got %d", rounds, entry.Score)
	}
}

func TestTreapLedger_ApplyBatch(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()

	err := l.ApplyBatch(ctx, []model.ScoreChange{
		{UserID: 30, Delta: 3, Reason: "detective_correct", ActiveID: 100},
		{UserID: 20, Delta: 0, Reason: "culprit_caught", ActiveID: 100},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Count(ctx) != 2 {
		t.Errorf("expected both users registered, got %d", l.Count(ctx))
	}

	// An invalid id anywhere rejects the whole batch.
	err = l.ApplyBatch(ctx, []model.ScoreChange{
		{UserID: 30, Delta: 100},
		{UserID: 0, Delta: 1},
	})
	if !errors.Is(err, model.ErrInvalidArgument) || !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected invalid user, got %v", err)
	}
	entry, _ := l.Rank(ctx, 30)
	if entry.Score != 3 {
		t.Errorf("partial batch applied: score %d", entry.Score)
	}

	// Overflow anywhere rejects the whole batch.
	_ = l.ApplyDelta(ctx, 50, math.MaxInt64-1, "x")
	err = l.ApplyBatch(ctx, []model.ScoreChange{
		{UserID: 30, Delta: 1},
		{UserID: 50, Delta: 1},
		{UserID: 50, Delta: 1},
	})
	if !errors.Is(err, ErrScoreOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	entry, _ = l.Rank(ctx, 30)
	if entry.Score != 3 {
		t.Errorf("partial batch applied: score %d", entry.Score)
	}
}

func TestTreapLedger_RegisterAndHistory(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger(WithHistoryLimit(2))

	entry, err := l.Register(ctx, 10, "  Holmes ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Nickname != "Holmes" || entry.Score != 0 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if got := l.Nickname(ctx, 10); got != "Holmes" {
		t.Errorf("nickname = %q", got)
	}
	if got := l.Nickname(ctx, 99); got != "user-99" {
		t.Errorf("nickname of unknown user = %q", got)
	}

	// Re-registering keeps the score and only renames.
	_ = l.ApplyDelta(ctx, 10, 2, "a")
	entry, _ = l.Register(ctx, 10, "Sherlock")
	if entry.Score != 2 || entry.Nickname != "Sherlock" {
		t.Errorf("unexpected entry after rename %+v", entry)
	}

	_ = l.ApplyDelta(ctx, 10, 1, "b")
	_ = l.ApplyDelta(ctx, 10, 1, "c")
	hist, err := l.History(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hist) != 2 || hist[0].Reason != "b" || hist[1].Reason != "c" {
		t.Errorf("unexpected history %+v", hist)
	}
	if hist[0].At.IsZero() {
		t.Error("history entries should be stamped")
	}

	if _, err := l.History(ctx, 77); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := l.Register(ctx, -1, "x"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestTreapLedger_EdgeCases(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()

	if _, err := l.Ranking(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected invalid limit, got %v", err)
	}
	if _, err := l.Rank(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	entries, err := l.Ranking(ctx, 5)
	if err != nil || len(entries) != 0 {
		t.Errorf("expected empty ranking, got %v %v", entries, err)
	}
	if err := l.ApplyBatch(ctx, nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestTreapLedger_TreeSizesStayConsistent(t *testing.T) {
	ctx := context.Background()
	l := NewTreapLedger()
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		_ = l.ApplyDelta(ctx, int64(r.Intn(300)+1), int64(r.Intn(7)-3), "x")
	}

	var check func(n *node) int
	check = func(n *node) int {
		if n == nil {
			return 0
		}
		s := 1 + check(n.left) + check(n.right)
		if s != n.size {
			t.Fatalf("node %d: size %d, counted %d", n.id, n.size, s)
		}
		return s
	}
	if got := check(l.root); got != l.Count(ctx) {
		t.Errorf("tree holds %d nodes, ledger %d users", got, l.Count(ctx))
	}
}
