package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/okian/whodunit/internal/domain/model"
)

// benchmarkSizes are the ledger populations the read benchmarks run against.
var benchmarkSizes = []int{1_000, 100_000}

// seededLedger returns a ledger holding users 1..n with spread-out scores.
func seededLedger(b *testing.B, n int) *TreapLedger {
	b.Helper()
	ctx := context.Background()
	l := NewTreapLedger(WithHistoryLimit(1))
	r := rand.New(rand.NewSource(int64(n)))
	for id := 1; id <= n; id++ {
		if err := l.ApplyDelta(ctx, int64(id), r.Int63n(1_000), "detective_correct"); err != nil {
			b.Fatalf("seed: %v", err)
		}
	}
	return l
}

func BenchmarkTreapLedger_ApplyDelta(b *testing.B) {
	ctx := context.Background()
	l := NewTreapLedger(WithHistoryLimit(1))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := l.ApplyDelta(ctx, int64(i%10_000)+1, 1, "culprit_joined"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkTreapLedger_ApplyBatch measures the two-user batch a resolved case commits.
func BenchmarkTreapLedger_ApplyBatch(b *testing.B) {
	ctx := context.Background()
	l := NewTreapLedger(WithHistoryLimit(1))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		u := int64(i%10_000) + 1
		batch := []model.ScoreChange{
			{UserID: u, Delta: 3, Reason: "detective_correct"},
			{UserID: u + 10_000, Delta: 0, Reason: "culprit_caught"},
		}
		if err := l.ApplyBatch(ctx, batch); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreapLedger_Ranking(b *testing.B) {
	ctx := context.Background()
	for _, n := range benchmarkSizes {
		l := seededLedger(b, n)
		for _, limit := range []int{10, 100} {
			b.Run(fmt.Sprintf("users=%d/limit=%d", n, limit), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := l.Ranking(ctx, limit); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkTreapLedger_Rank(b *testing.B) {
	ctx := context.Background()
	for _, n := range benchmarkSizes {
		l := seededLedger(b, n)
		b.Run(fmt.Sprintf("users=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := l.Rank(ctx, int64(i%n)+1); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkTreapLedger_Mixed runs score updates against leaderboard reads from
// many goroutines, roughly the load of a busy game night.
func BenchmarkTreapLedger_Mixed(b *testing.B) {
	ctx := context.Background()
	const n = 100_000
	l := seededLedger(b, n)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			id := r.Int63n(n) + 1
			switch p := r.Intn(100); {
			case p < 40:
				_ = l.ApplyDelta(ctx, id, 1, "culprit_joined")
			case p < 75:
				_, _ = l.Rank(ctx, id)
			default:
				_, _ = l.Ranking(ctx, 10)
			}
		}
	})
}
