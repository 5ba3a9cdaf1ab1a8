package simulate

import (
	"context"
	"fmt"

	"github.com/okian/whodunit/internal/domain/scoring"
	"github.com/okian/whodunit/pkg/logger"
)

// verify re-reads every case and player and records what does not match the
// outcomes the players saw.
func verify(ctx context.Context, c *client, cfg *Config, policy map[string]int64, baseline map[int64]int64, outcomes []outcome, r *Report) {
	mismatch := func(format string, args ...any) {
		r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
	}
	delta := func(e scoring.Event) int64 { return policy[string(e)] }

	expected := make(map[int64]int64, len(baseline))
	for _, o := range outcomes {
		r.CulpritConflicts += o.culpritConflicts
		r.DetectiveConflicts += o.detectiveConflicts

		var got activeCase
		if err := c.get(ctx, fmt.Sprintf("/active-cases/%d", o.activeID), &got); err != nil {
			mismatch("case %d: %v", o.activeID, err)
			continue
		}
		switch {
		case got.Status != "Resolved":
			mismatch("case %d: status %s, want Resolved", o.activeID, got.Status)
		case got.Culprit == nil || got.Culprit.UserID != o.culprit:
			mismatch("case %d: culprit is not the race winner %d", o.activeID, o.culprit)
		case got.Detective == nil || got.Detective.UserID != o.detective:
			mismatch("case %d: detective is not the race winner %d", o.activeID, o.detective)
		case got.Result == nil || got.Result.WasCorrect != o.correct:
			mismatch("case %d: result changed after the guess", o.activeID)
		default:
			r.Resolved++
		}

		if o.correct {
			r.Solved++
			expected[o.culprit] += delta(scoring.CulpritJoined) + delta(scoring.CulpritCaught)
			expected[o.detective] += delta(scoring.DetectiveAssigned) + delta(scoring.DetectiveCorrect)
		} else {
			r.Unsolved++
			expected[o.culprit] += delta(scoring.CulpritJoined) + delta(scoring.CulpritDeceived)
			expected[o.detective] += delta(scoring.DetectiveAssigned) + delta(scoring.DetectiveIncorrect)
		}

		var journal []map[string]any
		if err := c.get(ctx, fmt.Sprintf("/active-cases/%d/journal", o.activeID), &journal); err == nil {
			r.JournalEntries += len(journal)
		}
	}

	for user, before := range baseline {
		var e entry
		if err := c.get(ctx, fmt.Sprintf("/users/%d/rank", user), &e); err != nil {
			mismatch("user %d: %v", user, err)
			continue
		}
		if got, want := e.Score-before, expected[user]; got != want {
			mismatch("user %d: gained %d, want %d", user, got, want)
		}
	}

	var board []entry
	if err := c.get(ctx, "/leaderboard", &board); err != nil {
		mismatch("leaderboard: %v", err)
		return
	}
	for i := 1; i < len(board); i++ {
		if board[i].Score > board[i-1].Score || board[i].Rank <= board[i-1].Rank {
			mismatch("leaderboard: entry %d out of order", i)
		}
	}
	if cfg.Verbose {
		for _, e := range board {
			logger.Get().Info(ctx, "leaderboard",
				logger.Int("rank", e.Rank),
				logger.Int64("userId", e.UserID),
				logger.String("nickname", e.Nickname),
				logger.Int64("score", e.Score))
		}
	}
}
