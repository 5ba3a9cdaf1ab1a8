// Package repository holds the scoring ledger and its ranking index.
package repository

import (
	"context"

	"github.com/okian/whodunit/internal/domain/model"
)

// Entry represents a leaderboard row.
type Entry struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Score    int64  `json:"score"`
}

// Ledger owns per-user scores. Scores change only through ApplyDelta and ApplyBatch.
type Ledger interface {
	// ApplyDelta adds delta to userID's score. Unknown users start at 0.
	ApplyDelta(ctx context.Context, userID, delta int64, reason string) error
	// ApplyBatch applies every change or none of them.
	ApplyBatch(ctx context.Context, changes []model.ScoreChange) error

	// Register sets a nickname, registering the user at score 0 if new.
	Register(ctx context.Context, userID int64, nickname string) (Entry, error)
	// Nickname returns the display name of userID.
	Nickname(ctx context.Context, userID int64) string

	// Ranking returns up to limit entries by score desc, then registration order.
	Ranking(ctx context.Context, limit int) ([]Entry, error)
	// Rank returns the position of userID. Returns ErrNotFound for unknown users.
	Rank(ctx context.Context, userID int64) (Entry, error)
	// History returns the applied changes of userID, oldest first.
	History(ctx context.Context, userID int64) ([]model.ScoreChange, error)

	// Count returns the number of users tracked by the ledger.
	Count(ctx context.Context) int
}
