package repository

import "errors"

// Sentinel kinds for ledger errors. Each is wrapped together with the matching
// domain kind from model.
var (
	ErrNotFound      = errors.New("user not found")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
	ErrInvalidUser   = errors.New("invalid user id")
	ErrScoreOverflow = errors.New("score overflow")
)
