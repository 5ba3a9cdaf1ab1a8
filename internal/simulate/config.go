package simulate

import (
	"errors"
	"fmt"
	"time"
)

// Error constants.
var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrVerification  = errors.New("simulation verification failed")
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Users      int           // Number of players to register
	Games      int           // Number of cases to play
	Contenders int           // Players racing for each culprit and detective slot
	Workers    int           // Games played concurrently
	Timeout    time.Duration // HTTP request timeout
	Seed       uint64        // Seed for clue and suspect choices
	UserBase   int64         // First user id; zero derives one from the run id
	Report     string        // Optional JSON report file
	Verbose    bool          // Log every game
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:9080",
		Users:      20,
		Games:      50,
		Contenders: 4,
		Workers:    8,
		Timeout:    10 * time.Second,
		Seed:       1,
	}
}

// Validate checks the run can be played.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Games <= 0:
		return fmt.Errorf("%w: games must be positive", ErrInvalidConfig)
	case c.Contenders <= 0:
		return fmt.Errorf("%w: contenders must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.UserBase < 0:
		return fmt.Errorf("%w: user base must not be negative", ErrInvalidConfig)
	}
	// a client, a culprit and a detective are distinct in every case, and
	// each race needs its contenders on top of the other roles
	if need := c.Contenders + 2; c.Users < need {
		return fmt.Errorf("%w: %d users cannot seat %d contenders per race (need %d)", ErrInvalidConfig, c.Users, c.Contenders, need)
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	RunID              string        `json:"run_id"`
	Users              int           `json:"users"`
	Games              int           `json:"games"`
	Resolved           int           `json:"resolved"`
	Solved             int           `json:"solved"`
	Unsolved           int           `json:"unsolved"`
	CulpritConflicts   int           `json:"culprit_conflicts"`
	DetectiveConflicts int           `json:"detective_conflicts"`
	JournalEntries     int           `json:"journal_entries"`
	Mismatches         []string      `json:"mismatches,omitempty"`
	StartTime          time.Time     `json:"start_time"`
	Duration           time.Duration `json:"duration"`
}

type participant struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

type result struct {
	Outcome        string `json:"outcome"`
	WasCorrect     bool   `json:"was_correct"`
	GuessedSuspect string `json:"guessed_suspect"`
	ActualCulprit  string `json:"actual_culprit"`
}

type activeCase struct {
	ActiveID  int64        `json:"active_id"`
	CaseID    int64        `json:"case_id"`
	Status    string       `json:"status"`
	Client    participant  `json:"client"`
	Culprit   *participant `json:"culprit"`
	Detective *participant `json:"detective"`
	Result    *result      `json:"result"`
}

type template struct {
	CaseID   int64 `json:"case_id"`
	Suspects []struct {
		Name string `json:"name"`
	} `json:"suspects"`
}

type evidence struct {
	EvidenceID      int64 `json:"evidence_id"`
	IsFakeCandidate bool  `json:"is_fake_candidate"`
}

type entry struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Score    int64  `json:"score"`
}
