package simulate

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/okian/whodunit/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// Run plays cfg.Games cases against the service at cfg.BaseURL and checks
// that every slot was taken exactly once and every score adds up. A failed
// check is reported through Report.Mismatches and ErrVerification.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.New()
	report := &Report{RunID: runID.String(), Users: cfg.Users, Games: cfg.Games, StartTime: time.Now()}
	log := logger.Get().With(logger.String("run", report.RunID))

	log.Info(ctx, "starting whodunit simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("games", cfg.Games),
		logger.Int("contenders", cfg.Contenders),
		logger.Int("workers", cfg.Workers))

	c := newClient(cfg.BaseURL, cfg.Timeout, report.RunID)

	if err := c.get(ctx, "/healthz", nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	var policy map[string]int64
	if err := c.get(ctx, "/scoring-policy", &policy); err != nil {
		return nil, fmt.Errorf("fetch scoring policy: %w", err)
	}

	t := &table{c: c, cfg: cfg}
	if err := t.load(ctx); err != nil {
		return nil, err
	}

	base := cfg.UserBase
	if base == 0 {
		base = 1_000_000 + int64(binary.BigEndian.Uint32(runID[:4])%1_000_000)*1_000
	}
	baseline, err := register(ctx, c, cfg, base, report.RunID[:8])
	if err != nil {
		return nil, err
	}
	t.users = make([]int64, 0, len(baseline))
	for i := range cfg.Users {
		t.users = append(t.users, base+int64(i))
	}

	outcomes := make([]outcome, cfg.Games)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for n := range cfg.Games {
		g.Go(func() error {
			o, err := t.play(gctx, n)
			outcomes[n] = o
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("play: %w", err)
	}
	log.Info(ctx, "all games played", logger.Duration("elapsed", time.Since(report.StartTime)))

	verify(ctx, c, cfg, policy, baseline, outcomes, report)

	report.Duration = time.Since(report.StartTime)
	if cfg.Report != "" {
		if err := writeReport(cfg.Report, report); err != nil {
			log.Warn(ctx, "failed to write report", logger.Error(err))
		}
	}
	displayFinalStats(ctx, log, report)

	if len(report.Mismatches) > 0 {
		return report, fmt.Errorf("%w: %d mismatches", ErrVerification, len(report.Mismatches))
	}
	log.Info(ctx, "simulation completed successfully")
	return report, nil
}

// load fetches the playable templates and their evidence.
func (t *table) load(ctx context.Context) error {
	var templates []template
	if err := t.c.get(ctx, "/templates", &templates); err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	t.evidence = make(map[int64][]evidence, len(templates))
	for _, tpl := range templates {
		var items []evidence
		if err := t.c.get(ctx, fmt.Sprintf("/templates/%d/evidence", tpl.CaseID), &items); err != nil {
			return fmt.Errorf("evidence for case %d: %w", tpl.CaseID, err)
		}
		playable := len(tpl.Suspects) > 0
		hasFake := false
		for _, e := range items {
			hasFake = hasFake || e.IsFakeCandidate
		}
		if playable && hasFake {
			t.templates = append(t.templates, tpl)
			t.evidence[tpl.CaseID] = items
		}
	}
	if len(t.templates) == 0 {
		return fmt.Errorf("%w: no playable case template", ErrInvalidConfig)
	}
	return nil
}

// register signs up cfg.Users players and returns their scores before the run.
func register(ctx context.Context, c *client, cfg *Config, base int64, tag string) (map[int64]int64, error) {
	scores := make([]int64, cfg.Users)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range cfg.Users {
		g.Go(func() error {
			var e entry
			body := map[string]any{"user_id": base + int64(i), "nickname": fmt.Sprintf("sim-%s-%d", tag, i)}
			if err := c.post(gctx, "/users", body, &e); err != nil {
				return fmt.Errorf("register user %d: %w", base+int64(i), err)
			}
			scores[i] = e.Score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[int64]int64, cfg.Users)
	for i, s := range scores {
		out[base+int64(i)] = s
	}
	return out, nil
}

func writeReport(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), reportPermission)
}

func displayFinalStats(ctx context.Context, log logger.Logger, r *Report) {
	var gamesPerSecond float64
	if r.Duration > 0 {
		gamesPerSecond = float64(r.Games) / r.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("games", r.Games),
		logger.Int("resolved", r.Resolved),
		logger.Int("solved", r.Solved),
		logger.Int("unsolved", r.Unsolved),
		logger.Int("culpritConflicts", r.CulpritConflicts),
		logger.Int("detectiveConflicts", r.DetectiveConflicts),
		logger.Int("journalEntries", r.JournalEntries),
		logger.Int("mismatches", len(r.Mismatches)),
		logger.Duration("duration", r.Duration),
		logger.Float64("gamesPerSecond", gamesPerSecond))
}
