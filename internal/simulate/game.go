package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/okian/whodunit/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// outcome is what one game committed, as seen by the players.
type outcome struct {
	activeID           int64
	client             int64
	culprit            int64
	detective          int64
	correct            bool
	culpritConflicts   int
	detectiveConflicts int
}

// table holds what every game needs to seat players and pick moves.
type table struct {
	c         *client
	cfg       *Config
	users     []int64
	templates []template
	evidence  map[int64][]evidence
}

// play runs game number n from open to resolved.
func (t *table) play(ctx context.Context, n int) (outcome, error) {
	rng := rand.New(rand.NewPCG(t.cfg.Seed, uint64(n)))
	tpl := t.templates[n%len(t.templates)]
	out := outcome{client: t.users[n%len(t.users)]}

	var opened activeCase
	if err := t.c.post(ctx, "/active-cases", map[string]int64{"case_id": tpl.CaseID, "client_id": out.client}, &opened); err != nil {
		return out, fmt.Errorf("game %d: open case: %w", n, err)
	}
	out.activeID = opened.ActiveID
	base := fmt.Sprintf("/active-cases/%d", out.activeID)

	winner, lost, err := race(ctx, t.seats(n, 0), func(ctx context.Context, user int64) error {
		return t.c.post(ctx, base+"/culprit", map[string]int64{"culprit_id": user}, nil)
	})
	if err != nil {
		return out, fmt.Errorf("game %d: culprit race: %w", n, err)
	}
	out.culprit, out.culpritConflicts = winner, lost

	fake := t.pickFake(rng, tpl.CaseID)
	if err := t.c.post(ctx, base+"/fabrication", map[string]int64{"culprit_id": out.culprit, "evidence_id": fake}, nil); err != nil {
		return out, fmt.Errorf("game %d: fabricate: %w", n, err)
	}

	winner, lost, err = race(ctx, t.seats(n, out.culprit), func(ctx context.Context, user int64) error {
		return t.c.post(ctx, base+"/detective", map[string]int64{"detective_id": user}, nil)
	})
	if err != nil {
		return out, fmt.Errorf("game %d: detective race: %w", n, err)
	}
	out.detective, out.detectiveConflicts = winner, lost

	if err := t.c.get(ctx, fmt.Sprintf("%s/case-file?detective_id=%d", base, out.detective), nil); err != nil {
		return out, fmt.Errorf("game %d: case file: %w", n, err)
	}

	suspect := tpl.Suspects[rng.IntN(len(tpl.Suspects))].Name
	var resolved activeCase
	body := map[string]any{"detective_id": out.detective, "suspect": suspect, "reasoning": "simulated"}
	if err := t.c.post(ctx, base+"/guess", body, &resolved); err != nil {
		return out, fmt.Errorf("game %d: guess: %w", n, err)
	}
	if resolved.Result == nil {
		return out, fmt.Errorf("%w: game %d resolved without a result", ErrVerification, n)
	}
	out.correct = resolved.Result.WasCorrect

	if t.cfg.Verbose {
		logger.Get().Info(ctx, "game resolved",
			logger.Int("game", n),
			logger.Int64("activeId", out.activeID),
			logger.Int64("culprit", out.culprit),
			logger.Int64("detective", out.detective),
			logger.Int64("evidence", fake),
			logger.String("guess", suspect),
			logger.Bool("correct", out.correct))
	}
	return out, nil
}

// seats returns the contenders of game n, skipping its client and exclude.
func (t *table) seats(n int, exclude int64) []int64 {
	client := t.users[n%len(t.users)]
	out := make([]int64, 0, t.cfg.Contenders)
	for i := 1; len(out) < t.cfg.Contenders && i < len(t.users); i++ {
		u := t.users[(n+i)%len(t.users)]
		if u == client || u == exclude {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (t *table) pickFake(rng *rand.Rand, caseID int64) int64 {
	var candidates []int64
	for _, e := range t.evidence[caseID] {
		if e.IsFakeCandidate {
			candidates = append(candidates, e.EvidenceID)
		}
	}
	return candidates[rng.IntN(len(candidates))]
}

// race starts every contender at once. Exactly one must win; the rest must
// be turned away with a conflict.
func race(ctx context.Context, contenders []int64, claim func(context.Context, int64) error) (int64, int, error) {
	var (
		mu      sync.Mutex
		winners []int64
		lost    int
		start   = make(chan struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, user := range contenders {
		g.Go(func() error {
			<-start
			err := claim(gctx, user)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, user)
			case lostRace(err):
				lost++
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		return 0, lost, err
	}
	if len(winners) != 1 {
		return 0, lost, fmt.Errorf("%w: %d winners among %d contenders", ErrVerification, len(winners), len(contenders))
	}
	return winners[0], lost, nil
}
