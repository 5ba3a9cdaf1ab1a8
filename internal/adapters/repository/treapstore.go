package repository

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/pkg/metrics"
)

// Treap-based, in-memory Ledger implementation.
//
// Ordering: score DESC, then registration sequence ASC. "less" means ranks
// earlier, so an in-order traversal yields the leaderboard from best to worst.
// Every node carries its subtree size, which makes Rank O(log n).

const defaultHistoryLimit = 256

// record is the authoritative per-user state; the treap only indexes it.
type record struct {
	seq      uint64
	score    int64
	nickname string
	history  []model.ScoreChange
}

type node struct {
	id    int64
	seq   uint64
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aSeq) should appear before (bScore, bSeq).
func less(aScore int64, aSeq uint64, bScore int64, bSeq uint64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aSeq < bSeq
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, in *node) *node {
	if n == nil {
		in.size = 1
		return in
	}
	if less(in.score, in.seq, n.score, n.seq) {
		n.left = insert(n.left, in)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, in)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, score int64, seq uint64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && seq == n.seq:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, score, seq)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, score, seq)
		}
	case less(score, seq, n.score, n.seq):
		n.left = deleteNode(n.left, score, seq)
	default:
		n.right = deleteNode(n.right, score, seq)
	}
	fix(n)
	return n
}

// position returns the 1-based in-order position of (score, seq), or 0.
func position(n *node, score int64, seq uint64) int {
	before := 0
	for n != nil {
		switch {
		case score == n.score && seq == n.seq:
			return before + nsize(n.left) + 1
		case less(score, seq, n.score, n.seq):
			n = n.left
		default:
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, records map[int64]*record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, records, out)
	if len(*out) < limit {
		rec := records[n.id]
		*out = append(*out, Entry{
			Rank:     len(*out) + 1,
			UserID:   n.id,
			Nickname: displayName(n.id, rec.nickname),
			Score:    n.score,
		})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, records, out)
	}
}

func displayName(id int64, nickname string) string {
	if nickname != "" {
		return nickname
	}
	return "user-" + strconv.FormatInt(id, 10)
}

// TreapLedger is the in-memory scoring ledger.
type TreapLedger struct {
	mu           sync.RWMutex
	root         *node
	byID         map[int64]*record
	nextSeq      uint64
	historyLimit int
	now          func() time.Time
}

var _ Ledger = (*TreapLedger)(nil)

// NewTreapLedger constructs an empty ledger with configuration options.
func NewTreapLedger(opts ...Option) *TreapLedger {
	l := &TreapLedger{
		byID:         make(map[int64]*record),
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ensure returns the record for id, registering it at score 0. Callers hold mu.
func (l *TreapLedger) ensure(id int64) (*record, bool) {
	if rec, ok := l.byID[id]; ok {
		return rec, false
	}
	l.nextSeq++
	rec := &record{seq: l.nextSeq}
	l.byID[id] = rec
	l.root = insert(l.root, &node{id: id, seq: rec.seq, prio: rand.Uint64()})
	return rec, true
}

// apply moves id to its new score. Callers hold mu and have validated the change.
func (l *TreapLedger) apply(c model.ScoreChange) {
	rec, _ := l.ensure(c.UserID)
	if c.Delta != 0 {
		l.root = deleteNode(l.root, rec.score, rec.seq)
		rec.score += c.Delta
		l.root = insert(l.root, &node{id: c.UserID, seq: rec.seq, score: rec.score, prio: rand.Uint64()})
	}
	if c.At.IsZero() {
		c.At = l.now()
	}
	rec.history = append(rec.history, c)
	if over := len(rec.history) - l.historyLimit; over > 0 {
		rec.history = append(rec.history[:0:0], rec.history[over:]...)
	}
}

// ApplyDelta implements Ledger.ApplyDelta.
func (l *TreapLedger) ApplyDelta(ctx context.Context, userID, delta int64, reason string) error {
	return l.ApplyBatch(ctx, []model.ScoreChange{{UserID: userID, Delta: delta, Reason: reason}})
}

// ApplyBatch implements Ledger.ApplyBatch. The whole batch is validated
// against the current scores before anything is written.
func (l *TreapLedger) ApplyBatch(ctx context.Context, changes []model.ScoreChange) error {
	if len(changes) == 0 {
		return nil
	}
	for _, c := range changes {
		if c.UserID <= 0 {
			return fmt.Errorf("%w %d: %w", ErrInvalidUser, c.UserID, model.ErrInvalidArgument)
		}
	}

	l.mu.Lock()
	pending := make(map[int64]int64, len(changes))
	for _, c := range changes {
		cur, ok := pending[c.UserID]
		if !ok {
			if rec, exists := l.byID[c.UserID]; exists {
				cur = rec.score
			}
		}
		next, ok := addChecked(cur, c.Delta)
		if !ok {
			l.mu.Unlock()
			return fmt.Errorf("%w for user %d: %w", ErrScoreOverflow, c.UserID, model.ErrInvalidArgument)
		}
		pending[c.UserID] = next
	}
	before := len(l.byID)
	for _, c := range changes {
		l.apply(c)
	}
	count := len(l.byID)
	l.mu.Unlock()

	for _, c := range changes {
		metrics.RecordScoreDelta(reasonLabel(c.Reason))
	}
	if count != before {
		metrics.UpdateLedgerUsers(count)
	}
	return nil
}

// reasonLabel keeps the metric label set bounded to the event name.
func reasonLabel(reason string) string {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		reason = reason[:i]
	}
	if reason == "" {
		return "manual"
	}
	return reason
}

func addChecked(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// Register implements Ledger.Register.
func (l *TreapLedger) Register(ctx context.Context, userID int64, nickname string) (Entry, error) {
	if userID <= 0 {
		return Entry{}, fmt.Errorf("%w %d: %w", ErrInvalidUser, userID, model.ErrInvalidArgument)
	}
	l.mu.Lock()
	rec, created := l.ensure(userID)
	if nick := strings.TrimSpace(nickname); nick != "" {
		rec.nickname = nick
	}
	entry := Entry{
		Rank:     position(l.root, rec.score, rec.seq),
		UserID:   userID,
		Nickname: displayName(userID, rec.nickname),
		Score:    rec.score,
	}
	count := len(l.byID)
	l.mu.Unlock()

	if created {
		metrics.UpdateLedgerUsers(count)
	}
	return entry, nil
}

// Nickname implements Ledger.Nickname.
func (l *TreapLedger) Nickname(ctx context.Context, userID int64) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.byID[userID]; ok {
		return displayName(userID, rec.nickname)
	}
	return displayName(userID, "")
}

// Ranking implements Ledger.Ranking.
func (l *TreapLedger) Ranking(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w %d: %w", ErrInvalidLimit, limit, model.ErrInvalidArgument)
	}
	metrics.RecordRankingRead()

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, min(limit, len(l.byID)))
	collectTopN(l.root, limit, l.byID, &out)
	return out, nil
}

// Rank implements Ledger.Rank in O(log n).
func (l *TreapLedger) Rank(ctx context.Context, userID int64) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byID[userID]
	if !ok {
		return Entry{}, fmt.Errorf("%w %d: %w", ErrNotFound, userID, model.ErrNotFound)
	}
	return Entry{
		Rank:     position(l.root, rec.score, rec.seq),
		UserID:   userID,
		Nickname: displayName(userID, rec.nickname),
		Score:    rec.score,
	}, nil
}

// History implements Ledger.History.
func (l *TreapLedger) History(ctx context.Context, userID int64) ([]model.ScoreChange, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byID[userID]
	if !ok {
		return nil, fmt.Errorf("%w %d: %w", ErrNotFound, userID, model.ErrNotFound)
	}
	out := make([]model.ScoreChange, len(rec.history))
	copy(out, rec.history)
	return out, nil
}

// Count returns the total number of users.
func (l *TreapLedger) Count(ctx context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}
