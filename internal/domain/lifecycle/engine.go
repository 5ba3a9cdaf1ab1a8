// Package lifecycle implements the case lifecycle state machine.
//
// Every mutation of one active case runs under that case's mutex. The
// resulting change to the case record, the participation index and the
// scoring ledger is committed under a single engine-wide write lock, so a
// reader holding the read lock never sees them disagree.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/internal/domain/participation"
	"github.com/okian/whodunit/internal/domain/scoring"
	"github.com/okian/whodunit/pkg/logger"
	"github.com/okian/whodunit/pkg/metrics"
)

const defaultFirstActiveID = 100

// TemplateSource resolves case templates.
type TemplateSource interface {
	GetTemplate(ctx context.Context, caseID int64) (model.CaseTemplate, error)
}

// EvidenceSource resolves the evidence of a template.
type EvidenceSource interface {
	GetEvidenceForCase(ctx context.Context, caseID int64) ([]model.EvidenceItem, error)
}

// ScoreSink receives the score changes of a transition. ApplyBatch must
// apply all changes or none.
type ScoreSink interface {
	ApplyBatch(ctx context.Context, changes []model.ScoreChange) error
}

// Publisher receives journal entries after they are committed.
// Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, entries []model.JournalEntry)
}

// Operation names used in logs and metrics.
const (
	OpCreate          = "create_active_case"
	OpAssignCulprit   = "assign_culprit"
	OpFabricate       = "fabricate_evidence"
	OpAssignDetective = "assign_detective"
	OpSubmitGuess     = "submit_guess"
)

// slot is the per-case state. mu serializes mutations of the case; rec and
// version are read and replaced only under Engine.commitMu.
type slot struct {
	mu      sync.Mutex
	rec     model.ActiveCase
	version uint64
}

// Engine owns every active case.
type Engine struct {
	templates TemplateSource
	evidence  EvidenceSource
	ledger    ScoreSink
	policy    *scoring.Policy
	publisher Publisher
	log       logger.Logger
	now       func() time.Time
	newID     func() string

	firstID int64
	nextID  atomic.Int64

	commitMu sync.RWMutex
	slots    map[int64]*slot
	dir      *participation.Directory

	hooks hooks
}

// hooks let tests pause an operation at fixed points.
type hooks struct {
	arrived      func(op string, activeID int64)
	beforeCommit func(op string, activeID int64)
}

// New creates an engine over the given sources and ledger.
func New(templates TemplateSource, evidence EvidenceSource, ledger ScoreSink, opts ...Option) *Engine {
	e := &Engine{
		templates: templates,
		evidence:  evidence,
		ledger:    ledger,
		policy:    scoring.DefaultPolicy(),
		log:       logger.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
		firstID:   defaultFirstActiveID,
		slots:     make(map[int64]*slot),
		dir:       participation.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.nextID.Store(e.firstID - 1)
	return e
}

// Policy returns the scoring policy in use.
func (e *Engine) Policy() *scoring.Policy { return e.policy }

// CreateActiveCase instantiates caseID for clientID in status Open.
func (e *Engine) CreateActiveCase(ctx context.Context, caseID, clientID int64) (model.ActiveCase, error) {
	start := e.now()
	c, err := e.create(ctx, caseID, clientID)
	e.observe(OpCreate, start, err)
	return c, err
}

func (e *Engine) create(ctx context.Context, caseID, clientID int64) (model.ActiveCase, error) {
	if clientID <= 0 {
		return model.ActiveCase{}, fmt.Errorf("client id %d: %w", clientID, model.ErrInvalidArgument)
	}
	if _, err := e.templates.GetTemplate(ctx, caseID); err != nil {
		return model.ActiveCase{}, fmt.Errorf("create active case: %w", err)
	}

	now := e.now()
	c := model.ActiveCase{
		ActiveID:  e.nextID.Add(1),
		CaseID:    caseID,
		ClientID:  clientID,
		Status:    model.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.commitMu.Lock()
	e.slots[c.ActiveID] = &slot{rec: c, version: 1}
	e.dir.Apply(nil, c)
	e.publishGauges()
	e.commitMu.Unlock()

	metrics.RecordCaseCreated()
	e.log.Info(ctx, "active case created",
		logger.Int64("active_id", c.ActiveID),
		logger.Int64("case_id", caseID),
		logger.Int64("client_id", clientID),
	)
	e.publish(ctx, []model.JournalEntry{{
		ID: e.newID(), ActiveID: c.ActiveID, CaseID: caseID, Kind: model.JournalTransition,
		To: model.StatusOpen, UserID: clientID, Role: model.RoleClient, At: now,
	}})
	return c, nil
}

// AssignCulprit admits culpritID as the culprit of an Open case.
func (e *Engine) AssignCulprit(ctx context.Context, activeID, culpritID int64) (model.ActiveCase, error) {
	start := e.now()
	c, err := e.assign(ctx, OpAssignCulprit, activeID, culpritID, model.RoleCulprit)
	e.observe(OpAssignCulprit, start, err)
	return c, err
}

// AssignDetective admits detectiveID as the detective of a case under investigation.
func (e *Engine) AssignDetective(ctx context.Context, activeID, detectiveID int64) (model.ActiveCase, error) {
	start := e.now()
	c, err := e.assign(ctx, OpAssignDetective, activeID, detectiveID, model.RoleDetective)
	e.observe(OpAssignDetective, start, err)
	return c, err
}

// assign fills a single-assignment slot. The caller's view at arrival decides
// InvalidState; any commit on the case while the caller waited for the case
// mutex means the caller lost the race and gets Conflict.
func (e *Engine) assign(ctx context.Context, op string, activeID, userID int64, role model.Role) (model.ActiveCase, error) {
	if userID <= 0 {
		return model.ActiveCase{}, fmt.Errorf("%s id %d: %w", role, userID, model.ErrInvalidArgument)
	}
	s, seen, version, err := e.arrive(op, activeID)
	if err != nil {
		return model.ActiveCase{}, err
	}
	if err := assignable(seen, role); err != nil {
		return model.ActiveCase{}, err
	}
	if err := notAlreadyPlaying(seen, userID, role); err != nil {
		return model.ActiveCase{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, current := e.read(s)
	if current != version {
		metrics.RecordAssignmentConflict(string(role))
		e.log.Debug(ctx, "assignment race lost",
			logger.String("op", op),
			logger.Int64("active_id", activeID),
			logger.Int64("user_id", userID),
		)
		return model.ActiveCase{}, fmt.Errorf("active case %d %s slot: %w", activeID, role, model.ErrConflict)
	}

	next := cur
	next.UpdatedAt = e.now()
	var event scoring.Event
	switch role {
	case model.RoleCulprit:
		next.CulpritID = userID
		next.Status = model.StatusFabricating
		event = scoring.CulpritJoined
	default:
		next.DetectiveID = userID
		event = scoring.DetectiveAssigned
	}
	changes := []model.ScoreChange{e.change(userID, event, activeID, next.UpdatedAt)}
	return e.commit(ctx, op, s, cur, next, changes, role, userID)
}

func assignable(c model.ActiveCase, role model.Role) error {
	switch role {
	case model.RoleCulprit:
		if c.Status != model.StatusOpen {
			return fmt.Errorf("active case %d is %s, culprit needs %s: %w", c.ActiveID, c.Status, model.StatusOpen, model.ErrInvalidState)
		}
	default:
		if c.Status != model.StatusUnderInvestigation {
			return fmt.Errorf("active case %d is %s, detective needs %s: %w", c.ActiveID, c.Status, model.StatusUnderInvestigation, model.ErrInvalidState)
		}
		if c.DetectiveID != 0 {
			return fmt.Errorf("active case %d already has a detective: %w", c.ActiveID, model.ErrInvalidState)
		}
	}
	return nil
}

// notAlreadyPlaying keeps one user from holding two roles in the same case.
func notAlreadyPlaying(c model.ActiveCase, userID int64, role model.Role) error {
	for _, other := range []model.Role{model.RoleClient, model.RoleCulprit, model.RoleDetective} {
		if other != role && c.Participant(other) == userID {
			return fmt.Errorf("user %d is already the %s of active case %d: %w", userID, other, c.ActiveID, model.ErrForbidden)
		}
	}
	return nil
}

// FabricateEvidence records the culprit's decoy and opens the investigation.
func (e *Engine) FabricateEvidence(ctx context.Context, activeID, culpritID, evidenceID int64) (model.ActiveCase, error) {
	start := e.now()
	c, err := e.fabricate(ctx, activeID, culpritID, evidenceID)
	e.observe(OpFabricate, start, err)
	return c, err
}

func (e *Engine) fabricate(ctx context.Context, activeID, culpritID, evidenceID int64) (model.ActiveCase, error) {
	s, _, _, err := e.arrive(OpFabricate, activeID)
	if err != nil {
		return model.ActiveCase{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _ := e.read(s)
	switch {
	case cur.CulpritID == 0:
		return model.ActiveCase{}, fmt.Errorf("active case %d has no culprit yet: %w", activeID, model.ErrInvalidState)
	case cur.CulpritID != culpritID:
		return model.ActiveCase{}, fmt.Errorf("user %d is not the culprit of active case %d: %w", culpritID, activeID, model.ErrForbidden)
	case cur.Status != model.StatusFabricating:
		return model.ActiveCase{}, fmt.Errorf("active case %d is %s, fabrication needs %s: %w", activeID, cur.Status, model.StatusFabricating, model.ErrInvalidState)
	}

	items, err := e.evidence.GetEvidenceForCase(ctx, cur.CaseID)
	if err != nil {
		return model.ActiveCase{}, fmt.Errorf("fabricate evidence: %w", err)
	}
	item, ok := findEvidence(items, evidenceID)
	if !ok {
		return model.ActiveCase{}, fmt.Errorf("evidence %d does not belong to case %d: %w", evidenceID, cur.CaseID, model.ErrInvalidEvidence)
	}
	if !item.IsFakeCandidate {
		return model.ActiveCase{}, fmt.Errorf("evidence %d of case %d is not a fake candidate: %w", evidenceID, cur.CaseID, model.ErrInvalidEvidence)
	}

	next := cur
	next.FabricatedEvidenceID = evidenceID
	next.Status = model.StatusUnderInvestigation
	next.UpdatedAt = e.now()
	return e.commit(ctx, OpFabricate, s, cur, next, nil, model.RoleCulprit, culpritID)
}

func findEvidence(items []model.EvidenceItem, id int64) (model.EvidenceItem, bool) {
	for _, it := range items {
		if it.EvidenceID == id {
			return it, true
		}
	}
	return model.EvidenceItem{}, false
}

// SubmitGuess resolves the case with the detective's accusation.
func (e *Engine) SubmitGuess(ctx context.Context, activeID, detectiveID int64, suspect, reasoning string) (model.ActiveCase, error) {
	start := e.now()
	c, err := e.guess(ctx, activeID, detectiveID, suspect, reasoning)
	e.observe(OpSubmitGuess, start, err)
	return c, err
}

func (e *Engine) guess(ctx context.Context, activeID, detectiveID int64, suspect, reasoning string) (model.ActiveCase, error) {
	if strings.TrimSpace(suspect) == "" {
		return model.ActiveCase{}, fmt.Errorf("suspect is empty: %w", model.ErrInvalidArgument)
	}
	s, _, _, err := e.arrive(OpSubmitGuess, activeID)
	if err != nil {
		return model.ActiveCase{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _ := e.read(s)
	switch {
	case cur.DetectiveID == 0:
		return model.ActiveCase{}, fmt.Errorf("active case %d has no detective yet: %w", activeID, model.ErrInvalidState)
	case cur.DetectiveID != detectiveID:
		return model.ActiveCase{}, fmt.Errorf("user %d is not the detective of active case %d: %w", detectiveID, activeID, model.ErrForbidden)
	case cur.Status != model.StatusUnderInvestigation:
		return model.ActiveCase{}, fmt.Errorf("active case %d is %s, guessing needs %s: %w", activeID, cur.Status, model.StatusUnderInvestigation, model.ErrInvalidState)
	}

	tpl, err := e.templates.GetTemplate(ctx, cur.CaseID)
	if err != nil {
		return model.ActiveCase{}, fmt.Errorf("submit guess: %w", err)
	}
	named, ok := tpl.Suspect(suspect)
	if !ok {
		return model.ActiveCase{}, fmt.Errorf("suspect %q is not listed in case %d: %w", suspect, cur.CaseID, model.ErrInvalidArgument)
	}

	now := e.now()
	correct := model.SameSuspect(named.Name, tpl.Culprit)
	next := cur
	next.Status = model.StatusResolved
	next.UpdatedAt = now
	next.Guess = &model.Guess{
		ActiveID:      activeID,
		DetectiveID:   detectiveID,
		ChosenSuspect: named.Name,
		Reasoning:     strings.TrimSpace(reasoning),
		SubmittedAt:   now,
		WasCorrect:    correct,
	}
	detEvent, culEvent := e.policy.Outcome(correct)
	changes := []model.ScoreChange{
		e.change(detectiveID, detEvent, activeID, now),
		e.change(cur.CulpritID, culEvent, activeID, now),
	}
	return e.commit(ctx, OpSubmitGuess, s, cur, next, changes, model.RoleDetective, detectiveID)
}

// arrive looks the case up and snapshots it before the caller queues on the case mutex.
func (e *Engine) arrive(op string, activeID int64) (*slot, model.ActiveCase, uint64, error) {
	e.commitMu.RLock()
	s, ok := e.slots[activeID]
	var (
		rec     model.ActiveCase
		version uint64
	)
	if ok {
		rec, version = s.rec, s.version
	}
	e.commitMu.RUnlock()
	if !ok {
		return nil, model.ActiveCase{}, 0, fmt.Errorf("active case %d: %w", activeID, model.ErrNotFound)
	}
	if e.hooks.arrived != nil {
		e.hooks.arrived(op, activeID)
	}
	return s, rec, version, nil
}

func (e *Engine) read(s *slot) (model.ActiveCase, uint64) {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()
	return s.rec, s.version
}

func (e *Engine) change(userID int64, event scoring.Event, activeID int64, at time.Time) model.ScoreChange {
	return model.ScoreChange{
		UserID:   userID,
		Delta:    e.policy.Delta(event),
		Reason:   string(event),
		ActiveID: activeID,
		At:       at,
	}
}

// commit publishes next as the committed state of s. Callers hold s.mu.
// The ledger batch is applied first; if it fails nothing else changes.
func (e *Engine) commit(
	ctx context.Context, op string, s *slot, cur, next model.ActiveCase,
	changes []model.ScoreChange, role model.Role, actor int64,
) (model.ActiveCase, error) {
	if e.hooks.beforeCommit != nil {
		e.hooks.beforeCommit(op, cur.ActiveID)
	}
	if err := next.Check(); err != nil {
		return model.ActiveCase{}, fmt.Errorf("%s: %w", op, err)
	}

	e.commitMu.Lock()
	if len(changes) > 0 {
		if err := e.ledger.ApplyBatch(ctx, changes); err != nil {
			e.commitMu.Unlock()
			return model.ActiveCase{}, fmt.Errorf("%s: apply score changes: %w", op, err)
		}
	}
	s.rec = next
	s.version++
	e.dir.Apply(&cur, next)
	e.publishGauges()
	e.commitMu.Unlock()

	if cur.Status != next.Status {
		metrics.RecordTransition(string(cur.Status), string(next.Status))
		e.log.Info(ctx, "active case transition",
			logger.String("op", op),
			logger.Int64("active_id", next.ActiveID),
			logger.String("from", string(cur.Status)),
			logger.String("to", string(next.Status)),
		)
	}
	e.publish(ctx, e.journal(cur, next, changes, role, actor))
	return next, nil
}

// publishGauges refreshes the per-status gauges. Callers hold commitMu.
func (e *Engine) publishGauges() {
	for status, n := range e.dir.Counts() {
		metrics.UpdateCasesByStatus(string(status), n)
	}
}

func (e *Engine) journal(cur, next model.ActiveCase, changes []model.ScoreChange, role model.Role, actor int64) []model.JournalEntry {
	entries := make([]model.JournalEntry, 0, len(changes)+1)
	if cur.Status != next.Status || cur.DetectiveID != next.DetectiveID {
		entries = append(entries, model.JournalEntry{
			ID: e.newID(), ActiveID: next.ActiveID, CaseID: next.CaseID, Kind: model.JournalTransition,
			From: cur.Status, To: next.Status, UserID: actor, Role: role, At: next.UpdatedAt,
		})
	}
	for _, c := range changes {
		r := model.RoleCulprit
		if c.UserID == next.DetectiveID {
			r = model.RoleDetective
		}
		entries = append(entries, model.JournalEntry{
			ID: e.newID(), ActiveID: next.ActiveID, CaseID: next.CaseID, Kind: model.JournalScore,
			From: cur.Status, To: next.Status, UserID: c.UserID, Role: r, Delta: c.Delta, Reason: c.Reason, At: c.At,
		})
	}
	return entries
}

func (e *Engine) publish(ctx context.Context, entries []model.JournalEntry) {
	if e.publisher == nil || len(entries) == 0 {
		return
	}
	e.publisher.Publish(ctx, entries)
}

func (e *Engine) observe(op string, start time.Time, err error) {
	metrics.RecordOperationLatency(op, float64(e.now().Sub(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordOperationFailure(op, model.Kind(err))
	}
}
