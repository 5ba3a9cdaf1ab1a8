package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/okian/whodunit/internal/adapters/evidence"
	"github.com/okian/whodunit/internal/adapters/repository"
	"github.com/okian/whodunit/internal/domain/model"
)

// ListTemplates returns every case template ordered by case id.
func (s *Service) ListTemplates(ctx context.Context) ([]model.CaseTemplate, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	var out []model.CaseTemplate
	for t, err := range s.catalog.ListTemplates(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTemplate returns one case template.
func (s *Service) GetTemplate(ctx context.Context, caseID int64) (model.CaseTemplate, error) {
	if _, err := s.running(); err != nil {
		return model.CaseTemplate{}, err
	}
	return s.catalog.GetTemplate(ctx, caseID)
}

// GetEvidenceForCase returns the full evidence set of a template.
func (s *Service) GetEvidenceForCase(ctx context.Context, caseID int64) ([]model.EvidenceItem, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	return s.evidence.GetEvidenceForCase(ctx, caseID)
}

// CreateActiveCase starts a new case for clientID.
func (s *Service) CreateActiveCase(ctx context.Context, caseID, clientID int64) (model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return model.ActiveCase{}, err
	}
	return e.CreateActiveCase(ctx, caseID, clientID)
}

// AssignCulprit admits culpritID to an open case.
func (s *Service) AssignCulprit(ctx context.Context, activeID, culpritID int64) (model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return model.ActiveCase{}, err
	}
	return e.AssignCulprit(ctx, activeID, culpritID)
}

// FabricateEvidence records the culprit's planted evidence.
func (s *Service) FabricateEvidence(ctx context.Context, activeID, culpritID, evidenceID int64) (model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return model.ActiveCase{}, err
	}
	return e.FabricateEvidence(ctx, activeID, culpritID, evidenceID)
}

// AssignDetective admits detectiveID to a case under investigation.
func (s *Service) AssignDetective(ctx context.Context, activeID, detectiveID int64) (model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return model.ActiveCase{}, err
	}
	return e.AssignDetective(ctx, activeID, detectiveID)
}

// SubmitGuess resolves a case with the detective's guess.
func (s *Service) SubmitGuess(ctx context.Context, activeID, detectiveID int64, suspect, reasoning string) (model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return model.ActiveCase{}, err
	}
	return e.SubmitGuess(ctx, activeID, detectiveID, suspect, reasoning)
}

// GetActiveCase returns the committed state of one case.
func (s *Service) GetActiveCase(ctx context.Context, activeID int64) (model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return model.ActiveCase{}, err
	}
	return e.Get(ctx, activeID)
}

// ListOpen returns the cases waiting for a culprit.
func (s *Service) ListOpen(ctx context.Context) ([]model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return nil, err
	}
	return e.ListOpen(ctx), nil
}

// ListByStatus returns the cases in status.
func (s *Service) ListByStatus(ctx context.Context, status model.Status) ([]model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return nil, err
	}
	return e.ListByStatus(ctx, status)
}

// ListByRole returns the cases userID takes part in as role.
func (s *Service) ListByRole(ctx context.Context, userID int64, role model.Role) ([]model.ActiveCase, error) {
	e, err := s.running()
	if err != nil {
		return nil, err
	}
	return e.ListByRole(ctx, userID, role)
}

// CaseFile builds the detective's view of a case. Only the assigned
// detective may read it, and only once the evidence has been planted.
func (s *Service) CaseFile(ctx context.Context, activeID, detectiveID int64) (model.CaseFile, error) {
	e, err := s.running()
	if err != nil {
		return model.CaseFile{}, err
	}
	c, err := e.Get(ctx, activeID)
	if err != nil {
		return model.CaseFile{}, err
	}
	if c.Status != model.StatusUnderInvestigation && c.Status != model.StatusResolved {
		return model.CaseFile{}, fmt.Errorf("case file of %d in status %s: %w", activeID, c.Status, model.ErrInvalidState)
	}
	if c.DetectiveID == 0 || c.DetectiveID != detectiveID {
		return model.CaseFile{}, fmt.Errorf("user %d is not the detective of case %d: %w", detectiveID, activeID, model.ErrForbidden)
	}

	tpl, err := s.catalog.GetTemplate(ctx, c.CaseID)
	if err != nil {
		return model.CaseFile{}, err
	}
	items, err := s.evidence.GetEvidenceForCase(ctx, c.CaseID)
	if err != nil {
		return model.CaseFile{}, err
	}
	shown, _ := evidence.Split(items)
	if planted, ok := evidence.Find(items, c.FabricatedEvidenceID); ok {
		shown = append(shown, planted)
	}
	slices.SortFunc(shown, func(a, b model.EvidenceItem) int { return cmp.Compare(a.EvidenceID, b.EvidenceID) })
	for i := range shown {
		shown[i].IsTrue, shown[i].IsFakeCandidate = false, false
	}
	tpl.Culprit = ""
	return model.CaseFile{Case: c, Template: tpl, Evidence: shown}, nil
}

// Journal returns the audit trail of one case. Entries are written
// asynchronously and may lag the case by a few milliseconds.
func (s *Service) Journal(ctx context.Context, activeID int64) ([]model.JournalEntry, error) {
	e, err := s.running()
	if err != nil {
		return nil, err
	}
	if _, err := e.Get(ctx, activeID); err != nil {
		return nil, err
	}
	return s.journal.ByActiveCase(ctx, activeID)
}

// RegisterUser sets the nickname of userID.
func (s *Service) RegisterUser(ctx context.Context, userID int64, nickname string) (repository.Entry, error) {
	if _, err := s.running(); err != nil {
		return repository.Entry{}, err
	}
	entry, err := s.ledger.Register(ctx, userID, nickname)
	if err != nil {
		return repository.Entry{}, err
	}
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if nick := strings.TrimSpace(nickname); db != nil && nick != "" {
		if err := db.SaveNickname(ctx, userID, nick); err != nil {
			return repository.Entry{}, err
		}
	}
	return entry, nil
}

// Nickname returns the display name of userID.
func (s *Service) Nickname(ctx context.Context, userID int64) string {
	if _, err := s.running(); err != nil || userID == 0 {
		return ""
	}
	return s.ledger.Nickname(ctx, userID)
}

// Leaderboard returns the top limit players. It is read while no case can
// commit, so it always matches a complete set of resolved transitions.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]repository.Entry, error) {
	e, err := s.running()
	if err != nil {
		return nil, err
	}
	var entries []repository.Entry
	e.ReadCommitted(func() {
		entries, err = s.ledger.Ranking(ctx, limit)
	})
	return entries, err
}

// Rank returns the leaderboard position of userID.
func (s *Service) Rank(ctx context.Context, userID int64) (repository.Entry, error) {
	e, err := s.running()
	if err != nil {
		return repository.Entry{}, err
	}
	var entry repository.Entry
	e.ReadCommitted(func() {
		entry, err = s.ledger.Rank(ctx, userID)
	})
	return entry, err
}

// ScoreLog returns the score changes applied to userID, oldest first.
func (s *Service) ScoreLog(ctx context.Context, userID int64) ([]model.ScoreChange, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, userID)
}

// ScoringPolicy returns the delta of every scoring event.
func (s *Service) ScoringPolicy(ctx context.Context) (map[string]int64, error) {
	e, err := s.running()
	if err != nil {
		return nil, err
	}
	return e.Policy().Table(), nil
}
