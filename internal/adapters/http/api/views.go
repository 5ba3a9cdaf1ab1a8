package api

import (
	"context"
	"time"

	"github.com/okian/whodunit/internal/domain/model"
)

// Result labels shown to the client once a case closes.
const (
	outcomeSolved   = "solved"
	outcomeUnsolved = "unsolved"
	labelSolved     = "감사"
	labelUnsolved   = "부고"
)

type suspectResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type templateResponse struct {
	CaseID      int64             `json:"case_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Difficulty  int               `json:"difficulty"`
	Suspects    []suspectResponse `json:"suspects"`
}

type evidenceResponse struct {
	EvidenceID      int64  `json:"evidence_id"`
	CaseID          int64  `json:"case_id"`
	Description     string `json:"description"`
	IsTrue          bool   `json:"is_true"`
	IsFakeCandidate bool   `json:"is_fake_candidate"`
}

// clueResponse numbers clues within one case file; evidence ids stay hidden
// so they cannot be matched against the template's flagged evidence.
type clueResponse struct {
	No          int    `json:"no"`
	Description string `json:"description"`
}

type participantResponse struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

type resultResponse struct {
	Outcome        string    `json:"outcome"`
	Label          string    `json:"label"`
	WasCorrect     bool      `json:"was_correct"`
	GuessedSuspect string    `json:"guessed_suspect"`
	ActualCulprit  string    `json:"actual_culprit"`
	Reasoning      string    `json:"reasoning,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

type activeCaseResponse struct {
	ActiveID             int64                `json:"active_id"`
	CaseID               int64                `json:"case_id"`
	Title                string               `json:"title"`
	Description          string               `json:"description"`
	Difficulty           int                  `json:"difficulty"`
	Status               model.Status         `json:"status"`
	Client               participantResponse  `json:"client"`
	Culprit              *participantResponse `json:"culprit,omitempty"`
	Detective            *participantResponse `json:"detective,omitempty"`
	FabricatedEvidenceID int64                `json:"fabricated_evidence_id,omitempty"`
	Result               *resultResponse      `json:"result,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

type caseFileResponse struct {
	Case     activeCaseResponse `json:"case"`
	Suspects []suspectResponse  `json:"suspects"`
	Evidence []clueResponse     `json:"evidence"`
}

type journalEntryResponse struct {
	ID     string            `json:"id"`
	Kind   model.JournalKind `json:"kind"`
	From   model.Status      `json:"from,omitempty"`
	To     model.Status      `json:"to,omitempty"`
	UserID int64             `json:"user_id,omitempty"`
	Role   model.Role        `json:"role,omitempty"`
	Delta  int64             `json:"delta"`
	Reason string            `json:"reason,omitempty"`
	At     time.Time         `json:"at"`
}

type scoreChangeResponse struct {
	Delta    int64     `json:"delta"`
	Reason   string    `json:"reason"`
	ActiveID int64     `json:"active_id,omitempty"`
	At       time.Time `json:"at"`
}

func toTemplate(t model.CaseTemplate) templateResponse {
	out := templateResponse{
		CaseID:      t.CaseID,
		Title:       t.Title,
		Description: t.Description,
		Difficulty:  t.Difficulty,
		Suspects:    make([]suspectResponse, 0, len(t.Suspects)),
	}
	for _, s := range t.Suspects {
		out.Suspects = append(out.Suspects, suspectResponse{Name: s.Name, Description: s.Description})
	}
	return out
}

func toEvidence(items []model.EvidenceItem) []evidenceResponse {
	out := make([]evidenceResponse, 0, len(items))
	for _, e := range items {
		out = append(out, evidenceResponse{
			EvidenceID:      e.EvidenceID,
			CaseID:          e.CaseID,
			Description:     e.Description,
			IsTrue:          e.IsTrue,
			IsFakeCandidate: e.IsFakeCandidate,
		})
	}
	return out
}

// viewBuilder denormalizes active cases with their template and the
// participants' nicknames.
type viewBuilder struct {
	catalog interface {
		GetTemplate(ctx context.Context, caseID int64) (model.CaseTemplate, error)
	}
	users interface {
		Nickname(ctx context.Context, userID int64) string
	}
}

func (v *viewBuilder) participant(ctx context.Context, userID int64) *participantResponse {
	if userID == 0 {
		return nil
	}
	return &participantResponse{UserID: userID, Nickname: v.users.Nickname(ctx, userID)}
}

// one renders c. The planted evidence is only shown to the caller that
// planted it, or once the case is closed.
func (v *viewBuilder) one(ctx context.Context, c model.ActiveCase, tpl model.CaseTemplate, showPlanted bool) activeCaseResponse {
	out := activeCaseResponse{
		ActiveID:    c.ActiveID,
		CaseID:      c.CaseID,
		Title:       tpl.Title,
		Description: tpl.Description,
		Difficulty:  tpl.Difficulty,
		Status:      c.Status,
		Client:      *v.participant(ctx, c.ClientID),
		Culprit:     v.participant(ctx, c.CulpritID),
		Detective:   v.participant(ctx, c.DetectiveID),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if showPlanted || c.Status == model.StatusResolved {
		out.FabricatedEvidenceID = c.FabricatedEvidenceID
	}
	if c.Status == model.StatusResolved && c.Guess != nil {
		res := &resultResponse{
			Outcome:        outcomeUnsolved,
			Label:          labelUnsolved,
			WasCorrect:     c.Guess.WasCorrect,
			GuessedSuspect: c.Guess.ChosenSuspect,
			ActualCulprit:  tpl.Culprit,
			Reasoning:      c.Guess.Reasoning,
			SubmittedAt:    c.Guess.SubmittedAt,
		}
		if c.Solved() {
			res.Outcome, res.Label = outcomeSolved, labelSolved
		}
		out.Result = res
	}
	return out
}

// single looks up the template of c and renders it.
func (v *viewBuilder) single(ctx context.Context, c model.ActiveCase, showPlanted bool) (activeCaseResponse, error) {
	tpl, err := v.catalog.GetTemplate(ctx, c.CaseID)
	if err != nil {
		return activeCaseResponse{}, err
	}
	return v.one(ctx, c, tpl, showPlanted), nil
}

// many renders cases, fetching each template once.
func (v *viewBuilder) many(ctx context.Context, cases []model.ActiveCase) ([]activeCaseResponse, error) {
	templates := make(map[int64]model.CaseTemplate)
	out := make([]activeCaseResponse, 0, len(cases))
	for _, c := range cases {
		tpl, ok := templates[c.CaseID]
		if !ok {
			var err error
			if tpl, err = v.catalog.GetTemplate(ctx, c.CaseID); err != nil {
				return nil, err
			}
			templates[c.CaseID] = tpl
		}
		out = append(out, v.one(ctx, c, tpl, false))
	}
	return out, nil
}

func (v *viewBuilder) caseFile(ctx context.Context, f model.CaseFile) caseFileResponse {
	out := caseFileResponse{
		Case:     v.one(ctx, f.Case, f.Template, false),
		Suspects: toTemplate(f.Template).Suspects,
		Evidence: make([]clueResponse, 0, len(f.Evidence)),
	}
	for i, e := range f.Evidence {
		out.Evidence = append(out.Evidence, clueResponse{No: i + 1, Description: e.Description})
	}
	return out
}

func toJournal(entries []model.JournalEntry) []journalEntryResponse {
	out := make([]journalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntryResponse{
			ID: e.ID, Kind: e.Kind, From: e.From, To: e.To, UserID: e.UserID,
			Role: e.Role, Delta: e.Delta, Reason: e.Reason, At: e.At,
		})
	}
	return out
}

func toScoreLog(changes []model.ScoreChange) []scoreChangeResponse {
	out := make([]scoreChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, scoreChangeResponse{Delta: c.Delta, Reason: c.Reason, ActiveID: c.ActiveID, At: c.At})
	}
	return out
}
