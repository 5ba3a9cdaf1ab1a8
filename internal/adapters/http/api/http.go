// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/whodunit/internal/adapters/repository"
	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/pkg/logger"
	"github.com/okian/whodunit/pkg/metrics"
)

const (
	defaultLeaderboardLimit = 10
	maxBodyBytes            = 1 << 20
)

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = repository.Entry

// CatalogReader serves templates and their evidence.
type CatalogReader interface {
	ListTemplates(ctx context.Context) ([]model.CaseTemplate, error)
	GetTemplate(ctx context.Context, caseID int64) (model.CaseTemplate, error)
	GetEvidenceForCase(ctx context.Context, caseID int64) ([]model.EvidenceItem, error)
}

// CaseService runs the case lifecycle.
type CaseService interface {
	CreateActiveCase(ctx context.Context, caseID, clientID int64) (model.ActiveCase, error)
	AssignCulprit(ctx context.Context, activeID, culpritID int64) (model.ActiveCase, error)
	FabricateEvidence(ctx context.Context, activeID, culpritID, evidenceID int64) (model.ActiveCase, error)
	AssignDetective(ctx context.Context, activeID, detectiveID int64) (model.ActiveCase, error)
	SubmitGuess(ctx context.Context, activeID, detectiveID int64, suspect, reasoning string) (model.ActiveCase, error)

	GetActiveCase(ctx context.Context, activeID int64) (model.ActiveCase, error)
	ListOpen(ctx context.Context) ([]model.ActiveCase, error)
	ListByStatus(ctx context.Context, status model.Status) ([]model.ActiveCase, error)
	ListByRole(ctx context.Context, userID int64, role model.Role) ([]model.ActiveCase, error)
	CaseFile(ctx context.Context, activeID, detectiveID int64) (model.CaseFile, error)
	Journal(ctx context.Context, activeID int64) ([]model.JournalEntry, error)
}

// UserService serves nicknames and the scoring ledger.
type UserService interface {
	RegisterUser(ctx context.Context, userID int64, nickname string) (Entry, error)
	Nickname(ctx context.Context, userID int64) string
	Leaderboard(ctx context.Context, limit int) ([]Entry, error)
	Rank(ctx context.Context, userID int64) (Entry, error)
	ScoreLog(ctx context.Context, userID int64) ([]model.ScoreChange, error)
	ScoringPolicy(ctx context.Context) (map[string]int64, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CatalogReader
	CaseService
	UserService
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	templatesHandler   *TemplatesHandler
	casesHandler       *CasesHandler
	usersHandler       *UsersHandler
	leaderboardHandler *LeaderboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int, opts ...Option) *Server {
	o := options{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	views := &viewBuilder{catalog: deps, users: deps}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		templatesHandler:   NewTemplatesHandler(deps, o.logger),
		casesHandler:       newCasesHandler(deps, views, o.logger),
		usersHandler:       newUsersHandler(deps, deps, views, o.logger),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint)))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	route("GET /templates", "templates", s.templatesHandler.HandleList)
	route("GET /templates/{caseId}", "template", s.templatesHandler.HandleGet)
	route("GET /templates/{caseId}/evidence", "template_evidence", s.templatesHandler.HandleEvidence)

	route("POST /active-cases", "active_cases_create", s.casesHandler.HandleCreate)
	route("GET /active-cases", "active_cases_list", s.casesHandler.HandleList)
	route("GET /active-cases/{activeId}", "active_case", s.casesHandler.HandleGet)
	route("POST /active-cases/{activeId}/culprit", "assign_culprit", s.casesHandler.HandleAssignCulprit)
	route("POST /active-cases/{activeId}/fabrication", "fabricate_evidence", s.casesHandler.HandleFabricate)
	route("POST /active-cases/{activeId}/detective", "assign_detective", s.casesHandler.HandleAssignDetective)
	route("GET /active-cases/{activeId}/case-file", "case_file", s.casesHandler.HandleCaseFile)
	route("POST /active-cases/{activeId}/guess", "submit_guess", s.casesHandler.HandleGuess)
	route("GET /active-cases/{activeId}/journal", "journal", s.casesHandler.HandleJournal)

	route("POST /users", "users_register", s.usersHandler.HandleRegister)
	route("GET /users/{userId}/cases", "user_cases", s.usersHandler.HandleCases)
	route("GET /users/{userId}/rank", "user_rank", s.usersHandler.HandleRank)
	route("GET /users/{userId}/score-log", "user_score_log", s.usersHandler.HandleScoreLog)

	route("GET /leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	route("GET /scoring-policy", "scoring_policy", s.leaderboardHandler.HandleScoringPolicy)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a domain error to its status and code. Server-side
// failures are logged with the request id.
func writeFailure(w http.ResponseWriter, r *http.Request, log logger.Logger, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("request_id", w.Header().Get(requestIDHeader)),
			logger.Error(err),
		)
	}
	writeError(w, status, code, Wrap(op, err))
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", ErrBadRequest, err)
	}
	return nil
}

// pathID parses a positive id path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return parseID(name, r.PathValue(name))
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrBadRequest, name, raw)
	}
	return id, nil
}

// positive rejects a non-positive id from a request body.
func positive(name string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s must be a positive integer", ErrBadRequest, name)
	}
	return nil
}
