package api

import (
	"net/http"
	"strings"

	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/pkg/logger"
)

const maxNicknameLen = 64

type registerRequest struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// UsersHandler serves nicknames, per-user case lists and score reads.
type UsersHandler struct {
	users UserService
	cases CaseService
	views *viewBuilder
	log   logger.Logger
}

// newUsersHandler creates a new users handler.
func newUsersHandler(users UserService, cases CaseService, views *viewBuilder, log logger.Logger) *UsersHandler {
	return &UsersHandler{users: users, cases: cases, views: views, log: log}
}

// HandleRegister handles POST /users.
func (h *UsersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_user"
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	if err := positive("user_id", req.UserID); err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	nick := strings.TrimSpace(req.Nickname)
	if nick == "" || len([]rune(nick)) > maxNicknameLen {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, ErrBadRequest))
		return
	}
	entry, err := h.users.RegisterUser(r.Context(), req.UserID, nick)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleCases handles GET /users/{userId}/cases?role=.
func (h *UsersHandler) HandleCases(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_cases"
	userID, err := pathID(r, "userId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	role, err := model.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	cases, err := h.cases.ListByRole(r.Context(), userID, role)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	views, err := h.views.many(r.Context(), cases)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	// a culprit may see which evidence they planted in their own cases
	if role == model.RoleCulprit {
		for i := range views {
			views[i].FabricatedEvidenceID = cases[i].FabricatedEvidenceID
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleRank handles GET /users/{userId}/rank.
func (h *UsersHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_rank"
	userID, err := pathID(r, "userId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	entry, err := h.users.Rank(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleScoreLog handles GET /users/{userId}/score-log.
func (h *UsersHandler) HandleScoreLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_score_log"
	userID, err := pathID(r, "userId")
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	changes, err := h.users.ScoreLog(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toScoreLog(changes))
}
