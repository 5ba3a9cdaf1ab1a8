// Package sqlite persists the case catalog, the evidence sets and the journal
// in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/whodunit/internal/adapters/catalog"
	"github.com/okian/whodunit/internal/adapters/evidence"
	"github.com/okian/whodunit/internal/adapters/journal"
	"github.com/okian/whodunit/internal/adapters/seed"
	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/pkg/logger"
)

const schemaVersion = 1

//go:embed schema.sql
var schemaDDL string

// Store is a SQLite-backed catalog, evidence store and journal.
type Store struct {
	db     *sql.DB
	log    logger.Logger
	closed atomic.Bool
}

var (
	_ catalog.Catalog = (*Store)(nil)
	_ evidence.Store  = (*Store)(nil)
	_ journal.Store   = (*Store)(nil)
)

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, errors.New("sqlite path is required")
	}
	if cleanPath != ":memory:" {
		if dir := filepath.Dir(cleanPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if cleanPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}

	s := &Store{db: db, log: logger.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info(ctx, "sqlite store opened", logger.String("path", cleanPath), logger.Int("schema_version", schemaVersion))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}
	return nil
}

// Close releases the database. Later calls fail with model.ErrUnavailable.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready() error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %w", model.ErrUnavailable, ErrClosed)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrUnavailable, err)
}

// Import upserts every case of doc, replacing the suspects and evidence of
// cases that already exist. The whole document lands in one transaction.
func (s *Store) Import(ctx context.Context, doc *seed.Document) (err error) {
	if err := s.ready(); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin import", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	evidenceByCase := doc.Evidence()
	for _, t := range doc.Templates() {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO templates (case_id, title, description, difficulty, culprit)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(case_id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				difficulty = excluded.difficulty,
				culprit = excluded.culprit`,
			t.CaseID, t.Title, t.Description, t.Difficulty, t.Culprit); err != nil {
			return fmt.Errorf("import case %d: %w", t.CaseID, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM suspects WHERE case_id = ?`, t.CaseID); err != nil {
			return fmt.Errorf("clear suspects of case %d: %w", t.CaseID, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM evidence WHERE case_id = ?`, t.CaseID); err != nil {
			return fmt.Errorf("clear evidence of case %d: %w", t.CaseID, err)
		}
		for i, sus := range t.Suspects {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO suspects (case_id, position, name, description) VALUES (?, ?, ?, ?)`,
				t.CaseID, i, sus.Name, sus.Description); err != nil {
				return fmt.Errorf("import suspect %q of case %d: %w", sus.Name, t.CaseID, err)
			}
		}
		for _, e := range evidenceByCase[t.CaseID] {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO evidence (case_id, evidence_id, description, is_true, is_fake_candidate) VALUES (?, ?, ?, ?, ?)`,
				e.CaseID, e.EvidenceID, e.Description, e.IsTrue, e.IsFakeCandidate); err != nil {
				return fmt.Errorf("import evidence %d of case %d: %w", e.EvidenceID, t.CaseID, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return unavailable("commit import", err)
	}
	s.log.Info(ctx, "seed imported", logger.Int("cases", len(doc.Cases)))
	return nil
}

// ListTemplates implements catalog.Catalog. Rows are read while the caller
// iterates; breaking out of the loop releases them.
func (s *Store) ListTemplates(ctx context.Context) iter.Seq2[model.CaseTemplate, error] {
	return func(yield func(model.CaseTemplate, error) bool) {
		if err := s.ready(); err != nil {
			yield(model.CaseTemplate{}, err)
			return
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT t.case_id, t.title, t.description, t.difficulty, t.culprit, s.name, s.description
			FROM templates t
			LEFT JOIN suspects s ON s.case_id = t.case_id
			ORDER BY t.case_id, s.position`)
		if err != nil {
			yield(model.CaseTemplate{}, unavailable("list templates", err))
			return
		}
		defer rows.Close()

		var (
			cur     model.CaseTemplate
			started bool
		)
		for rows.Next() {
			var (
				t       model.CaseTemplate
				susName sql.NullString
				susDesc sql.NullString
			)
			if err := rows.Scan(&t.CaseID, &t.Title, &t.Description, &t.Difficulty, &t.Culprit, &susName, &susDesc); err != nil {
				yield(model.CaseTemplate{}, fmt.Errorf("scan template: %w", err))
				return
			}
			if !started || t.CaseID != cur.CaseID {
				if started && !yield(cur, nil) {
					return
				}
				cur, started = t, true
			}
			if susName.Valid {
				cur.Suspects = append(cur.Suspects, model.Suspect{Name: susName.String, Description: susDesc.String})
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.CaseTemplate{}, unavailable("list templates", err))
			return
		}
		if started {
			yield(cur, nil)
		}
	}
}

// GetTemplate implements catalog.Catalog.
func (s *Store) GetTemplate(ctx context.Context, caseID int64) (model.CaseTemplate, error) {
	if err := s.ready(); err != nil {
		return model.CaseTemplate{}, err
	}
	t := model.CaseTemplate{CaseID: caseID}
	err := s.db.QueryRowContext(ctx,
		`SELECT title, description, difficulty, culprit FROM templates WHERE case_id = ?`, caseID).
		Scan(&t.Title, &t.Description, &t.Difficulty, &t.Culprit)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CaseTemplate{}, fmt.Errorf("case template %d: %w", caseID, model.ErrNotFound)
	}
	if err != nil {
		return model.CaseTemplate{}, unavailable("get template", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description FROM suspects WHERE case_id = ? ORDER BY position`, caseID)
	if err != nil {
		return model.CaseTemplate{}, unavailable("get suspects", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sus model.Suspect
		if err := rows.Scan(&sus.Name, &sus.Description); err != nil {
			return model.CaseTemplate{}, fmt.Errorf("scan suspect: %w", err)
		}
		t.Suspects = append(t.Suspects, sus)
	}
	if err := rows.Err(); err != nil {
		return model.CaseTemplate{}, unavailable("get suspects", err)
	}
	return t, nil
}

// GetEvidenceForCase implements evidence.Store.
func (s *Store) GetEvidenceForCase(ctx context.Context, caseID int64) ([]model.EvidenceItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM templates WHERE case_id = ?`, caseID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evidence for case %d: %w", caseID, model.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get evidence", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT evidence_id, description, is_true, is_fake_candidate
		FROM evidence WHERE case_id = ? ORDER BY evidence_id`, caseID)
	if err != nil {
		return nil, unavailable("get evidence", err)
	}
	defer rows.Close()
	var items []model.EvidenceItem
	for rows.Next() {
		e := model.EvidenceItem{CaseID: caseID}
		if err := rows.Scan(&e.EvidenceID, &e.Description, &e.IsTrue, &e.IsFakeCandidate); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("get evidence", err)
	}
	return items, nil
}

// Append implements journal.Writer.
func (s *Store) Append(ctx context.Context, e model.JournalEntry) error {
	if err := s.ready(); err != nil {
		return err
	}
	if e.ID == "" || e.ActiveID <= 0 {
		return fmt.Errorf("journal entry %q for case %d: %w", e.ID, e.ActiveID, journal.ErrInvalidEntry)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (id, active_id, case_id, kind, from_status, to_status, user_id, role, delta, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActiveID, e.CaseID, string(e.Kind), string(e.From), string(e.To),
		e.UserID, string(e.Role), e.Delta, e.Reason, e.At.UTC().Format(time.RFC3339Nano))
	if isUniqueViolation(err) {
		return fmt.Errorf("journal entry %q: %w", e.ID, journal.ErrDuplicateEntry)
	}
	if err != nil {
		return unavailable("append journal", err)
	}
	return nil
}

// ByActiveCase implements journal.Reader.
func (s *Store) ByActiveCase(ctx context.Context, activeID int64) ([]model.JournalEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, active_id, case_id, kind, from_status, to_status, user_id, role, delta, reason, at
		FROM journal WHERE active_id = ? ORDER BY seq`, activeID)
	if err != nil {
		return nil, unavailable("read journal", err)
	}
	defer rows.Close()

	var out []model.JournalEntry
	for rows.Next() {
		var (
			e                          model.JournalEntry
			kind, from, to, role, when string
		)
		if err := rows.Scan(&e.ID, &e.ActiveID, &e.CaseID, &kind, &from, &to, &e.UserID, &role, &e.Delta, &e.Reason, &when); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, when)
		if err != nil {
			return nil, fmt.Errorf("journal entry %q time %q: %w", e.ID, when, err)
		}
		e.Kind, e.From, e.To, e.Role, e.At = model.JournalKind(kind), model.Status(from), model.Status(to), model.Role(role), at
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read journal", err)
	}
	return out, nil
}

// Count implements journal.Reader.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal`).Scan(&n); err != nil {
		return 0, unavailable("count journal", err)
	}
	return n, nil
}

// LastActiveID returns the highest active case id in the journal, or 0.
func (s *Store) LastActiveID(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(active_id), 0) FROM journal`).Scan(&id); err != nil {
		return 0, unavailable("last active id", err)
	}
	return id, nil
}

// ScoreChanges yields every journaled score change in the order it was written.
func (s *Store) ScoreChanges(ctx context.Context) iter.Seq2[model.ScoreChange, error] {
	return func(yield func(model.ScoreChange, error) bool) {
		if err := s.ready(); err != nil {
			yield(model.ScoreChange{}, err)
			return
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT user_id, delta, reason, active_id, at
			FROM journal WHERE kind = ? ORDER BY seq`, string(model.JournalScore))
		if err != nil {
			yield(model.ScoreChange{}, unavailable("read score changes", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c    model.ScoreChange
				when string
			)
			if err := rows.Scan(&c.UserID, &c.Delta, &c.Reason, &c.ActiveID, &when); err != nil {
				yield(model.ScoreChange{}, fmt.Errorf("scan score change: %w", err))
				return
			}
			if c.At, err = time.Parse(time.RFC3339Nano, when); err != nil {
				yield(model.ScoreChange{}, fmt.Errorf("score change of case %d time %q: %w", c.ActiveID, when, err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.ScoreChange{}, unavailable("read score changes", err))
		}
	}
}

// SaveNickname stores the nickname of userID, replacing an earlier one.
func (s *Store) SaveNickname(ctx context.Context, userID int64, nickname string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, nickname) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET nickname = excluded.nickname`, userID, nickname); err != nil {
		return unavailable("save nickname", err)
	}
	return nil
}

// Nicknames returns every stored nickname by user id.
func (s *Store) Nicknames(ctx context.Context) (map[int64]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, nickname FROM users ORDER BY user_id`)
	if err != nil {
		return nil, unavailable("read nicknames", err)
	}
	defer rows.Close()
	out := make(map[int64]string)
	for rows.Next() {
		var (
			id   int64
			nick string
		)
		if err := rows.Scan(&id, &nick); err != nil {
			return nil, fmt.Errorf("scan nickname: %w", err)
		}
		out[id] = nick
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read nicknames", err)
	}
	return out, nil
}
