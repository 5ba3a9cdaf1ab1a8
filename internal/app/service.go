// Package service wires the case catalog, the lifecycle engine, the scoring
// ledger and the journal pipeline into the dependencies of the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/whodunit/internal/adapters/catalog"
	"github.com/okian/whodunit/internal/adapters/evidence"
	"github.com/okian/whodunit/internal/adapters/journal"
	"github.com/okian/whodunit/internal/adapters/mq/queue"
	"github.com/okian/whodunit/internal/adapters/mq/worker"
	"github.com/okian/whodunit/internal/adapters/repository"
	"github.com/okian/whodunit/internal/adapters/seed"
	"github.com/okian/whodunit/internal/adapters/sqlite"
	"github.com/okian/whodunit/internal/domain/dedupe"
	"github.com/okian/whodunit/internal/domain/lifecycle"
	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/internal/domain/scoring"
	"github.com/okian/whodunit/pkg/logger"
	"github.com/okian/whodunit/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start or after Stop.
var ErrNotStarted = fmt.Errorf("service not started: %w", model.ErrUnavailable)

// Service implements the API dependencies for the case game.
type Service struct {
	mu sync.RWMutex

	// Core components
	catalog  catalog.Catalog
	evidence evidence.Store
	journal  journal.Store
	db       *sqlite.Store
	ledger   *repository.TreapLedger
	engine   *lifecycle.Engine
	queue    *queue.InMemoryQueue
	deduper  dedupe.Deduper
	pool     *worker.Pool

	// Configuration
	seedPath      string
	sqlitePath    string
	activeIDStart int64
	workerCount   int
	queueSize     int
	dedupeSize    int
	scoring       map[string]int64

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSeedPath loads case templates from a YAML file instead of the built-in seed.
func WithSeedPath(path string) Option {
	return func(s *Service) {
		s.seedPath = path
	}
}

// WithSQLite keeps templates, evidence and the journal in the database at path.
// An empty path keeps everything in memory.
func WithSQLite(path string) Option {
	return func(s *Service) {
		s.sqlitePath = path
	}
}

// WithActiveIDStart sets the id of the first active case.
func WithActiveIDStart(id int64) Option {
	return func(s *Service) {
		if id > 0 {
			s.activeIDStart = id
		}
	}
}

// WithWorkerCount sets the number of journal writers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the journal queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many journal ids the writers remember.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithScoring overrides scoring deltas by event name.
func WithScoring(deltas map[string]int64) Option {
	return func(s *Service) {
		s.scoring = deltas
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		activeIDStart: 100,
		workerCount:   2,
		queueSize:     4096,
		dedupeSize:    50_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the seed, opens the stores and starts the journal writers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting case service...")

	policy, err := scoring.NewPolicy(scoring.WithDeltasFromConfig(s.scoring))
	if err != nil {
		return fmt.Errorf("scoring policy: %w", err)
	}
	doc, err := seed.Load(s.seedPath)
	if err != nil {
		return err
	}
	if err := s.openStores(ctx, doc); err != nil {
		return err
	}
	s.ledger = repository.NewTreapLedger()
	firstID, err := s.restore(ctx)
	if err != nil {
		if s.db != nil {
			_ = s.db.Close()
			s.db = nil
		}
		return err
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithLogger(s.logger),
	)
	s.pool = worker.NewPool(s.workerCount, s.queue, s.deduper, s.journal, worker.WithLogger(s.logger))
	s.engine = lifecycle.New(s.catalog, s.evidence, s.ledger,
		lifecycle.WithLogger(s.logger),
		lifecycle.WithPolicy(policy),
		lifecycle.WithPublisher(s.queue),
		lifecycle.WithFirstActiveID(firstID),
	)
	// Writers outlive the request that started the service; Stop drains them.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "case service started",
		logger.String("store", s.storeName()),
		logger.Int("templates", len(doc.Cases)),
		logger.Int64("firstActiveID", firstID),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

func (s *Service) openStores(ctx context.Context, doc *seed.Document) error {
	if s.sqlitePath == "" {
		cat, err := catalog.NewInMemory(doc.Templates())
		if err != nil {
			return err
		}
		ev, err := evidence.NewInMemory(doc.Evidence())
		if err != nil {
			return err
		}
		s.catalog, s.evidence, s.journal = cat, ev, journal.NewInMemory()
		return nil
	}

	db, err := sqlite.Open(ctx, s.sqlitePath, sqlite.WithLogger(s.logger))
	if err != nil {
		return err
	}
	if err := db.Import(ctx, doc); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	s.catalog, s.evidence, s.journal = db, db, db
	return nil
}

// restore rebuilds the ledger from a previous run kept in the database and
// returns the id for the first new active case, which never reuses a
// journaled one.
func (s *Service) restore(ctx context.Context) (int64, error) {
	if s.db == nil {
		return s.activeIDStart, nil
	}
	last, err := s.db.LastActiveID(ctx)
	if err != nil {
		return 0, err
	}
	var changes []model.ScoreChange
	for c, err := range s.db.ScoreChanges(ctx) {
		if err != nil {
			return 0, err
		}
		changes = append(changes, c)
	}
	if err := s.ledger.ApplyBatch(ctx, changes); err != nil {
		return 0, fmt.Errorf("replay scores: %w", err)
	}
	names, err := s.db.Nicknames(ctx)
	if err != nil {
		return 0, err
	}
	for id, nick := range names {
		if _, err := s.ledger.Register(ctx, id, nick); err != nil {
			return 0, fmt.Errorf("restore nickname of user %d: %w", id, err)
		}
	}
	if last > 0 {
		s.logger.Info(ctx, "restored previous run",
			logger.Int64("lastActiveID", last),
			logger.Int("scoreChanges", len(changes)),
			logger.Int("nicknames", len(names)),
		)
	}
	return max(s.activeIDStart, last+1), nil
}

func (s *Service) storeName() string {
	if s.db != nil {
		return "sqlite"
	}
	return "memory"
}

// Stop drains the journal queue and closes the stores.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping case service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("journal workers: %w", err))
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sqlite: %w", err))
		}
		s.db = nil
	}
	s.started = false
	s.logger.Info(ctx, "case service stopped")
	return errors.Join(errs...)
}

// running returns the engine, or ErrNotStarted.
func (s *Service) running() (*lifecycle.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.engine, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	counts := s.engine.Counts(ctx)
	byStatus := make(map[string]int, len(counts))
	for st, n := range counts {
		byStatus[string(st)] = n
	}
	queueLen := s.queue.Len(ctx)
	users := s.ledger.Count(ctx)

	stats["store"] = s.storeName()
	stats["casesByStatus"] = byStatus
	stats["queueLength"] = queueLen
	stats["users"] = users
	stats["journalSeen"] = s.deduper.Size()
	if n, err := s.journal.Count(ctx); err == nil {
		stats["journalEntries"] = n
	}

	metrics.UpdateJournalQueueSize(queueLen)
	metrics.UpdateLedgerUsers(users)
	return stats
}
