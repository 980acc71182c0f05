package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/orchestra/config"
	"github.com/BaSui01/orchestra/internal/database"
	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/taskqueue"
	"github.com/BaSui01/orchestra/types"
	"github.com/BaSui01/orchestra/workflow"
)

const (
	defaultListLimit = 50
	saveRetries      = 3
)

// Store persists workflow runs and task records.
type Store struct {
	pool    *database.PoolManager
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New wraps an open pool. collector may be nil.
func New(pool *database.PoolManager, collector *metrics.Collector, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:    pool,
		metrics: collector,
		logger:  logger.With(zap.String("component", "store")),
	}
}

// Open connects using cfg and migrates the schema.
func Open(cfg config.DatabaseConfig, collector *metrics.Collector, logger *zap.Logger) (*Store, error) {
	pool, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := New(pool, collector, logger)
	if err := s.Migrate(); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the tables.
func (s *Store) Migrate() error {
	if err := s.pool.DB().AutoMigrate(&WorkflowRun{}, &TaskRecord{}); err != nil {
		return fmt.Errorf("migrate store schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) observe(op string, start time.Time) {
	s.metrics.RecordDBQuery(op, time.Since(start))
}

// SaveWorkflowRun inserts or replaces a run by ID.
func (s *Store) SaveWorkflowRun(ctx context.Context, run *WorkflowRun) error {
	if run == nil || run.ID == "" {
		return types.NewValidationError("workflow run requires an id")
	}
	defer s.observe("save_workflow_run", time.Now())

	err := s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(run).Error
	})
	if err != nil {
		return fmt.Errorf("save workflow run %s: %w", run.ID, err)
	}
	return nil
}

// GetWorkflowRun loads one run.
func (s *Store) GetWorkflowRun(ctx context.Context, id string) (*WorkflowRun, error) {
	defer s.observe("get_workflow_run", time.Now())

	var run WorkflowRun
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError(fmt.Sprintf("workflow run '%s' not found", id)).WithTarget(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow run %s: %w", id, err)
	}
	return &run, nil
}

// ListWorkflowRuns returns the most recent runs, newest first.
func (s *Store) ListWorkflowRuns(ctx context.Context, limit int) ([]WorkflowRun, error) {
	defer s.observe("list_workflow_runs", time.Now())

	var runs []WorkflowRun
	err := s.pool.DB().WithContext(ctx).
		Order("started_at DESC").
		Limit(listLimit(limit)).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}
	return runs, nil
}

// SaveTaskRecord inserts or replaces a task record by ID.
func (s *Store) SaveTaskRecord(ctx context.Context, rec *TaskRecord) error {
	if rec == nil || rec.ID == "" {
		return types.NewValidationError("task record requires an id")
	}
	defer s.observe("save_task_record", time.Now())

	err := s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	})
	if err != nil {
		return fmt.Errorf("save task record %s: %w", rec.ID, err)
	}
	return nil
}

// ListTaskRecords returns recent records, newest first. An empty taskType
// matches every type.
func (s *Store) ListTaskRecords(ctx context.Context, taskType string, limit int) ([]TaskRecord, error) {
	defer s.observe("list_task_records", time.Now())

	q := s.pool.DB().WithContext(ctx)
	if taskType != "" {
		q = q.Where("type = ?", taskType)
	}
	var recs []TaskRecord
	if err := q.Order("finished_at DESC").Limit(listLimit(limit)).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list task records: %w", err)
	}
	return recs, nil
}

// RecordWorkflowRun satisfies workflow.RunRecorder.
func (s *Store) RecordWorkflowRun(ctx context.Context, result *workflow.Result) error {
	if result == nil {
		return nil
	}
	return s.SaveWorkflowRun(ctx, NewWorkflowRun(result))
}

// TaskEventHandler returns a handler that saves every finished task. It is
// meant for taskqueue.EventBus.Subscribe; failures are logged.
func (s *Store) TaskEventHandler(timeout time.Duration) taskqueue.EventHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(ev taskqueue.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.SaveTaskRecord(ctx, NewTaskRecord(ev.Result)); err != nil {
			s.logger.Warn("failed to persist task record",
				zap.String("task_id", ev.Result.TaskID),
				zap.Error(err))
		}
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
