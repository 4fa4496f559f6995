package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/choraleia/daydigest/pkg/db"
	"github.com/choraleia/daydigest/pkg/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RunHistoryService stores one row per summarization attempt.
type RunHistoryService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenRunHistory opens (or creates) <dataDir>/history.db.
func OpenRunHistory(dataDir string) (*RunHistoryService, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "history.db")
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open run history %s: %w", path, err)
	}
	s := NewRunHistoryService(database)
	if err := s.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate run history: %w", err)
	}
	return s, nil
}

// NewRunHistoryService wraps an existing database handle.
func NewRunHistoryService(database *gorm.DB) *RunHistoryService {
	return &RunHistoryService{db: database, logger: utils.GetLogger()}
}

// AutoMigrate creates database tables
func (s *RunHistoryService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.AnalysisRun{})
}

// Record stores a run. Failures are logged, never returned: history is
// best-effort and must not affect summarization.
func (s *RunHistoryService) Record(run *db.AnalysisRun) {
	if s == nil || run == nil {
		return
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Create(run).Error; err != nil {
		s.logger.Warn("Failed to record analysis run", "date", run.Date, "error", err)
	}
}

// List returns the most recent runs, newest first. date filters when non-empty.
func (s *RunHistoryService) List(date string, limit int) ([]db.AnalysisRun, error) {
	if s == nil {
		return []db.AnalysisRun{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := s.db.Order("created_at DESC").Order("id DESC").Limit(limit)
	if date != "" {
		q = q.Where("date = ?", date)
	}
	runs := make([]db.AnalysisRun, 0)
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Prune deletes runs created before the cutoff and returns how many went.
func (s *RunHistoryService) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&db.AnalysisRun{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Close releases the underlying connection.
func (s *RunHistoryService) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
