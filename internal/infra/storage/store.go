package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"arbscan/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store keeps opportunities and cycle summaries in SQL. Tables are
// append-only.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured driver and migrates the scanner tables.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		// Ensure directory exists
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create DB directory: %w", err)
			}
		}
		// Pure Go SQLite
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	}

	return NewStore(db)
}

// NewStore wraps an open connection and runs the auto migration.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&domain.OpportunityRow{}, &domain.CycleRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Persist implements domain.ResultSink. The cycle summary and its
// opportunities are written in one transaction.
func (s *Store) Persist(ctx context.Context, result *domain.ScanCycleResult) error {
	cycle := domain.NewCycleRow(result)
	rows := make([]domain.OpportunityRow, len(result.Opportunities))
	for i, o := range result.Opportunities {
		rows[i] = domain.NewOpportunityRow(o)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&cycle).Error; err != nil {
			return fmt.Errorf("insert cycle: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("insert opportunities: %w", err)
		}
		return nil
	})
}

// RecentOpportunities returns the latest opportunities, newest first.
func (s *Store) RecentOpportunities(ctx context.Context, limit int) ([]domain.OpportunityRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.OpportunityRow
	err := s.db.WithContext(ctx).Order("detected_at desc").Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// RecentCycles returns the latest cycle summaries, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]domain.CycleRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.CycleRow
	err := s.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
