// Package store persists crawl statuses, product snapshots and run leases in SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/utils"
)

const memoryPath = ":memory:"

// Store is the SQLite-backed status store
type Store struct {
	db     *gorm.DB
	config *types.Config
	logger types.Logger
	now    func() time.Time
}

// Filter selects status rows
type Filter struct {
	Supplier string
	Type     types.ItemType
	Statuses []types.Status
	Limit    int
}

// Summary counts items per status
type Summary struct {
	Products map[types.Status]int64 `json:"products"`
	Variants map[types.Status]int64 `json:"variants"`
}

// Open opens or creates the database at path and migrates it
func Open(path string, config *types.Config, logger types.Logger) (*Store, error) {
	dsn := path
	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one writer at a time, and one shared in-memory database
	sqlDB.SetMaxOpenConns(1)

	return New(db, config, logger)
}

// New wraps an open database and migrates it
func New(db *gorm.DB, config *types.Config, logger types.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Item{}, &ProductSnapshot{}, &Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	s := &Store{db: db, config: config, logger: logger, now: time.Now}

	if n, err := s.MigrateLegacyStatuses(context.Background()); err != nil {
		return nil, err
	} else if n > 0 {
		logger.Infof("Converted %d legacy partial statuses to error", n)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Discover records a new item as pending. An item already known keeps its
// status, which is returned.
func (s *Store) Discover(ctx context.Context, item types.ItemStatus) (types.Status, error) {
	row := Item{}
	err := s.db.WithContext(ctx).
		Where(Item{Supplier: item.Supplier, Type: string(item.Type), Code: item.Code}).
		Attrs(Item{
			Status:     string(types.StatusPending),
			Name:       item.Name,
			URL:        item.URL,
			Category:   item.Category,
			Collection: item.Collection,
			ParentCode: item.ParentCode,
		}).
		FirstOrCreate(&row).Error
	if err != nil {
		return "", fmt.Errorf("failed to record %s %s: %w", item.Type, item.Code, err)
	}
	return types.ParseStatus(row.Status), nil
}

// Transition moves an item to a new status. The error message is kept only
// for the error status and is truncated to ErrorMessageLimit.
func (s *Store) Transition(ctx context.Context, supplier string, itemType types.ItemType, code string, to types.Status, message string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Item{}
		err := tx.Where(Item{Supplier: supplier, Type: string(itemType), Code: code}).First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		from := types.Status("")
		if err == nil {
			from = types.ParseStatus(row.Status)
		}
		if !types.CanTransition(from, to) {
			return fmt.Errorf("%s %s: %q to %q: %w", itemType, code, from, to, types.ErrInvalidTransition)
		}

		if from == "" {
			row = Item{Supplier: supplier, Type: string(itemType), Code: code}
		}
		row.Status = string(to)
		row.ErrorMessage = ""
		if to == types.StatusError {
			row.ErrorMessage = utils.Truncate(message, s.config.ErrorMessageLimit)
		}
		if to == types.StatusProcessing {
			row.Attempts++
		}
		return tx.Save(&row).Error
	})
}

// Get returns the status of one item, nil when it is unknown
func (s *Store) Get(ctx context.Context, supplier string, itemType types.ItemType, code string) (*types.ItemStatus, error) {
	row := Item{}
	err := s.db.WithContext(ctx).Where(Item{Supplier: supplier, Type: string(itemType), Code: code}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	status := row.toStatus()
	return &status, nil
}

// List returns the items matching the filter, oldest first
func (s *Store) List(ctx context.Context, filter Filter) ([]types.ItemStatus, error) {
	q := s.db.WithContext(ctx).Model(&Item{})
	if filter.Supplier != "" {
		q = q.Where("supplier = ?", filter.Supplier)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", lo.Map(filter.Statuses, func(st types.Status, _ int) string { return string(st) }))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []Item
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return lo.Map(rows, func(row Item, _ int) types.ItemStatus { return row.toStatus() }), nil
}

// Summary counts the items of a supplier per type and status
func (s *Store) Summary(ctx context.Context, supplier string) (*Summary, error) {
	var rows []struct {
		Type   string
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&Item{}).
		Select("type, status, count(*) AS count").
		Where("supplier = ?", supplier).
		Group("type, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := &Summary{Products: map[types.Status]int64{}, Variants: map[types.Status]int64{}}
	for _, row := range rows {
		target := summary.Products
		if types.ItemType(row.Type) == types.ItemVariant {
			target = summary.Variants
		}
		target[types.ParseStatus(row.Status)] += row.Count
	}
	return summary, nil
}

// MigrateLegacyStatuses rewrites the retired "partial" status as error
func (s *Store) MigrateLegacyStatuses(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Item{}).
		Where("status = ?", types.LegacyPartialStatus()).
		Update("status", string(types.StatusError))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to migrate legacy statuses: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ResetProcessing closes items left processing by a run that died
func (s *Store) ResetProcessing(ctx context.Context, supplier string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Item{}).
		Where("supplier = ? AND status = ?", supplier, string(types.StatusProcessing)).
		Updates(map[string]interface{}{"status": string(types.StatusError), "error_message": "interrupted"})
	return res.RowsAffected, res.Error
}

// SaveProduct stores the latest snapshot of a product
func (s *Store) SaveProduct(ctx context.Context, supplier string, product types.Product) error {
	snapshot := ProductSnapshot{Supplier: supplier, Code: product.Code, Data: datatypes.NewJSONType(product)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "supplier"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&snapshot).Error
}

// LoadProduct returns the snapshot of a product, nil when there is none
func (s *Store) LoadProduct(ctx context.Context, supplier, code string) (*types.Product, error) {
	snapshot := ProductSnapshot{}
	err := s.db.WithContext(ctx).Where("supplier = ? AND code = ?", supplier, code).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	product := snapshot.Data.Data()
	return &product, nil
}

// StartRun takes the supplier's lease. It fails with ErrAlreadyRunning while
// another unfinished run younger than RunLeaseTTL exists.
func (s *Store) StartRun(ctx context.Context, supplier string) (*Run, error) {
	run := &Run{ID: uuid.NewString(), Supplier: supplier, StartedAt: s.now()}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []Run
		if err := tx.Where("supplier = ? AND finished_at IS NULL", supplier).Find(&open).Error; err != nil {
			return fmt.Errorf("can't get open runs: %w", err)
		}
		for _, r := range open {
			if s.now().Sub(r.StartedAt) < s.config.RunLeaseTTL {
				return types.ErrAlreadyRunning
			}
			s.logger.Warnf("Closing stale %s run %s started at %s", supplier, r.ID, r.StartedAt.Format(time.RFC3339))
			finished := s.now()
			if err := tx.Model(&Run{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
				"finished_at": finished,
				"success":     false,
				"message":     "stale lease",
			}).Error; err != nil {
				return err
			}
		}
		return tx.Create(run).Error
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun releases the lease and records the run outcome
func (s *Store) FinishRun(ctx context.Context, run *Run, runErr error) error {
	finished := s.now()
	run.FinishedAt = &finished
	run.Success = lo.ToPtr(runErr == nil)
	if runErr != nil {
		run.Message = utils.Truncate(runErr.Error(), s.config.ErrorMessageLimit)
	}
	// the lease must be released even when the crawl context is done
	return s.db.WithContext(context.WithoutCancel(ctx)).Save(run).Error
}

// Runs returns the latest runs of a supplier, newest first
func (s *Store) Runs(ctx context.Context, supplier string, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.WithContext(ctx).Where("supplier = ?", supplier).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
