package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// createBatchSize bounds the rows per INSERT statement.
const createBatchSize = 100

// GormStore implements Store on a relational database through GORM.
// Deletes are soft: rows keep a deleted_at marker and are hidden from reads.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// OpenPostgres connects to PostgreSQL and migrates the storefeed tables.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", Err: err}
	}
	return NewGormStore(db)
}

// OpenSQLite opens (or creates) a SQLite database file and migrates the storefeed tables.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", Err: err}
	}
	return NewGormStore(db)
}

// NewGormStore wraps an open GORM handle and runs AutoMigrate.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{db: db}
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// AutoMigrate creates or updates the video, linkrow and sync_state tables.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Video{}, &LinkRow{}, &SyncState{}); err != nil {
		return &StorageError{Op: "migrate", Entity: "store", Err: err}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// orderColumn quotes the reserved "order" column.
var orderColumn = clause.OrderByColumn{Column: clause.Column{Name: "order"}}

// --- VideoStore implementation ---

func (s *GormStore) ListVideos(ctx context.Context) ([]*Video, error) {
	var videos []*Video
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "type"}}).
		Order(orderColumn).
		Find(&videos).Error
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "video", Err: err}
	}
	return videos, nil
}

func (s *GormStore) DeleteVideos(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Video{}).Error; err != nil {
		return &StorageError{Op: "delete", Entity: "video", Err: err}
	}
	return nil
}

func (s *GormStore) CreateVideos(ctx context.Context, videos []*Video) error {
	if len(videos) == 0 {
		return nil
	}
	if err := validateVideos(videos); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).CreateInBatches(videos, createBatchSize).Error; err != nil {
		return &StorageError{Op: "create", Entity: "video", Err: err}
	}
	return nil
}

// ReplaceVideos runs purge, soft delete and insert in one transaction. Rows
// soft-deleted by the previous replace are purged first so only one prior
// generation is retained.
func (s *GormStore) ReplaceVideos(ctx context.Context, videos []*Video) error {
	if err := validateVideos(videos); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("deleted_at IS NOT NULL").Delete(&Video{}).Error; err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Video{}).Error; err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if len(videos) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(videos, createBatchSize).Error; err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "replace", Entity: "video", Err: err}
	}
	return nil
}

func validateVideos(videos []*Video) error {
	for _, v := range videos {
		if v.VideoID == "" || !v.Type.Valid() {
			return &StorageError{Op: "create", Entity: "video", ID: v.VideoID, Err: ErrInvalidInput}
		}
	}
	return nil
}

// --- LinkRowStore implementation ---

func (s *GormStore) ListLinkRows(ctx context.Context) ([]*LinkRow, error) {
	var rows []*LinkRow
	err := s.db.WithContext(ctx).
		Order(orderColumn).
		Order("text").
		Find(&rows).Error
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "linkrow", Err: err}
	}
	return rows, nil
}

func (s *GormStore) GetLinkRow(ctx context.Context, id string) (*LinkRow, error) {
	var row LinkRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &StorageError{Op: "read", Entity: "linkrow", ID: id, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Entity: "linkrow", ID: id, Err: err}
	}
	return &row, nil
}

func (s *GormStore) CreateLinkRow(ctx context.Context, row *LinkRow) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &StorageError{Op: "create", Entity: "linkrow", ID: row.ID, Err: ErrAlreadyExists}
		}
		return &StorageError{Op: "create", Entity: "linkrow", ID: row.ID, Err: err}
	}
	return nil
}

func (s *GormStore) UpdateLinkRow(ctx context.Context, row *LinkRow) error {
	existing, err := s.GetLinkRow(ctx, row.ID)
	if err != nil {
		var storErr *StorageError
		if errors.As(err, &storErr) {
			storErr.Op = "update"
		}
		return err
	}
	row.CreatedAt = existing.CreatedAt

	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return &StorageError{Op: "update", Entity: "linkrow", ID: row.ID, Err: err}
	}
	return nil
}

func (s *GormStore) DeleteLinkRow(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&LinkRow{})
	if res.Error != nil {
		return &StorageError{Op: "delete", Entity: "linkrow", ID: id, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &StorageError{Op: "delete", Entity: "linkrow", ID: id, Err: ErrNotFound}
	}
	return nil
}

// --- SyncStateStore implementation ---

func (s *GormStore) GetSyncState(ctx context.Context, name string) (*SyncState, error) {
	var state SyncState
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &StorageError{Op: "read", Entity: "sync_state", ID: name, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Entity: "sync_state", ID: name, Err: err}
	}
	return &state, nil
}

func (s *GormStore) UpdateSyncState(ctx context.Context, state *SyncState) error {
	if state.Name == "" {
		return &StorageError{Op: "update", Entity: "sync_state", Err: ErrInvalidInput}
	}
	if err := s.db.WithContext(ctx).Save(state).Error; err != nil {
		return &StorageError{Op: "update", Entity: "sync_state", ID: state.Name, Err: err}
	}
	return nil
}
