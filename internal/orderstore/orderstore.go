// Package orderstore is the durable, transactional order repository,
// implemented with gorm over postgres or sqlite.
package orderstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/tradeerr"
)

// Store implements ports.OrderRepository over gorm.
type Store struct {
	db *gorm.DB
}

// New opens (and migrates) the order store. dsn is either a postgres://
// connection string or a filesystem path for sqlite.
func New(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("order store connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("order store initialized (sqlite)")
	}

	if err := db.AutoMigrate(&domain.Order{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Save persists a brand-new order (version must be 1).
func (s *Store) Save(ctx context.Context, o *domain.Order) error {
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return &tradeerr.StorageError{Op: "save", Err: err}
	}
	return nil
}

// FindByOrderID returns tradeerr.NotFoundError when no row matches.
func (s *Store) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	var o domain.Order
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &tradeerr.NotFoundError{OrderID: orderID}
	}
	if err != nil {
		return nil, &tradeerr.StorageError{Op: "find_by_order_id", Err: err}
	}
	return &o, nil
}

func (s *Store) FindByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]*domain.Order, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if page < 0 {
		page = 0
	}
	var orders []*domain.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	if err != nil {
		return nil, &tradeerr.StorageError{Op: "find_by_user_id", Err: err}
	}
	return orders, nil
}

func (s *Store) FindByUserAndStatus(ctx context.Context, userID uint64, status domain.Status) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, &tradeerr.StorageError{Op: "find_by_user_and_status", Err: err}
	}
	return orders, nil
}

func (s *Store) FindByStatusIn(ctx context.Context, statuses []domain.Status) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := s.db.WithContext(ctx).Where("status IN ?", statuses).Find(&orders).Error
	if err != nil {
		return nil, &tradeerr.StorageError{Op: "find_by_status_in", Err: err}
	}
	return orders, nil
}

// UpdateIfVersion is the optimistic-concurrency primitive: the UPDATE only
// touches the row if its stored version still equals expectedVersion, and
// o.Version is bumped on success. A zero rows-affected result means someone
// else updated the row first.
func (s *Store) UpdateIfVersion(ctx context.Context, o *domain.Order, expectedVersion int64) error {
	newVersion := expectedVersion + 1
	result := s.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("order_id = ? AND version = ?", o.OrderID, expectedVersion).
		Updates(map[string]any{
			"user_id":          o.UserID,
			"symbol":           o.Symbol,
			"exchange":         o.Exchange,
			"side":             o.Side,
			"order_type":       o.OrderType,
			"quantity":         o.Quantity,
			"filled_quantity":  o.FilledQuantity,
			"limit_price":      o.LimitPrice,
			"stop_price":       o.StopPrice,
			"average_price":    o.AveragePrice,
			"time_in_force":    o.TimeInForce,
			"expiry_date":      o.ExpiryDate,
			"status":           o.Status,
			"broker_name":      o.BrokerName,
			"broker_order_id":  o.BrokerOrderID,
			"rejection_reason": o.RejectionReason,
			"submitted_at":     o.SubmittedAt,
			"executed_at":      o.ExecutedAt,
			"version":          newVersion,
		})
	if result.Error != nil {
		return &tradeerr.StorageError{Op: "update_if_version", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &tradeerr.ConflictError{OrderID: o.OrderID}
	}
	o.Version = newVersion
	return nil
}
