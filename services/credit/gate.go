package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
)

// Gate guards paid automation actions.
type Gate interface {
	Check(ctx context.Context, companyID string, amount int64) error
	Deduct(ctx context.Context, companyID string, amount int64) error
	Refund(ctx context.Context, companyID string, amount int64) error
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Balance(ctx context.Context, companyID string) (int64, error) {
	var b Balance
	err := s.db.WithContext(ctx).Where("company_id = ?", companyID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return b.Balance, nil
}

func (s *Service) Check(ctx context.Context, companyID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	balance, err := s.Balance(ctx, companyID)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: balance %d, required %d", ErrInsufficientCredits, balance, amount)
	}
	return nil
}

// Deduct subtracts amount only while the balance covers it.
func (s *Service) Deduct(ctx context.Context, companyID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&Balance{}).
		Where("company_id = ? AND balance >= ?", companyID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: required %d", ErrInsufficientCredits, amount)
	}
	zap.L().Debug("credits deducted", zap.String("company_id", companyID), zap.Int64("amount", amount))
	return nil
}

// Refund gives back credits reserved for an action that did not happen.
func (s *Service) Refund(ctx context.Context, companyID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	return s.Grant(ctx, companyID, amount)
}

// Grant adds credits, creating the balance row on first use.
func (s *Service) Grant(ctx context.Context, companyID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("credit_balances.balance + ?", amount),
			"updated_at": now,
		}),
	}).Create(&Balance{CompanyID: companyID, Balance: amount, CreatedAt: now, UpdatedAt: now}).Error
}
