package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskcal/internal/model"
)

// RecoveryRepository stores short-lived credentials: password-reset codes,
// magic links and Telegram link codes.
type RecoveryRepository struct {
	db *gorm.DB
}

func NewRecoveryRepository(db *gorm.DB) *RecoveryRepository {
	return &RecoveryRepository{db: db}
}

// ReplaceCode stores code as the only live reset code for its email.
func (r *RecoveryRepository) ReplaceCode(ctx context.Context, code *model.RecoveryCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND used_at IS NULL", code.Email).Delete(&model.RecoveryCode{}).Error; err != nil {
			return fmt.Errorf("drop previous codes: %w", err)
		}
		if err := tx.Create(code).Error; err != nil {
			return fmt.Errorf("create recovery code: %w", err)
		}
		return nil
	})
}

// LatestCode returns the most recent code issued for email, used or not.
func (r *RecoveryRepository) LatestCode(ctx context.Context, email string) (*model.RecoveryCode, error) {
	var code model.RecoveryCode
	if err := r.db.WithContext(ctx).Where("email = ?", email).Order("created_at DESC, id DESC").First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *RecoveryRepository) IncrementAttempts(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&model.RecoveryCode{}).Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}
	return nil
}

func (r *RecoveryRepository) MarkCodeUsed(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.RecoveryCode{}).Where("id = ?", id).Update("used_at", at).Error; err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	return nil
}

func (r *RecoveryRepository) CreateMagicLink(ctx context.Context, link *model.MagicLink) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("create magic link: %w", err)
	}
	return nil
}

// ConsumeMagicLink marks an unused, unexpired link as used and returns it.
func (r *RecoveryRepository) ConsumeMagicLink(ctx context.Context, token string, now time.Time) (*model.MagicLink, error) {
	var link model.MagicLink
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ? AND used_at IS NULL AND expires_at > ?", token, now).
			First(&link).Error; err != nil {
			return err
		}
		link.UsedAt = &now
		return tx.Model(&link).Update("used_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *RecoveryRepository) CreateTelegramLink(ctx context.Context, link *model.TelegramLink) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("create telegram link: %w", err)
	}
	return nil
}

// ConsumeTelegramLink deletes and returns a live link code.
func (r *RecoveryRepository) ConsumeTelegramLink(ctx context.Context, code string, now time.Time) (*model.TelegramLink, error) {
	var link model.TelegramLink
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ? AND expires_at > ?", code, now).First(&link).Error; err != nil {
			return err
		}
		return tx.Delete(&link).Error
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// PurgeExpired deletes everything that can no longer be redeemed and reports
// how many rows went.
func (r *RecoveryRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			model any
			where string
		}{
			{&model.RecoveryCode{}, "expires_at < ? OR used_at IS NOT NULL"},
			{&model.MagicLink{}, "expires_at < ? OR used_at IS NOT NULL"},
			{&model.TelegramLink{}, "expires_at < ?"},
		}
		for _, s := range steps {
			res := tx.Where(s.where, now).Delete(s.model)
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return total, nil
}
