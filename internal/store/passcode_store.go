package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"passgate/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateCode = errors.New("passcode code already exists")
)

type PasscodeStore struct {
	db *gorm.DB
}

func NewPasscodeStore(db *gorm.DB) *PasscodeStore {
	return &PasscodeStore{db: db}
}

// Create inserts the passcode and returns with ID and timestamps
// filled in. The code must be unique across all passcodes, deleted
// ones included.
func (s *PasscodeStore) Create(passcode *models.Passcode) error {
	exists, err := s.CodeExists(passcode.Code, 0)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateCode
	}

	return s.db.Create(passcode).Error
}

func (s *PasscodeStore) FindByID(id uint) (*models.Passcode, error) {
	var passcode models.Passcode
	if err := s.db.Preload("User").First(&passcode, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &passcode, nil
}

func (s *PasscodeStore) FindByCode(code string) (*models.Passcode, error) {
	var passcode models.Passcode
	if err := s.db.Preload("User").Where("code = ?", code).First(&passcode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &passcode, nil
}

// FindActiveByUserID returns the user's most recently issued passcode
// that is active and not past its expiry time.
func (s *PasscodeStore) FindActiveByUserID(userID uint) (*models.Passcode, error) {
	var passcode models.Passcode
	err := s.db.
		Where("user_id = ? AND status = ?", userID, models.PasscodeStatusActive).
		Where("expiry_time IS NULL OR expiry_time > ?", time.Now()).
		Order("created_at DESC").
		First(&passcode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &passcode, nil
}

// Update applies a partial field set and returns the fresh row. An
// empty field set is an error rather than a silent no-op.
func (s *PasscodeStore) Update(id uint, fields map[string]interface{}) (*models.Passcode, error) {
	if len(fields) == 0 {
		return nil, models.ErrNoFields
	}

	if newCode, ok := fields["code"].(string); ok {
		exists, err := s.CodeExists(newCode, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateCode
		}
	}

	result := s.db.Model(&models.Passcode{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	return s.FindByID(id)
}

// ConsumeUsage increments usage_count in a single conditional UPDATE,
// so the usage-limit check and the increment cannot be interleaved by
// a concurrent validation. Returns false when the passcode was not
// active or its limit was already reached.
func (s *PasscodeStore) ConsumeUsage(id uint) (bool, error) {
	result := s.db.Model(&models.Passcode{}).
		Where("id = ? AND status = ?", id, models.PasscodeStatusActive).
		Where("usage_limit IS NULL OR usage_count < usage_limit").
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// RevokeUserPasscodes flips every currently active passcode of the
// user to revoked. Revoked is terminal.
func (s *PasscodeStore) RevokeUserPasscodes(userID uint) error {
	return s.db.Model(&models.Passcode{}).
		Where("user_id = ? AND status = ?", userID, models.PasscodeStatusActive).
		Update("status", models.PasscodeStatusRevoked).
		Error
}

// CleanupExpired flips active passcodes whose expiry time has passed
// to expired and reports how many rows changed.
func (s *PasscodeStore) CleanupExpired() (int64, error) {
	result := s.db.Model(&models.Passcode{}).
		Where("status = ? AND expiry_time IS NOT NULL AND expiry_time <= ?",
			models.PasscodeStatusActive, time.Now()).
		Update("status", models.PasscodeStatusExpired)

	return result.RowsAffected, result.Error
}

func (s *PasscodeStore) Count() (int64, error) {
	var count int64
	err := s.db.Model(&models.Passcode{}).Count(&count).Error
	return count, err
}

func (s *PasscodeStore) Exists(id uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Passcode{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// CodeExists reports whether any passcode other than excludeID carries
// the code. Soft-deleted rows still hold their code, so they count.
func (s *PasscodeStore) CodeExists(code string, excludeID uint) (bool, error) {
	var count int64
	query := s.db.Unscoped().Model(&models.Passcode{}).Where("code = ?", code)
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete is the explicit admin removal path; everything else keeps
// rows and only flips status.
func (s *PasscodeStore) Delete(id uint) error {
	result := s.db.Unscoped().Delete(&models.Passcode{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindExpiring lists active passcodes whose expiry falls within the
// next N days, soonest first.
func (s *PasscodeStore) FindExpiring(days int) ([]models.Passcode, error) {
	now := time.Now()
	limit := now.AddDate(0, 0, days)

	var passcodes []models.Passcode
	err := s.db.
		Preload("User").
		Where("status = ? AND expiry_time IS NOT NULL AND expiry_time > ? AND expiry_time <= ?",
			models.PasscodeStatusActive, now, limit).
		Order("expiry_time ASC").
		Find(&passcodes).Error

	return passcodes, err
}
