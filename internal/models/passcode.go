package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type PasscodeType string

const (
	PasscodeTypeEmployee PasscodeType = "employee"
	PasscodeTypeVisitor  PasscodeType = "visitor"
)

type PasscodeStatus string

const (
	PasscodeStatusActive  PasscodeStatus = "active"
	PasscodeStatusExpired PasscodeStatus = "expired"
	PasscodeStatusRevoked PasscodeStatus = "revoked"
)

// PermissionList is stored as a JSON column and decoded on read. An
// empty list means the passcode only opens the building entrance.
type PermissionList []string

func (p PermissionList) Value() (driver.Value, error) {
	if p == nil {
		p = PermissionList{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *PermissionList) Scan(value interface{}) error {
	if value == nil {
		*p = PermissionList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into PermissionList", value)
	}

	if len(data) == 0 {
		*p = PermissionList{}
		return nil
	}

	return json.Unmarshal(data, p)
}

type Passcode struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint `gorm:"not null" json:"user_id"`
	User   User `json:"user,omitempty"`

	Code       string         `gorm:"uniqueIndex;not null" json:"code"`
	Type       PasscodeType   `gorm:"not null;default:'employee'" json:"type"`
	Status     PasscodeStatus `gorm:"not null;default:'active'" json:"status"`
	ExpiryTime *time.Time     `json:"expiry_time,omitempty"`
	UsageLimit *int           `json:"usage_limit,omitempty"`
	UsageCount int            `gorm:"not null;default:0" json:"usage_count"`

	Permissions PermissionList `gorm:"type:text" json:"permissions"`

	// TOTPSecret backs the time-based validation endpoint. Never
	// serialized to clients.
	TOTPSecret string `json:"-"`

	ApplicationID *uint        `json:"application_id,omitempty"`
	Application   *Application `json:"application,omitempty"`

	AccessRecords []AccessRecord `json:"access_records,omitempty"`
}

func (p *Passcode) IsExpired(now time.Time) bool {
	return p.ExpiryTime != nil && !p.ExpiryTime.After(now)
}

func (p *Passcode) AtUsageLimit() bool {
	return p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit
}

// ErrNoFields is returned by partial updates that carry nothing to change.
var ErrNoFields = errors.New("no fields to update")

// ValidateNewPasscode checks a passcode before it is persisted. It is a
// pure function: all failures are collected, none are fatal on their own.
func ValidateNewPasscode(p *Passcode, now time.Time) *ValidationResult {
	result := newValidationResult()

	if p.UserID == 0 {
		result.addError("user_id must be a positive integer")
	}

	if p.Code == "" {
		result.addError("code must not be empty")
	}

	switch p.Type {
	case PasscodeTypeEmployee, PasscodeTypeVisitor:
	default:
		result.addError("type must be one of: employee, visitor")
	}

	if p.Status != "" {
		switch p.Status {
		case PasscodeStatusActive, PasscodeStatusExpired, PasscodeStatusRevoked:
		default:
			result.addError("status must be one of: active, expired, revoked")
		}
	}

	if p.UsageCount < 0 {
		result.addError("usage_count must not be negative")
	}

	if p.UsageLimit != nil && *p.UsageLimit <= 0 {
		result.addError("usage_limit must be greater than zero")
	}

	if p.ExpiryTime != nil && !p.ExpiryTime.After(now) {
		result.addError("expiry_time must be in the future")
	}

	return result
}
