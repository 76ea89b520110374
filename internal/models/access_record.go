package models

import (
	"time"

	"gorm.io/gorm"
)

type AccessResult string

const (
	AccessResultSuccess AccessResult = "success"
	AccessResultFailed  AccessResult = "failed"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// AccessRecord is one entry of the pass-attempt ledger. Records are
// append-only: nothing updates them after creation, and they are only
// removed by the retention cleanup.
type AccessRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint  `gorm:"not null;index" json:"user_id"`
	User   *User `json:"user,omitempty"`

	PasscodeID *uint     `gorm:"index" json:"passcode_id,omitempty"`
	Passcode   *Passcode `json:"passcode,omitempty"`

	DeviceID   string `gorm:"not null;index" json:"device_id"`
	DeviceType string `json:"device_type,omitempty"`

	Direction  Direction    `gorm:"not null" json:"direction"`
	Result     AccessResult `gorm:"not null;index" json:"result"`
	FailReason string       `json:"fail_reason,omitempty"`

	ProjectID *uint `json:"project_id,omitempty"`
	VenueID   *uint `json:"venue_id,omitempty"`
	FloorID   *uint `json:"floor_id,omitempty"`

	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

// AccessRecordInput is the externally supplied shape of a record, as
// posted by devices or buffered batch uploads. UserID is a pointer so a
// missing field is tellable apart from an invalid one.
type AccessRecordInput struct {
	UserID     *int64       `json:"userId"`
	PasscodeID *uint        `json:"passcodeId,omitempty"`
	DeviceID   string       `json:"deviceId"`
	DeviceType string       `json:"deviceType,omitempty"`
	Direction  Direction    `json:"direction"`
	Result     AccessResult `json:"result"`
	FailReason string       `json:"failReason,omitempty"`
	ProjectID  *uint        `json:"projectId,omitempty"`
	VenueID    *uint        `json:"venueId,omitempty"`
	FloorID    *uint        `json:"floorId,omitempty"`
}

// Validate checks an input before it is turned into a ledger entry. It
// is a pure function: all failures are collected, none abort early.
func (in *AccessRecordInput) Validate() *ValidationResult {
	result := newValidationResult()

	if in.UserID == nil {
		result.addError("user_id is required")
	} else if *in.UserID <= 0 {
		result.addError("user_id must be a positive integer")
	}

	if in.DeviceID == "" {
		result.addError("device_id must not be empty")
	}

	switch in.Direction {
	case DirectionIn, DirectionOut:
	default:
		result.addError("direction must be one of: in, out")
	}

	switch in.Result {
	case AccessResultSuccess, AccessResultFailed:
	default:
		result.addError("result must be one of: success, failed")
	}

	if in.Result == AccessResultFailed && in.FailReason == "" {
		result.addError("fail_reason is required when result is failed")
	}

	return result
}

// Record converts a validated input into the persisted form.
func (in *AccessRecordInput) Record(now time.Time) AccessRecord {
	var userID uint
	if in.UserID != nil && *in.UserID > 0 {
		userID = uint(*in.UserID)
	}

	return AccessRecord{
		UserID:     userID,
		PasscodeID: in.PasscodeID,
		DeviceID:   in.DeviceID,
		DeviceType: in.DeviceType,
		Direction:  in.Direction,
		Result:     in.Result,
		FailReason: in.FailReason,
		ProjectID:  in.ProjectID,
		VenueID:    in.VenueID,
		FloorID:    in.FloorID,
		Timestamp:  now,
	}
}
