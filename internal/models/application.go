package models

import (
	"time"

	"gorm.io/gorm"
)

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Application is a visitor's request for temporary access. Approval
// issues a visitor passcode bound to the scheduled window.
type Application struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	VisitorName  string `gorm:"not null" json:"visitor_name"`
	VisitorPhone string `gorm:"not null" json:"visitor_phone"`
	Company      string `json:"company,omitempty"`
	Purpose      string `json:"purpose,omitempty"`

	HostUserID uint `gorm:"not null" json:"host_user_id"`
	HostUser   User `json:"host_user,omitempty"`

	ScheduledStart time.Time `gorm:"not null" json:"scheduled_start"`
	ScheduledEnd   time.Time `gorm:"not null" json:"scheduled_end"`

	Status     ApplicationStatus `gorm:"not null;default:'pending'" json:"status"`
	ReviewedBy *uint             `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
	RejectNote string            `json:"reject_note,omitempty"`
}

func (a *Application) IsPending() bool {
	return a.Status == ApplicationStatusPending
}
