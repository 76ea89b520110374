package models

import (
	"time"

	"gorm.io/gorm"
)

type Merchant struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name         string `gorm:"uniqueIndex;not null" json:"name"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	FloorID      *uint  `json:"floor_id,omitempty"`
	Active       bool   `gorm:"not null;default:true" json:"active"`

	Users []User `json:"users,omitempty"`
}
