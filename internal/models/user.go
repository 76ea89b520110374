package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserType string

const (
	UserTypeEmployee UserType = "employee"
	UserTypeMerchant UserType = "merchant"
	UserTypeVisitor  UserType = "visitor"
)

type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Username  string   `gorm:"uniqueIndex;not null" json:"username"`
	Password  string   `gorm:"not null" json:"-"`
	FirstName string   `gorm:"not null" json:"first_name"`
	LastName  string   `gorm:"not null" json:"last_name"`
	Email     string   `gorm:"uniqueIndex;not null" json:"email"`
	Phone     string   `json:"phone,omitempty"`
	UserType  UserType `gorm:"not null;default:'employee'" json:"user_type"`
	IsAdmin   bool     `gorm:"not null;default:false" json:"is_admin"`
	Active    bool     `gorm:"not null;default:true" json:"active"`

	MerchantID *uint     `json:"merchant_id,omitempty"`
	Merchant   *Merchant `json:"merchant,omitempty"`

	Passcodes     []Passcode     `json:"passcodes,omitempty"`
	AccessRecords []AccessRecord `json:"access_records,omitempty"`
}

func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
