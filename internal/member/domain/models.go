// Package domain contains persistence models for club members.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MemberStatus represents lifecycle states for a membership account.
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
	MemberStatusLapsed   MemberStatus = "lapsed"
)

// Member captures one household account.
type Member struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	MembershipTypeID  snowflake.ID      `gorm:"not null;index" json:"membership_type_id"`
	Name              string            `gorm:"type:text;not null" json:"name"`
	Email             string            `gorm:"type:text;not null;uniqueIndex" json:"email"`
	PasswordHash      string            `gorm:"type:text;not null" json:"-"`
	Status            MemberStatus      `gorm:"type:text;not null;index" json:"status"`
	AutoRenew         bool              `gorm:"not null;default:false" json:"auto_renew"`
	GuestPassBalance  int               `gorm:"not null;default:0" json:"guest_pass_balance"`
	ExpiresAt         *time.Time        `gorm:"index" json:"expires_at"`
	RenewalNotifiedAt *time.Time        `gorm:"" json:"renewal_notified_at"`
	LapsedReason      *string           `gorm:"type:text" json:"lapsed_reason,omitempty"`
	AccessCode        string            `gorm:"type:text;uniqueIndex" json:"access_code,omitempty"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "members" }
