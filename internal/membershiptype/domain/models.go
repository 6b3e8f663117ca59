// Package domain contains persistence models for membership types.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/config"
	"gorm.io/gorm"
)

// MembershipType defines pricing and duration for one tier of membership.
type MembershipType struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	Name              string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	PriceCents        int64        `gorm:"not null" json:"price_cents"`
	PeriodDays        int          `gorm:"not null" json:"period_days"`
	AllowsAdditional  bool         `gorm:"not null;default:false" json:"allows_additional"`
	Active            bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Benefits []config.Benefit `gorm:"-" json:"benefits,omitempty"`
}

// TableName sets the database table name.
func (MembershipType) TableName() string { return "membership_types" }

type CreateMembershipTypeRequest struct {
	Name             string
	PriceCents       int64
	PeriodDays       int
	AllowsAdditional bool
}

type UpdateMembershipTypeRequest struct {
	ID         string
	PriceCents *int64
	PeriodDays *int
	Active     *bool
}

type Service interface {
	Create(context.Context, CreateMembershipTypeRequest) (MembershipType, error)
	Update(context.Context, UpdateMembershipTypeRequest) (MembershipType, error)
	List(ctx context.Context, activeOnly bool) ([]MembershipType, error)
	GetByID(ctx context.Context, id string) (MembershipType, error)
	GetByName(ctx context.Context, name string) (MembershipType, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, mt *MembershipType) error
	Update(ctx context.Context, db *gorm.DB, mt *MembershipType) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MembershipType, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*MembershipType, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]*MembershipType, error)
}

var (
	ErrNotFound      = errors.New("membership_type_not_found")
	ErrInvalidID     = errors.New("invalid_membership_type_id")
	ErrInvalidName   = errors.New("invalid_membership_type_name")
	ErrInvalidPrice  = errors.New("invalid_price")
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrNameTaken     = errors.New("membership_type_name_taken")
)
