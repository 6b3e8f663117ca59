package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/membershiptype/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, mt *domain.MembershipType) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO membership_types (id, name, price_cents, period_days, allows_additional, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mt.ID,
		mt.Name,
		mt.PriceCents,
		mt.PeriodDays,
		mt.AllowsAdditional,
		mt.Active,
		mt.CreatedAt,
		mt.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, mt *domain.MembershipType) error {
	return db.WithContext(ctx).Exec(
		`UPDATE membership_types SET price_cents = ?, period_days = ?, active = ?, updated_at = ? WHERE id = ?`,
		mt.PriceCents,
		mt.PeriodDays,
		mt.Active,
		mt.UpdatedAt,
		mt.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.MembershipType, error) {
	var mt domain.MembershipType
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM membership_types WHERE id = ?`,
		id,
	).Scan(&mt).Error
	if err != nil {
		return nil, err
	}
	if mt.ID == 0 {
		return nil, nil
	}
	return &mt, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.MembershipType, error) {
	var mt domain.MembershipType
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM membership_types WHERE name = ?`,
		name,
	).Scan(&mt).Error
	if err != nil {
		return nil, err
	}
	if mt.ID == 0 {
		return nil, nil
	}
	return &mt, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]*domain.MembershipType, error) {
	var types []*domain.MembershipType
	stmt := db.WithContext(ctx).Model(&domain.MembershipType{})
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	if err := stmt.Order("price_cents asc").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}
