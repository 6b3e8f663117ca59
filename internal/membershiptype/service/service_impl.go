package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/config"
	"github.com/lakeshoreswim/clubhouse/internal/membershiptype/domain"
	"github.com/lakeshoreswim/clubhouse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Benefits config.BenefitProvider `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	benefits config.BenefitProvider
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("membershiptype.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		benefits: p.Benefits,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateMembershipTypeRequest) (domain.MembershipType, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return domain.MembershipType{}, domain.ErrInvalidName
	}
	if req.PriceCents < 0 {
		return domain.MembershipType{}, domain.ErrInvalidPrice
	}
	if req.PeriodDays <= 0 {
		return domain.MembershipType{}, domain.ErrInvalidPeriod
	}

	now := time.Now().UTC()
	mt := domain.MembershipType{
		ID:               s.genID.Generate(),
		Name:             name,
		PriceCents:       req.PriceCents,
		PeriodDays:       req.PeriodDays,
		AllowsAdditional: req.AllowsAdditional,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &mt); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.MembershipType{}, domain.ErrNameTaken
		}
		return domain.MembershipType{}, err
	}

	return s.withBenefits(mt), nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateMembershipTypeRequest) (domain.MembershipType, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.MembershipType{}, err
	}

	mt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.MembershipType{}, err
	}
	if mt == nil {
		return domain.MembershipType{}, domain.ErrNotFound
	}

	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.MembershipType{}, domain.ErrInvalidPrice
		}
		mt.PriceCents = *req.PriceCents
	}
	if req.PeriodDays != nil {
		if *req.PeriodDays <= 0 {
			return domain.MembershipType{}, domain.ErrInvalidPeriod
		}
		mt.PeriodDays = *req.PeriodDays
	}
	if req.Active != nil {
		mt.Active = *req.Active
	}
	mt.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, mt); err != nil {
		return domain.MembershipType{}, err
	}
	return s.withBenefits(*mt), nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.MembershipType, error) {
	items, err := s.repo.List(ctx, s.db, activeOnly)
	if err != nil {
		return nil, err
	}
	types := make([]domain.MembershipType, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		types = append(types, s.withBenefits(*item))
	}
	return types, nil
}

func (s *Service) GetByID(ctx context.Context, rawID string) (domain.MembershipType, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return domain.MembershipType{}, err
	}
	mt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.MembershipType{}, err
	}
	if mt == nil {
		return domain.MembershipType{}, domain.ErrNotFound
	}
	return s.withBenefits(*mt), nil
}

func (s *Service) GetByName(ctx context.Context, name string) (domain.MembershipType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return domain.MembershipType{}, domain.ErrInvalidName
	}
	mt, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return domain.MembershipType{}, err
	}
	if mt == nil {
		return domain.MembershipType{}, domain.ErrNotFound
	}
	return s.withBenefits(*mt), nil
}

func (s *Service) withBenefits(mt domain.MembershipType) domain.MembershipType {
	if s.benefits != nil {
		mt.Benefits = s.benefits.BenefitsFor(mt.Name)
	}
	return mt
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
