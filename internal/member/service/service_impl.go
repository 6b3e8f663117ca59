package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/accesscode"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	"github.com/lakeshoreswim/clubhouse/internal/member/domain"
	typedomain "github.com/lakeshoreswim/clubhouse/internal/membershiptype/domain"
	"github.com/lakeshoreswim/clubhouse/internal/providers/email"
	"github.com/lakeshoreswim/clubhouse/pkg/db"
	"github.com/lakeshoreswim/clubhouse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Types typedomain.Service
	Email email.Provider `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	types typedomain.Service
	email email.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("member.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		types: p.Types,
		email: p.Email,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterMemberRequest) (domain.Member, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Member{}, domain.ErrInvalidName
	}
	mail := strings.ToLower(strings.TrimSpace(req.Email))
	if mail == "" || !strings.Contains(mail, "@") {
		return domain.Member{}, domain.ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return domain.Member{}, domain.ErrInvalidPassword
	}

	mt, err := s.types.GetByName(ctx, req.MembershipType)
	if err != nil {
		return domain.Member{}, domain.ErrInvalidType
	}
	if !mt.Active {
		return domain.Member{}, domain.ErrInvalidType
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, mail)
	if err != nil {
		return domain.Member{}, err
	}
	if existing != nil {
		return domain.Member{}, domain.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Member{}, err
	}

	now := s.clock.Now()
	member := domain.Member{
		ID:               s.genID.Generate(),
		MembershipTypeID: mt.ID,
		Name:             name,
		Email:            mail,
		PasswordHash:     string(hash),
		Status:           domain.MemberStatusPending,
		AutoRenew:        req.AutoRenew,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Member{}, domain.ErrEmailTaken
		}
		return domain.Member{}, err
	}

	s.sendTemplate(ctx, member.Email, "welcome", map[string]interface{}{
		"subject":         "Welcome to Lakeshore Swim Club",
		"name":            member.Name,
		"membership_type": mt.Name,
	})

	return member, nil
}

// Activate moves a pending, inactive, or lapsed member to active, starts a
// fresh membership period, and issues a pool access code.
func (s *Service) Activate(ctx context.Context, id string) (domain.Member, error) {
	member, err := s.find(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	if member.Status == domain.MemberStatusActive {
		return *member, nil
	}

	mt, err := s.types.GetByID(ctx, member.MembershipTypeID.String())
	if err != nil {
		return domain.Member{}, err
	}

	code, err := accesscode.Generate()
	if err != nil {
		return domain.Member{}, err
	}

	now := s.clock.Now()
	expires := now.AddDate(0, 0, mt.PeriodDays)
	member.Status = domain.MemberStatusActive
	member.ExpiresAt = &expires
	member.RenewalNotifiedAt = nil
	member.LapsedReason = nil
	member.AccessCode = code
	member.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, member); err != nil {
		return domain.Member{}, err
	}
	s.log.Info("member activated",
		zap.String("member_id", member.ID.String()),
		zap.Time("expires_at", expires),
	)
	return *member, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Member, error) {
	member, err := s.find(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	return *member, nil
}

func (s *Service) List(ctx context.Context, req domain.ListMemberRequest) (domain.ListMemberResponse, error) {
	filter := domain.ListMemberFilter{Search: strings.TrimSpace(req.Search)}
	if req.Status != "" {
		status := domain.MemberStatus(req.Status)
		switch status {
		case domain.MemberStatusPending, domain.MemberStatusActive,
			domain.MemberStatusInactive, domain.MemberStatusLapsed:
			filter.Status = status
		default:
			return domain.ListMemberResponse{}, domain.ErrInvalidStatus
		}
	}

	size := int(req.PageSize)
	if size <= 0 {
		size = 50
	}
	if size > 500 {
		size = 500
	}

	members, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  size,
	})
	if err != nil {
		return domain.ListMemberResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(members, int32(size), func(m *domain.Member) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        m.ID.String(),
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(members) > size {
		members = members[:size]
	}

	resp := domain.ListMemberResponse{PageInfo: *pageInfo}
	resp.Members = make([]domain.Member, 0, len(members))
	for _, m := range members {
		resp.Members = append(resp.Members, *m)
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateMemberRequest) (domain.Member, error) {
	member, err := s.find(ctx, req.ID)
	if err != nil {
		return domain.Member{}, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		member.Name = name
	}
	if mail := strings.ToLower(strings.TrimSpace(req.Email)); mail != "" {
		if !strings.Contains(mail, "@") {
			return domain.Member{}, domain.ErrInvalidEmail
		}
		member.Email = mail
	}
	if req.AutoRenew != nil {
		member.AutoRenew = *req.AutoRenew
	}
	member.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Member{}, domain.ErrEmailTaken
		}
		return domain.Member{}, err
	}
	return *member, nil
}

func (s *Service) SetAutoRenew(ctx context.Context, id string, enabled bool) (domain.Member, error) {
	member, err := s.find(ctx, id)
	if err != nil {
		return domain.Member{}, err
	}
	if member.AutoRenew == enabled {
		return *member, nil
	}
	member.AutoRenew = enabled
	member.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, member); err != nil {
		return domain.Member{}, err
	}
	return *member, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	member, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if member.Status == domain.MemberStatusInactive {
		return nil
	}
	member.Status = domain.MemberStatusInactive
	member.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, member)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	member, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, member.ID)
}

func (s *Service) Renew(ctx context.Context, id string, now time.Time) (domain.Renewal, error) {
	member, err := s.find(ctx, id)
	if err != nil {
		return domain.Renewal{}, err
	}

	mt, err := s.types.GetByID(ctx, member.MembershipTypeID.String())
	if err != nil {
		return domain.Renewal{}, err
	}

	code, err := accesscode.Generate()
	if err != nil {
		return domain.Renewal{}, err
	}

	// Extend from the current expiration when it is still in the future so
	// an early renewal never shortens the period already paid for.
	base := now
	if member.ExpiresAt != nil && member.ExpiresAt.After(now) {
		base = *member.ExpiresAt
	}
	expires := base.AddDate(0, 0, mt.PeriodDays)

	member.Status = domain.MemberStatusActive
	member.ExpiresAt = &expires
	member.RenewalNotifiedAt = nil
	member.LapsedReason = nil
	member.AccessCode = code
	member.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, member); err != nil {
		return domain.Renewal{}, err
	}

	s.sendTemplate(ctx, member.Email, "renewal_receipt", map[string]interface{}{
		"subject":         "Your membership has been renewed",
		"name":            member.Name,
		"membership_type": mt.Name,
		"expires_at":      expires.Format("January 2, 2006"),
		"access_code":     code,
	})

	return domain.Renewal{ExpiresAt: expires, AccessCode: code}, nil
}

func (s *Service) Lapse(ctx context.Context, id string, reason string, now time.Time) error {
	member, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if member.Status == domain.MemberStatusLapsed {
		return nil
	}

	member.Status = domain.MemberStatusLapsed
	member.LapsedReason = &reason
	member.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, member); err != nil {
		return err
	}

	data := map[string]interface{}{
		"subject": "Your membership has lapsed",
		"name":    member.Name,
		"reason":  reason,
	}
	if member.ExpiresAt != nil {
		data["expires_at"] = member.ExpiresAt.Format("January 2, 2006")
	}
	if mt, err := s.types.GetByID(ctx, member.MembershipTypeID.String()); err == nil {
		data["membership_type"] = mt.Name
	}
	s.sendTemplate(ctx, member.Email, "membership_lapsed", data)
	return nil
}

func (s *Service) MarkNotified(ctx context.Context, id string, now time.Time) error {
	member, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	member.RenewalNotifiedAt = &now
	member.UpdatedAt = now
	return s.repo.Update(ctx, s.db, member)
}

func (s *Service) find(ctx context.Context, rawID string) (*domain.Member, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}
	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotFound
	}
	return member, nil
}

func (s *Service) sendTemplate(ctx context.Context, to, name string, data map[string]interface{}) {
	if s.email == nil {
		return
	}
	if err := s.email.SendTemplate(ctx, []string{to}, name, data); err != nil {
		s.log.Warn("email delivery failed",
			zap.String("template", name),
			zap.Error(err),
		)
	}
}
