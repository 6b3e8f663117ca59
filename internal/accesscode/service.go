package accesscode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCode  = errors.New("invalid_access_code")
	ErrAccessDenied = errors.New("access_denied")
)

const cacheTTL = 5 * time.Minute

// Service answers the front-desk question "does this code open the door
// right now". Expiration and status are always re-checked against the
// member row; only the code-to-member lookup is cached.
type Service interface {
	Validate(ctx context.Context, code string) (memberdomain.Member, error)
	Invalidate(ctx context.Context, code string) error
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  memberdomain.Repository
	Redis *redis.Client `optional:"true"`
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  memberdomain.Repository
	redis *redis.Client
}

func New(p Params) Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("accesscode.service"),
		clock: p.Clock,
		repo:  p.Repo,
		redis: p.Redis,
	}
}

func (s *service) Validate(ctx context.Context, code string) (memberdomain.Member, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != codeLength {
		return memberdomain.Member{}, ErrInvalidCode
	}

	member, err := s.lookup(ctx, code)
	if err != nil {
		return memberdomain.Member{}, err
	}
	if member == nil {
		return memberdomain.Member{}, ErrInvalidCode
	}

	now := s.clock.Now()
	if member.Status != memberdomain.MemberStatusActive {
		return memberdomain.Member{}, ErrAccessDenied
	}
	if member.ExpiresAt != nil && !member.ExpiresAt.After(now) {
		return memberdomain.Member{}, ErrAccessDenied
	}
	return *member, nil
}

func (s *service) Invalidate(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, cacheKey(code)).Err()
}

func (s *service) lookup(ctx context.Context, code string) (*memberdomain.Member, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, cacheKey(code)).Result()
		if err == nil {
			id, parseErr := snowflake.ParseString(raw)
			if parseErr == nil {
				member, findErr := s.repo.FindByID(ctx, s.db, id)
				if findErr == nil && member != nil && member.AccessCode == code {
					return member, nil
				}
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn("access code cache read failed", zap.Error(err))
		}
	}

	member, err := s.repo.FindByAccessCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if member != nil && s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey(code), member.ID.String(), cacheTTL).Err(); err != nil {
			s.log.Warn("access code cache write failed", zap.Error(err))
		}
	}
	return member, nil
}

func cacheKey(code string) string {
	return "accesscode:" + code
}
