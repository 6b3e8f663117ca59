// Package scheduler drives the membership renewal lifecycle: a
// notification pass that reminds members ahead of expiration and a
// processing pass that renews or lapses expired memberships. Both passes
// are idempotent and best-effort: one bad member never aborts the batch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	"github.com/lakeshoreswim/clubhouse/internal/joblock"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	typedomain "github.com/lakeshoreswim/clubhouse/internal/membershiptype/domain"
	"github.com/lakeshoreswim/clubhouse/internal/metrics"
	"github.com/lakeshoreswim/clubhouse/internal/providers/email"
	"github.com/lakeshoreswim/clubhouse/internal/providers/payment"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

const (
	jobNotify  = "renewal_notify"
	jobProcess = "renewal_process"

	outcomeRenewed = "renewed"
	outcomeLapsed  = "lapsed"

	lapseReasonNotRenewed      = "not_renewed"
	lapseReasonPaymentFailed   = "payment_failed"
	lapseReasonNoPaymentMethod = "no_payment_method"

	// Metadata key where the processor customer reference is stored when
	// a member saves a card for auto-renewal.
	paymentCustomerKey = "payment_customer_ref"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Members memberdomain.Service
	Types   typedomain.Service
	Gateway payment.Gateway
	Email   email.Provider   `optional:"true"`
	Locker  *joblock.Locker  `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
	Config  Config           `optional:"true"`
}

type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	members memberdomain.Service
	types   typedomain.Service
	gateway payment.Gateway
	email   email.Provider
	locker  *joblock.Locker
	metrics *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Members == nil || p.Types == nil || p.Gateway == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		members: p.Members,
		types:   p.Types,
		gateway: p.Gateway,
		email:   p.Email,
		locker:  p.Locker,
		metrics: p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		key := "scheduler:" + name
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("%s: acquire lock: %w", name, err)
		}
		if !ok {
			if s.metrics != nil {
				s.metrics.IncJobSkip(name)
			}
			s.log.Info("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "lock_held"))
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("scheduler.lock.release failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	if s.metrics != nil {
		s.metrics.IncJobRun(name)
	}
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.ObserveJobDuration(name, time.Since(start))
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("scheduler.job.timeout",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunNotify and RunProcess are the cron entrypoints; RunOnce chains both
// for single-process deployments.
func (s *Scheduler) RunNotify(ctx context.Context) error {
	return s.runJob(ctx, jobNotify, s.NotifyJob)
}

func (s *Scheduler) RunProcess(ctx context.Context) error {
	return s.runJob(ctx, jobProcess, s.ProcessJob)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return errors.Join(
		s.RunNotify(parent),
		s.RunProcess(parent),
	)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// NotifyJob reminds members whose membership expires within the window.
// A member is only marked notified after the reminder goes out, so a
// failed send is retried on the next pass.
func (s *Scheduler) NotifyJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobNotify, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	now := s.clock.Now()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		members, err := s.fetchMembersToNotify(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(members) == 0 {
			break
		}

		progressed := 0
		for _, member := range members {
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}
			if err := s.notifyMember(ctx, member, now); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logMemberError(run, jobNotify, member.ID, err)
				continue
			}
			run.AddProcessed(1)
			progressed++
			if s.metrics != nil {
				s.metrics.IncNotice()
			}
		}

		// Failed members still match the fetch query; bail out rather
		// than spin on them within one run.
		if progressed == 0 || len(members) < s.cfg.BatchSize {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) notifyMember(ctx context.Context, member memberdomain.Member, now time.Time) error {
	if s.email != nil && member.ExpiresAt != nil {
		data := map[string]interface{}{
			"subject":    "Your membership expires soon",
			"name":       member.Name,
			"expires_at": member.ExpiresAt.Format("January 2, 2006"),
			"auto_renew": member.AutoRenew,
		}
		if mt, err := s.types.GetByID(ctx, member.MembershipTypeID.String()); err == nil {
			data["membership_type"] = mt.Name
		}
		if err := s.email.SendTemplate(ctx, []string{member.Email}, "renewal_reminder", data); err != nil {
			return fmt.Errorf("send reminder: %w", err)
		}
	}
	return s.members.MarkNotified(ctx, member.ID.String(), now)
}

// ProcessJob settles expired memberships. Auto-renew members are charged
// off-session with a key derived from the expiration they are renewing,
// so a crashed pass re-running the same member cannot double-charge.
func (s *Scheduler) ProcessJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobProcess, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	now := s.clock.Now()
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		members, err := s.fetchMembersToProcess(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(members) == 0 {
			break
		}

		progressed := 0
		for _, member := range members {
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}
			outcome, err := s.processMember(ctx, member, now)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logMemberError(run, jobProcess, member.ID, err)
				continue
			}
			run.AddProcessed(1)
			progressed++
			if s.metrics != nil {
				s.metrics.IncRenewal(outcome)
			}
		}

		if progressed == 0 || len(members) < s.cfg.BatchSize {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) processMember(ctx context.Context, member memberdomain.Member, now time.Time) (string, error) {
	if !member.AutoRenew {
		if err := s.members.Lapse(ctx, member.ID.String(), lapseReasonNotRenewed, now); err != nil {
			return "", err
		}
		return outcomeLapsed, nil
	}

	mt, err := s.types.GetByID(ctx, member.MembershipTypeID.String())
	if err != nil {
		return "", fmt.Errorf("resolve membership type: %w", err)
	}

	customerRef, _ := member.Metadata[paymentCustomerKey].(string)
	_, chargeErr := s.gateway.Charge(ctx, payment.ChargeRequest{
		IdempotencyKey: renewalChargeKey(member),
		CustomerRef:    customerRef,
		Description:    fmt.Sprintf("Membership renewal (%s)", mt.Name),
		AmountCents:    mt.PriceCents,
	})
	if chargeErr != nil {
		reason := ""
		switch {
		case errors.Is(chargeErr, payment.ErrNoPaymentMethod):
			reason = lapseReasonNoPaymentMethod
		case errors.Is(chargeErr, payment.ErrChargeDeclined):
			reason = lapseReasonPaymentFailed
		default:
			// Transient processor failure: leave the member active so the
			// next pass retries with the same idempotency key.
			return "", fmt.Errorf("renewal charge: %w", chargeErr)
		}
		if err := s.members.Lapse(ctx, member.ID.String(), reason, now); err != nil {
			return "", err
		}
		s.log.Info("membership lapsed",
			zap.String("member_id", member.ID.String()),
			zap.String("reason", reason),
		)
		return outcomeLapsed, nil
	}

	renewal, err := s.members.Renew(ctx, member.ID.String(), now)
	if err != nil {
		return "", fmt.Errorf("apply renewal: %w", err)
	}
	s.log.Info("membership renewed",
		zap.String("member_id", member.ID.String()),
		zap.Time("expires_at", renewal.ExpiresAt),
	)
	return outcomeRenewed, nil
}

// renewalChargeKey is stable for a given member and expiration, and
// changes once a renewal moves the expiration forward.
func renewalChargeKey(member memberdomain.Member) string {
	expires := int64(0)
	if member.ExpiresAt != nil {
		expires = member.ExpiresAt.Unix()
	}
	return fmt.Sprintf("renewal-%s-%d", member.ID.String(), expires)
}
