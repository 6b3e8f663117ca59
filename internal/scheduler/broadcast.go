package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrEmailNotConfigured = errors.New("scheduler: email provider not configured")

const jobBroadcast = "email_broadcast"

// SendBulk delivers one message to every active member and returns how
// many sends succeeded. A failed send is logged and skipped; the rest of
// the batch still goes out. Broadcasts share the job lock with the cron
// jobs, so a second broadcast while one is in flight is a no-op.
func (s *Scheduler) SendBulk(parent context.Context, subject, htmlBody string) (int, error) {
	if s.email == nil {
		return 0, ErrEmailNotConfigured
	}

	sent := 0
	err := s.runJob(parent, jobBroadcast, func(ctx context.Context) error {
		n, err := s.broadcastJob(ctx, subject, htmlBody)
		sent = n
		return err
	})
	return sent, err
}

func (s *Scheduler) broadcastJob(ctx context.Context, subject, htmlBody string) (int, error) {
	ctx, run, owner := s.ensureJobRun(ctx, jobBroadcast, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	sent := 0
	var afterID snowflake.ID
	for {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		members, err := s.fetchActiveMembers(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return sent, err
		}
		if len(members) == 0 {
			break
		}

		for _, member := range members {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			afterID = member.ID
			if err := s.email.Send(ctx, []string{member.Email}, subject, htmlBody); err != nil {
				s.logMemberError(run, jobBroadcast, member.ID, err)
				continue
			}
			run.AddProcessed(1)
			sent++
		}

		if len(members) < s.cfg.BatchSize {
			break
		}
	}

	return sent, nil
}
