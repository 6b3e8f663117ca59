package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
)

// fetchMembersToNotify returns active members whose expiration falls
// inside the reminder window and who have not been notified this cycle.
// The notified timestamp is the idempotency marker: once stamped, the row
// stops matching and replayed passes skip it.
func (s *Scheduler) fetchMembersToNotify(ctx context.Context, now time.Time, limit int) ([]memberdomain.Member, error) {
	var members []memberdomain.Member
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM members
		 WHERE status = ? AND expires_at IS NOT NULL
		   AND expires_at > ? AND expires_at <= ?
		   AND renewal_notified_at IS NULL
		 ORDER BY expires_at ASC, id ASC
		 LIMIT ?`,
		memberdomain.MemberStatusActive, now, now.Add(s.cfg.NotifyWindow), limit,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// fetchActiveMembers pages through active members by id. Broadcast sends
// do not change the rows they touch, so unlike the notify and process
// fetches this one paginates with a keyset cursor: a recipient whose send
// failed is left behind rather than re-matched on the next page.
func (s *Scheduler) fetchActiveMembers(ctx context.Context, afterID snowflake.ID, limit int) ([]memberdomain.Member, error) {
	var members []memberdomain.Member
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM members
		 WHERE status = ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		memberdomain.MemberStatusActive, afterID, limit,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// fetchMembersToProcess returns active members whose expiration has
// passed. Processing moves each row to active-with-new-expiration or
// lapsed, so it also stops matching once handled.
func (s *Scheduler) fetchMembersToProcess(ctx context.Context, now time.Time, limit int) ([]memberdomain.Member, error) {
	var members []memberdomain.Member
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM members
		 WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
		 ORDER BY expires_at ASC, id ASC
		 LIMIT ?`,
		memberdomain.MemberStatusActive, now, limit,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
