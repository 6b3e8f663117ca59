package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	"github.com/lakeshoreswim/clubhouse/internal/guestpass/domain"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	"github.com/lakeshoreswim/clubhouse/internal/providers/payment"
	"github.com/lakeshoreswim/clubhouse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Gateway payment.Gateway
	Members memberdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	gateway payment.Gateway
	members memberdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("guestpass.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		gateway: p.Gateway,
		members: p.Members,
	}
}

// Purchase writes a pending ledger entry and opens a hosted checkout for
// it. The balance is untouched until the processor confirms payment.
func (s *Service) Purchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResponse, error) {
	if req.Quantity <= 0 {
		return domain.PurchaseResponse{}, domain.ErrInvalidQuantity
	}
	if req.AmountCents < 0 {
		return domain.PurchaseResponse{}, domain.ErrInvalidAmount
	}

	memberID, err := parseID(req.MemberID)
	if err != nil {
		return domain.PurchaseResponse{}, domain.ErrInvalidID
	}
	member, err := s.members.FindByID(ctx, s.db, memberID)
	if err != nil {
		return domain.PurchaseResponse{}, err
	}
	if member == nil {
		return domain.PurchaseResponse{}, domain.ErrMemberNotFound
	}

	entry := domain.GuestPassEntry{
		ID:            s.genID.Generate(),
		MemberID:      memberID,
		Quantity:      req.Quantity,
		AmountCents:   req.AmountCents,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.insertEntry(ctx, s.db, &entry); err != nil {
		return domain.PurchaseResponse{}, err
	}

	checkout, err := s.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		ReferenceID: entry.ID.String(),
		Email:       member.Email,
		Description: fmt.Sprintf("Guest passes x%d", req.Quantity),
		Quantity:    int64(req.Quantity),
		AmountCents: req.AmountCents,
	})
	if err != nil {
		if failErr := s.FailPurchase(ctx, entry.ID.String()); failErr != nil {
			s.log.Error("failed to mark entry failed after checkout error",
				zap.String("entry_id", entry.ID.String()),
				zap.Error(failErr),
			)
		}
		return domain.PurchaseResponse{}, err
	}

	entry.CheckoutRef = checkout.SessionID
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE guest_pass_entries SET checkout_ref = ? WHERE id = ?`,
		checkout.SessionID, entry.ID,
	).Error; err != nil {
		return domain.PurchaseResponse{}, err
	}

	s.log.Info("guest pass purchase started",
		zap.String("member_id", memberID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.Int("quantity", req.Quantity),
	)
	return domain.PurchaseResponse{Entry: entry, RedirectURL: checkout.RedirectURL}, nil
}

// ConfirmPurchase flips a pending entry to paid and re-aggregates the
// member balance in the same transaction. Replayed callbacks are a no-op:
// the conditional update matches zero rows the second time.
func (s *Service) ConfirmPurchase(ctx context.Context, entryID string) (domain.GuestPassEntry, error) {
	id, err := parseID(entryID)
	if err != nil {
		return domain.GuestPassEntry{}, domain.ErrInvalidID
	}

	var confirmed domain.GuestPassEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE guest_pass_entries SET payment_status = ? WHERE id = ? AND payment_status = ?`,
			domain.PaymentStatusPaid, id, domain.PaymentStatusPending,
		)
		if result.Error != nil {
			return result.Error
		}

		// The status is read after the conditional update. A read taken
		// before it can be stale under read committed: a concurrent
		// confirm may settle the entry between the read and the update,
		// and the loser must still see the settled row.
		entry, err := s.findEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrEntryNotFound
		}

		if result.RowsAffected == 0 {
			if entry.PaymentStatus == domain.PaymentStatusPaid {
				confirmed = *entry
				return nil
			}
			return domain.ErrEntryNotPending
		}

		if err := s.reaggregateBalance(ctx, tx, entry.MemberID); err != nil {
			return err
		}

		confirmed = *entry
		return nil
	})
	if err != nil {
		return domain.GuestPassEntry{}, err
	}

	s.log.Info("guest pass purchase confirmed",
		zap.String("entry_id", confirmed.ID.String()),
		zap.String("member_id", confirmed.MemberID.String()),
	)
	return confirmed, nil
}

// FailPurchase marks a pending entry failed. Failed entries never count
// toward the balance, so no re-aggregation is needed.
func (s *Service) FailPurchase(ctx context.Context, entryID string) error {
	id, err := parseID(entryID)
	if err != nil {
		return domain.ErrInvalidID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE guest_pass_entries SET payment_status = ? WHERE id = ? AND payment_status = ?`,
			domain.PaymentStatusFailed, id, domain.PaymentStatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}

		// Same post-update read as ConfirmPurchase: replays of an
		// already-failed entry are a no-op even when the first attempt
		// raced this one.
		entry, err := s.findEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrEntryNotFound
		}
		if entry.PaymentStatus == domain.PaymentStatusFailed {
			return nil
		}
		return domain.ErrEntryNotPending
	})
}

// UsePass burns one pass. The balance check and decrement are a single
// conditional UPDATE, so two concurrent taps at balance 1 resolve to
// exactly one success; the loser sees zero rows affected.
func (s *Service) UsePass(ctx context.Context, memberID string) (domain.UsePassResult, error) {
	id, err := parseID(memberID)
	if err != nil {
		return domain.UsePassResult{}, domain.ErrInvalidID
	}

	var out domain.UsePassResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		result := tx.WithContext(ctx).Exec(
			`UPDATE members SET guest_pass_balance = guest_pass_balance - 1, updated_at = ?
			 WHERE id = ? AND guest_pass_balance >= 1`,
			now, id,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			member, err := s.members.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if member == nil {
				return domain.ErrMemberNotFound
			}
			return domain.ErrInsufficientBalance
		}

		// Oldest paid entry that still has unconsumed passes.
		var source domain.GuestPassEntry
		err := tx.WithContext(ctx).Raw(
			`SELECT * FROM guest_pass_entries e
			 WHERE e.member_id = ? AND e.quantity > 0 AND e.payment_status = ? AND e.consumed_entry_id IS NULL
			   AND e.quantity > (SELECT COUNT(*) FROM guest_pass_entries u WHERE u.consumed_entry_id = e.id)
			 ORDER BY e.created_at ASC, e.id ASC
			 LIMIT 1`,
			id, domain.PaymentStatusPaid,
		).Scan(&source).Error
		if err != nil {
			return err
		}
		if source.ID == 0 {
			return domain.ErrLedgerInconsistent
		}

		marker := domain.GuestPassEntry{
			ID:              s.genID.Generate(),
			MemberID:        id,
			Quantity:        -1,
			PaymentStatus:   domain.PaymentStatusPaid,
			ConsumedEntryID: &source.ID,
			CreatedAt:       now,
		}
		if err := s.insertEntry(ctx, tx, &marker); err != nil {
			return err
		}

		// Stamp the source once its last pass is consumed.
		if err := tx.WithContext(ctx).Exec(
			`UPDATE guest_pass_entries SET used_at = ?
			 WHERE id = ? AND used_at IS NULL
			   AND quantity <= (SELECT COUNT(*) FROM guest_pass_entries u WHERE u.consumed_entry_id = guest_pass_entries.id)`,
			now, source.ID,
		).Error; err != nil {
			return err
		}

		var remaining int
		if err := tx.WithContext(ctx).Raw(
			`SELECT guest_pass_balance FROM members WHERE id = ?`, id,
		).Scan(&remaining).Error; err != nil {
			return err
		}

		out = domain.UsePassResult{EntryID: marker.ID, Remaining: remaining}
		return nil
	})
	if err != nil {
		return domain.UsePassResult{}, err
	}

	s.log.Info("guest pass used",
		zap.String("member_id", id.String()),
		zap.Int("remaining", out.Remaining),
	)
	return out, nil
}

// AdminAdjust writes a signed correction entry. A negative delta is
// rejected outright when it would take the balance below zero.
func (s *Service) AdminAdjust(ctx context.Context, memberID string, delta int, note string) (domain.GuestPassEntry, error) {
	if delta == 0 {
		return domain.GuestPassEntry{}, domain.ErrInvalidAdjustment
	}
	id, err := parseID(memberID)
	if err != nil {
		return domain.GuestPassEntry{}, domain.ErrInvalidID
	}

	var entry domain.GuestPassEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		result := tx.WithContext(ctx).Exec(
			`UPDATE members SET guest_pass_balance = guest_pass_balance + ?, updated_at = ?
			 WHERE id = ? AND guest_pass_balance + ? >= 0`,
			delta, now, id, delta,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			member, err := s.members.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if member == nil {
				return domain.ErrMemberNotFound
			}
			return domain.ErrInvalidAdjustment
		}

		entry = domain.GuestPassEntry{
			ID:            s.genID.Generate(),
			MemberID:      id,
			Quantity:      delta,
			PaymentStatus: domain.PaymentStatusPaid,
			AdminAdjusted: true,
			Note:          strings.TrimSpace(note),
			CreatedAt:     now,
		}
		return s.insertEntry(ctx, tx, &entry)
	})
	if err != nil {
		return domain.GuestPassEntry{}, err
	}

	s.log.Info("guest pass balance adjusted",
		zap.String("member_id", id.String()),
		zap.Int("delta", delta),
	)
	return entry, nil
}

func (s *Service) GetBalance(ctx context.Context, memberID string) (int, error) {
	id, err := parseID(memberID)
	if err != nil {
		return 0, domain.ErrInvalidID
	}
	member, err := s.members.FindByID(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	if member == nil {
		return 0, domain.ErrMemberNotFound
	}
	return member.GuestPassBalance, nil
}

func (s *Service) GetLog(ctx context.Context, req domain.GetLogRequest) (domain.GetLogResponse, error) {
	size := req.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 500 {
		size = 500
	}

	query := `SELECT e.*, m.name AS member_name, m.email AS member_email
		FROM guest_pass_entries e
		JOIN members m ON m.id = e.member_id`
	var conds []string
	var args []interface{}

	if req.MemberID != "" {
		id, err := parseID(req.MemberID)
		if err != nil {
			return domain.GetLogResponse{}, domain.ErrInvalidID
		}
		conds = append(conds, "e.member_id = ?")
		args = append(args, id)
	}
	if req.PaymentStatus != "" {
		conds = append(conds, "e.payment_status = ?")
		args = append(args, req.PaymentStatus)
	}
	if req.From != nil {
		conds = append(conds, "e.created_at >= ?")
		args = append(args, *req.From)
	}
	if req.To != nil {
		conds = append(conds, "e.created_at < ?")
		args = append(args, *req.To)
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		like := "%" + search + "%"
		conds = append(conds, "(m.name LIKE ? OR m.email LIKE ?)")
		args = append(args, like, like)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err == nil && cursor.CreatedAt != "" {
			conds = append(conds, "(e.created_at, e.id) < (?, ?)")
			args = append(args, cursor.CreatedAt, cursor.ID)
		}
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.created_at DESC, e.id DESC LIMIT ?"
	args = append(args, size+1)

	var entries []*domain.LogEntry
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&entries).Error; err != nil {
		return domain.GetLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, int32(size), func(e *domain.LogEntry) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	if len(entries) > size {
		entries = entries[:size]
	}

	resp := domain.GetLogResponse{PageInfo: *pageInfo}
	resp.Entries = make([]domain.LogEntry, 0, len(entries))
	for _, e := range entries {
		resp.Entries = append(resp.Entries, *e)
	}
	return resp, nil
}

// RecomputeBalance repairs the cached column from the ledger. The column
// is a projection of SUM(quantity) over paid entries; this is the tool
// that makes that invariant enforceable after manual surgery.
func (s *Service) RecomputeBalance(ctx context.Context, memberID string) (int, error) {
	id, err := parseID(memberID)
	if err != nil {
		return 0, domain.ErrInvalidID
	}

	var balance int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.members.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrMemberNotFound
		}
		if err := s.reaggregateBalance(ctx, tx, id); err != nil {
			return err
		}
		return tx.WithContext(ctx).Raw(
			`SELECT guest_pass_balance FROM members WHERE id = ?`, id,
		).Scan(&balance).Error
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) insertEntry(ctx context.Context, tx *gorm.DB, entry *domain.GuestPassEntry) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO guest_pass_entries (
			id, member_id, quantity, amount_cents, payment_status, checkout_ref,
			consumed_entry_id, admin_adjusted, note, used_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.MemberID,
		entry.Quantity,
		entry.AmountCents,
		entry.PaymentStatus,
		entry.CheckoutRef,
		entry.ConsumedEntryID,
		entry.AdminAdjusted,
		entry.Note,
		entry.UsedAt,
		entry.CreatedAt,
	).Error
}

func (s *Service) findEntry(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.GuestPassEntry, error) {
	var entry domain.GuestPassEntry
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM guest_pass_entries WHERE id = ?`, id,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (s *Service) reaggregateBalance(ctx context.Context, tx *gorm.DB, memberID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE members SET guest_pass_balance = (
			SELECT COALESCE(SUM(quantity), 0) FROM guest_pass_entries
			WHERE member_id = members.id AND payment_status = ?
		), updated_at = ? WHERE id = ?`,
		domain.PaymentStatusPaid, s.clock.Now(), memberID,
	).Error
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
