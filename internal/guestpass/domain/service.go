package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/pkg/db/pagination"
)

type PurchaseRequest struct {
	MemberID    string
	Quantity    int
	AmountCents int64
}

type PurchaseResponse struct {
	Entry       GuestPassEntry `json:"entry"`
	RedirectURL string         `json:"redirect_url,omitempty"`
}

type UsePassResult struct {
	EntryID   snowflake.ID `json:"entry_id"`
	Remaining int          `json:"remaining"`
}

type GetLogRequest struct {
	PageToken     string
	PageSize      int
	MemberID      string
	PaymentStatus string
	Search        string
	From          *time.Time
	To            *time.Time
}

// LogEntry is a ledger row joined with the owning member for display.
type LogEntry struct {
	GuestPassEntry
	MemberName  string `json:"member_name"`
	MemberEmail string `json:"member_email"`
}

type GetLogResponse struct {
	pagination.PageInfo
	Entries []LogEntry `json:"entries"`
}

type Service interface {
	Purchase(context.Context, PurchaseRequest) (PurchaseResponse, error)
	ConfirmPurchase(ctx context.Context, entryID string) (GuestPassEntry, error)
	FailPurchase(ctx context.Context, entryID string) error
	UsePass(ctx context.Context, memberID string) (UsePassResult, error)
	AdminAdjust(ctx context.Context, memberID string, delta int, note string) (GuestPassEntry, error)
	GetBalance(ctx context.Context, memberID string) (int, error)
	GetLog(context.Context, GetLogRequest) (GetLogResponse, error)
	RecomputeBalance(ctx context.Context, memberID string) (int, error)
}

var (
	ErrInvalidID           = errors.New("invalid_entry_id")
	ErrEntryNotFound       = errors.New("entry_not_found")
	ErrEntryNotPending     = errors.New("entry_not_pending")
	ErrMemberNotFound      = errors.New("member_not_found")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAdjustment   = errors.New("invalid_adjustment")
	ErrLedgerInconsistent  = errors.New("ledger_inconsistent")
)
