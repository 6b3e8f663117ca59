package domain

import (
	"context"
	"errors"
	"time"

	"github.com/lakeshoreswim/clubhouse/pkg/db/pagination"
)

type RegisterMemberRequest struct {
	Name           string
	Email          string
	Password       string
	MembershipType string
	AutoRenew      bool
}

type ListMemberRequest struct {
	PageToken string
	PageSize  int32
	Status    string
	Search    string
}

type ListMemberFilter struct {
	Status MemberStatus
	Search string
}

type ListMemberResponse struct {
	pagination.PageInfo
	Members []Member `json:"members"`
}

type UpdateMemberRequest struct {
	ID        string
	Name      string
	Email     string
	AutoRenew *bool
}

// Renewal captures the outcome of a successful renewal applied to a member.
type Renewal struct {
	ExpiresAt  time.Time
	AccessCode string
}

type Service interface {
	Register(context.Context, RegisterMemberRequest) (Member, error)
	Activate(ctx context.Context, id string) (Member, error)
	GetByID(ctx context.Context, id string) (Member, error)
	List(context.Context, ListMemberRequest) (ListMemberResponse, error)
	Update(context.Context, UpdateMemberRequest) (Member, error)
	SetAutoRenew(ctx context.Context, id string, enabled bool) (Member, error)
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	// Renew extends the expiration by one membership period and clears the
	// per-cycle notified flag. Lapse marks the member lapsed with a reason
	// and leaves the expiration untouched. Both are driven by the renewal
	// scheduler and keyed off current status/expiration so re-running a
	// tick is harmless.
	Renew(ctx context.Context, id string, now time.Time) (Renewal, error)
	Lapse(ctx context.Context, id string, reason string, now time.Time) error
	MarkNotified(ctx context.Context, id string, now time.Time) error
}

var (
	ErrNotFound        = errors.New("member_not_found")
	ErrInvalidID       = errors.New("invalid_member_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidPassword = errors.New("invalid_password")
	ErrInvalidType     = errors.New("invalid_membership_type")
	ErrEmailTaken      = errors.New("email_taken")
	ErrInvalidStatus   = errors.New("invalid_status")
)
