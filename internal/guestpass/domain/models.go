// Package domain contains the guest pass ledger model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentStatus tracks the processor outcome for a purchase entry.
// Usage markers and admin adjustments are written as paid so the balance
// aggregation only ever looks at one status.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// GuestPassEntry is one immutable ledger row. Purchases and positive
// admin adjustments carry quantity > 0; each pass used is a quantity -1
// marker pointing at the purchase entry it consumed.
type GuestPassEntry struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	MemberID        snowflake.ID  `gorm:"not null;index" json:"member_id"`
	Quantity        int           `gorm:"not null" json:"quantity"`
	AmountCents     int64         `gorm:"not null;default:0" json:"amount_cents"`
	PaymentStatus   PaymentStatus `gorm:"type:text;not null;index" json:"payment_status"`
	CheckoutRef     string        `gorm:"type:text" json:"checkout_ref,omitempty"`
	ConsumedEntryID *snowflake.ID `gorm:"index" json:"consumed_entry_id,omitempty"`
	AdminAdjusted   bool          `gorm:"not null;default:false" json:"admin_adjusted"`
	Note            string        `gorm:"type:text" json:"note,omitempty"`
	UsedAt          *time.Time    `gorm:"" json:"used_at,omitempty"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (GuestPassEntry) TableName() string { return "guest_pass_entries" }
