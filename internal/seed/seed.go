package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// EnsureMembershipTypes seeds the standard tiers so signup works on a
// fresh install. Existing rows are never touched; pricing edits made
// through the admin API survive restarts.
func EnsureMembershipTypes(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	type tier struct {
		Name             string
		PriceCents       int64
		PeriodDays       int
		AllowsAdditional bool
	}

	tiers := []tier{
		{"individual", 35000, 365, false},
		{"family", 55000, 365, true},
		{"senior", 20000, 365, false},
	}

	ctx := context.Background()
	for _, t := range tiers {
		err := db.WithContext(ctx).Exec(`
			INSERT INTO membership_types (id, name, price_cents, period_days, allows_additional, active)
			VALUES (?, ?, ?, ?, ?, TRUE)
			ON CONFLICT (name) DO NOTHING
		`,
			node.Generate(),
			t.Name,
			t.PriceCents,
			t.PeriodDays,
			t.AllowsAdditional,
		).Error
		if err != nil {
			return err
		}
	}

	return nil
}
