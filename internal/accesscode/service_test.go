package accesscode_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lakeshoreswim/clubhouse/internal/accesscode"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	memberrepo "github.com/lakeshoreswim/clubhouse/internal/member/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAccessCodes(t *testing.T) (accesscode.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:codemem_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Exec(`CREATE TABLE members (
		id BIGINT PRIMARY KEY,
		membership_type_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
		guest_pass_balance INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMP,
		renewal_notified_at TIMESTAMP,
		lapsed_reason TEXT,
		access_code TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("schema exec failed: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := accesscode.New(accesscode.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  memberrepo.Provide(),
	})
	return svc, db, clk
}

func seedCodeMember(t *testing.T, db *gorm.DB, code string, status memberdomain.MemberStatus, expires time.Time) snowflake.ID {
	t.Helper()
	id := snowflake.ID(time.Now().UnixNano())
	err := db.Exec(
		`INSERT INTO members (
			id, membership_type_id, name, email, password_hash, status, auto_renew,
			guest_pass_balance, expires_at, access_code, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, FALSE, 0, ?, ?, ?, ?)`,
		id, 1, "Jordan Blake", fmt.Sprintf("jordan+%d@example.com", id), "x",
		status, expires, code, time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return id
}

func TestValidateAcceptsActiveMember(t *testing.T) {
	svc, db, clk := setupAccessCodes(t)
	id := seedCodeMember(t, db, "K7PWQ2MX", memberdomain.MemberStatusActive, clk.Now().AddDate(0, 0, 30))

	member, err := svc.Validate(context.Background(), "k7pwq2mx ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if member.ID != id {
		t.Fatalf("expected member %d, got %d", id, member.ID)
	}
}

func TestValidateRejectsUnknownCode(t *testing.T) {
	svc, _, _ := setupAccessCodes(t)

	if _, err := svc.Validate(context.Background(), "ZZZZ9999"); err != accesscode.ErrInvalidCode {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := svc.Validate(context.Background(), "short"); err != accesscode.ErrInvalidCode {
		t.Fatalf("expected ErrInvalidCode for wrong length, got %v", err)
	}
}

func TestValidateDeniesLapsedAndExpired(t *testing.T) {
	svc, db, clk := setupAccessCodes(t)

	seedCodeMember(t, db, "LAPSEDAA", memberdomain.MemberStatusLapsed, clk.Now().AddDate(0, 0, 30))
	if _, err := svc.Validate(context.Background(), "LAPSEDAA"); err != accesscode.ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied for lapsed member, got %v", err)
	}

	seedCodeMember(t, db, "EXPIREDA", memberdomain.MemberStatusActive, clk.Now().AddDate(0, 0, -1))
	if _, err := svc.Validate(context.Background(), "EXPIREDA"); err != accesscode.ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied for expired membership, got %v", err)
	}
}

func TestGeneratedCodesUseSafeAlphabet(t *testing.T) {
	const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := accesscode.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("expected 8 character code, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("code %q contains character outside alphabet", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected generated codes to vary")
	}
}
