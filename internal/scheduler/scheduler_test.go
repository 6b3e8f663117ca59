package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	memberrepo "github.com/lakeshoreswim/clubhouse/internal/member/repository"
	memberservice "github.com/lakeshoreswim/clubhouse/internal/member/service"
	typedomain "github.com/lakeshoreswim/clubhouse/internal/membershiptype/domain"
	typerepo "github.com/lakeshoreswim/clubhouse/internal/membershiptype/repository"
	typeservice "github.com/lakeshoreswim/clubhouse/internal/membershiptype/service"
	"github.com/lakeshoreswim/clubhouse/internal/providers/payment"
	"github.com/lakeshoreswim/clubhouse/internal/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingGateway struct {
	chargeErr error
	charges   []payment.ChargeRequest
}

func (g *recordingGateway) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (payment.Checkout, error) {
	return payment.Checkout{SessionID: "cs_" + req.ReferenceID}, nil
}

func (g *recordingGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	g.charges = append(g.charges, req)
	if g.chargeErr != nil {
		return payment.ChargeResult{}, g.chargeErr
	}
	return payment.ChargeResult{ProviderRef: "pi_" + req.IdempotencyKey}, nil
}

func (g *recordingGateway) ParseWebhook(payload []byte, signature string) (payment.WebhookEvent, error) {
	return payment.WebhookEvent{}, payment.ErrNotConfigured
}

type recordingMailer struct {
	sent     []string // template names
	errs     map[string]error
	bulk     []string // raw send recipients
	bulkErrs map[string]error
}

func (m *recordingMailer) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	for _, addr := range to {
		if err := m.bulkErrs[addr]; err != nil {
			return err
		}
	}
	m.bulk = append(m.bulk, to...)
	return nil
}

func (m *recordingMailer) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	if err := m.errs[templateName]; err != nil {
		return err
	}
	m.sent = append(m.sent, templateName)
	return nil
}

func (m *recordingMailer) count(template string) int {
	n := 0
	for _, name := range m.sent {
		if name == template {
			n++
		}
	}
	return n
}

type fixture struct {
	db      *gorm.DB
	clk     *clock.FakeClock
	gateway *recordingGateway
	mailer  *recordingMailer
	members memberdomain.Service
	types   typedomain.Service
	sched   *scheduler.Scheduler
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:schedmem_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	schema := []string{
		`CREATE TABLE membership_types (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			price_cents BIGINT NOT NULL,
			period_days INTEGER NOT NULL,
			allows_additional BOOLEAN NOT NULL DEFAULT FALSE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE members (
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
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	gateway := &recordingGateway{}
	mailer := &recordingMailer{errs: map[string]error{}, bulkErrs: map[string]error{}}

	types := typeservice.New(typeservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  typerepo.Provide(),
	})
	members := memberservice.New(memberservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  memberrepo.Provide(),
		Types: types,
		Email: mailer,
	})

	sched, err := scheduler.New(scheduler.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Members: members,
		Types:   types,
		Gateway: gateway,
		Email:   mailer,
		Config: scheduler.Config{
			BatchSize:    10,
			NotifyWindow: 14 * 24 * time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	return &fixture{
		db:      db,
		clk:     clk,
		gateway: gateway,
		mailer:  mailer,
		members: members,
		types:   types,
		sched:   sched,
	}
}

// activeMember registers and activates a member whose membership expires
// periodDays from the fake clock's current time.
func (f *fixture) activeMember(t *testing.T, periodDays int, autoRenew bool) memberdomain.Member {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("plan%d", periodDays)
	mt, err := f.types.GetByName(ctx, name)
	if err != nil {
		mt, err = f.types.Create(ctx, typedomain.CreateMembershipTypeRequest{
			Name:       name,
			PriceCents: 45000,
			PeriodDays: periodDays,
		})
		if err != nil {
			t.Fatalf("create type: %v", err)
		}
	}

	member, err := f.members.Register(ctx, memberdomain.RegisterMemberRequest{
		Name:           "Casey Morgan",
		Email:          fmt.Sprintf("casey+%d@example.com", time.Now().UnixNano()),
		Password:       "correct-horse",
		MembershipType: mt.Name,
		AutoRenew:      autoRenew,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	member, err = f.members.Activate(ctx, member.ID.String())
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return member
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) memberdomain.Member {
	t.Helper()
	member, err := f.members.GetByID(context.Background(), id.String())
	if err != nil {
		t.Fatalf("reload member: %v", err)
	}
	return member
}

func TestNotifyJobStampsMemberOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	member := f.activeMember(t, 30, false)

	// Outside the window: nothing happens.
	if err := f.sched.RunNotify(ctx); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := f.mailer.count("renewal_reminder"); got != 0 {
		t.Fatalf("expected no reminder outside window, got %d", got)
	}

	// 20 days later the expiration is 10 days out, inside the 14 day window.
	f.clk.Advance(20 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		if err := f.sched.RunNotify(ctx); err != nil {
			t.Fatalf("notify run %d: %v", i, err)
		}
	}
	if got := f.mailer.count("renewal_reminder"); got != 1 {
		t.Fatalf("expected exactly one reminder, got %d", got)
	}

	reloaded := f.reload(t, member.ID)
	if reloaded.RenewalNotifiedAt == nil {
		t.Fatal("expected renewal_notified_at to be stamped")
	}
}

func TestNotifyJobRetriesFailedSend(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	member := f.activeMember(t, 10, false)
	f.mailer.errs["renewal_reminder"] = errors.New("smtp unavailable")

	if err := f.sched.RunNotify(ctx); err == nil {
		t.Fatal("expected notify error when send fails")
	}
	if f.reload(t, member.ID).RenewalNotifiedAt != nil {
		t.Fatal("failed send must not stamp the member")
	}

	delete(f.mailer.errs, "renewal_reminder")
	if err := f.sched.RunNotify(ctx); err != nil {
		t.Fatalf("retry notify: %v", err)
	}
	if f.reload(t, member.ID).RenewalNotifiedAt == nil {
		t.Fatal("expected stamp after successful retry")
	}
}

func TestProcessJobLapsesWithoutAutoRenew(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	member := f.activeMember(t, 30, false)

	f.clk.Advance(31 * 24 * time.Hour)
	for i := 0; i < 2; i++ {
		if err := f.sched.RunProcess(ctx); err != nil {
			t.Fatalf("process run %d: %v", i, err)
		}
	}

	reloaded := f.reload(t, member.ID)
	if reloaded.Status != memberdomain.MemberStatusLapsed {
		t.Fatalf("expected lapsed, got %s", reloaded.Status)
	}
	if reloaded.LapsedReason == nil || *reloaded.LapsedReason != "not_renewed" {
		t.Fatalf("unexpected lapse reason: %v", reloaded.LapsedReason)
	}
	if len(f.gateway.charges) != 0 {
		t.Fatalf("non-auto-renew member must not be charged, got %d charges", len(f.gateway.charges))
	}
	if got := f.mailer.count("membership_lapsed"); got != 1 {
		t.Fatalf("expected one lapse notice, got %d", got)
	}
}

func TestProcessJobRenewsAutoRenewMember(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	member := f.activeMember(t, 30, true)
	oldExpiry := *member.ExpiresAt
	oldCode := member.AccessCode

	f.clk.Advance(31 * 24 * time.Hour)
	if err := f.sched.RunProcess(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	reloaded := f.reload(t, member.ID)
	if reloaded.Status != memberdomain.MemberStatusActive {
		t.Fatalf("expected active after renewal, got %s", reloaded.Status)
	}
	if !reloaded.ExpiresAt.After(f.clk.Now()) {
		t.Fatalf("expected future expiration, got %v", reloaded.ExpiresAt)
	}
	if reloaded.AccessCode == oldCode {
		t.Fatal("expected access code rotation on renewal")
	}
	if reloaded.RenewalNotifiedAt != nil {
		t.Fatal("renewal must clear the notified flag for the next cycle")
	}

	if len(f.gateway.charges) != 1 {
		t.Fatalf("expected one charge, got %d", len(f.gateway.charges))
	}
	wantKey := fmt.Sprintf("renewal-%s-%d", member.ID.String(), oldExpiry.Unix())
	if f.gateway.charges[0].IdempotencyKey != wantKey {
		t.Fatalf("charge key = %q, want %q", f.gateway.charges[0].IdempotencyKey, wantKey)
	}

	// A replayed pass finds nothing expired and never charges again.
	if err := f.sched.RunProcess(ctx); err != nil {
		t.Fatalf("replayed process: %v", err)
	}
	if len(f.gateway.charges) != 1 {
		t.Fatalf("replayed pass must not re-charge, got %d charges", len(f.gateway.charges))
	}
	if got := f.mailer.count("renewal_receipt"); got != 1 {
		t.Fatalf("expected one receipt, got %d", got)
	}
}

func TestProcessJobLapsesOnDeclinedCharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	member := f.activeMember(t, 30, true)
	oldExpiry := *member.ExpiresAt
	f.gateway.chargeErr = payment.ErrChargeDeclined

	f.clk.Advance(31 * 24 * time.Hour)
	if err := f.sched.RunProcess(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	reloaded := f.reload(t, member.ID)
	if reloaded.Status != memberdomain.MemberStatusLapsed {
		t.Fatalf("expected lapsed on decline, got %s", reloaded.Status)
	}
	if reloaded.LapsedReason == nil || *reloaded.LapsedReason != "payment_failed" {
		t.Fatalf("unexpected lapse reason: %v", reloaded.LapsedReason)
	}
	// Lapsing records why the membership ended; the paid-up period stands.
	if reloaded.ExpiresAt == nil || !reloaded.ExpiresAt.Equal(oldExpiry) {
		t.Fatalf("lapse must not move the expiration, got %v want %v", reloaded.ExpiresAt, oldExpiry)
	}
}

func TestProcessJobKeepsMemberOnTransientChargeError(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	member := f.activeMember(t, 30, true)
	f.gateway.chargeErr = errors.New("processor timeout")

	f.clk.Advance(31 * 24 * time.Hour)
	if err := f.sched.RunProcess(ctx); err == nil {
		t.Fatal("expected job error on transient failure")
	}

	reloaded := f.reload(t, member.ID)
	if reloaded.Status != memberdomain.MemberStatusActive {
		t.Fatalf("transient failure must not lapse the member, got %s", reloaded.Status)
	}

	// Processor back up: the retry uses the same idempotency key.
	f.gateway.chargeErr = nil
	if err := f.sched.RunProcess(ctx); err != nil {
		t.Fatalf("retry process: %v", err)
	}
	if len(f.gateway.charges) != 2 {
		t.Fatalf("expected two charge attempts, got %d", len(f.gateway.charges))
	}
	if f.gateway.charges[0].IdempotencyKey != f.gateway.charges[1].IdempotencyKey {
		t.Fatal("retries must reuse the idempotency key")
	}
	if f.reload(t, member.ID).Status != memberdomain.MemberStatusActive {
		t.Fatal("expected renewal after retry")
	}
}

func TestSendBulkSkipsFailedRecipients(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.activeMember(t, 30, false)
	second := f.activeMember(t, 30, false)
	third := f.activeMember(t, 30, false)

	// Pending members never receive broadcasts.
	if _, err := f.members.Register(ctx, memberdomain.RegisterMemberRequest{
		Name:           "Robin Quinn",
		Email:          fmt.Sprintf("robin+%d@example.com", time.Now().UnixNano()),
		Password:       "correct-horse",
		MembershipType: "plan30",
	}); err != nil {
		t.Fatalf("register pending member: %v", err)
	}

	f.mailer.bulkErrs[second.Email] = errors.New("mailbox full")

	sent, err := f.sched.SendBulk(ctx, "Pool closure", "<p>Closed Saturday.</p>")
	if err != nil {
		t.Fatalf("send bulk: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	got := map[string]bool{}
	for _, addr := range f.mailer.bulk {
		got[addr] = true
	}
	if !got[first.Email] || !got[third.Email] || got[second.Email] {
		t.Fatalf("unexpected recipients: %v", f.mailer.bulk)
	}
}

func TestSendBulkWithoutMailer(t *testing.T) {
	f := setup(t)

	bare, err := scheduler.New(scheduler.Params{
		DB:      f.db,
		Log:     zap.NewNop(),
		GenID:   snowflakeNode(t),
		Clock:   f.clk,
		Members: f.members,
		Types:   f.types,
		Gateway: f.gateway,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if _, err := bare.SendBulk(context.Background(), "Subject", "Body"); !errors.Is(err, scheduler.ErrEmailNotConfigured) {
		t.Fatalf("expected ErrEmailNotConfigured, got %v", err)
	}
}

func snowflakeNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestRunOnceHandlesMixedBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	renewing := f.activeMember(t, 30, true)
	lapsing := f.activeMember(t, 30, false)
	upcoming := f.activeMember(t, 60, false)

	f.clk.Advance(50 * 24 * time.Hour)
	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if got := f.reload(t, renewing.ID).Status; got != memberdomain.MemberStatusActive {
		t.Fatalf("auto-renew member: expected active, got %s", got)
	}
	if got := f.reload(t, lapsing.ID).Status; got != memberdomain.MemberStatusLapsed {
		t.Fatalf("expired member: expected lapsed, got %s", got)
	}

	// The 60 day member is 10 days from expiring: notified, untouched.
	third := f.reload(t, upcoming.ID)
	if third.Status != memberdomain.MemberStatusActive {
		t.Fatalf("upcoming member: expected active, got %s", third.Status)
	}
	if third.RenewalNotifiedAt == nil {
		t.Fatal("upcoming member should have been notified")
	}
}
