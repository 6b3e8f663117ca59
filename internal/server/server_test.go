package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lakeshoreswim/clubhouse/internal/authorization"
	"github.com/lakeshoreswim/clubhouse/internal/config"
	guestpassdomain "github.com/lakeshoreswim/clubhouse/internal/guestpass/domain"
	memberdomain "github.com/lakeshoreswim/clubhouse/internal/member/domain"
	paymentprovider "github.com/lakeshoreswim/clubhouse/internal/providers/payment"
	"github.com/lakeshoreswim/clubhouse/internal/scheduler"
	"go.uber.org/zap"
)

type fakeMemberService struct {
	member        memberdomain.Member
	registerCalls int
	lastRegister  memberdomain.RegisterMemberRequest
}

func (f *fakeMemberService) Register(ctx context.Context, req memberdomain.RegisterMemberRequest) (memberdomain.Member, error) {
	f.registerCalls++
	f.lastRegister = req
	_ = ctx
	return f.member, nil
}

func (f *fakeMemberService) Activate(ctx context.Context, id string) (memberdomain.Member, error) {
	_ = ctx
	_ = id
	return f.member, nil
}

func (f *fakeMemberService) GetByID(ctx context.Context, id string) (memberdomain.Member, error) {
	_ = ctx
	if id != f.member.ID.String() {
		return memberdomain.Member{}, memberdomain.ErrNotFound
	}
	return f.member, nil
}

func (f *fakeMemberService) List(ctx context.Context, req memberdomain.ListMemberRequest) (memberdomain.ListMemberResponse, error) {
	_ = ctx
	_ = req
	return memberdomain.ListMemberResponse{Members: []memberdomain.Member{f.member}}, nil
}

func (f *fakeMemberService) Update(ctx context.Context, req memberdomain.UpdateMemberRequest) (memberdomain.Member, error) {
	_ = ctx
	_ = req
	return f.member, nil
}

func (f *fakeMemberService) SetAutoRenew(ctx context.Context, id string, enabled bool) (memberdomain.Member, error) {
	_ = ctx
	_ = id
	_ = enabled
	return f.member, nil
}

func (f *fakeMemberService) Deactivate(ctx context.Context, id string) error {
	_ = ctx
	_ = id
	return nil
}

func (f *fakeMemberService) Delete(ctx context.Context, id string) error {
	_ = ctx
	_ = id
	return nil
}

func (f *fakeMemberService) Renew(ctx context.Context, id string, now time.Time) (memberdomain.Renewal, error) {
	_ = ctx
	_ = id
	_ = now
	return memberdomain.Renewal{}, nil
}

func (f *fakeMemberService) Lapse(ctx context.Context, id string, reason string, now time.Time) error {
	_ = ctx
	_ = id
	_ = reason
	_ = now
	return nil
}

func (f *fakeMemberService) MarkNotified(ctx context.Context, id string, now time.Time) error {
	_ = ctx
	_ = id
	_ = now
	return nil
}

type fakePassService struct {
	balance      int
	useErr       error
	useCalls     int
	confirmCalls int
	failCalls    int
	lastEntryID  string
}

func (f *fakePassService) Purchase(ctx context.Context, req guestpassdomain.PurchaseRequest) (guestpassdomain.PurchaseResponse, error) {
	_ = ctx
	if req.Quantity <= 0 {
		return guestpassdomain.PurchaseResponse{}, guestpassdomain.ErrInvalidQuantity
	}
	return guestpassdomain.PurchaseResponse{RedirectURL: "https://checkout.example/session"}, nil
}

func (f *fakePassService) ConfirmPurchase(ctx context.Context, entryID string) (guestpassdomain.GuestPassEntry, error) {
	f.confirmCalls++
	f.lastEntryID = entryID
	_ = ctx
	return guestpassdomain.GuestPassEntry{}, nil
}

func (f *fakePassService) FailPurchase(ctx context.Context, entryID string) error {
	f.failCalls++
	f.lastEntryID = entryID
	_ = ctx
	return nil
}

func (f *fakePassService) UsePass(ctx context.Context, memberID string) (guestpassdomain.UsePassResult, error) {
	_ = ctx
	_ = memberID
	if f.useErr != nil {
		return guestpassdomain.UsePassResult{}, f.useErr
	}
	f.useCalls++
	f.balance--
	return guestpassdomain.UsePassResult{Remaining: f.balance}, nil
}

func (f *fakePassService) AdminAdjust(ctx context.Context, memberID string, delta int, note string) (guestpassdomain.GuestPassEntry, error) {
	_ = ctx
	_ = memberID
	_ = note
	if delta == 0 {
		return guestpassdomain.GuestPassEntry{}, guestpassdomain.ErrInvalidAdjustment
	}
	f.balance += delta
	return guestpassdomain.GuestPassEntry{Quantity: delta}, nil
}

func (f *fakePassService) GetBalance(ctx context.Context, memberID string) (int, error) {
	_ = ctx
	_ = memberID
	return f.balance, nil
}

func (f *fakePassService) GetLog(ctx context.Context, req guestpassdomain.GetLogRequest) (guestpassdomain.GetLogResponse, error) {
	_ = ctx
	_ = req
	return guestpassdomain.GetLogResponse{}, nil
}

func (f *fakePassService) RecomputeBalance(ctx context.Context, memberID string) (int, error) {
	_ = ctx
	_ = memberID
	return f.balance, nil
}

type fakeAccessCodeService struct {
	member memberdomain.Member
	err    error
}

func (f *fakeAccessCodeService) Validate(ctx context.Context, code string) (memberdomain.Member, error) {
	_ = ctx
	_ = code
	if f.err != nil {
		return memberdomain.Member{}, f.err
	}
	return f.member, nil
}

func (f *fakeAccessCodeService) Invalidate(ctx context.Context, code string) error {
	_ = ctx
	_ = code
	return nil
}

type tableAuthz struct {
	allowed map[string]bool
}

func (t *tableAuthz) Authorize(ctx context.Context, role, object, action string) error {
	_ = ctx
	if t.allowed == nil {
		return nil
	}
	if t.allowed[role+"|"+object+"|"+action] {
		return nil
	}
	return authorization.ErrForbidden
}

type fakeGateway struct {
	event paymentprovider.WebhookEvent
	err   error
}

func (f *fakeGateway) CreateCheckout(ctx context.Context, req paymentprovider.CheckoutRequest) (paymentprovider.Checkout, error) {
	_ = ctx
	_ = req
	return paymentprovider.Checkout{}, nil
}

func (f *fakeGateway) Charge(ctx context.Context, req paymentprovider.ChargeRequest) (paymentprovider.ChargeResult, error) {
	_ = ctx
	_ = req
	return paymentprovider.ChargeResult{}, nil
}

func (f *fakeGateway) ParseWebhook(payload []byte, signature string) (paymentprovider.WebhookEvent, error) {
	_ = payload
	_ = signature
	if f.err != nil {
		return paymentprovider.WebhookEvent{}, f.err
	}
	return f.event, nil
}

type fakeBroadcaster struct {
	sent        int
	err         error
	calls       int
	lastSubject string
	lastBody    string
}

func (f *fakeBroadcaster) SendBulk(ctx context.Context, subject, htmlBody string) (int, error) {
	f.calls++
	f.lastSubject = subject
	f.lastBody = htmlBody
	_ = ctx
	if f.err != nil {
		return 0, f.err
	}
	return f.sent, nil
}

type testFixture struct {
	srv       *Server
	members   *fakeMemberService
	passes    *fakePassService
	codes     *fakeAccessCodeService
	gateway   *fakeGateway
	broadcast *fakeBroadcaster
}

func newTestServer(t *testing.T) *testFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	active := memberdomain.Member{
		ID:               snowflake.ID(4100),
		Name:             "Casey Morgan",
		Email:            "casey@example.com",
		Status:           memberdomain.MemberStatusActive,
		GuestPassBalance: 3,
		AccessCode:       "ABCD2345",
	}

	members := &fakeMemberService{member: active}
	passes := &fakePassService{balance: 3}
	codes := &fakeAccessCodeService{member: active}
	gateway := &fakeGateway{}
	broadcast := &fakeBroadcaster{sent: 12}

	srv := &Server{
		engine: NewEngine(nil),
		cfg: config.Config{
			AdminToken: "admin-token",
			KioskToken: "kiosk-token",
		},
		log:         zap.NewNop(),
		authzSvc:    &tableAuthz{},
		memberSvc:   members,
		typeSvc:     nil,
		passSvc:     passes,
		accessCodes: codes,
		gateway:     gateway,
		broadcast:   broadcast,
	}
	srv.registerPublicRoutes()
	srv.registerMemberRoutes()
	srv.registerKioskRoutes()
	srv.registerAdminRoutes()

	return &testFixture{srv: srv, members: members, passes: passes, codes: codes, gateway: gateway, broadcast: broadcast}
}

func doRequest(f *testFixture, method, path, token, body string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(resp, req)
	return resp
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	f := newTestServer(t)

	resp := doRequest(f, http.MethodGet, "/api/me", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestRequireAuthResolvesAccessCodeToMember(t *testing.T) {
	f := newTestServer(t)

	resp := doRequest(f, http.MethodGet, "/api/me", "ABCD2345", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Data memberdomain.Member `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.Email != "casey@example.com" {
		t.Fatalf("expected member email in response, got %q", payload.Data.Email)
	}
}

func TestRequireAuthRejectsUnknownCode(t *testing.T) {
	f := newTestServer(t)
	f.codes.err = ErrUnauthorized

	resp := doRequest(f, http.MethodGet, "/api/me", "ZZZZ9999", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthorizeDeniesKioskOnAdminRoutes(t *testing.T) {
	f := newTestServer(t)
	f.srv.authzSvc = &tableAuthz{allowed: map[string]bool{
		authorization.RoleKiosk + "|" + authorization.ObjectGuestPass + "|" + authorization.ActionUse: true,
	}}

	resp := doRequest(f, http.MethodGet, "/admin/members", "kiosk-token", "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}

	resp = doRequest(f, http.MethodPost, "/kiosk/members/4100/use_pass", "kiosk-token", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestSignupCallsMemberService(t *testing.T) {
	f := newTestServer(t)

	body := `{"name":"Riley Chen","email":"riley@example.com","password":"longenough","membership_type":"family","auto_renew":true}`
	resp := doRequest(f, http.MethodPost, "/signup", "", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.members.registerCalls != 1 {
		t.Fatalf("expected 1 register call, got %d", f.members.registerCalls)
	}
	if f.members.lastRegister.MembershipType != "family" || !f.members.lastRegister.AutoRenew {
		t.Fatalf("unexpected register request: %+v", f.members.lastRegister)
	}
}

func TestKioskAccessBurnsPassOnRequest(t *testing.T) {
	f := newTestServer(t)

	resp := doRequest(f, http.MethodPost, "/kiosk/access", "kiosk-token", `{"code":"ABCD2345","use_pass":true}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.passes.useCalls != 1 {
		t.Fatalf("expected 1 use call, got %d", f.passes.useCalls)
	}

	var payload struct {
		Data struct {
			Balance  int  `json:"balance"`
			PassUsed bool `json:"pass_used"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Data.PassUsed || payload.Data.Balance != 2 {
		t.Fatalf("expected pass_used with balance 2, got %+v", payload.Data)
	}
}

func TestKioskAccessWithoutPassLeavesBalance(t *testing.T) {
	f := newTestServer(t)

	resp := doRequest(f, http.MethodPost, "/kiosk/access", "kiosk-token", `{"code":"ABCD2345"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if f.passes.useCalls != 0 {
		t.Fatalf("expected no use calls, got %d", f.passes.useCalls)
	}
}

func TestUsePassInsufficientBalanceMapsToConflict(t *testing.T) {
	f := newTestServer(t)
	f.passes.useErr = guestpassdomain.ErrInsufficientBalance

	resp := doRequest(f, http.MethodPost, "/kiosk/members/4100/use_pass", "kiosk-token", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if payload.Error.Type != "conflict" {
		t.Fatalf("expected conflict error type, got %q", payload.Error.Type)
	}
}

func TestAdjustPassesRejectsZeroDelta(t *testing.T) {
	f := newTestServer(t)

	resp := doRequest(f, http.MethodPost, "/admin/members/4100/adjust_passes", "admin-token", `{"delta":0,"note":"oops"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestBroadcastEmailReportsSentCount(t *testing.T) {
	f := newTestServer(t)

	body := `{"subject":"Pool closure","body":"<p>Closed Saturday.</p>"}`
	resp := doRequest(f, http.MethodPost, "/admin/email/broadcast", "admin-token", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.broadcast.calls != 1 || f.broadcast.lastSubject != "Pool closure" {
		t.Fatalf("unexpected broadcast call: %+v", f.broadcast)
	}

	var payload struct {
		Data struct {
			Sent int `json:"sent"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.Sent != 12 {
		t.Fatalf("sent = %d, want 12", payload.Data.Sent)
	}
}

func TestBroadcastEmailValidatesSubject(t *testing.T) {
	f := newTestServer(t)

	resp := doRequest(f, http.MethodPost, "/admin/email/broadcast", "admin-token", `{"subject":"  ","body":"hello"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.broadcast.calls != 0 {
		t.Fatalf("expected no broadcast calls, got %d", f.broadcast.calls)
	}
}

func TestBroadcastEmailWithoutMailerMapsToUpstream(t *testing.T) {
	f := newTestServer(t)
	f.broadcast.err = scheduler.ErrEmailNotConfigured

	resp := doRequest(f, http.MethodPost, "/admin/email/broadcast", "admin-token", `{"subject":"s","body":"b"}`)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestPaymentWebhookConfirmsAndFails(t *testing.T) {
	f := newTestServer(t)
	f.gateway.event = paymentprovider.WebhookEvent{
		Type:        paymentprovider.EventCheckoutCompleted,
		ReferenceID: "8800",
	}

	resp := doRequest(f, http.MethodPost, "/api/webhooks/payment", "", `{}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if f.passes.confirmCalls != 1 || f.passes.lastEntryID != "8800" {
		t.Fatalf("expected confirm for entry 8800, got %d calls (last %q)", f.passes.confirmCalls, f.passes.lastEntryID)
	}

	f.gateway.event = paymentprovider.WebhookEvent{
		Type:        paymentprovider.EventCheckoutExpired,
		ReferenceID: "8801",
	}
	resp = doRequest(f, http.MethodPost, "/api/webhooks/payment", "", `{}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if f.passes.failCalls != 1 || f.passes.lastEntryID != "8801" {
		t.Fatalf("expected fail for entry 8801, got %d calls (last %q)", f.passes.failCalls, f.passes.lastEntryID)
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	f := newTestServer(t)
	f.gateway.err = paymentprovider.ErrNotConfigured

	resp := doRequest(f, http.MethodPost, "/api/webhooks/payment", "", `{}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if f.passes.confirmCalls != 0 {
		t.Fatalf("expected no confirm calls, got %d", f.passes.confirmCalls)
	}
}
