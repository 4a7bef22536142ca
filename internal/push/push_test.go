package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 || pubBytes[0] != 0x04 {
		t.Errorf("public key length = %d, want 65 uncompressed", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

type sent struct {
	endpoint string
	payload  Payload
}

// fakeSender records deliveries and fails for endpoints listed in expired.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sent
	expired map[string]bool
}

func (f *fakeSender) Send(_ context.Context, sub *model.PushSubscription, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired[sub.Endpoint] {
		return ErrExpired
	}
	f.sent = append(f.sent, sent{endpoint: sub.Endpoint, payload: p})
	return nil
}

type notifierFixture struct {
	n        *Notifier
	sender   *fakeSender
	ps       *store.PushStore
	hs       *store.HouseholdStore
	gs       *store.GroceryStore
	us       *store.UserStore
	alice    *model.User
	bob      *model.User
	home     *model.Household
	outcomes []string
}

func setupNotifier(t *testing.T) *notifierFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	us := store.NewUserStore(db)
	f := &notifierFixture{
		sender: &fakeSender{expired: map[string]bool{}},
		ps:     store.NewPushStore(db),
		hs:     store.NewHouseholdStore(db),
		gs:     store.NewGroceryStore(db),
		us:     us,
	}
	if f.alice, err = us.Create(ctx, "alice", "hash", model.Profile{}); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if f.bob, err = us.Create(ctx, "bob", "hash", model.Profile{}); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if f.home, err = f.hs.Create(ctx, "Home", "", f.alice.ID); err != nil {
		t.Fatalf("create household: %v", err)
	}

	f.n = NewNotifier(f.sender, f.ps, f.hs, us, f.gs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.n.now = func() time.Time { return time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC) }
	f.n.OnDelivery(func(notifType, outcome string) {
		f.outcomes = append(f.outcomes, notifType+":"+outcome)
	})
	return f
}

func (f *notifierFixture) subscribe(t *testing.T, u *model.User, endpoint string) {
	t.Helper()
	if _, err := f.ps.CreateSubscription(context.Background(), u.ID, endpoint, "p256dh", "auth", ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func (f *notifierFixture) addItem(t *testing.T, name string, expiry model.Date) {
	t.Helper()
	in := model.GroceryItemInput{
		Name: name, Category: model.CategoryOther, Type: model.TypePerishable,
		Unit: model.UnitCount, Status: model.StatusInStock, ExpiryDate: &expiry,
	}
	if _, err := f.gs.Create(context.Background(), f.home.ID, f.alice.ID, in); err != nil {
		t.Fatalf("create item: %v", err)
	}
}

func TestJoinRequestedNotifiesAdmin(t *testing.T) {
	f := setupNotifier(t)
	f.subscribe(t, f.alice, "https://push.example.com/alice")
	f.subscribe(t, f.bob, "https://push.example.com/bob")

	f.n.JoinRequested(context.Background(), f.home.ID, f.bob.ID)

	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.sent))
	}
	got := f.sender.sent[0]
	if got.endpoint != "https://push.example.com/alice" {
		t.Errorf("endpoint = %q, want alice's", got.endpoint)
	}
	if got.payload.Body != "bob wants to join Home" {
		t.Errorf("body = %q", got.payload.Body)
	}
	if len(f.outcomes) != 1 || f.outcomes[0] != "join_request:sent" {
		t.Errorf("outcomes = %v", f.outcomes)
	}
}

func TestJoinRequestedUnknownHousehold(t *testing.T) {
	f := setupNotifier(t)
	f.subscribe(t, f.alice, "https://push.example.com/alice")

	f.n.JoinRequested(context.Background(), 9999, f.bob.ID)

	if len(f.sender.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(f.sender.sent))
	}
}

func TestCheckExpiringSendsDailyDigestOnce(t *testing.T) {
	f := setupNotifier(t)
	ctx := context.Background()
	f.subscribe(t, f.alice, "https://push.example.com/alice")
	f.subscribe(t, f.bob, "https://push.example.com/bob")

	// bob is only pending, so he gets nothing.
	if _, err := f.hs.AddMember(ctx, f.home.ID, f.bob.ID, model.RoleMember, model.MembershipPending); err != nil {
		t.Fatalf("add pending member: %v", err)
	}

	f.addItem(t, "Milk", model.NewDate(2024, 3, 11))
	f.addItem(t, "Yogurt", model.NewDate(2024, 3, 30))

	n, err := f.n.CheckExpiring(ctx)
	if err != nil {
		t.Fatalf("check expiring: %v", err)
	}
	if n != 1 {
		t.Errorf("notified = %d, want 1", n)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.sent))
	}
	if body := f.sender.sent[0].payload.Body; body != "Milk expires tomorrow" {
		t.Errorf("body = %q", body)
	}

	n, err = f.n.CheckExpiring(ctx)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if n != 0 || len(f.sender.sent) != 1 {
		t.Errorf("second check notified = %d, sent = %d; want 0, 1", n, len(f.sender.sent))
	}

	// A new day brings a new digest.
	f.n.now = func() time.Time { return time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC) }
	if n, _ := f.n.CheckExpiring(ctx); n != 1 {
		t.Errorf("next day notified = %d, want 1", n)
	}
	if body := f.sender.sent[1].payload.Body; body != "Milk expires today" {
		t.Errorf("next day body = %q", body)
	}
}

func TestCheckExpiringNothingDue(t *testing.T) {
	f := setupNotifier(t)
	f.subscribe(t, f.alice, "https://push.example.com/alice")
	f.addItem(t, "Rice", model.NewDate(2025, 1, 1))

	n, err := f.n.CheckExpiring(context.Background())
	if err != nil || n != 0 {
		t.Errorf("check = %d, %v; want 0, nil", n, err)
	}
	if len(f.sender.sent) != 0 {
		t.Errorf("sent = %d, want 0", len(f.sender.sent))
	}
}

func TestExpiredSubscriptionIsRemoved(t *testing.T) {
	f := setupNotifier(t)
	ctx := context.Background()
	f.subscribe(t, f.alice, "https://push.example.com/stale")
	f.sender.expired["https://push.example.com/stale"] = true

	f.n.JoinRequested(ctx, f.home.ID, f.bob.ID)

	subs, err := f.ps.ListByUser(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("list subs: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("subs = %d, want expired one removed", len(subs))
	}
	if len(f.outcomes) != 1 || f.outcomes[0] != "join_request:expired" {
		t.Errorf("outcomes = %v", f.outcomes)
	}
}

type fakeMailer struct {
	to, requester, household string
	err                      error
}

func (m *fakeMailer) SendJoinRequest(_ context.Context, to, requester, household string, _ int64) error {
	m.to, m.requester, m.household = to, requester, household
	return m.err
}

func TestJoinRequestedEmailsAdmin(t *testing.T) {
	f := setupNotifier(t)
	ctx := context.Background()
	if _, err := f.us.UpdateProfile(ctx, f.alice.ID, model.Profile{Email: "alice@example.com"}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	mailer := &fakeMailer{}
	f.n.SetMailer(mailer)

	f.n.JoinRequested(ctx, f.home.ID, f.bob.ID)

	if mailer.to != "alice@example.com" || mailer.requester != "bob" || mailer.household != "Home" {
		t.Errorf("mail = %+v", mailer)
	}
	if len(f.outcomes) != 1 || f.outcomes[0] != "join_request:emailed" {
		t.Errorf("outcomes = %v", f.outcomes)
	}
}

func TestJoinRequestedSkipsAdminWithoutEmail(t *testing.T) {
	f := setupNotifier(t)
	mailer := &fakeMailer{}
	f.n.SetMailer(mailer)

	f.n.JoinRequested(context.Background(), f.home.ID, f.bob.ID)

	if mailer.to != "" {
		t.Errorf("mailed %q, want nothing", mailer.to)
	}
}

func TestEmailOnlyNotifierSkipsDigest(t *testing.T) {
	f := setupNotifier(t)
	f.n.sender = nil
	f.subscribe(t, f.alice, "https://push.example.com/alice")
	f.addItem(t, "Milk", model.NewDate(2024, 3, 10))

	n, err := f.n.CheckExpiring(context.Background())
	if err != nil || n != 0 {
		t.Errorf("check = %d, %v; want 0, nil", n, err)
	}
}

func TestExpiringBody(t *testing.T) {
	today := model.NewDate(2024, 3, 10)
	items := []model.ExpiringItem{
		{Name: "Milk", ExpiryDate: today},
		{Name: "Eggs", ExpiryDate: today.AddDays(1)},
		{Name: "Bread", ExpiryDate: today.AddDays(1)},
		{Name: "Ham", ExpiryDate: today.AddDays(2)},
		{Name: "Cheese", ExpiryDate: today.AddDays(2)},
	}

	tests := []struct {
		name  string
		items []model.ExpiringItem
		want  string
	}{
		{"one today", items[:1], "Milk expires today"},
		{"one later", items[3:4], "Ham expires on 2024-03-12"},
		{"three", items[:3], "3 items expire soon: Milk, Eggs, Bread"},
		{"five", items, "5 items expire soon: Milk, Eggs, Bread and 2 more"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expiringBody(tt.items, today); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceSendStatuses(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	clientKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	authSecret := make([]byte, 16)
	rand.Read(authSecret)

	tests := []struct {
		name    string
		status  int
		wantErr error
		ok      bool
	}{
		{"created", http.StatusCreated, nil, true},
		{"gone", http.StatusGone, ErrExpired, false},
		{"not found", http.StatusNotFound, ErrExpired, false},
		{"server error", http.StatusInternalServerError, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			svc := NewService(pub, priv, "mailto:admin@example.com")
			svc.client = srv.Client()
			sub := &model.PushSubscription{
				Endpoint:  srv.URL + "/push/abc",
				P256dhKey: base64.RawURLEncoding.EncodeToString(clientKey.PublicKey().Bytes()),
				AuthKey:   base64.RawURLEncoding.EncodeToString(authSecret),
			}

			err := svc.Send(context.Background(), sub, Payload{Title: "Hi", Body: "there"})
			switch {
			case tt.ok && err != nil:
				t.Fatalf("send: %v", err)
			case !tt.ok && err == nil:
				t.Fatal("expected error")
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(gotAuth, "vapid ") {
				t.Errorf("Authorization = %q, want vapid scheme", gotAuth)
			}
		})
	}
}
