package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/membership"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
	"github.com/dukerupert/larder/internal/websocket"
)

var fixedNow = time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)

type testApp struct {
	users     *store.UserStore
	sessions  *store.SessionStore
	homes     *store.HouseholdStore
	items     *store.GroceryStore
	audit     *store.AuditStore
	push      *store.PushStore
	policy    *membership.Policy
	hub       *websocket.Hub
	authH     *AuthHandler
	household *HouseholdHandler
	grocery   *GroceryHandler
	auditH    *AuditHandler
	pushH     *PushHandler
	mux       *http.ServeMux
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := testLogger()
	a := &testApp{
		users:    store.NewUserStore(db),
		sessions: store.NewSessionStore(db, time.Hour),
		homes:    store.NewHouseholdStore(db),
		items:    store.NewGroceryStore(db),
		audit:    store.NewAuditStore(db),
		push:     store.NewPushStore(db),
		hub:      websocket.NewHub(logger),
	}
	a.policy = membership.New(a.homes, a.audit, logger)
	a.authH = NewAuthHandler(a.users, a.sessions, a.audit, time.Hour, false, logger)
	a.household = NewHouseholdHandler(a.policy, a.hub, logger)
	a.grocery = NewGroceryHandler(a.policy, a.items, a.audit, a.hub,
		[]model.ItemStatus{model.StatusRunningLow, model.StatusBuyMore}, logger)
	a.grocery.now = func() time.Time { return fixedNow }
	a.auditH = NewAuditHandler(a.policy, a.audit, logger)
	a.pushH = NewPushHandler(a.push, "test-public-key", logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", a.authH.Register)
	mux.HandleFunc("POST /login", a.authH.Login)
	mux.HandleFunc("POST /logout", a.authH.Logout)
	mux.HandleFunc("GET /api/me", a.authH.Me)
	mux.HandleFunc("PUT /api/me", a.authH.UpdateProfile)
	mux.HandleFunc("PUT /api/me/password", a.authH.ChangePassword)
	mux.HandleFunc("GET /api/meta", a.grocery.Meta)
	mux.HandleFunc("GET /api/households", a.household.List)
	mux.HandleFunc("POST /api/households", a.household.Create)
	mux.HandleFunc("POST /api/households/join", a.household.JoinByCode)
	mux.HandleFunc("GET /api/households/{household_id}", a.household.Get)
	mux.HandleFunc("PUT /api/households/{household_id}", a.household.Update)
	mux.HandleFunc("DELETE /api/households/{household_id}", a.household.Delete)
	mux.HandleFunc("POST /api/households/{household_id}/join", a.household.Join)
	mux.HandleFunc("POST /api/households/{household_id}/leave", a.household.Leave)
	mux.HandleFunc("GET /api/households/{household_id}/members", a.household.Members)
	mux.HandleFunc("DELETE /api/households/{household_id}/members/{user_id}", a.household.RemoveMember)
	mux.HandleFunc("GET /api/households/{household_id}/requests", a.household.Pending)
	mux.HandleFunc("POST /api/households/{household_id}/requests/{user_id}", a.household.Decide)
	mux.HandleFunc("GET /api/households/{household_id}/items", a.grocery.List)
	mux.HandleFunc("POST /api/households/{household_id}/items", a.grocery.Create)
	mux.HandleFunc("GET /api/households/{household_id}/items/{id}", a.grocery.Get)
	mux.HandleFunc("PUT /api/households/{household_id}/items/{id}", a.grocery.Update)
	mux.HandleFunc("DELETE /api/households/{household_id}/items/{id}", a.grocery.Delete)
	mux.HandleFunc("GET /api/households/{household_id}/dashboard", a.grocery.Dashboard)
	mux.HandleFunc("GET /api/households/{household_id}/shopping-list", a.grocery.ShoppingList)
	mux.HandleFunc("GET /api/households/{household_id}/shopping-list/export", a.grocery.ShoppingExport)
	mux.HandleFunc("GET /api/households/{household_id}/audit", a.auditH.List)
	mux.HandleFunc("GET /api/push/vapid-key", a.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscriptions", a.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", a.pushH.List)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", a.pushH.Unsubscribe)
	a.mux = mux
	return a
}

// do sends a request as userID (0 for anonymous) with body encoded as JSON.
func (a *testApp) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if userID != 0 {
		req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID}))
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) user(t *testing.T, name string) int64 {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := a.users.Create(context.Background(), name, hash, model.Profile{})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u.ID
}

func (a *testApp) householdFor(t *testing.T, adminID int64) *model.Household {
	t.Helper()
	h, err := a.policy.CreateHousehold(context.Background(), adminID, "Home", "Kitchen")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return h
}

// member makes userID an approved member of h.
func (a *testApp) member(t *testing.T, h *model.Household, userID int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := a.policy.RequestJoin(ctx, userID, h.ID); err != nil {
		t.Fatalf("request join: %v", err)
	}
	if _, err := a.policy.DecideRequest(ctx, h.AdminID, h.ID, userID, membership.Approve); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
