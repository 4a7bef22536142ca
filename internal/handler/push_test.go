package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dukerupert/larder/internal/model"
)

func TestVAPIDKey(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")

	rec := a.do(t, "GET", "/api/push/vapid-key", alice, nil)
	assertStatus(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec); got["public_key"] != "test-public-key" {
		t.Errorf("public_key = %q", got["public_key"])
	}
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	a := newTestApp(t)
	alice, bob := a.user(t, "alice"), a.user(t, "bob")

	rec := a.do(t, "POST", "/api/push/subscriptions", alice, map[string]string{
		"endpoint": "https://push.example.com/a", "p256dh": "key", "auth": "secret", "device_name": " Phone ",
	})
	assertStatus(t, rec, http.StatusCreated)
	sub := decode[model.PushSubscription](t, rec)
	if sub.UserID != alice || sub.DeviceName != "Phone" {
		t.Errorf("subscription = %+v", sub)
	}

	rec = a.do(t, "GET", "/api/push/subscriptions", alice, nil)
	assertStatus(t, rec, http.StatusOK)
	if subs := decode[[]model.PushSubscription](t, rec); len(subs) != 1 {
		t.Errorf("alice subs = %d, want 1", len(subs))
	}
	rec = a.do(t, "GET", "/api/push/subscriptions", bob, nil)
	assertStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("bob subs body = %q, want empty array", body)
	}

	path := fmt.Sprintf("/api/push/subscriptions/%d", sub.ID)
	assertStatus(t, a.do(t, "DELETE", path, bob, nil), http.StatusNotFound)
	assertStatus(t, a.do(t, "DELETE", path, alice, nil), http.StatusNoContent)
	assertStatus(t, a.do(t, "DELETE", path, alice, nil), http.StatusNotFound)
}

func TestPushSubscribeValidation(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing keys", map[string]string{"endpoint": "https://push.example.com/a"}},
		{"not a url", map[string]string{"endpoint": "push-me", "p256dh": "k", "auth": "a"}},
		{"bad scheme", map[string]string{"endpoint": "ftp://push.example.com/a", "p256dh": "k", "auth": "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertStatus(t, a.do(t, "POST", "/api/push/subscriptions", alice, tt.body), http.StatusBadRequest)
		})
	}
}

type joinCall struct{ householdID, userID int64 }

type recordingNotifier struct {
	calls chan joinCall
}

func (n *recordingNotifier) JoinRequested(_ context.Context, householdID, userID int64) {
	n.calls <- joinCall{householdID, userID}
}

func TestJoinRequestNotifiesAdmin(t *testing.T) {
	a := newTestApp(t)
	notifier := &recordingNotifier{calls: make(chan joinCall, 2)}
	a.household.SetNotifier(notifier)

	alice, bob, carol := a.user(t, "alice"), a.user(t, "bob"), a.user(t, "carol")
	h := a.householdFor(t, alice)

	assertStatus(t, a.do(t, "POST", "/api/households/join", bob, map[string]string{"join_code": h.JoinCode}), http.StatusAccepted)
	assertStatus(t, a.do(t, "POST", fmt.Sprintf("/api/households/%d/join", h.ID), carol, nil), http.StatusAccepted)

	got := map[int64]bool{}
	for range 2 {
		select {
		case c := <-notifier.calls:
			if c.householdID != h.ID {
				t.Errorf("household = %d, want %d", c.householdID, h.ID)
			}
			got[c.userID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for join notification")
		}
	}
	if !got[bob] || !got[carol] {
		t.Errorf("notified users = %v, want bob and carol", got)
	}

	// A rejected request sends nothing.
	assertStatus(t, a.do(t, "POST", fmt.Sprintf("/api/households/%d/join", h.ID), bob, nil), http.StatusConflict)
	select {
	case c := <-notifier.calls:
		t.Errorf("unexpected notification %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}
