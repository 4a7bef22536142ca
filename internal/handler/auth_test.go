package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/middleware"
	"github.com/dukerupert/larder/internal/model"
)

func TestRegister(t *testing.T) {
	a := newTestApp(t)

	rec := a.do(t, "POST", "/register", 0, map[string]string{
		"username":  "  alice ",
		"password":  "correct horse",
		"full_name": "Alice Smith",
	})
	assertStatus(t, rec, http.StatusCreated)

	u := decode[model.User](t, rec)
	if u.Username != "alice" {
		t.Errorf("username = %q, want alice", u.Username)
	}
	if u.FullName != "Alice Smith" {
		t.Errorf("full_name = %q, want Alice Smith", u.FullName)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not expose the password hash")
	}

	stored, err := a.users.GetByUsername(context.Background(), "alice")
	if err != nil || stored == nil {
		t.Fatalf("GetByUsername: %v, %v", stored, err)
	}
	if ok, _ := auth.CheckPassword(stored.PasswordHash, "correct horse"); !ok {
		t.Error("stored hash does not match password")
	}
}

func TestRegisterValidation(t *testing.T) {
	a := newTestApp(t)
	a.user(t, "taken")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"short password", map[string]string{"username": "bob", "password": "short"}, http.StatusBadRequest},
		{"long password", map[string]string{"username": "bob", "password": strings.Repeat("x", 73)}, http.StatusBadRequest},
		{"blank username", map[string]string{"username": "   ", "password": "password123"}, http.StatusBadRequest},
		{"duplicate username", map[string]string{"username": "taken", "password": "password123"}, http.StatusConflict},
		{"not json", "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, "POST", "/register", 0, tt.body)
			assertStatus(t, rec, tt.want)
		})
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	a := newTestApp(t)
	a.user(t, "alice")

	rec := a.do(t, "POST", "/login", 0, map[string]string{"username": "alice", "password": "password123"})
	assertStatus(t, rec, http.StatusOK)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	sess, err := a.sessions.GetByToken(context.Background(), cookie.Value)
	if err != nil || sess == nil {
		t.Fatalf("session for cookie: %v, %v", sess, err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := newTestApp(t)
	a.user(t, "alice")

	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"wrong password", "alice", "wrong-password", http.StatusUnauthorized},
		{"unknown user", "mallory", "password123", http.StatusUnauthorized},
		{"missing password", "alice", "", http.StatusBadRequest},
		{"overlong password", "alice", "password123" + strings.Repeat("x", 70), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, "POST", "/login", 0, map[string]string{"username": tt.username, "password": tt.password})
			assertStatus(t, rec, tt.want)
			if len(rec.Result().Cookies()) != 0 {
				t.Error("no cookie expected on failed login")
			}
		})
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	uid := a.user(t, "alice")
	sess, err := a.sessions.Create(ctx, uid)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest("POST", "/logout", nil)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: uid, SessionID: sess.ID}))
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusOK)

	got, err := a.sessions.GetByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if got != nil {
		t.Error("session should be deleted after logout")
	}
}

func TestMeAndUpdateProfile(t *testing.T) {
	a := newTestApp(t)
	uid := a.user(t, "alice")

	rec := a.do(t, "PUT", "/api/me", uid, map[string]string{"email": " alice@example.com ", "mobile": "555"})
	assertStatus(t, rec, http.StatusOK)

	rec = a.do(t, "GET", "/api/me", uid, nil)
	assertStatus(t, rec, http.StatusOK)
	u := decode[model.User](t, rec)
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", u.Email)
	}
	if u.Mobile != "555" {
		t.Errorf("mobile = %q, want 555", u.Mobile)
	}
}

func TestChangePassword(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	uid := a.user(t, "alice")

	current, err := a.sessions.Create(ctx, uid)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	other, err := a.sessions.Create(ctx, uid)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	send := func(body map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("PUT", "/api/me/password", strings.NewReader(mustJSON(t, body)))
		req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: uid, SessionID: current.ID}))
		rec := httptest.NewRecorder()
		a.mux.ServeHTTP(rec, req)
		return rec
	}

	rec := send(map[string]string{"current_password": "nope-nope", "new_password": "new-password-1"})
	assertStatus(t, rec, http.StatusUnauthorized)

	rec = send(map[string]string{"current_password": "password123", "new_password": "short"})
	assertStatus(t, rec, http.StatusBadRequest)

	rec = send(map[string]string{"current_password": "password123", "new_password": strings.Repeat("x", 73)})
	assertStatus(t, rec, http.StatusBadRequest)

	rec = send(map[string]string{"current_password": "password123", "new_password": "new-password-1"})
	assertStatus(t, rec, http.StatusOK)

	u, _ := a.users.GetByID(ctx, uid)
	if ok, _ := auth.CheckPassword(u.PasswordHash, "new-password-1"); !ok {
		t.Error("new password should be stored")
	}
	if s, _ := a.sessions.GetByToken(ctx, other.Token); s != nil {
		t.Error("other sessions should be signed out")
	}
	if s, _ := a.sessions.GetByToken(ctx, current.Token); s == nil {
		t.Error("current session should survive a password change")
	}
}
