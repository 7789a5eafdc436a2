package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/viollenaki/nurtilek/internal/auth"
	"github.com/viollenaki/nurtilek/internal/session"
)

func newUserEnv(t *testing.T) (*chatEnv, *UserHandler) {
	t.Helper()
	e := &chatEnv{
		store:    newTestStore(t),
		sessions: session.NewManager(time.Hour),
		signer:   auth.NewSigner("test-secret"),
	}
	return e, &UserHandler{Store: e.store, Sessions: e.sessions, Cfg: testConfig()}
}

func TestUserInfo(t *testing.T) {
	e, h := newUserEnv(t)
	alice := registerUser(t, e.store, "alice")

	req := httptest.NewRequest("GET", "/api/user/info", nil)
	rr := e.as(alice, h.Info, req, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	user := decodeBody(t, rr)["user"].(map[string]any)
	if user["nickname"] != "alice" {
		t.Errorf("expected alice, got %v", user["nickname"])
	}
	if _, leaked := user["password"]; leaked {
		t.Error("password hash must never appear in responses")
	}
}

func TestUpdateProfile(t *testing.T) {
	e, h := newUserEnv(t)
	alice := registerUser(t, e.store, "alice")
	registerUser(t, e.store, "bob")

	// Rename.
	req := jsonRequest(t, "PUT", "/api/user/profile", map[string]string{"nickname": "alice2"})
	rr := e.as(alice, h.UpdateProfile, req, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	user, err := e.store.GetUserByID(alice)
	if err != nil {
		t.Fatal(err)
	}
	if user.Nickname != "alice2" {
		t.Errorf("expected renamed user, got %q", user.Nickname)
	}

	// Taken nickname.
	req = jsonRequest(t, "PUT", "/api/user/profile", map[string]string{"nickname": "bob"})
	rr = e.as(alice, h.UpdateProfile, req, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("handler returned wrong status code for taken nickname: got %v want %v", rr.Code, http.StatusConflict)
	}

	// A password change requires the current password.
	req = jsonRequest(t, "PUT", "/api/user/profile", map[string]string{
		"current_password": "wrong", "new_password": "newpassword",
	})
	rr = e.as(alice, h.UpdateProfile, req, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code for wrong current password: got %v want %v", rr.Code, http.StatusUnauthorized)
	}

	req = jsonRequest(t, "PUT", "/api/user/profile", map[string]string{
		"current_password": "password123", "new_password": "short",
	})
	rr = e.as(alice, h.UpdateProfile, req, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code for short new password: got %v want %v", rr.Code, http.StatusBadRequest)
	}

	req = jsonRequest(t, "PUT", "/api/user/profile", map[string]string{
		"current_password": "password123", "new_password": "newpassword",
	})
	rr = e.as(alice, h.UpdateProfile, req, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	user, _ = e.store.GetUserByID(alice)
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("newpassword")); err != nil {
		t.Error("expected the new password to be stored")
	}

	// Nothing to change.
	req = jsonRequest(t, "PUT", "/api/user/profile", map[string]string{})
	rr = e.as(alice, h.UpdateProfile, req, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code for empty update: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestSearchUsersHandler(t *testing.T) {
	e, h := newUserEnv(t)
	alice := registerUser(t, e.store, "alice")
	registerUser(t, e.store, "bob")
	registerUser(t, e.store, "bobby")

	// Too short.
	req := httptest.NewRequest("GET", "/api/users/search?q=b", nil)
	rr := e.as(alice, h.Search, req, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code for short query: got %v want %v", rr.Code, http.StatusBadRequest)
	}

	req = httptest.NewRequest("GET", "/api/users/search?q=bo", nil)
	rr = e.as(alice, h.Search, req, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	resp := decodeBody(t, rr)
	if got := resp["total"].(float64); got != 2 {
		t.Errorf("expected 2 matches, got %v", got)
	}
}

func TestUserPhoto(t *testing.T) {
	e, h := newUserEnv(t)
	alice := registerUser(t, e.store, "alice")

	// No photo stored: the placeholder is served.
	req := httptest.NewRequest("GET", "/api/user/photo", nil)
	rr := e.as(alice, h.OwnPhoto, req, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected placeholder png, got %q", ct)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected placeholder bytes")
	}
}
