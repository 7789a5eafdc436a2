package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/viollenaki/nurtilek/internal/models"
)

func newGroupEnv(t *testing.T) (*chatEnv, *GroupHandler) {
	t.Helper()
	e := newChatEnv(t)
	return e, &GroupHandler{Store: e.store}
}

func TestCreateGroupHandler(t *testing.T) {
	e, h := newGroupEnv(t)
	alice := registerUser(t, e.store, "alice")
	bob := registerUser(t, e.store, "bob")

	req := jsonRequest(t, "POST", "/api/groups", map[string]any{
		"name":        "Team",
		"description": "our team",
		"member_ids":  []int{bob},
	})
	rr := e.as(alice, h.Create, req, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	groupID := int(resp["group_id"].(float64))

	detail, err := e.store.GetGroupInfo(groupID, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Members) != 2 {
		t.Errorf("expected 2 members, got %d", len(detail.Members))
	}

	// A group needs a name.
	req = jsonRequest(t, "POST", "/api/groups", map[string]any{"name": ""})
	rr = e.as(alice, h.Create, req, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code for empty name: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestGetGroup(t *testing.T) {
	e, h := newGroupEnv(t)
	alice := registerUser(t, e.store, "alice")
	bob := registerUser(t, e.store, "bob")
	carol := registerUser(t, e.store, "carol")

	_, groupID, err := e.store.CreateGroup(alice, "Team", "", []int{bob}, nil)
	if err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"id": strconv.Itoa(groupID)}
	url := "/api/groups/" + strconv.Itoa(groupID)

	req := httptest.NewRequest("GET", url, nil)
	rr := e.as(bob, h.Get, req, vars)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	group := decodeBody(t, rr)["group"].(map[string]any)
	if group["name"] != "Team" || group["is_creator"] != false {
		t.Errorf("unexpected group payload for bob: %v", group)
	}

	// Non-members are locked out.
	req = httptest.NewRequest("GET", url, nil)
	rr = e.as(carol, h.Get, req, vars)
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for outsider: got %v want %v", rr.Code, http.StatusForbidden)
	}
}

func TestToggleAdmin(t *testing.T) {
	e, h := newGroupEnv(t)
	alice := registerUser(t, e.store, "alice")
	bob := registerUser(t, e.store, "bob")
	carol := registerUser(t, e.store, "carol")

	_, groupID, err := e.store.CreateGroup(alice, "Team", "", []int{bob, carol}, nil)
	if err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"id": strconv.Itoa(groupID)}
	url := "/api/groups/" + strconv.Itoa(groupID) + "/admins"

	// Only the creator manages admins.
	req := jsonRequest(t, "POST", url, map[string]any{"user_id": carol, "make_admin": true})
	rr := e.as(bob, h.ToggleAdmin, req, vars)
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for non-creator: got %v want %v", rr.Code, http.StatusForbidden)
	}

	// Never on yourself.
	req = jsonRequest(t, "POST", url, map[string]any{"user_id": alice, "make_admin": true})
	rr = e.as(alice, h.ToggleAdmin, req, vars)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code for self-target: got %v want %v", rr.Code, http.StatusBadRequest)
	}

	// Grant, verify, revoke.
	req = jsonRequest(t, "POST", url, map[string]any{"user_id": bob, "make_admin": true})
	rr = e.as(alice, h.ToggleAdmin, req, vars)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if level, _ := e.store.GroupAdminLevel(groupID, bob); level != models.AdminLevelAdmin {
		t.Errorf("expected bob to be an admin, got level %d", level)
	}

	req = jsonRequest(t, "POST", url, map[string]any{"user_id": bob, "make_admin": false})
	rr = e.as(alice, h.ToggleAdmin, req, vars)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if level, _ := e.store.GroupAdminLevel(groupID, bob); level != models.AdminLevelNone {
		t.Errorf("expected bob's admin rights revoked, got level %d", level)
	}

	// Targets must be active members.
	dave := registerUser(t, e.store, "dave")
	req = jsonRequest(t, "POST", url, map[string]any{"user_id": dave, "make_admin": true})
	rr = e.as(alice, h.ToggleAdmin, req, vars)
	if rr.Code != http.StatusNotFound {
		t.Errorf("handler returned wrong status code for non-member: got %v want %v", rr.Code, http.StatusNotFound)
	}
}

func TestRemoveMemberRules(t *testing.T) {
	e, h := newGroupEnv(t)
	alice := registerUser(t, e.store, "alice")
	bob := registerUser(t, e.store, "bob")
	carol := registerUser(t, e.store, "carol")

	_, groupID, err := e.store.CreateGroup(alice, "Team", "", []int{bob, carol}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.store.SetGroupAdmin(groupID, alice, bob, true); err != nil {
		t.Fatal(err)
	}

	url := "/api/groups/" + strconv.Itoa(groupID) + "/members/"
	removeVars := func(target int) map[string]string {
		return map[string]string{"id": strconv.Itoa(groupID), "userId": strconv.Itoa(target)}
	}

	// The creator cannot be removed, not even by an admin.
	req := httptest.NewRequest("DELETE", url+strconv.Itoa(alice), nil)
	rr := e.as(bob, h.RemoveMember, req, removeVars(alice))
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusForbidden)
	}

	// Plain members cannot remove anyone.
	req = httptest.NewRequest("DELETE", url+strconv.Itoa(bob), nil)
	rr = e.as(carol, h.RemoveMember, req, removeVars(bob))
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusForbidden)
	}

	// An admin may remove a plain member.
	req = httptest.NewRequest("DELETE", url+strconv.Itoa(carol), nil)
	rr = e.as(bob, h.RemoveMember, req, removeVars(carol))
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	// Removing an admin is reserved for the creator.
	if _, err := e.store.AddGroupMembers(groupID, alice, []int{carol}); err != nil {
		t.Fatal(err)
	}
	if err := e.store.SetGroupAdmin(groupID, alice, carol, true); err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest("DELETE", url+strconv.Itoa(carol), nil)
	rr = e.as(bob, h.RemoveMember, req, removeVars(carol))
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for admin-on-admin: got %v want %v", rr.Code, http.StatusForbidden)
	}
	req = httptest.NewRequest("DELETE", url+strconv.Itoa(carol), nil)
	rr = e.as(alice, h.RemoveMember, req, removeVars(carol))
	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code for creator-on-admin: got %v want %v", rr.Code, http.StatusOK)
	}
}

func TestLeaveGroupHandler(t *testing.T) {
	e, h := newGroupEnv(t)
	alice := registerUser(t, e.store, "alice")
	bob := registerUser(t, e.store, "bob")

	chatID, groupID, err := e.store.CreateGroup(alice, "Team", "", []int{bob}, nil)
	if err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"id": strconv.Itoa(groupID)}
	url := "/api/groups/" + strconv.Itoa(groupID) + "/leave"

	// The creator cannot walk away from their own group.
	req := httptest.NewRequest("POST", url, nil)
	rr := e.as(alice, h.Leave, req, vars)
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for creator: got %v want %v", rr.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest("POST", url, nil)
	rr = e.as(bob, h.Leave, req, vars)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if ok, _ := e.store.HasChatAccess(chatID, bob); ok {
		t.Error("expected bob to lose chat access after leaving")
	}
}

func TestDeleteGroupHandler(t *testing.T) {
	e, h := newGroupEnv(t)
	alice := registerUser(t, e.store, "alice")
	bob := registerUser(t, e.store, "bob")

	chatID, groupID, err := e.store.CreateGroup(alice, "Team", "", []int{bob}, nil)
	if err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"id": strconv.Itoa(groupID)}
	url := "/api/groups/" + strconv.Itoa(groupID)

	// Members cannot delete the group.
	req := httptest.NewRequest("DELETE", url, nil)
	rr := e.as(bob, h.Delete, req, vars)
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for member: got %v want %v", rr.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest("DELETE", url, nil)
	rr = e.as(alice, h.Delete, req, vars)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	// The chat is closed for everyone afterwards.
	chat := &ChatHandler{Store: e.store, PageSize: 50}
	msgVars := map[string]string{"id": strconv.Itoa(chatID)}
	req = httptest.NewRequest("GET", "/api/chats/"+strconv.Itoa(chatID)+"/messages", nil)
	rr = e.as(bob, chat.GetMessages, req, msgVars)
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code after deletion: got %v want %v", rr.Code, http.StatusForbidden)
	}
}

func TestAddMembersHandler(t *testing.T) {
	e, h := newGroupEnv(t)
	alice := registerUser(t, e.store, "alice")
	bob := registerUser(t, e.store, "bob")
	carol := registerUser(t, e.store, "carol")

	_, groupID, err := e.store.CreateGroup(alice, "Team", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{"id": strconv.Itoa(groupID)}
	url := "/api/groups/" + strconv.Itoa(groupID) + "/members"

	// Inviting is an admin action.
	req := jsonRequest(t, "POST", url, map[string]any{"user_ids": []int{carol}})
	rr := e.as(bob, h.AddMembers, req, vars)
	if rr.Code != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for non-admin: got %v want %v", rr.Code, http.StatusForbidden)
	}

	req = jsonRequest(t, "POST", url, map[string]any{"user_ids": []int{bob, carol}})
	rr = e.as(alice, h.AddMembers, req, vars)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	added := decodeBody(t, rr)["added"].([]any)
	if len(added) != 2 {
		t.Errorf("expected 2 added members, got %v", added)
	}
}
