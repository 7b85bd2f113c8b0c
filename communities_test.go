package main

import (
	"net/http"
	"testing"
)

func TestCommunityMembershipWorkflow(t *testing.T) {
	r := setupTestRouter(t)
	db := DB

	founder := createTestProfile(t, db, "founder")
	joiner := createTestProfile(t, db, "joiner")
	founderToken := tokenFor(t, founder)
	joinerToken := tokenFor(t, joiner)

	var community Community
	w := doJSON(t, r, http.MethodPost, "/api/communities", founderToken, map[string]string{
		"name": "Garden Swap",
		"city": "Cork",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create community status got = %d: %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &community)

	base := "/api/communities/" + uintToString(community.ID)

	t.Run("founder is an approved admin", func(t *testing.T) {
		if !isCommunityAdmin(community.ID, founder.ID) {
			t.Error("founder should administer the community")
		}
	})

	t.Run("join and duplicate join", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, base+"/join", joinerToken, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("join status got = %d: %s", w.Code, w.Body.String())
		}
		w = doJSON(t, r, http.MethodPost, base+"/join", joinerToken, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("duplicate join status got = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("non-admin cannot manage members", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPut, base+"/members/"+uintToString(founder.ID), joinerToken,
			map[string]string{"status": MemberBanned})
		if w.Code != http.StatusForbidden {
			t.Errorf("status got = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("admin bans a member", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPut, base+"/members/"+uintToString(joiner.ID), founderToken,
			map[string]string{"status": MemberBanned})
		if w.Code != http.StatusOK {
			t.Fatalf("ban status got = %d: %s", w.Code, w.Body.String())
		}
		var member CommunityMember
		decodeBody(t, w, &member)
		if member.Status != MemberBanned {
			t.Errorf("member status got = %s, want %s", member.Status, MemberBanned)
		}
		if isApprovedMember(community.ID, joiner.ID) {
			t.Error("banned member still counts as approved")
		}
	})

	t.Run("admin removes a member", func(t *testing.T) {
		w := doJSON(t, r, http.MethodDelete, base+"/members/"+uintToString(joiner.ID), founderToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("remove status got = %d: %s", w.Code, w.Body.String())
		}
		var members []CommunityMember
		if err := db.Where("community_id = ?", community.ID).Find(&members).Error; err != nil {
			t.Fatalf("member query error = %v", err)
		}
		if len(members) != 1 {
			t.Errorf("member count got = %d, want 1 (founder only)", len(members))
		}
	})

	t.Run("leave without membership", func(t *testing.T) {
		w := doJSON(t, r, http.MethodDelete, base+"/leave", joinerToken, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status got = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
