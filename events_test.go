package main

import (
	"net/http"
	"testing"
	"time"
)

func TestEventLifecycleOverHTTP(t *testing.T) {
	r := setupTestRouter(t)
	db := DB

	organizer := createTestProfile(t, db, "organizer")
	member := createTestProfile(t, db, "member")
	outsider := createTestProfile(t, db, "outsider")
	community := createTestCommunity(t, db, organizer, "Trail Runners")
	if err := db.Create(&CommunityMember{
		CommunityID: community.ID,
		ProfileID:   member.ID,
		Role:        RoleMember,
		Status:      MemberApproved,
	}).Error; err != nil {
		t.Fatalf("Failed to add member: %v", err)
	}

	organizerToken := tokenFor(t, organizer)
	memberToken := tokenFor(t, member)
	outsiderToken := tokenFor(t, outsider)

	base := "/api/communities/" + uintToString(community.ID)
	start := time.Now().Add(48 * time.Hour).Format(time.RFC3339)

	t.Run("outsider cannot create events", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, base+"/events", outsiderToken, map[string]interface{}{
			"title":      "Secret Run",
			"type":       "offline",
			"start_time": start,
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("status got = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("invalid type rejected", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, base+"/events", organizerToken, map[string]interface{}{
			"title":      "Run",
			"type":       "telepathic",
			"start_time": start,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status got = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	var ev Event
	t.Run("member creates a capacity-limited event", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, base+"/events", organizerToken, map[string]interface{}{
			"title":         "Saturday Long Run",
			"type":          "offline",
			"start_time":    start,
			"max_attendees": 2,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create event status got = %d: %s", w.Code, w.Body.String())
		}
		decodeBody(t, w, &ev)

		// The creator holds the first seat.
		got := confirmedProfileIDs(t, db, ev.ID)
		if len(got) != 1 || got[0] != organizer.ID {
			t.Errorf("confirmed got = %v, want [%d]", got, organizer.ID)
		}
	})

	eventPath := "/api/events/" + uintToString(ev.ID)

	t.Run("seat figures reflect RSVPs", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, eventPath+"/attendance", memberToken, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("rsvp status got = %d: %s", w.Code, w.Body.String())
		}

		w = doJSON(t, r, http.MethodGet, eventPath, memberToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get event status got = %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			ConfirmedCount int64  `json:"confirmed_count"`
			WaitlistCount  int64  `json:"waitlist_count"`
			SeatsLeft      *int64 `json:"seats_left"`
		}
		decodeBody(t, w, &resp)
		if resp.ConfirmedCount != 2 {
			t.Errorf("confirmed_count got = %d, want 2", resp.ConfirmedCount)
		}
		if resp.SeatsLeft == nil || *resp.SeatsLeft != 0 {
			t.Errorf("seats_left got = %v, want 0", resp.SeatsLeft)
		}
	})

	t.Run("third RSVP waitlists over HTTP", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, eventPath+"/attendance", outsiderToken, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("rsvp status got = %d: %s", w.Code, w.Body.String())
		}
		var att Attendance
		decodeBody(t, w, &att)
		if att.Status != StatusWaitlist {
			t.Errorf("status got = %v, want %v", att.Status, StatusWaitlist)
		}

		w = doJSON(t, r, http.MethodPost, eventPath+"/attendance", outsiderToken, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("repeat rsvp status got = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("cancellation promotes over HTTP", func(t *testing.T) {
		w := doJSON(t, r, http.MethodDelete, eventPath+"/attendance", memberToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("cancel status got = %d: %s", w.Code, w.Body.String())
		}

		w = doJSON(t, r, http.MethodGet, eventPath+"/attendance", memberToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list status got = %d: %s", w.Code, w.Body.String())
		}
		var list AttendanceList
		decodeBody(t, w, &list)
		if len(list.Confirmed) != 2 || len(list.Waitlist) != 0 {
			t.Errorf("lists got = %d confirmed / %d waitlisted, want 2 / 0",
				len(list.Confirmed), len(list.Waitlist))
		}
	})

	t.Run("only the creator deletes the event", func(t *testing.T) {
		w := doJSON(t, r, http.MethodDelete, eventPath, memberToken, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("status got = %d, want %d", w.Code, http.StatusForbidden)
		}

		w = doJSON(t, r, http.MethodDelete, eventPath, organizerToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delete status got = %d: %s", w.Code, w.Body.String())
		}

		var rows int64
		if err := db.Model(&Attendance{}).Where("event_id = ?", ev.ID).Count(&rows).Error; err != nil {
			t.Fatalf("attendance count error = %v", err)
		}
		if rows != 0 {
			t.Errorf("attendance rows after delete got = %d, want 0", rows)
		}
	})
}
