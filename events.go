package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// -----------------------------
// Events
// -----------------------------

type CreateEventRequest struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	Type         string `json:"type" binding:"required"` // online / offline / hybrid
	MeetingLink  string `json:"meeting_link"`
	StartTime    string `json:"start_time" binding:"required"` // RFC3339 or YYYY-MM-DD
	EndTime      string `json:"end_time"`
	MaxAttendees *int   `json:"max_attendees"` // null or absent = unlimited
	IsPrivate    bool   `json:"is_private"`
}

// parseEventTime accepts RFC3339 or a bare date.
func parseEventTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
	}
	return t, err
}

// POST /api/communities/:id/events -- approved members only
func CreateEvent(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body CreateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	eventType := strings.ToLower(strings.TrimSpace(body.Type))
	if eventType != EventOnline && eventType != EventOffline && eventType != EventHybrid {
		jsonError(c, http.StatusBadRequest, "type must be one of: online, offline, hybrid")
		return
	}
	if body.MaxAttendees != nil && *body.MaxAttendees < 1 {
		jsonError(c, http.StatusBadRequest, "max_attendees must be at least 1")
		return
	}

	start, err := parseEventTime(body.StartTime)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid start_time format (use RFC3339 or YYYY-MM-DD)")
		return
	}
	var end *time.Time
	if body.EndTime != "" {
		t, err := parseEventTime(body.EndTime)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid end_time format (use RFC3339 or YYYY-MM-DD)")
			return
		}
		if t.Before(start) {
			jsonError(c, http.StatusBadRequest, "end_time must not be before start_time")
			return
		}
		end = &t
	}

	if !isApprovedMember(communityID, profileID) {
		jsonError(c, http.StatusForbidden, "only approved members can create events")
		return
	}

	ev := Event{
		CommunityID:  communityID,
		Title:        strings.TrimSpace(body.Title),
		Description:  body.Description,
		Location:     body.Location,
		Type:         eventType,
		MeetingLink:  body.MeetingLink,
		StartTime:    start,
		EndTime:      end,
		MaxAttendees: body.MaxAttendees,
		IsPrivate:    body.IsPrivate,
		CreatedBy:    profileID,
	}
	if err := DB.Create(&ev).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not create event: "+err.Error())
		return
	}

	// The organizer holds the first seat.
	if _, err := RequestAttendance(DB, ev.ID, profileID); err != nil {
		jsonError(c, http.StatusInternalServerError, "could not register organizer: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, ev)
}

// GET /api/communities/:id/events -- upcoming first
func GetCommunityEvents(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var events []Event
	if err := DB.Where("community_id = ?", communityID).
		Order("start_time asc").Find(&events).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

// GET /api/events/:id -- event plus live seat figures
func GetEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var ev Event
	if err := DB.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	confirmed, err := countConfirmed(DB, eventID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	var waitlisted int64
	if err := DB.Model(&Attendance{}).
		Where("event_id = ? AND status = ?", eventID, StatusWaitlist).
		Count(&waitlisted).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	resp := gin.H{
		"event":           ev,
		"confirmed_count": confirmed,
		"waitlist_count":  waitlisted,
	}
	if ev.MaxAttendees != nil {
		left := int64(*ev.MaxAttendees) - confirmed
		if left < 0 {
			left = 0
		}
		resp["seats_left"] = left
	}
	c.JSON(http.StatusOK, resp)
}

// DELETE /api/events/:id -- creator only, cascades attendance rows
func DeleteEvent(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var ev Event
	if err := DB.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "event not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	if ev.CreatedBy != profileID {
		jsonError(c, http.StatusForbidden, "only the event creator can delete the event")
		return
	}

	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", ev.ID).Delete(&Attendance{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Event{}, ev.ID).Error
	}); err != nil {
		jsonError(c, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}
