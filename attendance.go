package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// -----------------------------
// Event attendance manager
// -----------------------------
//
// All mutations run inside one transaction holding a row lock on the
// event, so the capacity check, the insert, and the delete+promote pair
// serialize per event. Operations on different events never contend.

// lockEventForUpdate loads the event inside tx holding a FOR UPDATE row
// lock. SQLite has no FOR UPDATE; its single-writer model already
// serializes writing transactions, so the clause is postgres-only.
func lockEventForUpdate(tx *gorm.DB, eventID uint) (*Event, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var ev Event
	if err := q.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// countConfirmed counts rows holding a seat for the event.
func countConfirmed(tx *gorm.DB, eventID uint) (int64, error) {
	var n int64
	err := tx.Model(&Attendance{}).
		Where("event_id = ? AND status = ?", eventID, StatusConfirmed).
		Count(&n).Error
	return n, err
}

// isSerializationFailure reports whether err is a store-level
// concurrency conflict (postgres 40001 serialization failure or 40P01
// deadlock). Under the row lock these should not occur, but stores
// running at serializable isolation can still raise them.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") || strings.Contains(msg, "40P01") ||
		strings.Contains(msg, "deadlock detected")
}

// RequestAttendance registers profileID for the event. The caller is
// confirmed when a seat is free (nil capacity always confirms) and
// waitlisted otherwise. A second request for the same event fails with
// ErrAlreadyRegistered, including the ambiguous-retry case where the
// first insert actually landed: the compound key rejects the duplicate
// without a client-side re-check.
func RequestAttendance(db *gorm.DB, eventID, profileID uint) (*Attendance, error) {
	var att Attendance

	err := db.Transaction(func(tx *gorm.DB) error {
		ev, err := lockEventForUpdate(tx, eventID)
		if err != nil {
			return err
		}

		var existing Attendance
		err = tx.Where("event_id = ? AND profile_id = ?", eventID, profileID).First(&existing).Error
		if err == nil {
			return ErrAlreadyRegistered
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		status := StatusConfirmed
		if ev.MaxAttendees != nil {
			confirmed, err := countConfirmed(tx, eventID)
			if err != nil {
				return err
			}
			if confirmed >= int64(*ev.MaxAttendees) {
				status = StatusWaitlist
			}
		}

		att = Attendance{EventID: eventID, ProfileID: profileID, Status: status}
		if err := tx.Create(&att).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRegistered
			}
			if isSerializationFailure(err) {
				return ErrCapacityRaceLost
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// CancelAttendance deletes the caller's row whatever its status. When
// the deleted row held a seat on a capacity-limited event, the oldest
// waitlisted row is promoted to confirmed in the same transaction, so
// readers never observe an empty seat alongside a waiting attendee. The
// promotion failing rolls the delete back and surfaces
// ErrPromotionFailed.
func CancelAttendance(db *gorm.DB, eventID, profileID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		ev, err := lockEventForUpdate(tx, eventID)
		if err != nil {
			return err
		}

		var att Attendance
		err = tx.Where("event_id = ? AND profile_id = ?", eventID, profileID).First(&att).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotRegistered
			}
			return err
		}

		if err := tx.Where("event_id = ? AND profile_id = ?", eventID, profileID).
			Delete(&Attendance{}).Error; err != nil {
			return err
		}

		// Unlimited events never hold waitlist rows, so promotion only
		// applies to finite-capacity events.
		if att.Status != StatusConfirmed || ev.MaxAttendees == nil {
			return nil
		}

		var next Attendance
		err = tx.Where("event_id = ? AND status = ?", eventID, StatusWaitlist).
			Order("created_at asc, profile_id asc").
			First(&next).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // nobody waiting
			}
			return fmt.Errorf("%w: %v", ErrPromotionFailed, err)
		}

		res := tx.Model(&Attendance{}).
			Where("event_id = ? AND profile_id = ? AND status = ?", eventID, next.ProfileID, StatusWaitlist).
			Update("status", StatusConfirmed)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ErrPromotionFailed, res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: promoted row vanished", ErrPromotionFailed)
		}
		return nil
	})
}

// ChangeAttendanceStatus moves the caller between confirmed and
// waitlist voluntarily. It never triggers promotion: demoting yourself
// frees a seat silently, and promoting yourself off the waitlist only
// succeeds when a seat is actually free.
func ChangeAttendanceStatus(db *gorm.DB, eventID, profileID uint, status AttendanceStatus) (*Attendance, error) {
	if status != StatusConfirmed && status != StatusWaitlist {
		return nil, ErrInvalidStatus
	}

	var att Attendance
	err := db.Transaction(func(tx *gorm.DB) error {
		ev, err := lockEventForUpdate(tx, eventID)
		if err != nil {
			return err
		}

		err = tx.Where("event_id = ? AND profile_id = ?", eventID, profileID).First(&att).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotRegistered
			}
			return err
		}
		if att.Status == status {
			return nil
		}

		if status == StatusConfirmed && ev.MaxAttendees != nil {
			confirmed, err := countConfirmed(tx, eventID)
			if err != nil {
				return err
			}
			if confirmed >= int64(*ev.MaxAttendees) {
				return ErrEventFull
			}
		}

		att.Status = status
		return tx.Save(&att).Error
	})
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// AttendanceList is the two ordered collections for one event.
type AttendanceList struct {
	Confirmed []Attendance `json:"confirmed"`
	Waitlist  []Attendance `json:"waitlist"`
}

// ListAttendance returns confirmed and waitlisted attendees, both in
// join order. Waitlist positions are 1-indexed and computed on read,
// never stored.
func ListAttendance(db *gorm.DB, eventID uint) (*AttendanceList, error) {
	var ev Event
	if err := db.First(&ev, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	list := AttendanceList{Confirmed: []Attendance{}, Waitlist: []Attendance{}}

	if err := db.Preload("Profile").
		Where("event_id = ? AND status = ?", eventID, StatusConfirmed).
		Order("created_at asc, profile_id asc").
		Find(&list.Confirmed).Error; err != nil {
		return nil, err
	}

	if err := db.Preload("Profile").
		Where("event_id = ? AND status = ?", eventID, StatusWaitlist).
		Order("created_at asc, profile_id asc").
		Find(&list.Waitlist).Error; err != nil {
		return nil, err
	}
	for i := range list.Confirmed {
		list.Confirmed[i].Profile.Password = ""
	}
	for i := range list.Waitlist {
		list.Waitlist[i].Profile.Password = ""
		list.Waitlist[i].Position = i + 1
	}

	return &list, nil
}

// -----------------------------
// HTTP handlers
// -----------------------------

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// POST /api/events/:id/attendance
func RequestEventAttendance(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	att, err := RequestAttendance(DB, eventID, profileID)
	if err != nil {
		attendanceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

// DELETE /api/events/:id/attendance
func CancelEventAttendance(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := CancelAttendance(DB, eventID, profileID); err != nil {
		attendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attendance cancelled"})
}

// PUT /api/events/:id/attendance
func ChangeEventAttendance(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body ChangeStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	status := AttendanceStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	att, err := ChangeAttendanceStatus(DB, eventID, profileID, status)
	if err != nil {
		attendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, att)
}

// GET /api/events/:id/attendance
func GetEventAttendance(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	list, err := ListAttendance(DB, eventID)
	if err != nil {
		attendanceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
