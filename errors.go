package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Attendance manager error taxonomy. Handlers translate these to HTTP
// statuses in one place so the service functions stay transport-free.
var (
	ErrEventNotFound     = errors.New("event not found")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrNotRegistered     = errors.New("no attendance found for this event")
	ErrEventFull         = errors.New("event is at capacity")
	ErrCapacityRaceLost  = errors.New("lost capacity race, retry to join the waitlist")
	ErrPromotionFailed   = errors.New("waitlist promotion failed, attendance state unchanged")
	ErrInvalidStatus     = errors.New("status must be one of: confirmed, waitlist")
)

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// attendanceError maps a service error onto an HTTP response.
func attendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound):
		jsonError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyRegistered):
		jsonError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotRegistered):
		jsonError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEventFull):
		jsonError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrCapacityRaceLost):
		jsonError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrPromotionFailed):
		jsonError(c, http.StatusInternalServerError, err.Error())
	case errors.Is(err, ErrInvalidStatus):
		jsonError(c, http.StatusBadRequest, err.Error())
	default:
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
	}
}

// pathID parses a numeric path parameter. Writes the error response
// itself so handlers can bail with a bare return.
func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// getProfileIDFromContext expects AuthMiddleware to set "profile_id"
// (uint) in context. If not present -> unauthorized.
func getProfileIDFromContext(c *gin.Context) (uint, bool) {
	pid, exists := c.Get("profile_id")
	if !exists {
		return 0, false
	}
	switch v := pid.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		_ = v
		return 0, false
	}
}
