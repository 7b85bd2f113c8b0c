package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// -----------------------------
// Communities & membership
// -----------------------------

// isApprovedMember reports whether the profile is an approved member of
// the community.
func isApprovedMember(communityID, profileID uint) bool {
	var m CommunityMember
	err := DB.Where("community_id = ? AND profile_id = ? AND status = ?",
		communityID, profileID, MemberApproved).First(&m).Error
	return err == nil
}

// isCommunityAdmin reports whether the profile administers the
// community (admin flag or organizer role).
func isCommunityAdmin(communityID, profileID uint) bool {
	var m CommunityMember
	err := DB.Where("community_id = ? AND profile_id = ? AND status = ?",
		communityID, profileID, MemberApproved).First(&m).Error
	if err != nil {
		return false
	}
	return m.IsAdmin || m.Role == RoleOrganizer
}

type CreateCommunityRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	CoverImage  string `json:"cover_image"`
	Country     string `json:"country"`
	City        string `json:"city"`
}

// POST /api/communities -- creator becomes organizer/admin in the same
// transaction
func CreateCommunity(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body CreateCommunityRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	community := Community{
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		CoverImage:  body.CoverImage,
		Country:     body.Country,
		City:        body.City,
		CreatedBy:   profileID,
	}

	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&community).Error; err != nil {
			return err
		}
		founder := CommunityMember{
			CommunityID: community.ID,
			ProfileID:   profileID,
			Role:        RoleOrganizer,
			Status:      MemberApproved,
			IsAdmin:     true,
		}
		return tx.Create(&founder).Error
	}); err != nil {
		jsonError(c, http.StatusInternalServerError, "could not create community: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, community)
}

// GET /api/communities -- all communities with member counts
func GetCommunities(c *gin.Context) {
	var communities []Community
	if err := DB.Order("created_at desc").Find(&communities).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	for i := range communities {
		if err := DB.Model(&CommunityMember{}).
			Where("community_id = ? AND status = ?", communities[i].ID, MemberApproved).
			Count(&communities[i].MembersCount).Error; err != nil {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, communities)
}

// GET /api/communities/:id
func GetCommunity(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var community Community
	if err := DB.First(&community, communityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "community not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	if err := DB.Model(&CommunityMember{}).
		Where("community_id = ? AND status = ?", community.ID, MemberApproved).
		Count(&community.MembersCount).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, community)
}

// POST /api/communities/:id/join -- self-join as approved member
func JoinCommunity(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var community Community
	if err := DB.First(&community, communityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "community not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	member := CommunityMember{
		CommunityID: communityID,
		ProfileID:   profileID,
		Role:        RoleMember,
		Status:      MemberApproved,
	}
	if err := DB.Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			jsonError(c, http.StatusConflict, "already a member of this community")
			return
		}
		jsonError(c, http.StatusInternalServerError, "could not join community: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, member)
}

// DELETE /api/communities/:id/leave
func LeaveCommunity(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	res := DB.Where("community_id = ? AND profile_id = ?", communityID, profileID).
		Delete(&CommunityMember{})
	if res.Error != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+res.Error.Error())
		return
	}
	if res.RowsAffected == 0 {
		jsonError(c, http.StatusNotFound, "not a member of this community")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "left community"})
}

// GET /api/communities/:id/members
func GetCommunityMembers(c *gin.Context) {
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var members []CommunityMember
	if err := DB.Preload("Profile").
		Where("community_id = ?", communityID).
		Order("joined_at asc").Find(&members).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	for i := range members {
		members[i].Profile.Password = ""
	}

	c.JSON(http.StatusOK, members)
}

type UpdateMemberRequest struct {
	Status  *string `json:"status"` // pending / approved / rejected / banned
	IsAdmin *bool   `json:"is_admin"`
}

// PUT /api/communities/:id/members/:profileID -- admin approval workflow
func UpdateCommunityMember(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "profileID")
	if !ok {
		return
	}

	if !isCommunityAdmin(communityID, profileID) {
		jsonError(c, http.StatusForbidden, "only community admins can manage members")
		return
	}

	var body UpdateMemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.Status == nil && body.IsAdmin == nil {
		jsonError(c, http.StatusBadRequest, "nothing to update")
		return
	}

	var member CommunityMember
	if err := DB.Where("community_id = ? AND profile_id = ?", communityID, targetID).
		First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			jsonError(c, http.StatusNotFound, "member not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	if body.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*body.Status))
		switch status {
		case MemberPending, MemberApproved, MemberRejected, MemberBanned:
			member.Status = status
		default:
			jsonError(c, http.StatusBadRequest, "status must be one of: pending, approved, rejected, banned")
			return
		}
	}
	if body.IsAdmin != nil {
		member.IsAdmin = *body.IsAdmin
	}

	if err := DB.Save(&member).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not update member: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, member)
}

// DELETE /api/communities/:id/members/:profileID -- admin removes a member
func RemoveCommunityMember(c *gin.Context) {
	profileID, ok := getProfileIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	communityID, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "profileID")
	if !ok {
		return
	}

	if !isCommunityAdmin(communityID, profileID) {
		jsonError(c, http.StatusForbidden, "only community admins can remove members")
		return
	}
	if targetID == profileID {
		jsonError(c, http.StatusBadRequest, "use leave to remove yourself")
		return
	}

	res := DB.Where("community_id = ? AND profile_id = ?", communityID, targetID).
		Delete(&CommunityMember{})
	if res.Error != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+res.Error.Error())
		return
	}
	if res.RowsAffected == 0 {
		jsonError(c, http.StatusNotFound, "member not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}
