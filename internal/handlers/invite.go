package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tandem-dev/tandem/db"
	"github.com/tandem-dev/tandem/internal/models"
	"github.com/tandem-dev/tandem/internal/utils"
	"github.com/tandem-dev/tandem/internal/versioning"
	"gorm.io/gorm"
)

type RespondInviteRequest struct {
	InviteType string `json:"invite_type" binding:"required,oneof=group event"`
	InviteID   uint   `json:"invite_id" binding:"required"`
	Status     string `json:"status" binding:"required,oneof=Accepted Declined"`
}

type GroupInvite struct {
	ID          uint   `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type EventInvite struct {
	ID          uint      `json:"id"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Creator     string    `json:"creator"`
	Group       string    `json:"group"`
}

func PendingInvitesCount(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var groupInvites, eventInvites int64

	err = db.DB.Model(&models.Member{}).
		Where("user_id = ? AND status = ?", userID, models.StatusPending).
		Count(&groupInvites).Error

	if err != nil {
		log.Printf("Failed to count group invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	err = db.DB.Model(&models.Participate{}).
		Where("user_id = ? AND status = ?", userID, models.StatusPending).
		Count(&eventInvites).Error

	if err != nil {
		log.Printf("Failed to count event invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"group_invites": groupInvites,
		"event_invites": eventInvites,
		"total":         groupInvites + eventInvites,
	})
}

func ListInvites(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var groupRows []struct {
		ID          uint
		Name        string
		Description string
	}

	err = db.DB.Model(&models.Member{}).
		Select("members.id, groups.name, groups.description").
		Joins("JOIN groups ON groups.id = members.group_id").
		Where("members.user_id = ? AND members.status = ?", userID, models.StatusPending).
		Order("members.invited_at DESC").
		Scan(&groupRows).Error

	if err != nil {
		log.Printf("Failed to fetch group invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	groupInvites := make([]GroupInvite, 0, len(groupRows))

	for _, row := range groupRows {
		groupInvites = append(groupInvites, GroupInvite{
			ID:          row.ID,
			Type:        "group",
			Name:        row.Name,
			Description: row.Description,
		})
	}

	var eventRows []struct {
		ID          uint
		Title       string
		Description string
		StartTime   time.Time
		EndTime     time.Time
		Creator     string
		GroupName   string
	}

	err = db.DB.Model(&models.Participate{}).
		Select("participates.id, events.title, events.description, events.start_time, events.end_time, users.name AS creator, groups.name AS group_name").
		Joins("JOIN events ON events.id = participates.event_id").
		Joins("JOIN users ON users.id = events.creator_id").
		Joins("JOIN groups ON groups.id = events.group_id").
		Where("participates.user_id = ? AND participates.status = ?", userID, models.StatusPending).
		Order("participates.invited_at DESC").
		Scan(&eventRows).Error

	if err != nil {
		log.Printf("Failed to fetch event invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	eventInvites := make([]EventInvite, 0, len(eventRows))

	for _, row := range eventRows {
		eventInvites = append(eventInvites, EventInvite{
			ID:          row.ID,
			Type:        "event",
			Name:        row.Title,
			Description: row.Description,
			StartTime:   row.StartTime,
			EndTime:     row.EndTime,
			Creator:     row.Creator,
			Group:       row.GroupName,
		})
	}

	ctx.JSON(http.StatusOK, gin.H{
		"group_invites": groupInvites,
		"event_invites": eventInvites,
	})
}

func RespondInvite(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body RespondInviteRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	var groupID uint

	if body.InviteType == "group" {
		var invite models.Member

		err = db.DB.Where("id = ? AND user_id = ?", body.InviteID, userID).First(&invite).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Invite not found"})
			return
		}

		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if body.Status == models.StatusDeclined {
			// Declining a group invite removes the relationship entirely.
			err = db.DB.Delete(&invite).Error
		} else {
			err = db.DB.Model(&invite).Updates(map[string]interface{}{
				"status":      models.StatusAccepted,
				"read_status": models.ReadStatusRead,
			}).Error
		}

		if err != nil {
			log.Printf("Failed to respond to group invite %d: %v", body.InviteID, err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to process invite"})
			return
		}

		// The member list shown in the group view just changed.
		BroadcastGroupRefresh(strconv.FormatUint(uint64(invite.GroupID), 10))

		ctx.JSON(http.StatusOK, gin.H{"group_id": invite.GroupID})
		return
	}

	var invite models.Participate

	err = db.DB.Preload("Event").Where("id = ? AND user_id = ?", body.InviteID, userID).First(&invite).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Invite not found"})
		return
	}

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	groupID = invite.Event.GroupID

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&invite).Updates(map[string]interface{}{
			"status":      body.Status,
			"read_status": models.ReadStatusRead,
		}).Error

		if err != nil {
			return err
		}

		// The response changes the participant list other viewers see; one
		// structural trigger, one increment.
		return versioning.BumpEvent(tx, invite.EventID)
	})

	if err != nil {
		log.Printf("Failed to respond to event invite %d: %v", body.InviteID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to process invite"})
		return
	}

	BroadcastGroupRefresh(strconv.FormatUint(uint64(groupID), 10))

	ctx.JSON(http.StatusOK, gin.H{"group_id": groupID})
}
