package handlers

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tandem-dev/tandem/db"
	"github.com/tandem-dev/tandem/internal/models"
	"github.com/tandem-dev/tandem/internal/utils"
	"gorm.io/gorm"
)

type Notification struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	PassedTime string `json:"passed_time"`
	Type       string `json:"type"`

	invitedAt time.Time
}

type MarkReadRequest struct {
	Type string `json:"type" binding:"required,oneof=group event"`
	ID   uint   `json:"id" binding:"required"`
}

func UnreadNotificationsCount(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var unreadGroups, unreadEvents int64

	err = db.DB.Model(&models.Member{}).
		Where("user_id = ? AND read_status = ?", userID, models.ReadStatusUnread).
		Count(&unreadGroups).Error

	if err != nil {
		log.Printf("Failed to count unread group invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	err = db.DB.Model(&models.Participate{}).
		Where("user_id = ? AND read_status = ?", userID, models.ReadStatusUnread).
		Count(&unreadEvents).Error

	if err != nil {
		log.Printf("Failed to count unread event invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"unread_count": unreadGroups + unreadEvents})
}

func ListNotifications(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var groupRows []struct {
		GroupID   uint
		Name      string
		InvitedAt time.Time
	}

	err = db.DB.Model(&models.Member{}).
		Select("members.group_id, groups.name, members.invited_at").
		Joins("JOIN groups ON groups.id = members.group_id").
		Where("members.user_id = ? AND members.read_status = ?", userID, models.ReadStatusUnread).
		Scan(&groupRows).Error

	if err != nil {
		log.Printf("Failed to fetch unread group invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var eventRows []struct {
		EventID   uint
		Title     string
		InvitedAt time.Time
	}

	err = db.DB.Model(&models.Participate{}).
		Select("participates.event_id, events.title, participates.invited_at").
		Joins("JOIN events ON events.id = participates.event_id").
		Where("participates.user_id = ? AND participates.read_status = ?", userID, models.ReadStatusUnread).
		Scan(&eventRows).Error

	if err != nil {
		log.Printf("Failed to fetch unread event invites: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	notifications := make([]Notification, 0, len(groupRows)+len(eventRows))

	for _, row := range groupRows {
		notifications = append(notifications, Notification{
			ID:         row.GroupID,
			Name:       row.Name,
			PassedTime: utils.HumanReadableDelta(row.InvitedAt),
			Type:       "group",
			invitedAt:  row.InvitedAt,
		})
	}

	for _, row := range eventRows {
		notifications = append(notifications, Notification{
			ID:         row.EventID,
			Name:       row.Title,
			PassedTime: utils.HumanReadableDelta(row.InvitedAt),
			Type:       "event",
			invitedAt:  row.InvitedAt,
		})
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].invitedAt.After(notifications[j].invitedAt)
	})

	ctx.JSON(http.StatusOK, notifications)
}

// MarkNotificationRead flips the per-user read flag. Read status is private
// state: it never propagates change markers.
func MarkNotificationRead(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body MarkReadRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var result *gorm.DB

	if body.Type == "group" {
		result = db.DB.Model(&models.Member{}).
			Where("group_id = ? AND user_id = ?", body.ID, userID).
			Update("read_status", models.ReadStatusRead)
	} else {
		result = db.DB.Model(&models.Participate{}).
			Where("event_id = ? AND user_id = ?", body.ID, userID).
			Update("read_status", models.ReadStatusRead)
	}

	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		log.Printf("Failed to mark notification read: %v", result.Error)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to edit read status"})
		return
	}

	if result.RowsAffected == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}
