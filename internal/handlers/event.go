package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tandem-dev/tandem/db"
	"github.com/tandem-dev/tandem/internal/delta"
	"github.com/tandem-dev/tandem/internal/membership"
	"github.com/tandem-dev/tandem/internal/models"
	"github.com/tandem-dev/tandem/internal/utils"
	"github.com/tandem-dev/tandem/internal/versioning"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateEventRequest struct {
	Title        string         `json:"title" binding:"required"`
	Description  string         `json:"description"`
	StartTime    time.Time      `json:"start_time" binding:"required"`
	EndTime      time.Time      `json:"end_time" binding:"required"`
	Reminders    datatypes.JSON `json:"reminders"`
	Participants []string       `json:"participants"`
}

type UpdateEventRequest struct {
	Title        string         `json:"title" binding:"required"`
	Description  string         `json:"description"`
	StartTime    time.Time      `json:"start_time" binding:"required"`
	EndTime      time.Time      `json:"end_time" binding:"required"`
	Reminders    datatypes.JSON `json:"reminders"`
	Participants []string       `json:"participants"`
	Version      *int64         `json:"version" binding:"required"`
}

type SyncRequest struct {
	Manifest []delta.ManifestEntry `json:"manifest"`
}

// canEditEvents reports whether the permission allows creating, editing, or
// deleting events in a group. Viewers are read-only.
func canEditEvents(permission string) bool {
	return permission == models.PermissionAdmin || permission == models.PermissionEditor
}

func CreateEvent(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	groupID, err := utils.GetGroupID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body CreateEventRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !body.EndTime.After(body.StartTime) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Event must end after it starts"})
		return
	}

	if groupID == models.PersonalGroupID {
		if err := db.EnsurePersonalGroup(db.DB); err != nil {
			log.Printf("Failed to ensure personal group: %v", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	permission, err := membership.PermissionOf(db.DB, currentUser.ID, groupID)

	if err != nil {
		log.Printf("Failed to resolve permission: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !canEditEvents(permission) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	invalidEmails := []string{}

	var event models.Event

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		event = models.Event{
			GroupID:     groupID,
			CreatorID:   currentUser.ID,
			Title:       strings.TrimSpace(body.Title),
			Description: strings.TrimSpace(body.Description),
			StartTime:   body.StartTime,
			EndTime:     body.EndTime,
			Reminders:   body.Reminders,
		}

		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		creator := models.Participate{
			UserID:     currentUser.ID,
			EventID:    event.ID,
			Status:     models.StatusAccepted,
			ReadStatus: models.ReadStatusRead,
			InvitedAt:  time.Now().UTC(),
		}

		if err := tx.Create(&creator).Error; err != nil {
			return err
		}

		for _, email := range body.Participants {
			email = strings.ToLower(strings.TrimSpace(email))

			if email == currentUser.Email {
				continue
			}

			userID, ok, err := inviteableUser(tx, email, groupID)

			if err != nil {
				return err
			}

			if !ok {
				invalidEmails = append(invalidEmails, email)
				continue
			}

			invite := models.Participate{
				UserID:     userID,
				EventID:    event.ID,
				Status:     models.StatusPending,
				ReadStatus: models.ReadStatusUnread,
				InvitedAt:  time.Now().UTC(),
			}

			if err := tx.Create(&invite).Error; err != nil {
				if isUniqueViolation(err) {
					invalidEmails = append(invalidEmails, email)
					continue
				}
				return err
			}
		}

		return nil
	})

	if err != nil {
		log.Printf("Failed to create event in group %d: %v", groupID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to create event"})
		return
	}

	BroadcastGroupRefresh(strconv.FormatUint(uint64(groupID), 10))

	ctx.JSON(http.StatusCreated, gin.H{
		"event_id":     event.ID,
		"version":      event.Version,
		"cache_number": event.ChangeMarker,
		"emails":       invalidEmails,
	})
}

// inviteableUser resolves an email to a user id, requiring an accepted group
// membership for regular groups. Personal-calendar events may invite any
// registered user; that is how cross-group invitations come to exist.
func inviteableUser(tx *gorm.DB, email string, groupID uint) (uint, bool, error) {
	var user models.User

	err := tx.Where("email = ?", email).First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	if groupID == models.PersonalGroupID {
		return user.ID, true, nil
	}

	accepted, err := membership.IsAcceptedMember(tx, user.ID, groupID)

	if err != nil {
		return 0, false, err
	}

	return user.ID, accepted, nil
}

func UpdateEvent(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	groupID, eventID, err := utils.GetGroupEventID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body UpdateEventRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !body.EndTime.After(body.StartTime) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Event must end after it starts"})
		return
	}

	var event models.Event

	if err := db.DB.Where("id = ? AND group_id = ?", eventID, groupID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	permission, err := membership.PermissionOf(db.DB, currentUser.ID, groupID)

	if err != nil {
		log.Printf("Failed to resolve permission: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	canEdit := canEditEvents(permission)

	if groupID == models.PersonalGroupID {
		canEdit = event.CreatorID == currentUser.ID
	}

	if !canEdit {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	invalidEmails := []string{}

	var newVersion int64

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		// The content edit and its marker bump ride the same conditional
		// update, so version and change_marker move together or not at all.
		newVersion, err = versioning.ApplyEdit(tx, &models.Event{}, eventID, *body.Version, map[string]interface{}{
			"title":         strings.TrimSpace(body.Title),
			"description":   strings.TrimSpace(body.Description),
			"start_time":    body.StartTime,
			"end_time":      body.EndTime,
			"reminders":     body.Reminders,
			"change_marker": gorm.Expr("change_marker + ?", 1),
		})

		if err != nil {
			return err
		}

		if body.Participants == nil {
			return nil
		}

		changed, err := reconcileParticipants(tx, &event, currentUser.ID, body.Participants, &invalidEmails)

		if err != nil {
			return err
		}

		// The participant-list change is one structural trigger on top of
		// the content edit.
		if changed {
			return versioning.BumpEvent(tx, eventID)
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, versioning.ErrVersionConflict) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "Conflicting Update"})
			return
		}

		if errors.Is(err, versioning.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}

		log.Printf("Failed to update event %d: %v", eventID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to update event"})
		return
	}

	BroadcastGroupRefresh(strconv.FormatUint(uint64(groupID), 10))

	ctx.JSON(http.StatusOK, gin.H{"version": newVersion, "emails": invalidEmails})
}

// reconcileParticipants makes the stored participant set match the requested
// email list, keeping the creator in place. Reports whether anything changed.
func reconcileParticipants(tx *gorm.DB, event *models.Event, currentUserID uint, emails []string, invalidEmails *[]string) (bool, error) {
	var existing []models.Participate

	if err := tx.Where("event_id = ?", event.ID).Find(&existing).Error; err != nil {
		return false, err
	}

	current := make(map[uint]*models.Participate, len(existing))

	for i := range existing {
		current[existing[i].UserID] = &existing[i]
	}

	wanted := make(map[uint]bool)
	changed := false

	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))

		userID, ok, err := inviteableUser(tx, email, event.GroupID)

		if err != nil {
			return false, err
		}

		if !ok {
			*invalidEmails = append(*invalidEmails, email)
			continue
		}

		wanted[userID] = true

		if _, exists := current[userID]; exists {
			continue
		}

		invite := models.Participate{
			UserID:     userID,
			EventID:    event.ID,
			Status:     models.StatusPending,
			ReadStatus: models.ReadStatusUnread,
			InvitedAt:  time.Now().UTC(),
		}

		if err := tx.Create(&invite).Error; err != nil {
			return false, err
		}

		changed = true
	}

	for userID, row := range current {
		if userID == event.CreatorID || userID == currentUserID {
			continue
		}

		if wanted[userID] {
			continue
		}

		if err := tx.Delete(row).Error; err != nil {
			return false, err
		}

		changed = true
	}

	return changed, nil
}

func DeleteEvent(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	groupID, eventID, err := utils.GetGroupEventID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var event models.Event

	if err := db.DB.Where("id = ? AND group_id = ?", eventID, groupID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	permission, err := membership.PermissionOf(db.DB, currentUser.ID, groupID)

	if err != nil {
		log.Printf("Failed to resolve permission: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	canDelete := canEditEvents(permission)

	if groupID == models.PersonalGroupID {
		canDelete = event.CreatorID == currentUser.ID
	}

	if !canDelete {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", eventID).Delete(&models.Participate{}).Error; err != nil {
			return err
		}

		return tx.Delete(&event).Error
	})

	if err != nil {
		log.Printf("Failed to delete event %d: %v", eventID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to delete event"})
		return
	}

	BroadcastGroupRefresh(strconv.FormatUint(uint64(groupID), 10))

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// SyncEvents answers a client's cache manifest with the minimal delta: full
// snapshots for events whose change marker moved past the client's copy, and
// the ids the client must purge because they are gone or no longer visible.
func SyncEvents(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	groupID, err := utils.GetGroupID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body SyncRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if groupID == models.PersonalGroupID {
		if err := db.EnsurePersonalGroup(db.DB); err != nil {
			log.Printf("Failed to ensure personal group: %v", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	// No permission gate here: a caller who lost access to the scope must
	// still get a diff, with an empty visible set turning their whole
	// manifest into deletions.
	result, err := delta.Diff(db.DB, userID, groupID, body.Manifest)

	if err != nil {
		log.Printf("Failed to compute delta for user %d in group %d: %v", userID, groupID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to sync events"})
		return
	}

	ctx.JSON(http.StatusOK, result)
}
