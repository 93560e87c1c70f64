package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/tandem-dev/tandem/db"
	"github.com/tandem-dev/tandem/internal/membership"
	"github.com/tandem-dev/tandem/internal/models"
	"github.com/tandem-dev/tandem/internal/utils"
	"github.com/tandem-dev/tandem/internal/versioning"
	"gorm.io/gorm"
)

type CreateGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Members     []string `json:"members" binding:"required"`
	Permissions []string `json:"permissions" binding:"required"`
}

type MemberChange struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role"`
}

type UpdateGroupRequest struct {
	Name           string         `json:"name" binding:"required"`
	Description    string         `json:"description"`
	Version        *int64         `json:"version" binding:"required"`
	NewMembers     []MemberChange `json:"new_members"`
	UpdatedMembers []MemberChange `json:"updated_members"`
	DeletedMembers []MemberChange `json:"deleted_members"`
}

type GroupSummary struct {
	GroupID uint   `json:"group_id"`
	Name    string `json:"name"`
}

type MemberInfo struct {
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type GroupInfoResponse struct {
	Version       int64        `json:"version"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Members       []MemberInfo `json:"members"`
	Authorization bool         `json:"authorization"`
	CurrentEmail  string       `json:"curr_email"`
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func CreateGroup(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body CreateGroupRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Group name, members, and permissions are required"})
		return
	}

	if len(body.Members) != len(body.Permissions) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Members and permissions list length mismatch"})
		return
	}

	invalidEmails := []string{}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		group := models.Group{
			Name:        strings.TrimSpace(body.Name),
			Description: strings.TrimSpace(body.Description),
		}

		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		creator := models.Member{
			UserID:     currentUser.ID,
			GroupID:    group.ID,
			Permission: models.PermissionAdmin,
			Status:     models.StatusAccepted,
			ReadStatus: models.ReadStatusRead,
			InvitedAt:  time.Now().UTC(),
		}

		if err := tx.Create(&creator).Error; err != nil {
			return err
		}

		for idx, email := range body.Members {
			email = strings.ToLower(strings.TrimSpace(email))

			if email == currentUser.Email {
				continue
			}

			var user models.User

			err := tx.Where("email = ?", email).First(&user).Error

			if errors.Is(err, gorm.ErrRecordNotFound) {
				invalidEmails = append(invalidEmails, email)
				continue
			}

			if err != nil {
				return err
			}

			invite := models.Member{
				UserID:     user.ID,
				GroupID:    group.ID,
				Permission: body.Permissions[idx],
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
		log.Printf("Failed to create group: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to add new group to the database"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"emails": invalidEmails})
}

func ListGroups(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var groups []GroupSummary

	err = db.DB.Model(&models.Group{}).
		Select("groups.id AS group_id, groups.name").
		Joins("JOIN members ON members.group_id = groups.id").
		Where("members.user_id = ? AND members.status = ?", currentUser.ID, models.StatusAccepted).
		Scan(&groups).Error

	if err != nil {
		log.Printf("Failed to fetch groups: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to fetch groups"})
		return
	}

	if groups == nil {
		groups = []GroupSummary{}
	}

	ctx.JSON(http.StatusOK, groups)
}

func GetGroup(ctx *gin.Context) {
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

	if groupID == models.PersonalGroupID {
		if err := db.EnsurePersonalGroup(db.DB); err != nil {
			log.Printf("Failed to ensure personal group: %v", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	var group models.Group

	if err := db.DB.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
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

	if permission == "" {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	var members []MemberInfo

	err = db.DB.Model(&models.Member{}).
		Select("users.email, members.permission AS role, members.status").
		Joins("JOIN users ON users.id = members.user_id").
		Where("members.group_id = ?", groupID).
		Scan(&members).Error

	if err != nil {
		log.Printf("Failed to fetch members: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if members == nil {
		members = []MemberInfo{}
	}

	ctx.JSON(http.StatusOK, GroupInfoResponse{
		Version:       group.Version,
		Name:          group.Name,
		Description:   group.Description,
		Members:       members,
		Authorization: permission == models.PermissionAdmin,
		CurrentEmail:  currentUser.Email,
	})
}

func UpdateGroup(ctx *gin.Context) {
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

	var body UpdateGroupRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	permission, err := membership.PermissionOf(db.DB, currentUser.ID, groupID)

	if err != nil {
		log.Printf("Failed to resolve permission: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if permission != models.PermissionAdmin {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	invalidEmails := []string{}

	var newVersion int64

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		newVersion, err = versioning.ApplyEdit(tx, &models.Group{}, groupID, *body.Version, map[string]interface{}{
			"name":        strings.TrimSpace(body.Name),
			"description": strings.TrimSpace(body.Description),
		})

		if err != nil {
			return err
		}

		usersByEmail := make(map[string]*models.User)

		lookup := func(email string) (*models.User, error) {
			email = strings.ToLower(strings.TrimSpace(email))

			if user, ok := usersByEmail[email]; ok {
				return user, nil
			}

			var user models.User

			err := tx.Where("email = ?", email).First(&user).Error

			if errors.Is(err, gorm.ErrRecordNotFound) {
				usersByEmail[email] = nil
				return nil, nil
			}

			if err != nil {
				return nil, err
			}

			usersByEmail[email] = &user

			return &user, nil
		}

		for _, change := range body.NewMembers {
			user, err := lookup(change.Email)

			if err != nil {
				return err
			}

			if user == nil {
				invalidEmails = append(invalidEmails, strings.ToLower(strings.TrimSpace(change.Email)))
				continue
			}

			invite := models.Member{
				UserID:     user.ID,
				GroupID:    groupID,
				Permission: change.Role,
				Status:     models.StatusPending,
				ReadStatus: models.ReadStatusUnread,
				InvitedAt:  time.Now().UTC(),
			}

			if err := tx.Create(&invite).Error; err != nil {
				if isUniqueViolation(err) {
					invalidEmails = append(invalidEmails, user.Email)
					continue
				}
				return err
			}
		}

		for _, change := range body.UpdatedMembers {
			user, err := lookup(change.Email)

			if err != nil {
				return err
			}

			if user == nil {
				continue
			}

			result := tx.Model(&models.Member{}).
				Where("user_id = ? AND group_id = ?", user.ID, groupID).
				Update("permission", change.Role)

			if result.Error != nil {
				return result.Error
			}

			if result.RowsAffected == 0 {
				continue
			}

			// A permission change alters what the member may do on the
			// events they participate in; their cached copies go stale.
			if err := versioning.BumpGroupEventsForUser(tx, groupID, user.ID); err != nil {
				return err
			}
		}

		for _, change := range body.DeletedMembers {
			user, err := lookup(change.Email)

			if err != nil {
				return err
			}

			if user == nil {
				continue
			}

			var member models.Member

			err = tx.Where("user_id = ? AND group_id = ?", user.ID, groupID).First(&member).Error

			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}

			if err != nil {
				return err
			}

			// An accepted member could see every event in the group, so the
			// removal invalidates all of them. A pending invitee saw nothing.
			if member.Status == models.StatusAccepted {
				if err := versioning.BumpGroupEvents(tx, groupID); err != nil {
					return err
				}
			}

			if err := tx.Delete(&member).Error; err != nil {
				return err
			}

			err = tx.Where("user_id = ? AND event_id IN (?)",
				user.ID,
				tx.Model(&models.Event{}).Select("id").Where("group_id = ?", groupID),
			).Delete(&models.Participate{}).Error

			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, versioning.ErrVersionConflict) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "Conflicting Update"})
			return
		}

		if errors.Is(err, versioning.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}

		log.Printf("Failed to update group %d: %v", groupID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to update group info"})
		return
	}

	BroadcastGroupRefresh(strconv.FormatUint(uint64(groupID), 10))

	ctx.JSON(http.StatusOK, gin.H{"emails": invalidEmails, "version": newVersion})
}

func DeleteGroup(ctx *gin.Context) {
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

	if groupID == models.PersonalGroupID {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "The personal calendar cannot be deleted"})
		return
	}

	var group models.Group

	if err := db.DB.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
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

	if permission != models.PermissionAdmin {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("event_id IN (?)",
			tx.Model(&models.Event{}).Select("id").Where("group_id = ?", groupID),
		).Delete(&models.Participate{}).Error

		if err != nil {
			return err
		}

		if err := tx.Where("group_id = ?", groupID).Delete(&models.Event{}).Error; err != nil {
			return err
		}

		if err := tx.Where("group_id = ?", groupID).Delete(&models.Member{}).Error; err != nil {
			return err
		}

		return tx.Delete(&group).Error
	})

	if err != nil {
		log.Printf("Failed to delete group %d: %v", groupID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to delete group"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

func ExitGroup(ctx *gin.Context) {
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

	var member models.Member

	err = db.DB.Where("user_id = ? AND group_id = ?", currentUser.ID, groupID).First(&member).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "You are not a member of this group"})
		return
	}

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if member.Permission == models.PermissionAdmin {
		var adminCount int64

		err = db.DB.Model(&models.Member{}).
			Where("group_id = ? AND permission = ? AND status = ?", groupID, models.PermissionAdmin, models.StatusAccepted).
			Count(&adminCount).Error

		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if adminCount == 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Assign another admin before leaving"})
			return
		}
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		// A pending invitee never had visibility, so nothing to invalidate.
		if member.Status == models.StatusAccepted {
			if err := versioning.BumpGroupEvents(tx, groupID); err != nil {
				return err
			}
		}

		err := tx.Where("user_id = ? AND event_id IN (?)",
			currentUser.ID,
			tx.Model(&models.Event{}).Select("id").Where("group_id = ?", groupID),
		).Delete(&models.Participate{}).Error

		if err != nil {
			return err
		}

		return tx.Delete(&member).Error
	})

	if err != nil {
		log.Printf("Failed to exit group %d: %v", groupID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to exit group"})
		return
	}

	BroadcastGroupRefresh(strconv.FormatUint(uint64(groupID), 10))

	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "You have left the group"})
}
