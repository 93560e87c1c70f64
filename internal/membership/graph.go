package membership

import (
	"errors"

	"github.com/tandem-dev/tandem/internal/models"
	"gorm.io/gorm"
)

// Pure reads over group membership and event visibility. All functions take
// the handle they should read through, so they compose with an enclosing
// transaction.

// PermissionOf returns the user's permission in the group, or "" when the user
// holds no Member row there. Callers treat "" as access denied. The personal
// calendar group has no Member rows; every user is its admin.
func PermissionOf(tx *gorm.DB, userID, groupID uint) (string, error) {
	if groupID == models.PersonalGroupID {
		return models.PermissionAdmin, nil
	}

	var member models.Member

	err := tx.Where("user_id = ? AND group_id = ?", userID, groupID).First(&member).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	return member.Permission, nil
}

// IsAcceptedMember reports whether the user has an accepted membership in the
// group. Pending invitees can see the group exists but not its events.
func IsAcceptedMember(tx *gorm.DB, userID, groupID uint) (bool, error) {
	var count int64

	err := tx.Model(&models.Member{}).
		Where("user_id = ? AND group_id = ? AND status = ?", userID, groupID, models.StatusAccepted).
		Count(&count).Error

	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// VisibleEvents returns the events the user may currently see in the scope,
// ordered by start time.
//
// For a regular group that is every event of the group, provided the user is
// an accepted member; otherwise the set is empty. For the personal scope it is
// the union of the user's own events in the personal group and every event, in
// any group, where the user holds a non-declined invitation; the personal
// calendar aggregates cross-group invitations.
func VisibleEvents(tx *gorm.DB, userID, scopeID uint) ([]models.Event, error) {
	var events []models.Event

	if scopeID == models.PersonalGroupID {
		err := tx.
			Where("(group_id = ? AND creator_id = ?) OR id IN (?)",
				models.PersonalGroupID,
				userID,
				tx.Model(&models.Participate{}).
					Select("event_id").
					Where("user_id = ? AND status <> ?", userID, models.StatusDeclined),
			).
			Order("start_time, id").
			Find(&events).Error

		return events, err
	}

	accepted, err := IsAcceptedMember(tx, userID, scopeID)

	if err != nil {
		return nil, err
	}

	if !accepted {
		return nil, nil
	}

	err = tx.Where("group_id = ?", scopeID).Order("start_time, id").Find(&events).Error

	return events, err
}
