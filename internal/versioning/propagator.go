package versioning

import (
	"github.com/tandem-dev/tandem/internal/models"
	"gorm.io/gorm"
)

// The propagator is the single write path for cascading change_marker bumps.
// Every increment executes server-side (change_marker = change_marker + 1),
// never as a read-modify-write from application memory, so concurrent
// structural changes to the same event cannot lose an increment. It never
// touches the version column: a membership change invalidates caches without
// staling anyone's edit lock.
//
// UpdateColumn keeps UpdatedAt out of it since the event's own content did not
// change.

// BumpEvents increments the change marker on each listed event by exactly one.
// Runs in the caller's transaction so the bump commits or rolls back with the
// structural change that triggered it.
func BumpEvents(tx *gorm.DB, eventIDs []uint) error {
	if len(eventIDs) == 0 {
		return nil
	}

	return tx.Model(&models.Event{}).
		Where("id IN ?", eventIDs).
		UpdateColumn("change_marker", gorm.Expr("change_marker + ?", 1)).Error
}

// BumpEvent increments the change marker on a single event.
func BumpEvent(tx *gorm.DB, eventID uint) error {
	return BumpEvents(tx, []uint{eventID})
}

// BumpGroupEvents increments the change marker on every event in the group.
// Used when a membership is removed: the departed user could see all of the
// group's events, so all of them are affected.
func BumpGroupEvents(tx *gorm.DB, groupID uint) error {
	return tx.Model(&models.Event{}).
		Where("group_id = ?", groupID).
		UpdateColumn("change_marker", gorm.Expr("change_marker + ?", 1)).Error
}

// BumpGroupEventsForUser increments the change marker on every event in the
// group that the user participates in, which are the events whose viewer set changes
// when that user's membership or permission changes.
func BumpGroupEventsForUser(tx *gorm.DB, groupID, userID uint) error {
	return tx.Model(&models.Event{}).
		Where("group_id = ? AND EXISTS (SELECT 1 FROM participates WHERE participates.event_id = events.id AND participates.user_id = ?)", groupID, userID).
		UpdateColumn("change_marker", gorm.Expr("change_marker + ?", 1)).Error
}
