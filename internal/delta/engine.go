package delta

import (
	"sort"
	"time"

	"github.com/tandem-dev/tandem/internal/membership"
	"github.com/tandem-dev/tandem/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ManifestEntry is one line of the client's cache manifest: the event id and
// the change marker the client last saw for it.
type ManifestEntry struct {
	EventID     uint  `json:"event_id" binding:"required"`
	CacheNumber int64 `json:"cache_number"`
}

type Participant struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

// EventSnapshot is a full copy of an event as sent to a syncing client. It
// embeds the current version and change marker so the client's next manifest
// is self-consistent.
type EventSnapshot struct {
	EventID      uint           `json:"event_id"`
	GroupID      uint           `json:"group_id"`
	CreatorID    uint           `json:"creator_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Reminders    datatypes.JSON `json:"reminders,omitempty"`
	Participants []Participant  `json:"participants"`
	Version      int64          `json:"version"`
	CacheNumber  int64          `json:"cache_number"`
}

// Result is the minimal delta between the client's manifest and the server's
// current state for one scope.
type Result struct {
	Updated []EventSnapshot `json:"updated"`
	Deleted []uint          `json:"deleted"`
}

// Diff computes the events that must be resent in full and the ids the client
// must purge.
//
// An event is resent when the manifest does not mention it or mentions it with
// a marker strictly below the stored one; an equal marker means the cached
// copy is current and is omitted. An id is reported deleted when the manifest
// mentions it but it is no longer in the caller's visible set, which covers
// both true deletion and loss of visibility; the client treats them the same.
func Diff(tx *gorm.DB, userID, scopeID uint, manifest []ManifestEntry) (Result, error) {
	visible, err := membership.VisibleEvents(tx, userID, scopeID)

	if err != nil {
		return Result{}, err
	}

	known := make(map[uint]int64, len(manifest))

	for _, entry := range manifest {
		known[entry.EventID] = entry.CacheNumber
	}

	var stale []models.Event

	visibleIDs := make(map[uint]struct{}, len(visible))

	for _, event := range visible {
		visibleIDs[event.ID] = struct{}{}

		marker, ok := known[event.ID]

		if !ok || marker < event.ChangeMarker {
			stale = append(stale, event)
		}
	}

	result := Result{
		Updated: []EventSnapshot{},
		Deleted: []uint{},
	}

	for id := range known {
		if _, ok := visibleIDs[id]; !ok {
			result.Deleted = append(result.Deleted, id)
		}
	}

	sort.Slice(result.Deleted, func(i, j int) bool { return result.Deleted[i] < result.Deleted[j] })

	if len(stale) == 0 {
		return result, nil
	}

	participants, err := loadParticipants(tx, stale)

	if err != nil {
		return Result{}, err
	}

	for _, event := range stale {
		result.Updated = append(result.Updated, EventSnapshot{
			EventID:      event.ID,
			GroupID:      event.GroupID,
			CreatorID:    event.CreatorID,
			Title:        event.Title,
			Description:  event.Description,
			StartTime:    event.StartTime,
			EndTime:      event.EndTime,
			Reminders:    event.Reminders,
			Participants: participants[event.ID],
			Version:      event.Version,
			CacheNumber:  event.ChangeMarker,
		})
	}

	return result, nil
}

type participantRow struct {
	EventID uint
	Email   string
	Status  string
}

func loadParticipants(tx *gorm.DB, events []models.Event) (map[uint][]Participant, error) {
	ids := make([]uint, 0, len(events))

	for _, event := range events {
		ids = append(ids, event.ID)
	}

	var rows []participantRow

	err := tx.Model(&models.Participate{}).
		Select("participates.event_id, users.email, participates.status").
		Joins("JOIN users ON users.id = participates.user_id").
		Where("participates.event_id IN ?", ids).
		Order("users.email").
		Scan(&rows).Error

	if err != nil {
		return nil, err
	}

	participants := make(map[uint][]Participant, len(events))

	for _, row := range rows {
		participants[row.EventID] = append(participants[row.EventID], Participant{
			Email:  row.Email,
			Status: row.Status,
		})
	}

	return participants, nil
}
