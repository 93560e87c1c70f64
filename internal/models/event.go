package models

import (
	"time"

	"gorm.io/datatypes"
)

// Event carries two independent counters. Version is the optimistic lock and
// moves only when a client edits the event's own fields with a matching
// expected version. ChangeMarker moves on those edits too, but also whenever a
// membership or participation change alters who may see the event; cached
// copies compare it to decide whether a refetch is needed. Both are monotonic.
type Event struct {
	BaseModel

	GroupID      uint           `gorm:"not null;index"`
	CreatorID    uint           `gorm:"not null;index"`
	Title        string         `gorm:"not null"`
	Description  string
	StartTime    time.Time      `gorm:"not null"`
	EndTime      time.Time      `gorm:"not null"`
	Reminders    datatypes.JSON `gorm:"type:jsonb"` // minute offsets before start
	Version      int64          `gorm:"not null;default:0"`
	ChangeMarker int64          `gorm:"not null;default:0"`

	// Relationships
	Group          Group         `gorm:"foreignKey:GroupID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Creator        User          `gorm:"foreignKey:CreatorID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Participations []Participate `gorm:"foreignKey:EventID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
