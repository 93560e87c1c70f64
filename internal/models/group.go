package models

// PersonalGroupID is the reserved group backing each user's personal calendar.
// It is created lazily on first use and never deleted. Nobody holds a Member
// row in it; every authenticated user acts as its admin, and its visible set
// aggregates the user's own events with cross-group invitations.
const PersonalGroupID uint = 1

type Group struct {
	BaseModel

	Name        string `gorm:"not null"`
	Description string
	Version     int64 `gorm:"not null;default:0"` // optimistic lock for direct edits

	// Relationships
	Members []Member `gorm:"foreignKey:GroupID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Events  []Event  `gorm:"foreignKey:GroupID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
