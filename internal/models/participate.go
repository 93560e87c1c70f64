package models

import "time"

type Participate struct {
	BaseModel

	UserID     uint      `gorm:"not null;uniqueIndex:idx_participate_user_event"`
	EventID    uint      `gorm:"not null;uniqueIndex:idx_participate_user_event"`
	Status     string    `gorm:"not null;default:Pending"`
	ReadStatus string    `gorm:"not null;default:Unread"`
	InvitedAt  time.Time `gorm:"not null"`

	// Relationships
	User  User  `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Event Event `gorm:"foreignKey:EventID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
