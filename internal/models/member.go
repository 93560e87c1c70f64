package models

import "time"

const (
	PermissionAdmin  = "Admin"
	PermissionEditor = "Editor"
	PermissionViewer = "Viewer"
)

const (
	StatusPending  = "Pending"
	StatusAccepted = "Accepted"
	StatusDeclined = "Declined"
)

const (
	ReadStatusRead   = "Read"
	ReadStatusUnread = "Unread"
)

type Member struct {
	BaseModel

	UserID     uint      `gorm:"not null;uniqueIndex:idx_member_user_group"`
	GroupID    uint      `gorm:"not null;uniqueIndex:idx_member_user_group"`
	Permission string    `gorm:"not null"`
	Status     string    `gorm:"not null;default:Pending"`
	ReadStatus string    `gorm:"not null;default:Unread"`
	InvitedAt  time.Time `gorm:"not null"`

	// Relationships
	User  User  `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Group Group `gorm:"foreignKey:GroupID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
