package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tandem-dev/tandem/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an isolated in-memory database with the schema migrated. The
// single-connection pool serializes concurrent writers the way a server-side
// database would, so tests can race goroutines against it safely.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)

	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { sqlDB.Close() })

	err = gdb.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Member{},
		&models.Event{},
		&models.Participate{},
	)
	require.NoError(t, err)

	// Reserve the personal-calendar group up front so regular groups never
	// land on its id.
	personal := models.Group{
		BaseModel:   models.BaseModel{ID: models.PersonalGroupID},
		Name:        "Personal",
		Description: "Personal calendar",
	}
	require.NoError(t, gdb.Create(&personal).Error)

	return gdb
}

func CreateUser(t *testing.T, tx *gorm.DB, name, email string) models.User {
	t.Helper()

	user := models.User{Name: name, Email: email, PasswordHash: "x"}
	require.NoError(t, tx.Create(&user).Error)

	return user
}

// CreateGroup creates a group with the given user as an accepted admin.
func CreateGroup(t *testing.T, tx *gorm.DB, admin models.User, name string) models.Group {
	t.Helper()

	group := models.Group{Name: name}
	require.NoError(t, tx.Create(&group).Error)

	AddMember(t, tx, admin, group, models.PermissionAdmin, models.StatusAccepted)

	return group
}

func AddMember(t *testing.T, tx *gorm.DB, user models.User, group models.Group, permission, status string) models.Member {
	t.Helper()

	member := models.Member{
		UserID:     user.ID,
		GroupID:    group.ID,
		Permission: permission,
		Status:     status,
		ReadStatus: models.ReadStatusUnread,
		InvitedAt:  time.Now().UTC(),
	}
	require.NoError(t, tx.Create(&member).Error)

	return member
}

func CreateEvent(t *testing.T, tx *gorm.DB, group models.Group, creator models.User, title string) models.Event {
	t.Helper()

	start := time.Now().UTC().Truncate(time.Second)

	event := models.Event{
		GroupID:   group.ID,
		CreatorID: creator.ID,
		Title:     title,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}
	require.NoError(t, tx.Create(&event).Error)

	return event
}

func AddParticipant(t *testing.T, tx *gorm.DB, user models.User, event models.Event, status string) models.Participate {
	t.Helper()

	participate := models.Participate{
		UserID:     user.ID,
		EventID:    event.ID,
		Status:     status,
		ReadStatus: models.ReadStatusUnread,
		InvitedAt:  time.Now().UTC(),
	}
	require.NoError(t, tx.Create(&participate).Error)

	return participate
}
