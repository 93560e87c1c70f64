package db

import (
	"github.com/tandem-dev/tandem/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDatabase(dsn string) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})

	if err != nil {
		return err
	}

	return nil
}

func MigrateDatabase() error {
	models := []interface{}{
		&models.User{},
		&models.Group{},
		&models.Member{},
		&models.Event{},
		&models.Participate{},
	}

	migrator := DB.Migrator()

	for _, model := range models {
		if !migrator.HasTable(model) {
			if err := DB.AutoMigrate(model); err != nil {
				return err
			}
		}
	}

	// Reserve the personal-calendar id before any regular group can claim it.
	return EnsurePersonalGroup(DB)
}

// EnsurePersonalGroup creates the reserved personal-calendar group if it does
// not exist yet. MigrateDatabase calls it at boot; personal-scope handlers
// call it again as a guard.
func EnsurePersonalGroup(tx *gorm.DB) error {
	group := models.Group{
		BaseModel:   models.BaseModel{ID: models.PersonalGroupID},
		Name:        "Personal",
		Description: "Personal calendar",
	}

	return tx.Where("id = ?", models.PersonalGroupID).FirstOrCreate(&group).Error
}
