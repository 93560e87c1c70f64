package versioning

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the target record no longer exists.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when the caller's expected version no
	// longer matches the stored one. The record is left untouched; the client
	// is expected to reload and retry.
	ErrVersionConflict = errors.New("version conflict")
)

// ApplyEdit performs an optimistic-concurrency update: a conditional UPDATE
// keyed on (id, version). The version check and the field writes are a single
// statement, so of N callers racing with the same expected version exactly one
// observes RowsAffected == 1; the rest get ErrVersionConflict.
//
// The version column is incremented by one as part of the same statement.
// Callers editing an Event also pass a change_marker increment in updates so
// both counters move atomically with the content fields.
func ApplyEdit(tx *gorm.DB, model interface{}, id uint, expectedVersion int64, updates map[string]interface{}) (int64, error) {
	fields := make(map[string]interface{}, len(updates)+1)

	for column, value := range updates {
		fields[column] = value
	}

	fields["version"] = gorm.Expr("version + ?", 1)

	result := tx.Model(model).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(fields)

	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		// Distinguish a stale version from a vanished record.
		var count int64

		if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
			return 0, err
		}

		if count == 0 {
			return 0, ErrNotFound
		}

		return 0, ErrVersionConflict
	}

	return expectedVersion + 1, nil
}
