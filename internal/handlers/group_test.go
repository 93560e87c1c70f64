package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-dev/tandem/db"
	"github.com/tandem-dev/tandem/internal/models"
	"github.com/tandem-dev/tandem/internal/testdb"
)

func TestCreateGroupListLengthMismatch(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")

	w := doJSON(t, r, http.MethodPost, "/api/groups", bearer(t, ann), map[string]interface{}{
		"name":        "Team",
		"members":     []string{"bob@example.com"},
		"permissions": []string{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGroupCollectsUnknownEmails(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	testdb.CreateUser(t, db.DB, "Bob", "bob@example.com")

	w := doJSON(t, r, http.MethodPost, "/api/groups", bearer(t, ann), map[string]interface{}{
		"name":        "Team",
		"members":     []string{"bob@example.com", "ghost@example.com"},
		"permissions": []string{"Editor", "Viewer"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	require.Equal(t, []interface{}{"ghost@example.com"}, payload["emails"])

	// The creator is an accepted admin, Bob is pending.
	var members []models.Member
	require.NoError(t, db.DB.Order("id").Find(&members).Error)
	require.Len(t, members, 2)
	assert.Equal(t, models.PermissionAdmin, members[0].Permission)
	assert.Equal(t, models.StatusAccepted, members[0].Status)
	assert.Equal(t, models.PermissionEditor, members[1].Permission)
	assert.Equal(t, models.StatusPending, members[1].Status)
}

func TestUpdateGroupVersionGate(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")

	path := fmt.Sprintf("/api/groups/%d", group.ID)

	// First edit with the stored version succeeds and bumps it.
	w := doJSON(t, r, http.MethodPut, path, bearer(t, ann), map[string]interface{}{
		"name":        "Renamed",
		"description": "Updated",
		"version":     0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["version"])

	// A second client still holding version 0 is rejected with no effect.
	w = doJSON(t, r, http.MethodPut, path, bearer(t, ann), map[string]interface{}{
		"name":        "Hijack",
		"description": "",
		"version":     0,
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var stored models.Group
	require.NoError(t, db.DB.First(&stored, group.ID).Error)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, "Renamed", stored.Name)
}

func TestUpdateGroupRequiresAdmin(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	bob := testdb.CreateUser(t, db.DB, "Bob", "bob@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")
	testdb.AddMember(t, db.DB, bob, group, models.PermissionEditor, models.StatusAccepted)

	w := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/groups/%d", group.ID), bearer(t, bob), map[string]interface{}{
		"name":    "Nope",
		"version": 0,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateGroupMemberRemovalInvalidatesCaches(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	bob := testdb.CreateUser(t, db.DB, "Bob", "bob@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")
	testdb.AddMember(t, db.DB, bob, group, models.PermissionViewer, models.StatusAccepted)

	event := testdb.CreateEvent(t, db.DB, group, ann, "Review")
	testdb.AddParticipant(t, db.DB, bob, event, models.StatusAccepted)

	w := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/groups/%d", group.ID), bearer(t, ann), map[string]interface{}{
		"name":            "Team",
		"description":     "",
		"version":         0,
		"deleted_members": []map[string]string{{"email": "bob@example.com"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Event
	require.NoError(t, db.DB.First(&stored, event.ID).Error)
	assert.Equal(t, int64(1), stored.ChangeMarker, "removal must invalidate cached copies")
	assert.Equal(t, int64(0), stored.Version, "removal must not touch the edit lock")

	var memberCount, participateCount int64
	require.NoError(t, db.DB.Model(&models.Member{}).Where("user_id = ?", bob.ID).Count(&memberCount).Error)
	require.NoError(t, db.DB.Model(&models.Participate{}).Where("user_id = ?", bob.ID).Count(&participateCount).Error)
	assert.Zero(t, memberCount)
	assert.Zero(t, participateCount)
}

func TestExitGroupLastAdminGuard(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")

	w := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/groups/%d/membership", group.ID), bearer(t, ann), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	require.NoError(t, db.DB.Model(&models.Member{}).Where("group_id = ?", group.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDeleteGroupCascades(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")
	event := testdb.CreateEvent(t, db.DB, group, ann, "Review")
	testdb.AddParticipant(t, db.DB, ann, event, models.StatusAccepted)

	w := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/groups/%d", group.ID), bearer(t, ann), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var groups, members, events, participates int64
	require.NoError(t, db.DB.Model(&models.Group{}).Count(&groups).Error)
	require.NoError(t, db.DB.Model(&models.Member{}).Count(&members).Error)
	require.NoError(t, db.DB.Model(&models.Event{}).Count(&events).Error)
	require.NoError(t, db.DB.Model(&models.Participate{}).Count(&participates).Error)

	assert.Equal(t, int64(1), groups, "only the reserved personal calendar remains")
	assert.Zero(t, members)
	assert.Zero(t, events)
	assert.Zero(t, participates)
}

func TestDeleteGroupRejectsPersonalCalendar(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")

	w := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/groups/%d", models.PersonalGroupID), bearer(t, ann), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}
