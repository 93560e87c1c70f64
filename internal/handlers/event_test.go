package handlers_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-dev/tandem/db"
	"github.com/tandem-dev/tandem/internal/models"
	"github.com/tandem-dev/tandem/internal/testdb"
)

func eventBody(title string, version int64) map[string]interface{} {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	return map[string]interface{}{
		"title":      title,
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(time.Hour).Format(time.RFC3339),
		"version":    version,
	}
}

func TestCreateEventRequiresEditor(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	bob := testdb.CreateUser(t, db.DB, "Bob", "bob@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")
	testdb.AddMember(t, db.DB, bob, group, models.PermissionViewer, models.StatusAccepted)

	body := eventBody("Standup", 0)
	delete(body, "version")

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/groups/%d/events", group.ID), bearer(t, bob), body)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/groups/%d/events", group.ID), bearer(t, ann), body)
	require.Equal(t, http.StatusCreated, w.Code)

	payload := decode(t, w)
	assert.Equal(t, float64(0), payload["version"])
	assert.Equal(t, float64(0), payload["cache_number"])
}

func TestUpdateEventConcurrentEditors(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	bob := testdb.CreateUser(t, db.DB, "Bob", "bob@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")
	testdb.AddMember(t, db.DB, bob, group, models.PermissionEditor, models.StatusAccepted)

	event := testdb.CreateEvent(t, db.DB, group, ann, "Launch")

	// The event has already seen one edit and three structural changes.
	require.NoError(t, db.DB.Model(&models.Event{}).Where("id = ?", event.ID).
		Updates(map[string]interface{}{"version": 1, "change_marker": 3}).Error)

	path := fmt.Sprintf("/api/groups/%d/events/%d", group.ID, event.ID)

	// A edits with the version it holds.
	w := doJSON(t, r, http.MethodPut, path, bearer(t, ann), eventBody("Launch v2", 1))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["version"])

	var stored models.Event
	require.NoError(t, db.DB.First(&stored, event.ID).Error)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, int64(4), stored.ChangeMarker, "a content edit moves the marker once")

	// B held the same version and loses.
	w = doJSON(t, r, http.MethodPut, path, bearer(t, bob), eventBody("Launch v2 by B", 1))
	require.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, db.DB.First(&stored, event.ID).Error)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, int64(4), stored.ChangeMarker)
	assert.Equal(t, "Launch v2", stored.Title)
}

func TestRespondEventInviteBumpsMarker(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	bob := testdb.CreateUser(t, db.DB, "Bob", "bob@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")
	testdb.AddMember(t, db.DB, bob, group, models.PermissionViewer, models.StatusAccepted)

	event := testdb.CreateEvent(t, db.DB, group, ann, "Dinner")
	invite := testdb.AddParticipant(t, db.DB, bob, event, models.StatusPending)

	w := doJSON(t, r, http.MethodPost, "/api/invites/respond", bearer(t, bob), map[string]interface{}{
		"invite_type": "event",
		"invite_id":   invite.ID,
		"status":      "Accepted",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Event
	require.NoError(t, db.DB.First(&stored, event.ID).Error)
	assert.Equal(t, int64(1), stored.ChangeMarker)
	assert.Equal(t, int64(0), stored.Version)

	var participate models.Participate
	require.NoError(t, db.DB.First(&participate, invite.ID).Error)
	assert.Equal(t, models.StatusAccepted, participate.Status)
	assert.Equal(t, models.ReadStatusRead, participate.ReadStatus)
}

func TestSyncRoundTrip(t *testing.T) {
	r := setup(t)

	ann := testdb.CreateUser(t, db.DB, "Ann", "ann@example.com")
	bob := testdb.CreateUser(t, db.DB, "Bob", "bob@example.com")
	group := testdb.CreateGroup(t, db.DB, ann, "Team")
	member := testdb.AddMember(t, db.DB, bob, group, models.PermissionViewer, models.StatusAccepted)

	testdb.CreateEvent(t, db.DB, group, ann, "One")
	testdb.CreateEvent(t, db.DB, group, ann, "Two")

	path := fmt.Sprintf("/api/groups/%d/events/sync", group.ID)

	// Cold cache: everything comes back in full.
	w := doJSON(t, r, http.MethodPost, path, bearer(t, bob), map[string]interface{}{"manifest": []interface{}{}})
	require.Equal(t, http.StatusOK, w.Code)

	payload := decode(t, w)
	updated := payload["updated"].([]interface{})
	require.Len(t, updated, 2)
	require.Empty(t, payload["deleted"])

	manifest := make([]map[string]interface{}, 0, len(updated))
	for _, entry := range updated {
		snapshot := entry.(map[string]interface{})
		manifest = append(manifest, map[string]interface{}{
			"event_id":     snapshot["event_id"],
			"cache_number": snapshot["cache_number"],
		})
	}

	// Warm cache: nothing to send.
	w = doJSON(t, r, http.MethodPost, path, bearer(t, bob), map[string]interface{}{"manifest": manifest})
	require.Equal(t, http.StatusOK, w.Code)

	payload = decode(t, w)
	require.Empty(t, payload["updated"])
	require.Empty(t, payload["deleted"])

	// After removal from the group the same manifest turns into deletions.
	require.NoError(t, db.DB.Delete(&member).Error)

	w = doJSON(t, r, http.MethodPost, path, bearer(t, bob), map[string]interface{}{"manifest": manifest})
	require.Equal(t, http.StatusOK, w.Code)

	payload = decode(t, w)
	require.Empty(t, payload["updated"])
	require.Len(t, payload["deleted"], 2)
}
