package delta_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-dev/tandem/internal/delta"
	"github.com/tandem-dev/tandem/internal/models"
	"github.com/tandem-dev/tandem/internal/testdb"
	"github.com/tandem-dev/tandem/internal/versioning"
	"gorm.io/gorm"
)

type fixture struct {
	tx     *gorm.DB
	ann    models.User
	bob    models.User
	group  models.Group
	events []models.Event
}

func seed(t *testing.T) fixture {
	t.Helper()

	tx := testdb.Open(t)

	ann := testdb.CreateUser(t, tx, "Ann", "ann@example.com")
	bob := testdb.CreateUser(t, tx, "Bob", "bob@example.com")
	group := testdb.CreateGroup(t, tx, ann, "Team")
	testdb.AddMember(t, tx, bob, group, models.PermissionViewer, models.StatusAccepted)

	events := []models.Event{
		testdb.CreateEvent(t, tx, group, ann, "One"),
		testdb.CreateEvent(t, tx, group, ann, "Two"),
		testdb.CreateEvent(t, tx, group, ann, "Three"),
	}

	return fixture{tx: tx, ann: ann, bob: bob, group: group, events: events}
}

func TestDiffUnknownEventsAreResent(t *testing.T) {
	f := seed(t)

	result, err := delta.Diff(f.tx, f.bob.ID, f.group.ID, nil)
	require.NoError(t, err)

	require.Len(t, result.Updated, 3)
	assert.Empty(t, result.Deleted)
}

func TestDiffEqualMarkerIsOmitted(t *testing.T) {
	f := seed(t)
	event := f.events[0]

	manifest := []delta.ManifestEntry{{EventID: event.ID, CacheNumber: event.ChangeMarker}}

	result, err := delta.Diff(f.tx, f.bob.ID, f.group.ID, manifest)
	require.NoError(t, err)

	for _, snapshot := range result.Updated {
		assert.NotEqual(t, event.ID, snapshot.EventID, "a current copy must not be resent")
	}
	assert.Len(t, result.Updated, 2)

	// Once the marker moves past the client's copy the event comes back.
	require.NoError(t, versioning.BumpEvent(f.tx, event.ID))

	result, err = delta.Diff(f.tx, f.bob.ID, f.group.ID, manifest)
	require.NoError(t, err)

	found := false
	for _, snapshot := range result.Updated {
		if snapshot.EventID == event.ID {
			found = true
			assert.Equal(t, event.ChangeMarker+1, snapshot.CacheNumber)
		}
	}
	assert.True(t, found)
}

func TestDiffStaleIdsAreDeleted(t *testing.T) {
	f := seed(t)

	manifest := []delta.ManifestEntry{
		{EventID: f.events[0].ID, CacheNumber: 0},
		{EventID: 4242, CacheNumber: 9},
	}

	result, err := delta.Diff(f.tx, f.bob.ID, f.group.ID, manifest)
	require.NoError(t, err)

	assert.Equal(t, []uint{4242}, result.Deleted)
}

func TestDiffVisibilityLossReportsDeleted(t *testing.T) {
	f := seed(t)

	// Bob syncs while a member, then gets removed from the group.
	result, err := delta.Diff(f.tx, f.bob.ID, f.group.ID, nil)
	require.NoError(t, err)

	manifest := make([]delta.ManifestEntry, 0, len(result.Updated))
	for _, snapshot := range result.Updated {
		manifest = append(manifest, delta.ManifestEntry{EventID: snapshot.EventID, CacheNumber: snapshot.CacheNumber})
	}

	require.NoError(t, f.tx.Where("user_id = ? AND group_id = ?", f.bob.ID, f.group.ID).Delete(&models.Member{}).Error)

	result, err = delta.Diff(f.tx, f.bob.ID, f.group.ID, manifest)
	require.NoError(t, err)

	assert.Empty(t, result.Updated)
	assert.Len(t, result.Deleted, 3, "events still exist for others but are gone from this caller's view")
}

func TestDiffResyncIsFixedPoint(t *testing.T) {
	f := seed(t)

	first, err := delta.Diff(f.tx, f.bob.ID, f.group.ID, nil)
	require.NoError(t, err)
	require.Len(t, first.Updated, 3)

	manifest := make([]delta.ManifestEntry, 0, len(first.Updated))
	for _, snapshot := range first.Updated {
		manifest = append(manifest, delta.ManifestEntry{EventID: snapshot.EventID, CacheNumber: snapshot.CacheNumber})
	}

	second, err := delta.Diff(f.tx, f.bob.ID, f.group.ID, manifest)
	require.NoError(t, err)

	assert.Empty(t, second.Updated)
	assert.Empty(t, second.Deleted)
}

func TestDiffSnapshotEmbedsCountersAndParticipants(t *testing.T) {
	f := seed(t)
	event := f.events[0]

	testdb.AddParticipant(t, f.tx, f.bob, event, models.StatusPending)
	require.NoError(t, versioning.BumpEvent(f.tx, event.ID))

	result, err := delta.Diff(f.tx, f.bob.ID, f.group.ID, nil)
	require.NoError(t, err)

	var snapshot *delta.EventSnapshot
	for i := range result.Updated {
		if result.Updated[i].EventID == event.ID {
			snapshot = &result.Updated[i]
		}
	}
	require.NotNil(t, snapshot)

	assert.Equal(t, event.Version, snapshot.Version)
	assert.Equal(t, event.ChangeMarker+1, snapshot.CacheNumber)
	require.Len(t, snapshot.Participants, 1)
	assert.Equal(t, "bob@example.com", snapshot.Participants[0].Email)
	assert.Equal(t, models.StatusPending, snapshot.Participants[0].Status)
}

func TestDiffPersonalScopeFollowsInvitationStatus(t *testing.T) {
	f := seed(t)

	event := f.events[1]
	participate := testdb.AddParticipant(t, f.tx, f.bob, event, models.StatusAccepted)

	result, err := delta.Diff(f.tx, f.bob.ID, models.PersonalGroupID, nil)
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, event.ID, result.Updated[0].EventID)

	manifest := []delta.ManifestEntry{{EventID: event.ID, CacheNumber: result.Updated[0].CacheNumber}}

	// Declining the invitation removes the event from the personal calendar.
	require.NoError(t, f.tx.Model(&participate).Update("status", models.StatusDeclined).Error)

	result, err = delta.Diff(f.tx, f.bob.ID, models.PersonalGroupID, manifest)
	require.NoError(t, err)
	assert.Empty(t, result.Updated)
	assert.Equal(t, []uint{event.ID}, result.Deleted)
}
