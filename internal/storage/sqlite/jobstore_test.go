package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/logsentinel/internal/common"
	"github.com/ternarybob/logsentinel/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(common.SQLiteConfig{Path: ":memory:"}, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJobStore_SaveAndLockJob(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	job := &models.Job{ID: "job1", LogFileID: "lf1", Type: models.JobTypeParse, Status: models.JobStatusPending}
	require.NoError(t, store.SaveJob(ctx, job))

	loaded, err := store.LockJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, "lf1", loaded.LogFileID)
	assert.Equal(t, models.JobStatusPending, loaded.Status)
}

func TestJobStore_LockJob_NotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())

	_, err := store.LockJob(context.Background(), "missing")
	require.Error(t, err)
}

func TestJobStore_LogFileRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	lf := &models.LogFile{ID: "lf1", Site: "site-a", Filename: "access.log", Size: 100, SHA256: "abc", StorageKey: "k1", Status: models.LogFileStatusUploaded, UploadedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, store.SaveLogFile(ctx, lf))

	loaded, err := store.GetLogFile(ctx, "lf1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, lf.Site, loaded.Site)
	assert.Equal(t, lf.UploadedAt.Unix(), loaded.UploadedAt.Unix())
}

func TestJobStore_GetLogFile_Missing(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())

	lf, err := store.GetLogFile(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, lf)
}

func TestJobStore_InsertErrorOccurrence_DedupsExactDuplicate(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	ts := time.Now().UTC().Truncate(time.Second)
	occ := models.ErrorOccurrence{
		GroupFingerprint: "fp1",
		Site:             "site-a",
		Timestamp:        ts,
		ErrorType:        "ValueError",
		Message:          "boom",
	}

	inserted, err := store.InsertErrorOccurrence(ctx, occ)
	require.NoError(t, err)
	assert.True(t, inserted)

	insertedAgain, err := store.InsertErrorOccurrence(ctx, occ)
	require.NoError(t, err)
	assert.False(t, insertedAgain, "redelivered duplicate must be a no-op insert")
}

func TestJobStore_UpsertErrorGroup_MergesFirstLastSeen(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	early := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	late := time.Now().UTC().Truncate(time.Second)

	g := &models.ErrorGroup{Site: "site-a", Fingerprint: "fp1", ErrorType: "ValueError", CanonicalMessage: "boom",
		FirstSeen: late, LastSeen: late, OccurrenceCount: 1, Status: models.ErrorStatusUnresolved}
	require.NoError(t, store.UpsertErrorGroup(ctx, g))

	g2 := &models.ErrorGroup{Site: "site-a", Fingerprint: "fp1", ErrorType: "ValueError", CanonicalMessage: "boom",
		FirstSeen: early, LastSeen: late, OccurrenceCount: 2, Status: models.ErrorStatusUnresolved}
	require.NoError(t, store.UpsertErrorGroup(ctx, g2))

	var firstSeen int64
	row := db.db.QueryRow(`SELECT first_seen FROM error_groups WHERE site = ? AND fingerprint = ?`, "site-a", "fp1")
	require.NoError(t, row.Scan(&firstSeen))
	assert.Equal(t, early.Unix(), firstSeen)
}

func TestJobStore_LoadBaselineSnapshots_OrderedAscending(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Hour)
	result := models.NewAggregationResult()
	idx := map[time.Time]*models.HourlyBucket{}
	b1 := result.BucketFor(base.Add(2*time.Hour), idx)
	b1.Add(models.LogEvent{Timestamp: base.Add(2 * time.Hour), Status: 200, IP: "1.1.1.1", Path: "/a"})
	b2 := result.BucketFor(base, idx)
	b2.Add(models.LogEvent{Timestamp: base, Status: 200, IP: "1.1.1.1", Path: "/a"})

	require.NoError(t, store.SaveAggregates(ctx, "site-a", "lf1", result, 5))

	snaps, err := store.LoadBaselineSnapshots(ctx, "site-a", base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Hour.Before(snaps[1].Hour))
}

func TestJobStore_SaveFindings_Persists(t *testing.T) {
	db := openTestDB(t)
	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	f := models.FindingCandidate{FindingType: "brute_force", Severity: models.SeverityHigh, Title: "t", Description: "d"}
	require.NoError(t, store.SaveFindings(ctx, "site-a", "lf1", []models.FindingCandidate{f}))

	var count int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM findings WHERE site = ?`, "site-a").Scan(&count))
	assert.Equal(t, 1, count)
}
