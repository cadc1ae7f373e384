package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epfl-sti/epflws/internal/domain/model"
)

func TestLabSyncService_SyncAll(t *testing.T) {
	labs, _, store, dir := services(t)
	ctx := context.Background()

	dir.addUnit(labEntry("1", "ALAB"), 3)
	dir.addUnit(labEntry("2", "BLAB"), 2)
	dir.addUnit(labEntry("3", "CLAB"), 0)
	for _, abbrev := range []string{"ALAB", "BLAB", "CLAB"} {
		lab, err := labs.GetOrCreateByAbbrev(ctx, abbrev)
		require.NoError(t, err)
		require.NoError(t, labs.Sync(ctx, lab))
	}

	// BLAB исчезает из каталога, у CLAB появляется дубликат
	dir.units = []*model.DirectoryEntry{labEntry("1", "ALAB"), labEntry("3", "CLAB"), labEntry("3", "CLAB2")}

	svc := NewLabSyncService(labs, store.SyncState, "ou=sti,o=epfl,c=ch", 0, testLogger())

	last, err := svc.LastSyncAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	result, err := svc.SyncAll(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "ou=sti,o=epfl,c=ch", result.DNSuffix)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.NotFound)
	assert.Equal(t, 1, result.Unicity)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))

	last, err = svc.LastSyncAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, result.CompletedAt, *last, time.Second)
}

func TestLabSyncService_SyncAll_OtherSuffix(t *testing.T) {
	labs, _, store, dir := services(t)
	ctx := context.Background()
	dir.addUnit(labEntry("1", "ALAB"), 3)

	lab, err := labs.GetOrCreateByAbbrev(ctx, "ALAB")
	require.NoError(t, err)
	require.NoError(t, labs.Sync(ctx, lab))

	svc := NewLabSyncService(labs, store.SyncState, "ou=sti,o=epfl,c=ch", 0, testLogger())
	result, err := svc.SyncAll(ctx, "ou=ic,o=epfl,c=ch")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}

func TestLabSyncService_StartStop(t *testing.T) {
	labs, _, store, dir := services(t)
	dir.addUnit(labEntry("1", "ALAB"), 3)

	// Нулевой интервал: Start ничего не запускает, Stop не блокируется
	disabled := NewLabSyncService(labs, store.SyncState, "ou=sti,o=epfl,c=ch", 0, testLogger())
	disabled.Start(context.Background())
	disabled.Stop()

	svc := NewLabSyncService(labs, store.SyncState, "ou=sti,o=epfl,c=ch", 20*time.Millisecond, testLogger())
	svc.Start(context.Background())

	assert.Eventually(t, func() bool {
		last, err := svc.LastSyncAt(context.Background())
		return err == nil && last != nil
	}, 5*time.Second, 20*time.Millisecond)

	svc.Stop()
}
