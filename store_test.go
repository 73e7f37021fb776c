package ensemble

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreLifecycle(t *testing.T) {
	store := NewInMemoryStore()
	pid := NewPID("actor-1")
	env := NewEnvelope(pid, "payload")

	require.NoError(t, store.Save(env))

	got, err := store.Get(env.ID)
	require.NoError(t, err)
	assert.Equal(t, "payload", got.Payload)

	status, err := store.GetStatus(env.ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryPending, status)

	require.NoError(t, store.MarkAsDelivered(env.ID))
	status, _ = store.GetStatus(env.ID)
	assert.Equal(t, DeliveryDelivered, status)

	unacked, err := store.GetUnacknowledged(pid)
	require.NoError(t, err)
	assert.Len(t, unacked, 1)

	require.NoError(t, store.MarkAsAcknowledged(env.ID))
	unacked, _ = store.GetUnacknowledged(pid)
	assert.Empty(t, unacked)

	require.NoError(t, store.Delete(env.ID))
	_, err = store.Get(env.ID)
	assert.Error(t, err)
}

func TestInMemoryStoreUnknownID(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Get("missing")
	assert.Error(t, err)
	err = store.MarkAsDelivered("missing")
	assert.Error(t, err)
}

func TestFileStoreLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	pid := NewPID("actor-1")
	env := NewEnvelope(pid, map[string]interface{}{"key": "value"})
	require.NoError(t, store.Save(env))

	got, err := store.Get(env.ID)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)

	status, err := store.GetStatus(env.ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryPending, status)

	require.NoError(t, store.MarkAsDelivered(env.ID))
	status, err = store.GetStatus(env.ID)
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, status)

	unacked, err := store.GetUnacknowledged(pid)
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, env.ID, unacked[0].ID)

	require.NoError(t, store.MarkAsAcknowledged(env.ID))
	unacked, err = store.GetUnacknowledged(pid)
	require.NoError(t, err)
	assert.Empty(t, unacked)

	require.NoError(t, store.Delete(env.ID))
	_, err = store.Get(env.ID)
	assert.Error(t, err)
}

// TestFileStoreSaveNeverLeavesPartialFile exercises the write-temp-then-rename
// path indirectly: repeated saves of the same id must always leave a single,
// fully readable JSON file behind, never a torn one.
func TestFileStoreSaveNeverLeavesPartialFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	pid := NewPID("actor-1")
	for i := 0; i < 20; i++ {
		env := NewEnvelope(pid, i)
		env.ID = "stable-id"
		require.NoError(t, store.Save(env))
	}

	got, err := store.Get("stable-id")
	require.NoError(t, err)
	assert.EqualValues(t, 19, got.Payload)
}

func TestFileStoreDeleteMissingIsNotError(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete("never-existed"))
}
