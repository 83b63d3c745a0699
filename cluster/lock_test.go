package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKV implements the KV subset of ProxyAdminClient in memory, for
// testing Lock without a real proxy admin connection.
type fakeKV struct {
	ProxyAdminClient // nil embed: only KV* methods below are exercised by Lock
	store            map[string]string
	initErr          error
}

func newFakeKV() *fakeKV { return &fakeKV{store: map[string]string{}} }

func (f *fakeKV) KVInit(ctx context.Context) error { return f.initErr }

func (f *fakeKV) KVGet(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.store[key]
	return v, ok, nil
}

func (f *fakeKV) KVUpsert(ctx context.Context, key, value string) error {
	f.store[key] = value
	return nil
}

func (f *fakeKV) KVDelete(ctx context.Context, key string) error {
	delete(f.store, key)
	return nil
}

type fakeConfirmer struct {
	called  bool
	approve bool
}

func (c *fakeConfirmer) Confirm(prompt string) bool {
	c.called = true
	return c.approve
}

func TestLock_CleanStartup_NoConfirmationNeeded(t *testing.T) {
	kv := newFakeKV()
	lock := NewLock(kv)
	confirmer := &fakeConfirmer{}

	outcome, err := lock.Acquire(context.Background(), false, confirmer)
	require.NoError(t, err)
	assert.False(t, outcome.LockWasPresent)
	assert.False(t, outcome.Dangerous)
	assert.False(t, confirmer.called, "a clean startup must not prompt for confirmation")
	assert.Equal(t, "1", kv.store["lock"])
}

// TestLock_DanglingLock_RequiresConfirmation is B1: with the lock present
// and --ignore-start-warning=false, startup must read a confirmation.
func TestLock_DanglingLock_RequiresConfirmation(t *testing.T) {
	kv := newFakeKV()
	kv.store["lock"] = "1"
	lock := NewLock(kv)
	confirmer := &fakeConfirmer{approve: true}

	outcome, err := lock.Acquire(context.Background(), false, confirmer)
	require.NoError(t, err)
	assert.True(t, outcome.LockWasPresent)
	assert.True(t, outcome.Dangerous)
	assert.True(t, confirmer.called)
}

func TestLock_DanglingLock_DeclinedConfirmation_Aborts(t *testing.T) {
	kv := newFakeKV()
	kv.store["lock"] = "1"
	lock := NewLock(kv)
	confirmer := &fakeConfirmer{approve: false}

	_, err := lock.Acquire(context.Background(), false, confirmer)
	assert.Error(t, err)
}

// TestLock_DanglingLock_IgnoreWarning is B1's other half: with the flag
// true, it must not read from stdin (here: must not call Confirm at all).
func TestLock_DanglingLock_IgnoreWarning(t *testing.T) {
	kv := newFakeKV()
	kv.store["lock"] = "1"
	lock := NewLock(kv)
	confirmer := &fakeConfirmer{}

	outcome, err := lock.Acquire(context.Background(), true, confirmer)
	require.NoError(t, err)
	assert.True(t, outcome.Dangerous)
	assert.False(t, confirmer.called, "--ignore-start-warning must skip the confirmation prompt entirely")
}

func TestLock_KVInitFailure_IsFatal(t *testing.T) {
	kv := newFakeKV()
	kv.initErr = errors.New("cannot create table")
	lock := NewLock(kv)

	_, err := lock.Acquire(context.Background(), true, &fakeConfirmer{})
	assert.Error(t, err, "KV init failure must be surfaced as the fatal-config exit path")
	assert.True(t, errors.Is(err, ErrFatalKVInit), "must be detectable as the dedicated fatal-config exit code")
}

func TestLock_Release_DeletesKeys(t *testing.T) {
	kv := newFakeKV()
	lock := NewLock(kv)
	_, err := lock.Acquire(context.Background(), true, &fakeConfirmer{})
	require.NoError(t, err)

	require.NoError(t, lock.Release(context.Background()))
	_, present, _ := kv.KVGet(context.Background(), "lock")
	assert.False(t, present)
}
