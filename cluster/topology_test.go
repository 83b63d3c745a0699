package cluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDiff_NoChange(t *testing.T) {
	snap := Snapshot{Primary: "a", Statuses: map[string]Node{
		"a": {Host: "a", Status: StatusOnline},
		"b": {Host: "b", Status: StatusOnline},
	}}
	cs := Diff(snap, snap.Clone())
	assert.True(t, cs.Empty(), "identical snapshots must diff to no changes (P1)")
}

func TestDiff_PrimaryChanged(t *testing.T) {
	old := Snapshot{Primary: "a", Statuses: map[string]Node{"a": {Host: "a", Status: StatusOnline}}}
	new := Snapshot{Primary: "b", Statuses: map[string]Node{"a": {Host: "a", Status: StatusOnline}}}

	cs := Diff(old, new)
	assert.True(t, cs.PrimaryChanged)
	assert.Equal(t, "a", cs.OldPrimary)
	assert.Equal(t, "b", cs.NewPrimary)
	assert.Empty(t, cs.StatusChanges)
}

func TestDiff_StatusChanged(t *testing.T) {
	old := Snapshot{Primary: "a", Statuses: map[string]Node{
		"a": {Host: "a", Status: StatusOnline},
		"b": {Host: "b", Status: StatusOnline},
	}}
	new := Snapshot{Primary: "a", Statuses: map[string]Node{
		"a": {Host: "a", Status: StatusOnline},
		"b": {Host: "b", Status: StatusBroken},
	}}

	cs := Diff(old, new)
	assert.False(t, cs.PrimaryChanged)
	want := []StatusChange{{Host: "b", From: StatusOnline, To: StatusBroken}}
	if diff := cmp.Diff(want, cs.StatusChanges); diff != "" {
		t.Errorf("StatusChanges mismatch (-want +got):\n%s", diff)
	}
}

func TestTopology_RebuildDropsUnrecognized(t *testing.T) {
	topo := NewTopology()
	topo.RebuildFromProxy(map[string]Status{"a": StatusOnline, "b": StatusOnline}, "a")
	topo.RebuildFromProxy(map[string]Status{"a": StatusOnline}, "a")

	snap := topo.Snapshot()
	_, ok := snap.Statuses["b"]
	assert.False(t, ok, "a node no longer recognized by the proxy must be removed on the next tick")
}

func TestTopology_SetPrimaryUpdatesRoles(t *testing.T) {
	topo := NewTopology()
	topo.RebuildFromProxy(map[string]Status{"a": StatusOnline, "b": StatusOnline}, "a")
	topo.SetPrimary("b")

	a, _ := topo.Node("a")
	b, _ := topo.Node("b")
	assert.Equal(t, RoleReplica, a.Role)
	assert.Equal(t, RolePrimary, b.Role)
	assert.Equal(t, "b", topo.Snapshot().Primary)
}
