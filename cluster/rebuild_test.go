package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lagPtr(v int) *int { return &v }

func TestSelectRebuildDonor_PrefersLowestLagReplica(t *testing.T) {
	snap := Snapshot{
		Primary: "primary1",
		Statuses: map[string]Node{
			"primary1": {Host: "primary1", Status: StatusOnline, Role: RolePrimary},
			"r1":       {Host: "r1", Status: StatusOnline, Role: RoleReplica, LagSeconds: lagPtr(30)},
			"r2":       {Host: "r2", Status: StatusOnline, Role: RoleReplica, LagSeconds: lagPtr(2)},
			"broken1":  {Host: "broken1", Status: StatusBroken, Role: RoleReplica},
		},
	}

	donor, ok := SelectRebuildDonor(snap, "broken1")
	assert.True(t, ok)
	assert.Equal(t, "r2", donor)
}

func TestSelectRebuildDonor_FallsBackToPrimary(t *testing.T) {
	snap := Snapshot{
		Primary: "primary1",
		Statuses: map[string]Node{
			"primary1": {Host: "primary1", Status: StatusOnline, Role: RolePrimary},
			"broken1":  {Host: "broken1", Status: StatusBroken, Role: RoleReplica},
		},
	}

	donor, ok := SelectRebuildDonor(snap, "broken1")
	assert.True(t, ok)
	assert.Equal(t, "primary1", donor)
}

func TestSelectRebuildDonor_NoneAvailable(t *testing.T) {
	snap := Snapshot{Statuses: map[string]Node{
		"broken1": {Host: "broken1", Status: StatusBroken},
	}}

	_, ok := SelectRebuildDonor(snap, "broken1")
	assert.False(t, ok)
}
