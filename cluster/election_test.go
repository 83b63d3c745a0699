package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProbe implements NodeProbe for unit tests, with GTIDSubset
// evaluated against a plain map keyed by (candidate, reference) pairs so
// tests can express arbitrary partial orders, including incomparable
// sets, without a real oracle.
type fakeProbe struct {
	subset       map[[2]GTIDSet]bool
	oracleErr    error
	reachable    map[string]bool
	gtids        map[string]GTIDSet
	configureOut map[string]ReplicaOutcome
	configureErr map[string]error
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{
		subset:       map[[2]GTIDSet]bool{},
		reachable:    map[string]bool{},
		gtids:        map[string]GTIDSet{},
		configureOut: map[string]ReplicaOutcome{},
		configureErr: map[string]error{},
	}
}

func (f *fakeProbe) Reachable(ctx context.Context, n Node) bool { return f.reachable[n.Host] }

func (f *fakeProbe) GetGTID(ctx context.Context, n Node) (GTIDSet, bool) {
	g, ok := f.gtids[n.Host]
	return g, ok
}

func (f *fakeProbe) GetReplicationStatus(ctx context.Context, n Node) (RepStatus, bool) {
	return RepStatus{}, false
}

func (f *fakeProbe) StopAndResetReplica(ctx context.Context, n Node) error { return nil }

func (f *fakeProbe) ConfigureReplica(ctx context.Context, n Node, source Node) (ReplicaOutcome, error) {
	return f.configureOut[n.Host], f.configureErr[n.Host]
}

func (f *fakeProbe) GTIDSubset(ctx context.Context, oracle Node, candidate, reference GTIDSet) (bool, error) {
	if f.oracleErr != nil {
		return false, f.oracleErr
	}
	return f.subset[[2]GTIDSet{candidate, reference}], nil
}

func nodeMap(hosts ...string) map[string]Node {
	m := make(map[string]Node, len(hosts))
	for _, h := range hosts {
		m[h] = Node{Host: h, Port: 3306}
	}
	return m
}

func TestElect_UniqueWinner(t *testing.T) {
	probe := newFakeProbe()
	gA, gB, gC := GTIDSet("a"), GTIDSet("b"), GTIDSet("c")
	// B dominates A and C: A⊑B, C⊑B, but not B⊑A or B⊑C.
	probe.subset[[2]GTIDSet{gA, gB}] = true
	probe.subset[[2]GTIDSet{gC, gB}] = true
	probe.subset[[2]GTIDSet{gB, gA}] = false
	probe.subset[[2]GTIDSet{gB, gC}] = false
	probe.subset[[2]GTIDSet{gA, gC}] = false
	probe.subset[[2]GTIDSet{gC, gA}] = false

	nodes := nodeMap("a-host", "b-host", "c-host")
	candidates := map[string]GTIDSet{"a-host": gA, "b-host": gB, "c-host": gC}

	result := Elect(context.Background(), probe, nodes, candidates)
	require.False(t, result.Ambiguous)
	assert.Equal(t, "b-host", result.Winner)
}

func TestElect_Ambiguous_Incomparable(t *testing.T) {
	probe := newFakeProbe()
	gB, gC := GTIDSet("b"), GTIDSet("c")
	// Neither dominates: B⊄C and C⊄B.
	probe.subset[[2]GTIDSet{gB, gC}] = false
	probe.subset[[2]GTIDSet{gC, gB}] = false

	nodes := nodeMap("b-host", "c-host")
	candidates := map[string]GTIDSet{"b-host": gB, "c-host": gC}

	result := Elect(context.Background(), probe, nodes, candidates)
	assert.True(t, result.Ambiguous)
}

func TestElect_TieBreakSortedHostname(t *testing.T) {
	probe := newFakeProbe()
	g := GTIDSet("same")
	// Equal sets are mutually contained under ⊑.
	probe.subset[[2]GTIDSet{g, g}] = true

	nodes := nodeMap("zeta", "alpha")
	candidates := map[string]GTIDSet{"zeta": g, "alpha": g}

	result := Elect(context.Background(), probe, nodes, candidates)
	require.False(t, result.Ambiguous)
	assert.Equal(t, "alpha", result.Winner, "sorted-hostname tie-break must pick the lexicographically first host")
}

func TestElect_OracleUnreachable(t *testing.T) {
	probe := newFakeProbe()
	probe.oracleErr = errors.New("connection refused")

	nodes := nodeMap("a-host", "b-host")
	candidates := map[string]GTIDSet{"a-host": "x", "b-host": "y"}

	result := Elect(context.Background(), probe, nodes, candidates)
	assert.True(t, result.Ambiguous, "oracle failure must yield ambiguous, never a lexical fallback")
}

func TestElect_NoCandidates(t *testing.T) {
	probe := newFakeProbe()
	result := Elect(context.Background(), probe, nodeMap(), map[string]GTIDSet{})
	assert.True(t, result.Ambiguous)
}
