package cluster

import "context"

// ReplicationManager drives the idempotent "ensure node replicates from
// primary, healthy" operation and classifies the result into the node
// state machine transitions of spec.md §4.5. It holds no state of its own
// — it returns the new status and the caller applies it to its Topology,
// matching
// spec.md §4.6's "no operation blocks on I/O; all I/O is performed by
// callers" split between Topology (pure) and ReplicationManager (I/O).
type ReplicationManager struct {
	Probe NodeProbe
}

// NewReplicationManager constructs a manager over the given probe.
func NewReplicationManager(probe NodeProbe) *ReplicationManager {
	return &ReplicationManager{Probe: probe}
}

// Reconcile applies the state machine transition table of spec.md §4.5
// for one non-primary, non-broken node: if unreachable, it transitions to
// offline. If reachable, it calls ConfigureReplica and transitions
// according to the outcome (healthy -> online, persistent_failure ->
// broken, transient_failure leaves status unchanged until the next tick).
//
// Reconcile never mutates topology itself — it returns the outcome and
// lets the caller (ControlLoop) apply it to both Topology and the proxy,
// since those two writes must stay coordinated (spec.md §4.7 step 5).
func (r *ReplicationManager) Reconcile(ctx context.Context, n Node, primary Node) (Status, ReplicaOutcome) {
	if !r.Probe.Reachable(ctx, n) {
		return StatusOffline, TransientFailure
	}

	outcome, err := r.Probe.ConfigureReplica(ctx, n, primary)
	if err != nil {
		return n.Status, TransientFailure
	}

	switch outcome {
	case Healthy:
		return StatusOnline, Healthy
	case PersistentFailure:
		return StatusBroken, PersistentFailure
	default:
		// Transient failure: per spec.md §4.5, only a reachable node with a
		// persistent_failure classification moves to broken; a transient
		// failure on an already-online node does not regress it within the
		// same tick — the next tick's Reachable/ConfigureReplica call decides.
		if n.Status == StatusOnline {
			return StatusOnline, TransientFailure
		}
		return StatusOffline, TransientFailure
	}
}
