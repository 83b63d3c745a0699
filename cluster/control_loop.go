package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Notifier is the consumer-side interface for change/lifecycle
// notifications (spec.md §9 design note: "Notifier is an interface;
// the stdout-fallback is a concrete implementation, not a branch inside
// the notifier"). Implementations live in package notify.
type Notifier interface {
	Send(ctx context.Context, subject, html string) error
}

// ControlLoopConfig holds the fixed parameters of a tick, matching the
// defaults spec.md §4.1/§4.7/§6 prescribes.
type ControlLoopConfig struct {
	TickInterval     time.Duration // T_tick, default 1s
	MasterRetries    int           // attempts before declaring primary unreachable
	MasterRetryDelay time.Duration
	ReportHourUTC    int // 0-23
	DefaultPort      int
}

// DefaultControlLoopConfig returns spec.md's stated defaults.
func DefaultControlLoopConfig() ControlLoopConfig {
	return ControlLoopConfig{
		TickInterval:     time.Second,
		MasterRetries:    2,
		MasterRetryDelay: 4 * time.Second,
		ReportHourUTC:    12,
		DefaultPort:      3306,
	}
}

// ControlLoop is the single-threaded scheduling loop of spec.md §4.7/§5.
// It owns the Topology (C6) and drives C1-C5 through each tick; C8 runs
// only at Run's entry/exit. This is the explicit ControlLoopState value
// spec.md §9 calls for — no package-level mutable globals, unlike the
// teacher's global RepMan (server/server.go).
type ControlLoop struct {
	cfg ControlLoopConfig

	Topology *Topology
	Proxy    ProxyAdminClient
	Probe    NodeProbe
	Repl     *ReplicationManager
	Notifier Notifier
	Lock     *Lock

	// ConsoleStatus, when non-nil, receives one WriteConsoleStatusLine
	// render per tick (SPEC_FULL.md §4.13), independent of the log file.
	// Left nil to disable (the --console-status flag's off position).
	ConsoleStatus io.Writer

	retryPolicy RetryPolicy

	mu                  sync.Mutex
	lastDailyReportDate string // "2006-01-02", UTC
	stopCh              chan struct{}
	stopped             bool

	// now is overridable for tests; defaults to time.Now.
	now func() time.Time
}

// NewControlLoop wires the components together.
func NewControlLoop(cfg ControlLoopConfig, proxy ProxyAdminClient, probe NodeProbe, notifier Notifier) *ControlLoop {
	return &ControlLoop{
		cfg:         cfg,
		Topology:    NewTopology(),
		Proxy:       proxy,
		Probe:       probe,
		Repl:        NewReplicationManager(probe),
		Notifier:    notifier,
		Lock:        NewLock(proxy),
		retryPolicy: RetryPolicy{Interval: cfg.MasterRetryDelay, MaxRetries: cfg.MasterRetries},
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}
}

// Stop triggers orderly shutdown: the running loop finishes its current
// tick's action phase, then exits via the cleanup path (spec.md §5
// "Cancellation & timeouts").
func (cl *ControlLoop) Stop() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if !cl.stopped {
		cl.stopped = true
		close(cl.stopCh)
	}
}

// Run starts the lock/lifecycle sequence, then loops Tick every
// TickInterval until Stop is called or ctx is cancelled, then releases
// the lock and sends the stop notification.
func (cl *ControlLoop) Run(ctx context.Context, ignoreStartWarning bool, confirmer Confirmer) error {
	outcome, err := cl.Lock.Acquire(ctx, ignoreStartWarning, confirmer)
	if err != nil {
		return err
	}
	cl.sendStartNotification(ctx, outcome)

	ticker := time.NewTicker(cl.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return cl.shutdown(context.Background())
		case <-cl.stopCh:
			return cl.shutdown(context.Background())
		case <-ticker.C:
			if err := cl.Tick(ctx); err != nil {
				log.WithError(err).Warn("tick failed")
			}
		}
	}
}

func (cl *ControlLoop) shutdown(ctx context.Context) error {
	if err := cl.Lock.Release(ctx); err != nil {
		log.WithError(err).Error("failed to release lock at shutdown")
	}
	subject := "Orchestrator Script Stopped Safely"
	body := fmt.Sprintf("<p>Stopped at %s</p>", cl.now().UTC().Format(time.RFC3339))
	if err := cl.Notifier.Send(ctx, subject, body); err != nil {
		log.WithError(err).Warn("stop notification failed")
	}
	return nil
}

func (cl *ControlLoop) sendStartNotification(ctx context.Context, outcome StartupOutcome) {
	subject := "Orchestrator Script Started"
	if outcome.Dangerous {
		subject = "WARNING: Orchestrator Script Started Dangerously"
	}
	body := fmt.Sprintf("<p>Started at %s. Dangerous start: %v.</p>",
		cl.now().UTC().Format(time.RFC3339), outcome.Dangerous)
	if err := cl.Notifier.Send(ctx, subject, body); err != nil {
		log.WithError(err).Warn("start notification failed")
	}
}

// Tick executes exactly one control-loop iteration, in the fixed order
// spec.md §4.7 prescribes. It is exported so tests can drive individual
// ticks deterministically.
func (cl *ControlLoop) Tick(ctx context.Context) error {
	cl.dailyReportGate(ctx)

	old := cl.Topology.Snapshot()

	recognizedStatus, err := cl.Proxy.GetStatusMap(ctx, GroupWriter, GroupReader, GroupQuarantine)
	if err != nil {
		LogPrintf("ERR00010", "proxy", err)
		return err
	}
	cl.Topology.RebuildFromProxy(recognizedStatus, old.Primary)
	cl.fillDefaultPorts()

	formerPrimaryLost := false
	if old.Primary != "" {
		if _, recognized := recognizedStatus[old.Primary]; !recognized {
			formerPrimaryLost = true
		} else if n, ok := cl.Topology.Node(old.Primary); ok {
			reachable, _ := Retry(ctx, cl.retryPolicy, func() (bool, bool) {
				r := cl.Probe.Reachable(ctx, n)
				return r, r
			})
			if !reachable {
				formerPrimaryLost = true
				cl.Topology.Mark(old.Primary, StatusOffline)
			}
		}
	}

	if old.Primary == "" || formerPrimaryLost {
		cl.failover(ctx, formerPrimaryLost)
	}

	cl.reconcileReplicas(ctx)

	newSnap := cl.Topology.Snapshot()
	cs := Diff(old, newSnap)
	if !cs.Empty() {
		cl.sendChangeNotification(ctx, cs, newSnap)
	}

	cl.checkWriterConsistency(ctx, newSnap)

	if cl.ConsoleStatus != nil {
		WriteConsoleStatusLine(cl.ConsoleStatus, newSnap)
	}
	return nil
}

// checkWriterConsistency implements spec.md §5's escalation-only policy
// and invariant I3: it reads the proxy's own view of the writer group
// once per tick and, if the proxy reports split-brain (more than one
// writer row), notifies but never self-corrects — the next tick's
// failover/reconcile path is the only thing allowed to change routing.
// GetWriter itself already logs ERR00040 with the observed row count, so
// this only adds the notification. A plain mismatch between the primary
// pointer and a single observed writer is left for the next tick's
// SetWriter/failover path to resolve; it is not itself an error
// condition.
func (cl *ControlLoop) checkWriterConsistency(ctx context.Context, snap Snapshot) {
	_, err := cl.Proxy.GetWriter(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, ErrSplitBrain) {
		cl.sendSplitBrainNotification(ctx, snap.Primary)
		return
	}
	LogPrintf("ERR00010", "writer-group", err)
}

func (cl *ControlLoop) sendSplitBrainNotification(ctx context.Context, primary string) {
	body := renderSplitBrainHTML(primary)
	if err := cl.Notifier.Send(ctx, "ALERT: MySQL Proxy Split-Brain Detected", body); err != nil {
		log.WithError(err).Warn("split-brain notification failed")
	}
}

func (cl *ControlLoop) fillDefaultPorts() {
	snap := cl.Topology.Snapshot()
	for _, n := range snap.Statuses {
		if n.Port == 0 {
			n.Port = cl.cfg.DefaultPort
			cl.Topology.Update(n)
		}
	}
}

func (cl *ControlLoop) dailyReportGate(ctx context.Context) {
	now := cl.now().UTC()
	if now.Hour() != cl.cfg.ReportHourUTC {
		return
	}
	today := now.Format("2006-01-02")

	cl.mu.Lock()
	already := cl.lastDailyReportDate == today
	if !already {
		cl.lastDailyReportDate = today
	}
	cl.mu.Unlock()

	if already {
		LogWarnf("WARN0002")
		return
	}
	cl.sendDailyReport(ctx)
}

func (cl *ControlLoop) sendDailyReport(ctx context.Context) {
	snap := cl.Topology.Snapshot()
	body := renderDailyReportHTML(snap)
	if err := cl.Notifier.Send(ctx, "Orchestrator Daily Report", body); err != nil {
		log.WithError(err).Warn("daily report notification failed")
	}
}

// sendChangeNotification emits the topology-change notification. Per
// SPEC_FULL.md §4.12, any status change landing on broken gets a suggested
// rebuild donor attached, computed against the post-change snapshot so the
// broken node itself is excluded as a candidate.
func (cl *ControlLoop) sendChangeNotification(ctx context.Context, cs ChangeSet, newSnap Snapshot) {
	donors := make(map[string]string, len(cs.StatusChanges))
	for _, sc := range cs.StatusChanges {
		if sc.To != StatusBroken {
			continue
		}
		if donor, ok := SelectRebuildDonor(newSnap, sc.Host); ok {
			donors[sc.Host] = donor
		}
	}

	body := renderChangeHTML(cs, donors)
	if err := cl.Notifier.Send(ctx, "ALERT: MySQL Topology Change Detected", body); err != nil {
		log.WithError(err).Warn("change notification failed")
	}
}

// failover implements spec.md §4.8. formerPrimaryLost indicates whether
// the prior primary itself is among the unrecognized/unreachable nodes,
// which governs whether a failed promotion clears the primary pointer
// entirely (S6) versus leaving it alone (the "collect candidates" abort
// path, step 1).
func (cl *ControlLoop) failover(ctx context.Context, formerPrimaryLost bool) {
	snap := cl.Topology.Snapshot()
	n := len(snap.Statuses)
	quorum := n/2 + 1

	// Quorum and candidacy are both evaluated against live reachability
	// here, not the stale recorded status: per-replica reconcile (step 5)
	// hasn't run yet this tick, so snap.Statuses still reflects last
	// tick's view for everyone except the primary just checked in step 4.
	onlineCount := 0
	candidates := make([]Node, 0, len(snap.Statuses))
	for host, node := range snap.Statuses {
		if node.Status == StatusBroken {
			continue
		}
		reachable := cl.Probe.Reachable(ctx, node)
		if reachable {
			onlineCount++
		}
		if host == snap.Primary {
			continue
		}
		if reachable {
			candidates = append(candidates, node)
		}
	}

	if len(candidates) == 0 {
		log.Warn("failover: no reachable candidates, aborting this tick")
		return
	}

	if onlineCount < quorum {
		LogPrintf("ERR00060", onlineCount, n, quorum)
		if formerPrimaryLost {
			cl.Topology.SetPrimary("")
		}
		return
	}

	gtids := make(map[string]GTIDSet, len(candidates))
	nodesByHost := make(map[string]Node, len(candidates))
	for _, c := range candidates {
		if g, ok := cl.Probe.GetGTID(ctx, c); ok {
			gtids[c.Host] = g
			nodesByHost[c.Host] = c
		}
	}

	result := Elect(ctx, cl.Probe, nodesByHost, gtids)
	if result.Ambiguous {
		cl.Topology.SetPrimary("")
		return
	}

	winner := nodesByHost[result.Winner]

	setWriterOK, _ := Retry(ctx, RetryPolicy{Interval: cl.cfg.MasterRetryDelay, MaxRetries: 3}, func() (bool, bool) {
		err := cl.Proxy.SetWriter(ctx, winner.Host, winner.Port)
		return err == nil, err == nil
	})
	if !setWriterOK {
		LogPrintf("ERR00021", winner.Host, "retries exhausted")
		return
	}

	_, _ = Retry(ctx, RetryPolicy{Interval: cl.cfg.MasterRetryDelay, MaxRetries: 3}, func() (bool, bool) {
		err := cl.Probe.StopAndResetReplica(ctx, winner)
		return err == nil, err == nil
	})

	cl.Topology.SetPrimary(winner.Host)
	cl.Topology.Mark(winner.Host, StatusOnline)
}

func (cl *ControlLoop) reconcileReplicas(ctx context.Context) {
	snap := cl.Topology.Snapshot()
	if snap.Primary == "" {
		return
	}
	primary, ok := cl.Topology.Node(snap.Primary)
	if !ok {
		return
	}

	for host, n := range snap.Statuses {
		if host == snap.Primary || n.Status == StatusBroken {
			continue
		}

		prevStatus := n.Status

		if !cl.Probe.Reachable(ctx, n) {
			cl.Topology.Mark(host, StatusOffline)
			if prevStatus != StatusOffline {
				if err := cl.Proxy.SetRawStatus(ctx, host, false); err != nil {
					LogPrintf("ERR00020", host, err)
				}
			}
			continue
		}

		newStatus, _ := cl.Repl.Reconcile(ctx, n, primary)
		cl.Topology.Mark(host, newStatus)
		if newStatus == prevStatus {
			// P1: reconciling an already-settled node must not re-issue a
			// proxy write just because it observed the same state again.
			continue
		}

		switch newStatus {
		case StatusBroken:
			LogPrintf("ERR00031", host)
			if err := cl.Proxy.Quarantine(ctx, host, n.Port); err != nil {
				LogPrintf("ERR00022", host, err)
			}
		case StatusOnline:
			if err := cl.Proxy.SetRawStatus(ctx, host, true); err != nil {
				LogPrintf("ERR00020", host, err)
			}
		case StatusOffline:
			if err := cl.Proxy.SetRawStatus(ctx, host, false); err != nil {
				LogPrintf("ERR00020", host, err)
			}
		}
	}
}
