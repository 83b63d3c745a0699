package cluster

import (
	"fmt"
	"sort"
	"strings"
)

// renderDailyReportHTML builds the daily report body (spec.md §4.10):
// current primary, per-node table with status and (for replicas) lag.
func renderDailyReportHTML(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Daily Report</h2><p>Primary: %s</p>", orNone(snap.Primary))
	b.WriteString("<table border=\"1\"><tr><th>Host</th><th>Status</th><th>Role</th><th>Lag (s)</th></tr>")

	hosts := make([]string, 0, len(snap.Statuses))
	for h := range snap.Statuses {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	for _, h := range hosts {
		n := snap.Statuses[h]
		lag := "-"
		if n.Role == RoleReplica && n.LagSeconds != nil {
			lag = fmt.Sprintf("%d", *n.LagSeconds)
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>", h, n.Status, n.Role, lag)
	}
	b.WriteString("</table>")
	return b.String()
}

// renderChangeHTML builds the topology-change body (spec.md §4.10): old
// primary, new primary, per-node status diff. donors maps a host that
// just transitioned to broken to the rebuild donor SelectRebuildDonor
// suggests for it (SPEC_FULL.md §4.12); a host absent from donors either
// didn't transition to broken or had no eligible donor.
func renderChangeHTML(cs ChangeSet, donors map[string]string) string {
	var b strings.Builder
	b.WriteString("<h2>Topology Change</h2>")
	if cs.PrimaryChanged {
		fmt.Fprintf(&b, "<p>Primary: %s &rarr; %s</p>", orNone(cs.OldPrimary), orNone(cs.NewPrimary))
	}
	if len(cs.StatusChanges) > 0 {
		b.WriteString("<table border=\"1\"><tr><th>Host</th><th>From</th><th>To</th><th>Suggested rebuild donor</th></tr>")
		for _, sc := range cs.StatusChanges {
			donor := "-"
			if d, ok := donors[sc.Host]; ok {
				donor = d
			}
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>", sc.Host, orNone(string(sc.From)), sc.To, donor)
		}
		b.WriteString("</table>")
	}
	return b.String()
}

// renderSplitBrainHTML builds the split-brain escalation body. Not one of
// spec.md §6's four fixed subjects: split-brain is the escalation-only
// observation of spec.md §5/§7 ("if it ever observes a state that
// contradicts its last write — e.g. two writers — it must log and refuse
// to self-correct"), distinct from the routine topology-change template.
func renderSplitBrainHTML(primary string) string {
	return fmt.Sprintf(
		"<h2>Split-Brain Detected</h2><p>The proxy reports more than one row in the writer group "+
			"while the orchestrator's primary pointer is %s. No automatic correction was attempted; "+
			"operator intervention is required.</p>", orNone(primary))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
