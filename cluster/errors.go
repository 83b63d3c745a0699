package cluster

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// orchestratorError maps error codes to format strings, in the style of
// the error taxonomy spec.md §7 enumerates by kind. Codes are grouped by
// kind so a reader can tell the policy band a given error belongs to from
// its code alone.
var orchestratorError = map[string]string{
	// Transient I/O
	"ERR00010": "node %s unreachable: %s",
	"ERR00011": "connection to node %s timed out after %s",
	"ERR00012": "could not read replication status from %s: %s",

	// Proxy write failure
	"ERR00020": "proxy write rejected for %s: %s",
	"ERR00021": "set_writer(%s) failed, will retry next tick: %s",
	"ERR00022": "quarantine(%s) failed, will retry next tick: %s",

	// Persistent replication failure
	"ERR00030": "node %s failed to configure replication from %s persistently: %s",
	"ERR00031": "marking node %s broken and quarantining in proxy",

	// Split-brain observation
	"ERR00040": "split-brain: %d rows present in writer group, expected 1",

	// Election ambiguity
	"ERR00050": "election ambiguous among %d candidates: no single node dominates",
	"ERR00051": "election oracle %s unreachable, election aborted",

	// Quorum loss
	"ERR00060": "quorum lost: %d online of %d recognized, need %d",

	// Fatal config
	"ERR00070": "auxiliary KV table could not be initialized: %s",
	"ERR00071": "required flag missing: %s",

	// Warnings (non-fatal, informational)
	"WARN0001": "proxy reports node %s in an unexpected group combination",
	"WARN0002": "daily report already sent today, skipping",
	"WARN0003": "lock key present at startup: previous run exited uncleanly",
}

// orchestratorErrorf formats a coded error message, matching the teacher's
// clusterError map but message-only: callers attach the code via logrus
// fields rather than embedding it in the string, so structured log
// consumers can filter on code without parsing text.
func orchestratorErrorf(code string, args ...interface{}) string {
	format, ok := orchestratorError[code]
	if !ok {
		return fmt.Sprintf("unknown error code %s", code)
	}
	return fmt.Sprintf(format, args...)
}

// LogPrintf emits a structured log line carrying the error code as a
// field, mirroring the teacher's cluster.LogPrintf helper.
func LogPrintf(code string, args ...interface{}) {
	log.WithField("code", code).Error(orchestratorErrorf(code, args...))
}

// LogWarnf is LogPrintf's warning-level counterpart.
func LogWarnf(code string, args ...interface{}) {
	log.WithField("code", code).Warn(orchestratorErrorf(code, args...))
}
