package cluster

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"
)

// ElectionResult is the outcome of Elect: either a unique winner hostname,
// or Ambiguous with Winner == "".
type ElectionResult struct {
	Winner    string
	Ambiguous bool
}

// Elect implements the Election Engine (C4). candidates maps hostname to
// last-observed GTID set for every reachable, non-broken node under
// consideration. probe and nodes resolve a hostname back to a connectable
// Node for the oracle query.
//
// Algorithm (spec.md §4.4): pick one candidate as containment oracle (the
// first in sorted-hostname order, for determinism). For each candidate a,
// ask the oracle whether gtid(b) ⊑ gtid(a) for every other candidate b. If
// that holds for all b, a is most-advanced and wins. If no candidate
// dominates all others, or the oracle is unreachable, the result is
// Ambiguous — no lexical string-comparison fallback (spec.md §9: that
// fallback is unsafe under divergence).
func Elect(ctx context.Context, probe NodeProbe, nodes map[string]Node, candidates map[string]GTIDSet) ElectionResult {
	if len(candidates) == 0 {
		return ElectionResult{Ambiguous: true}
	}

	hosts := make([]string, 0, len(candidates))
	for h := range candidates {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	oracleHost := hosts[0]
	oracle, ok := nodes[oracleHost]
	if !ok {
		log.WithField("oracle", oracleHost).Warn("election oracle not found among known nodes")
		return ElectionResult{Ambiguous: true}
	}

	for _, a := range hosts {
		dominatesAll := true
		for _, b := range hosts {
			if a == b {
				continue
			}
			subset, err := probe.GTIDSubset(ctx, oracle, candidates[b], candidates[a])
			if err != nil {
				LogPrintf("ERR00051", oracleHost)
				return ElectionResult{Ambiguous: true}
			}
			if !subset {
				dominatesAll = false
				break
			}
		}
		if dominatesAll {
			return ElectionResult{Winner: a}
		}
	}

	LogPrintf("ERR00050", len(hosts))
	return ElectionResult{Ambiguous: true}
}
