package cluster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

// rawStatus is the proxy's own per-row status string (distinct from the
// unified Status this package exposes — a node can hold several rows
// across groups, each carrying its own raw status).
type rawStatus string

const (
	rawOnline  rawStatus = "ONLINE"
	rawOffline rawStatus = "OFFLINE"
)

// ProxyAdminClient operates on the proxy's admin endpoint: the routing
// table and its auxiliary KV table (spec.md §4.2). FailCount tracks
// consecutive failed operations per the teacher's failcount-escalation
// idiom in cluster/prx.go, exposed for observability only — it does not
// gate retries, which remain the Retry harness's job (retry.go).
type ProxyAdminClient interface {
	ListNodes(ctx context.Context, groups ...RoutingGroup) (map[string]bool, error)
	GetStatusMap(ctx context.Context, groups ...RoutingGroup) (map[string]Status, error)
	GetWriter(ctx context.Context) (string, error)
	SetWriter(ctx context.Context, hostname string, port int) error
	Quarantine(ctx context.Context, hostname string, port int) error
	SetRawStatus(ctx context.Context, hostname string, online bool) error

	KVInit(ctx context.Context) error
	KVGet(ctx context.Context, key string) (string, bool, error)
	KVUpsert(ctx context.Context, key, value string) error
	KVDelete(ctx context.Context, key string) error
}

// ErrSplitBrain is returned by GetWriter when more than one row is found
// in the writer group. This is observability-only: the caller must log
// and escalate, never self-correct (spec.md §4.2/§5).
var ErrSplitBrain = fmt.Errorf("split-brain: more than one row in writer group")

// SQLProxyAdminClient is the production ProxyAdminClient, speaking the
// proxy's own MySQL-protocol admin interface (ProxySQL-style), grounded
// on the teacher's Proxy struct / DatabaseProxy interface in
// cluster/prx.go, narrowed from its multi-proxy-type abstraction to the
// single admin protocol this spec requires.
type SQLProxyAdminClient struct {
	db          *sqlx.DB
	ConnTimeout time.Duration

	kvTable string

	FailCount int
}

// NewSQLProxyAdminClient dials the proxy admin endpoint. kvTable names the
// auxiliary key/value table (spec.md leaves the name to the
// implementation); "orchestrator_kv" is used here.
func NewSQLProxyAdminClient(ctx context.Context, user, pass, host string, port int) (*SQLProxyAdminClient, error) {
	connTimeout := 5 * time.Second
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=%s&interpolateParams=true", user, pass, host, port, connTimeout)
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLProxyAdminClient{db: db, ConnTimeout: connTimeout, kvTable: "orchestrator_kv"}, nil
}

func (c *SQLProxyAdminClient) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.ConnTimeout)
}

// persistServers runs LOAD MYSQL SERVERS TO RUNTIME and SAVE MYSQL SERVERS
// TO DISK, the two-phase runtime+durable contract every routing mutation
// must satisfy (spec.md §4.2 "Contracts").
func (c *SQLProxyAdminClient) persistServers(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "LOAD MYSQL SERVERS TO RUNTIME"); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, "SAVE MYSQL SERVERS TO DISK")
	return err
}

func (c *SQLProxyAdminClient) fail(err error) error {
	if err != nil {
		c.FailCount++
	} else {
		c.FailCount = 0
	}
	return err
}

// ListNodes returns the set of hostnames present in any of the given
// routing groups. Spec.md §4.2 names this as its own primitive distinct
// from GetStatusMap; the control loop currently only needs the combined
// per-node status GetStatusMap returns, so ListNodes has no production
// call site today. Kept as part of the C2 interface contract rather than
// removed — a future caller that only needs membership, not status
// (e.g. an external admin tool built on this package), should use this
// instead of computing it from GetStatusMap's keys.
func (c *SQLProxyAdminClient) ListNodes(ctx context.Context, groups ...RoutingGroup) (map[string]bool, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	ids := groupIDs(groups)
	query, args, err := sqlxIn("SELECT DISTINCT hostname FROM mysql_servers WHERE hostgroup_id IN (?)", ids)
	if err != nil {
		return nil, c.fail(err)
	}
	query = c.db.Rebind(query)
	var hosts []string
	if err := c.db.SelectContext(ctx, &hosts, query, args...); err != nil {
		return nil, c.fail(err)
	}
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[h] = true
	}
	return set, c.fail(nil)
}

type serverRow struct {
	Hostname    string `db:"hostname"`
	HostgroupID int    `db:"hostgroup_id"`
	Status      string `db:"status"`
}

// GetStatusMap combines rows across groups into the unified status
// (spec.md §4.2): in Q → broken; else every row ONLINE → online; else
// offline.
func (c *SQLProxyAdminClient) GetStatusMap(ctx context.Context, groups ...RoutingGroup) (map[string]Status, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	ids := groupIDs(groups)
	query, args, err := sqlxIn(
		"SELECT hostname, hostgroup_id, status FROM mysql_servers WHERE hostgroup_id IN (?)", ids)
	if err != nil {
		return nil, c.fail(err)
	}
	query = c.db.Rebind(query)
	var rows []serverRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, c.fail(err)
	}

	allOnline := make(map[string]bool)
	anyQuarantined := make(map[string]bool)
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.Hostname] {
			seen[r.Hostname] = true
			allOnline[r.Hostname] = true
		}
		if rawStatus(r.Status) != rawOnline {
			allOnline[r.Hostname] = false
		}
		if RoutingGroup(r.HostgroupID) == GroupQuarantine {
			anyQuarantined[r.Hostname] = true
		}
	}

	result := make(map[string]Status, len(seen))
	for host := range seen {
		switch {
		case anyQuarantined[host]:
			result[host] = StatusBroken
		case allOnline[host]:
			result[host] = StatusOnline
		default:
			result[host] = StatusOffline
		}
	}
	return result, c.fail(nil)
}

// GetWriter returns the single writer hostname, or ErrSplitBrain if more
// than one row exists in W.
func (c *SQLProxyAdminClient) GetWriter(ctx context.Context) (string, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	var hosts []string
	err := c.db.SelectContext(ctx, &hosts,
		"SELECT hostname FROM mysql_servers WHERE hostgroup_id = ?", GroupWriter)
	if err != nil {
		return "", c.fail(err)
	}
	if len(hosts) == 0 {
		return "", c.fail(nil)
	}
	if len(hosts) > 1 {
		LogPrintf("ERR00040", len(hosts))
		return "", c.fail(ErrSplitBrain)
	}
	return hosts[0], c.fail(nil)
}

// SetWriter atomically replaces every row in W with (W, hostname, port),
// then persists to runtime and disk (spec.md §4.2/§4.8 step 4).
func (c *SQLProxyAdminClient) SetWriter(ctx context.Context, hostname string, port int) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return c.fail(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM mysql_servers WHERE hostgroup_id = ?", GroupWriter); err != nil {
		return c.fail(err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO mysql_servers (hostgroup_id, hostname, port, status) VALUES (?, ?, ?, ?)",
		GroupWriter, hostname, port, rawOnline); err != nil {
		return c.fail(err)
	}
	if err := tx.Commit(); err != nil {
		return c.fail(err)
	}
	return c.fail(c.persistServers(ctx))
}

// Quarantine removes every row for hostname across groups and inserts
// (Q, hostname), then persists (spec.md §4.2, the "broken" node path).
func (c *SQLProxyAdminClient) Quarantine(ctx context.Context, hostname string, port int) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return c.fail(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM mysql_servers WHERE hostname = ?", hostname); err != nil {
		return c.fail(err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO mysql_servers (hostgroup_id, hostname, port, status) VALUES (?, ?, ?, ?)",
		GroupQuarantine, hostname, port, rawOnline); err != nil {
		return c.fail(err)
	}
	if err := tx.Commit(); err != nil {
		return c.fail(err)
	}
	return c.fail(c.persistServers(ctx))
}

// SetRawStatus updates the raw-status field for every row matching
// hostname in groups other than Q, then persists.
func (c *SQLProxyAdminClient) SetRawStatus(ctx context.Context, hostname string, online bool) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	status := rawOffline
	if online {
		status = rawOnline
	}
	_, err := c.db.ExecContext(ctx,
		"UPDATE mysql_servers SET status = ? WHERE hostname = ? AND hostgroup_id != ?",
		status, hostname, GroupQuarantine)
	if err != nil {
		return c.fail(err)
	}
	return c.fail(c.persistServers(ctx))
}

// KVInit ensures the auxiliary KV table exists. Idempotent. KVGet,
// KVUpsert and KVDelete do not call it themselves; Lock.Acquire calls it
// once at startup, before any other KV access, which is also where the
// dedicated fatal exit code comes from (spec.md §4.9).
func (c *SQLProxyAdminClient) KVInit(ctx context.Context) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	_, err := c.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (k VARCHAR(128) PRIMARY KEY, v VARCHAR(512) NOT NULL)", c.kvTable))
	return c.fail(err)
}

func (c *SQLProxyAdminClient) KVGet(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	var value string
	err := c.db.GetContext(ctx, &value, fmt.Sprintf("SELECT v FROM %s WHERE k = ?", c.kvTable), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, c.fail(nil)
		}
		return "", false, c.fail(err)
	}
	return value, true, c.fail(nil)
}

func (c *SQLProxyAdminClient) KVUpsert(ctx context.Context, key, value string) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	_, err := c.db.ExecContext(ctx,
		fmt.Sprintf("REPLACE INTO %s (k, v) VALUES (?, ?)", c.kvTable), key, value)
	return c.fail(err)
}

func (c *SQLProxyAdminClient) KVDelete(ctx context.Context, key string) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE k = ?", c.kvTable), key)
	return c.fail(err)
}

// Close releases the underlying connection pool.
func (c *SQLProxyAdminClient) Close() error { return c.db.Close() }

func groupIDs(groups []RoutingGroup) []int {
	ids := make([]int, len(groups))
	for i, g := range groups {
		ids[i] = int(g)
	}
	return ids
}

// sqlxIn expands an IN (?) placeholder for a slice of group IDs; it is a
// thin wrapper over sqlx.In shared by ListNodes and GetStatusMap.
func sqlxIn(query string, ids []int) (string, []interface{}, error) {
	return sqlx.In(query, ids)
}
