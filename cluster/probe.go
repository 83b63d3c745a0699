package cluster

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

// NodeProbe performs one-shot health, role, lag, and GTID queries on a
// single database node. A call never retries internally — retries are the
// Retry harness's responsibility (retry.go, spec.md §4.1/§4.3).
type NodeProbe interface {
	Reachable(ctx context.Context, n Node) bool
	GetGTID(ctx context.Context, n Node) (GTIDSet, bool)
	GetReplicationStatus(ctx context.Context, n Node) (RepStatus, bool)
	StopAndResetReplica(ctx context.Context, n Node) error
	ConfigureReplica(ctx context.Context, n Node, source Node) (ReplicaOutcome, error)
	// GTIDSubset asks this node (acting as containment oracle) whether
	// candidate is contained in reference, i.e. candidate ⊑ reference.
	GTIDSubset(ctx context.Context, oracle Node, candidate, reference GTIDSet) (bool, error)
}

// SQLNodeProbe is the production NodeProbe, speaking the MySQL wire
// protocol via jmoiron/sqlx, matching the teacher's DB-access idiom in
// cluster/prx.go (GetCluster() returning *sqlx.DB).
type SQLNodeProbe struct {
	User, Pass  string
	ConnTimeout time.Duration
	GracePeriod time.Duration
}

// NewSQLNodeProbe builds a probe using the given credentials. connTimeout
// defaults to 5s and gracePeriod to 2s per spec.md §4.1/§4.5 when zero.
func NewSQLNodeProbe(user, pass string, connTimeout, gracePeriod time.Duration) *SQLNodeProbe {
	if connTimeout <= 0 {
		connTimeout = 5 * time.Second
	}
	if gracePeriod <= 0 {
		gracePeriod = 2 * time.Second
	}
	return &SQLNodeProbe{User: user, Pass: pass, ConnTimeout: connTimeout, GracePeriod: gracePeriod}
}

func (p *SQLNodeProbe) dsn(n Node) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=%s&interpolateParams=true",
		p.User, p.Pass, n.Host, n.Port, p.ConnTimeout)
}

func (p *SQLNodeProbe) connect(ctx context.Context, n Node) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", p.dsn(n))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(ctx, p.ConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Reachable returns true iff a bounded-timeout connection succeeds and
// closes cleanly.
func (p *SQLNodeProbe) Reachable(ctx context.Context, n Node) bool {
	db, err := p.connect(ctx, n)
	if err != nil {
		return false
	}
	return db.Close() == nil
}

// GetGTID executes the global-executed-GTID query; returns false on query
// failure or a null result.
func (p *SQLNodeProbe) GetGTID(ctx context.Context, n Node) (GTIDSet, bool) {
	db, err := p.connect(ctx, n)
	if err != nil {
		return "", false
	}
	defer db.Close()

	var gtid sql.NullString
	ctx, cancel := context.WithTimeout(ctx, p.ConnTimeout)
	defer cancel()
	if err := db.GetContext(ctx, &gtid, "SELECT @@GLOBAL.gtid_executed"); err != nil {
		return "", false
	}
	if !gtid.Valid || gtid.String == "" {
		return "", false
	}
	return GTIDSet(gtid.String), true
}

type slaveStatusRow struct {
	MasterHost          sql.NullString `db:"Master_Host"`
	SlaveIORunning      sql.NullString `db:"Slave_IO_Running"`
	SlaveSQLRunning     sql.NullString `db:"Slave_SQL_Running"`
	SecondsBehindMaster sql.NullInt64  `db:"Seconds_Behind_Master"`
	LastError           sql.NullString `db:"Last_Error"`
}

// GetReplicationStatus returns the server's view of its own replication.
// Returns false when the node is not configured as a replica (no rows).
// Spec.md §4.1 names this as its own query, separate from the combined
// stop/repoint/verify ConfigureReplica does internally via the unexported
// showSlaveStatus helper; the control loop has no standalone need for a
// raw status read today; it is kept for external callers (daily-report
// lag detail beyond what Node.LagSeconds already carries, or an admin
// tool) that want the full RepStatus without driving a reconfiguration.
func (p *SQLNodeProbe) GetReplicationStatus(ctx context.Context, n Node) (RepStatus, bool) {
	db, err := p.connect(ctx, n)
	if err != nil {
		return RepStatus{}, false
	}
	defer db.Close()

	row, ok := p.showSlaveStatus(ctx, db)
	if !ok {
		return RepStatus{}, false
	}

	rs := RepStatus{
		SourceHost: row.MasterHost.String,
		IORunning:  row.SlaveIORunning.String == "Yes",
		SQLRunning: row.SlaveSQLRunning.String == "Yes",
		LastError:  row.LastError.String,
	}
	if row.SecondsBehindMaster.Valid {
		v := int(row.SecondsBehindMaster.Int64)
		rs.SecondsBehind = &v
	}
	return rs, true
}

func (p *SQLNodeProbe) showSlaveStatus(ctx context.Context, db *sqlx.DB) (slaveStatusRow, bool) {
	var row slaveStatusRow
	ctx, cancel := context.WithTimeout(ctx, p.ConnTimeout)
	defer cancel()
	rows, err := db.QueryxContext(ctx, "SHOW SLAVE STATUS")
	if err != nil {
		return row, false
	}
	defer rows.Close()
	if !rows.Next() {
		return row, false
	}
	if err := rows.StructScan(&row); err != nil {
		return row, false
	}
	if !row.MasterHost.Valid || row.MasterHost.String == "" {
		return row, false
	}
	return row, true
}

// StopAndResetReplica stops replication and clears the persisted replica
// configuration. Used during promotion (spec.md §4.8 step 5).
func (p *SQLNodeProbe) StopAndResetReplica(ctx context.Context, n Node) error {
	db, err := p.connect(ctx, n)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, p.ConnTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, "STOP SLAVE"); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "RESET SLAVE ALL")
	return err
}

// ConfigureReplica is idempotent: if n already replicates from source
// with both threads healthy, it returns Healthy without side effects
// (spec.md §4.5, P2). Otherwise it stops replication, issues a
// CHANGE-of-source, restarts, waits GracePeriod, re-reads, and classifies.
func (p *SQLNodeProbe) ConfigureReplica(ctx context.Context, n Node, source Node) (ReplicaOutcome, error) {
	db, err := p.connect(ctx, n)
	if err != nil {
		return TransientFailure, err
	}
	defer db.Close()

	if row, ok := p.showSlaveStatus(ctx, db); ok &&
		row.MasterHost.String == source.Host &&
		row.SlaveIORunning.String == "Yes" &&
		row.SlaveSQLRunning.String == "Yes" {
		return Healthy, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, p.ConnTimeout)
	defer cancel()

	if _, err := db.ExecContext(execCtx, "STOP SLAVE"); err != nil {
		return TransientFailure, err
	}

	const changeTo = "CHANGE MASTER TO MASTER_HOST=?, MASTER_USER=?, MASTER_PASSWORD=?, MASTER_AUTO_POSITION=1"
	if _, err := db.ExecContext(execCtx, changeTo, source.Host, p.User, p.Pass); err != nil {
		return TransientFailure, err
	}
	if _, err := db.ExecContext(execCtx, "START SLAVE"); err != nil {
		return TransientFailure, err
	}

	select {
	case <-time.After(p.GracePeriod):
	case <-ctx.Done():
		return TransientFailure, ctx.Err()
	}

	row, ok := p.showSlaveStatus(ctx, db)
	if !ok {
		return PersistentFailure, nil
	}
	if row.SlaveIORunning.String == "Yes" && row.SlaveSQLRunning.String == "Yes" {
		return Healthy, nil
	}
	if row.LastError.String != "" || row.SlaveSQLRunning.String == "No" {
		return PersistentFailure, nil
	}
	return TransientFailure, nil
}

// GTIDSubset evaluates candidate ⊑ reference on the oracle node, the
// remote containment predicate spec.md §3/§4.4 requires.
func (p *SQLNodeProbe) GTIDSubset(ctx context.Context, oracle Node, candidate, reference GTIDSet) (bool, error) {
	db, err := p.connect(ctx, oracle)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var result sql.NullBool
	ctx, cancel := context.WithTimeout(ctx, p.ConnTimeout)
	defer cancel()
	err = db.GetContext(ctx, &result, "SELECT GTID_SUBSET(?, ?)", string(candidate), string(reference))
	if err != nil {
		return false, err
	}
	return result.Valid && result.Bool, nil
}
