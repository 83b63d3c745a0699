package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

const lockKey = "lock"

// ErrFatalKVInit is returned (wrapped) by Acquire when the auxiliary KV
// table cannot be brought into existence. This is the one fatal-config
// condition spec.md §6/§7 calls out with a dedicated process exit code
// (1001) rather than the generic error path every other failure kind
// takes.
var ErrFatalKVInit = errors.New("auxiliary KV table could not be initialized")

// Confirmer abstracts the interactive yes/no prompt spec.md §8 B1
// requires at a dangerous startup, so tests can inject deterministic
// responses instead of reading a real terminal (spec.md §9 design note).
type Confirmer interface {
	Confirm(prompt string) bool
}

// StdinConfirmer reads a single line from stdin and treats "y"/"yes"
// (case-insensitively) as confirmation.
type StdinConfirmer struct{}

func (StdinConfirmer) Confirm(prompt string) bool {
	fmt.Print(prompt)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}

// Lock implements the durable single-instance lock of spec.md §4.9,
// backed by the proxy's auxiliary KV table.
type Lock struct {
	KV     ProxyAdminClient
	Holder string // "hostname/UUID", recorded alongside the lock for audit (SPEC_FULL.md §4.10)
}

// NewLock builds a Lock whose holder token combines the local hostname
// with a fresh UUID, replacing the teacher's hand-rolled misc.GetUUID
// with the pack-wide google/uuid convention.
func NewLock(kv ProxyAdminClient) *Lock {
	host, _ := os.Hostname()
	return &Lock{KV: kv, Holder: fmt.Sprintf("%s/%s", host, uuid.NewString())}
}

// StartupOutcome records which path Acquire took, for the start
// notification (spec.md §4.9: "Record which path was taken").
type StartupOutcome struct {
	LockWasPresent bool
	Dangerous      bool // true iff a prior uncleanly-held lock was overridden
}

// Acquire implements spec.md §4.9's startup sequence. It ensures the KV
// table exists (returning an error the caller must treat as fatal config
// per spec.md §7 if it cannot), then inspects the lock key: absent means
// clean startup; present means the previous run exited uncleanly, and the
// caller must either get interactive confirmation (confirmer) or proceed
// unconditionally when ignoreWarning is set.
func (l *Lock) Acquire(ctx context.Context, ignoreWarning bool, confirmer Confirmer) (StartupOutcome, error) {
	if err := l.KV.KVInit(ctx); err != nil {
		LogPrintf("ERR00070", err)
		return StartupOutcome{}, fmt.Errorf("%w: %w", ErrFatalKVInit, err)
	}

	_, present, err := l.KV.KVGet(ctx, lockKey)
	if err != nil {
		return StartupOutcome{}, err
	}

	outcome := StartupOutcome{LockWasPresent: present}
	if present {
		if !ignoreWarning {
			if !confirmer.Confirm("previous run exited uncleanly; continue anyway? [y/N] ") {
				return outcome, fmt.Errorf("startup aborted: lock present, confirmation declined")
			}
		}
		outcome.Dangerous = true
	}

	if err := l.KV.KVUpsert(ctx, lockKey, "1"); err != nil {
		return outcome, err
	}
	_ = l.KV.KVUpsert(ctx, "lock_holder", l.Holder)
	return outcome, nil
}

// Release deletes the lock at orderly shutdown (spec.md §4.9). Any
// non-orderly exit leaves it set, which is the intended signal for the
// next startup.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.KV.KVDelete(ctx, lockKey); err != nil {
		return err
	}
	return l.KV.KVDelete(ctx, "lock_holder")
}
