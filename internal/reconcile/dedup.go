package reconcile

import (
	"fmt"
	"time"

	"github.com/jthorburn/photosync/internal/store"
)

// DedupIndex answers "has this asset already been recorded for this
// account". It is a derived view over the ledger: the full key set is
// loaded once per reconciliation pass, membership checks run in memory,
// and new marks are flushed back in one batched insert.
type DedupIndex struct {
	st      *store.Store
	account string
	keys    map[string]struct{}
	pending []store.LedgerEntry
}

// NewDedupIndex loads the ledger key set for the account.
func NewDedupIndex(st *store.Store, account string) (*DedupIndex, error) {
	keys, err := st.LedgerKeys(account)
	if err != nil {
		return nil, fmt.Errorf("loading ledger keys: %w", err)
	}

	return &DedupIndex{
		st:      st,
		account: account,
		keys:    keys,
	}, nil
}

// Contains reports whether the composite identity is already recorded.
func (d *DedupIndex) Contains(localIdentifier string, createdAt time.Time) bool {
	_, ok := d.keys[store.LedgerKey(localIdentifier, createdAt)]
	return ok
}

// Mark records the identity in memory and stages it for the next Flush.
// Marking the same identity twice within a pass is a no-op.
func (d *DedupIndex) Mark(localIdentifier string, createdAt time.Time) {
	key := store.LedgerKey(localIdentifier, createdAt)
	if _, ok := d.keys[key]; ok {
		return
	}

	d.keys[key] = struct{}{}
	d.pending = append(d.pending, store.LedgerEntry{
		Account:         d.account,
		LocalIdentifier: localIdentifier,
		CreatedAt:       createdAt.UnixMilli(),
	})
}

// Flush persists all staged marks in one transaction.
func (d *DedupIndex) Flush() error {
	if len(d.pending) == 0 {
		return nil
	}

	if err := d.st.InsertLedger(d.account, d.pending); err != nil {
		return fmt.Errorf("inserting ledger entries: %w", err)
	}

	d.pending = nil

	return nil
}

// Pending returns the number of staged, unflushed marks.
func (d *DedupIndex) Pending() int {
	return len(d.pending)
}
