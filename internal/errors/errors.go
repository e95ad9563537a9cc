package errors

import "errors"

// Reconciliation errors.
var (
	ErrListingFetch    = errors.New("remote listing fetch failed")
	ErrFolderCreate    = errors.New("destination folder creation failed")
	ErrAccountNotFound = errors.New("account not found")
)

// Store errors.
var (
	ErrLedgerIdentity = errors.New("ledger entry missing creation timestamp")
)
