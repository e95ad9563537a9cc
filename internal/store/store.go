package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	pserrors "github.com/jthorburn/photosync/internal/errors"
)

const (
	// storeDirPerm is the permission mode for the state directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the state database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt database lock.
	storeOpenTimeout = 5 * time.Second
)

// keySep joins the path components of a metadata key. NUL cannot appear
// in a server URL or file name, so splitting back is unambiguous.
const keySep = "\x00"

func metaBucket(account string) []byte {
	return []byte("account:" + account + ":meta")
}

func dirBucket(account string) []byte {
	return []byte("account:" + account + ":dir")
}

func ledgerBucket(account string) []byte {
	return []byte("account:" + account + ":ledger")
}

func metaKey(serverURL, fileName string) []byte {
	return []byte(serverURL + keySep + fileName)
}

// Store wraps a bbolt database holding the three persisted record kinds:
// file metadata, directory snapshots and the local-asset ledger. It is
// safe for concurrent readers; writers for one account scope are expected
// to be serialized by the reconcilers' coalescing, not by extra locking
// here.
type Store struct {
	db *bolt.DB

	// writes counts committed write transactions, for tests and the
	// status log line. Reads do not count.
	writes atomic.Int64
}

// Open opens the store database at the given path, creating it and its
// parent directory if they do not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Writes returns the number of committed write transactions since Open.
func (s *Store) Writes() int64 {
	return s.writes.Load()
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	if err := s.db.Update(fn); err != nil {
		return err
	}

	s.writes.Add(1)

	return nil
}

// Metadata returns the record for (account, serverURL, fileName), or nil
// if not found.
func (s *Store) Metadata(account, serverURL, fileName string) (*FileMetadata, error) {
	var rec *FileMetadata

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(account))
		if b == nil {
			return nil
		}

		v := b.Get(metaKey(serverURL, fileName))
		if v == nil {
			return nil
		}

		rec = &FileMetadata{}

		return json.Unmarshal(v, rec)
	})

	return rec, err
}

// MetadataForDirectory returns all records whose ServerURL equals the
// given directory, in key order (file name order within the directory).
func (s *Store) MetadataForDirectory(account, serverURL string) ([]FileMetadata, error) {
	var recs []FileMetadata

	prefix := []byte(serverURL + keySep)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(account))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var rec FileMetadata
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			recs = append(recs, rec)
		}

		return nil
	})

	return recs, err
}

// MetadataFilter is a typed query over an account's metadata records.
// Zero-valued fields match everything, so the call site states exactly
// which attributes constrain the result.
type MetadataFilter struct {
	ServerURL string
	Status    *Status
	ClassFile string
	Selector  string
}

// QueryMetadata returns all records for the account matching the filter.
func (s *Store) QueryMetadata(account string, f MetadataFilter) ([]FileMetadata, error) {
	var recs []FileMetadata

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(account))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var rec FileMetadata
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			if f.ServerURL != "" && rec.ServerURL != f.ServerURL {
				return nil
			}

			if f.Status != nil && rec.Status != *f.Status {
				return nil
			}

			if f.ClassFile != "" && rec.ClassFile != f.ClassFile {
				return nil
			}

			if f.Selector != "" && rec.SessionSelector != f.Selector {
				return nil
			}

			recs = append(recs, rec)

			return nil
		})
	})

	return recs, err
}

// UpsertMetadata writes a single record. The bucket key is the record
// identity, so a second write with the same identity replaces in place.
func (s *Store) UpsertMetadata(rec FileMetadata) error {
	return s.update(func(tx *bolt.Tx) error {
		return putMetadata(tx, rec)
	})
}

// UpsertMetadataBatch writes all records in one transaction.
func (s *Store) UpsertMetadataBatch(recs []FileMetadata) error {
	if len(recs) == 0 {
		return nil
	}

	return s.update(func(tx *bolt.Tx) error {
		for _, rec := range recs {
			if err := putMetadata(tx, rec); err != nil {
				return err
			}
		}

		return nil
	})
}

func putMetadata(tx *bolt.Tx, rec FileMetadata) error {
	b, err := tx.CreateBucketIfNotExists(metaBucket(rec.Account))
	if err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return b.Put(metaKey(rec.ServerURL, rec.FileName), data)
}

// DeleteMetadata removes the record for (account, serverURL, fileName).
func (s *Store) DeleteMetadata(account, serverURL, fileName string) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket(account))
		if b == nil {
			return nil
		}

		return b.Delete(metaKey(serverURL, fileName))
	})
}

// Directory returns the cached snapshot for (account, serverURL), or nil
// if none has been stored yet.
func (s *Store) Directory(account, serverURL string) (*DirectorySnapshot, error) {
	var snap *DirectorySnapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dirBucket(account))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(serverURL))
		if v == nil {
			return nil
		}

		snap = &DirectorySnapshot{}

		return json.Unmarshal(v, snap)
	})

	return snap, err
}

// DirectoryMerge is one atomic listing merge: record adds, updates and
// removes applied together with the snapshot upsert. Readers never
// observe the snapshot's new etag without the merged child set.
type DirectoryMerge struct {
	Snapshot DirectorySnapshot
	Upserts  []FileMetadata
	Removes  []FileMetadata
}

// ApplyDirectoryMerge applies the merge in a single write transaction.
func (s *Store) ApplyDirectoryMerge(m DirectoryMerge) error {
	return s.update(func(tx *bolt.Tx) error {
		for _, rec := range m.Upserts {
			if err := putMetadata(tx, rec); err != nil {
				return err
			}
		}

		mb := tx.Bucket(metaBucket(m.Snapshot.Account))
		for _, rec := range m.Removes {
			if mb == nil {
				break
			}

			if err := mb.Delete(metaKey(rec.ServerURL, rec.FileName)); err != nil {
				return err
			}
		}

		db, err := tx.CreateBucketIfNotExists(dirBucket(m.Snapshot.Account))
		if err != nil {
			return err
		}

		data, err := json.Marshal(m.Snapshot)
		if err != nil {
			return err
		}

		return db.Put([]byte(m.Snapshot.ServerURL), data)
	})
}

// LedgerKeys returns the composite keys of every ledger entry for the
// account. The asset reconciler loads this once per pass and answers
// dedup checks from memory.
func (s *Store) LedgerKeys(account string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket(account))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, _ []byte) error {
			keys[string(k)] = struct{}{}
			return nil
		})
	})

	return keys, err
}

// InsertLedger writes all entries in one transaction. Re-inserting an
// existing key is a no-op overwrite, never a duplicate. Entries without
// a creation timestamp are rejected; the timestamp is half the dedup
// identity.
func (s *Store) InsertLedger(account string, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return s.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(ledgerBucket(account))
		if err != nil {
			return err
		}

		for _, e := range entries {
			if e.CreatedAt == 0 {
				return fmt.Errorf("%w: %s", pserrors.ErrLedgerIdentity, e.LocalIdentifier)
			}

			e.Account = account

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}

			if err := b.Put([]byte(e.Key()), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// ClearLedger removes every ledger entry for the account. Only the
// explicit re-align operation calls this.
func (s *Store) ClearLedger(account string) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket(account))
		if b == nil {
			return nil
		}

		return tx.DeleteBucket(ledgerBucket(account))
	})
}

// LedgerCount returns the number of ledger entries for the account.
func (s *Store) LedgerCount(account string) (int, error) {
	count := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(ledgerBucket(account))
		if b == nil {
			return nil
		}

		count = b.Stats().KeyN

		return nil
	})

	return count, err
}
