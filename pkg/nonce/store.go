package nonce

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// ErrStoreClosed is returned when operating on a closed store.
var ErrStoreClosed = errors.New("nonce store closed")

// Key prefixes for BadgerDB storage.
var (
	// prefixNonce is the prefix for nonce records.
	// Key format: prefixNonce + contractID (32 bytes) + address kind (1 byte) + address body (32 bytes)
	prefixNonce = []byte{0x01}
)

// StoreConfig contains configuration for the Badger-backed store.
type StoreConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// Logger is an optional badger logger. Set to nil to disable logging.
	Logger badger.Logger
}

// DefaultStoreConfig returns default configuration.
func DefaultStoreConfig(path string) StoreConfig {
	return StoreConfig{
		Path:       path,
		SyncWrites: true, // nonce loss means replayable authorizations going stale
		Logger:     nil,
	}
}

// Store is a BadgerDB-backed Tracker. It mirrors the ledger's per-address,
// per-contract nonce entries locally so builders can read the next expected
// value without a round trip. The ledger collaborator remains authoritative;
// Observe applies its reports.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewStore opens a Badger-backed nonce store.
func NewStore(cfg StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database. Close is idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func storeKey(address xdr.ScAddress, contractID types.Hash) []byte {
	k := make([]byte, 0, len(prefixNonce)+types.HashSize+1+types.PubkeySize)
	k = append(k, prefixNonce...)
	k = append(k, contractID[:]...)
	k = append(k, byte(address.Type))
	switch address.Type {
	case xdr.ScAddressTypeAccount:
		k = append(k, address.AccountID[:]...)
	default:
		k = append(k, address.ContractID[:]...)
	}
	return k
}

// Next implements Tracker. An absent record reads as 0.
func (s *Store) Next(address xdr.ScAddress, contractID types.Hash) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	var next uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(address, contractID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt nonce record: %d bytes", len(val))
			}
			next = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read nonce: %w", err)
	}
	return next, nil
}

// Observe implements Tracker. It records used+1 as the next expected value,
// never moving the counter backwards.
func (s *Store) Observe(address xdr.ScAddress, contractID types.Hash, used uint64) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	key := storeKey(address, contractID)
	err := s.db.Update(func(txn *badger.Txn) error {
		var current uint64
		item, err := txn.Get(key)
		if err == nil {
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("corrupt nonce record: %d bytes", len(val))
				}
				current = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if used+1 <= current {
			return nil
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], used+1)
		return txn.Set(key, buf[:])
	})
	if err != nil {
		return fmt.Errorf("write nonce: %w", err)
	}
	return nil
}
