// Package nonce tracks the replay-protection counters embedded in
// authorization entries.
//
// A nonce is scoped to one (address, contract) pair. The authoritative
// store is a ledger entry owned by an external collaborator; this package
// only reads the next expected value and records observations the ledger
// reports after applying a transaction. Next never auto-increments.
//
// Callers building transactions concurrently for the same (address,
// contract) pair must serialize their Next/Observe cycles themselves,
// otherwise two transactions will carry the same nonce and at most one
// can apply.
package nonce

import (
	"errors"
	"sync"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

var (
	// ErrNonceConflict is returned when two authorization entries in one
	// operation consume the same nonce for the same (address, contract).
	ErrNonceConflict = errors.New("nonce conflict")

	// ErrNonceMismatch is returned when an authorization entry carries a
	// nonce other than the tracker's next expected value.
	ErrNonceMismatch = errors.New("nonce mismatch")
)

// Tracker supplies and records replay nonces per (address, contract) pair.
type Tracker interface {
	// Next returns the nonce to embed for address under contractID.
	// An address never seen before starts at 0.
	Next(address xdr.ScAddress, contractID types.Hash) (uint64, error)

	// Observe records that used was consumed for address under contractID,
	// making used+1 the next expected value. The external ledger
	// collaborator calls this after successful application.
	Observe(address xdr.ScAddress, contractID types.Hash, used uint64) error
}

// pairKey identifies one (address, contract) nonce scope.
func pairKey(address xdr.ScAddress, contractID types.Hash) string {
	b := make([]byte, 0, 1+types.PubkeySize+types.HashSize)
	b = append(b, byte(address.Type))
	switch address.Type {
	case xdr.ScAddressTypeAccount:
		b = append(b, address.AccountID[:]...)
	default:
		b = append(b, address.ContractID[:]...)
	}
	b = append(b, contractID[:]...)
	return string(b)
}

// MemoryTracker is an in-memory Tracker, safe for concurrent use.
type MemoryTracker struct {
	mu   sync.RWMutex
	next map[string]uint64
}

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{next: make(map[string]uint64)}
}

// Next implements Tracker.
func (t *MemoryTracker) Next(address xdr.ScAddress, contractID types.Hash) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.next[pairKey(address, contractID)], nil
}

// Observe implements Tracker.
func (t *MemoryTracker) Observe(address xdr.ScAddress, contractID types.Hash, used uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := pairKey(address, contractID)
	if used+1 > t.next[k] {
		t.next[k] = used + 1
	}
	return nil
}

// CheckConflicts scans every authorization entry of an operation and
// returns ErrNonceConflict if two entries consume the same nonce for the
// same (address, contract) pair. Entries without an address are implicit
// source-account authorizations and carry no nonce.
func CheckConflicts(op *xdr.InvokeHostFunctionOp) error {
	type consumed struct {
		pair  string
		nonce uint64
	}
	seen := make(map[consumed]struct{})
	for i := range op.Functions {
		for j := range op.Functions[i].Auth {
			auth := &op.Functions[i].Auth[j]
			if auth.AddressWithNonce == nil {
				continue
			}
			c := consumed{
				pair:  pairKey(auth.AddressWithNonce.Address, auth.RootInvocation.ContractID),
				nonce: auth.AddressWithNonce.Nonce,
			}
			if _, dup := seen[c]; dup {
				return ErrNonceConflict
			}
			seen[c] = struct{}{}
		}
	}
	return nil
}
