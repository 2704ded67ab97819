// Package resources computes and validates the resource declarations that
// gate fee computation.
//
// BuildFootprint derives the minimal set of ledger keys an operation
// implies; Validate checks a caller-declared SorobanTransactionData against
// that computed set and an externally supplied fee formula. Everything here
// is pure set and arithmetic logic over already-built structures; no
// hashing of preimages and no signing happens in this package.
package resources

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/contractid"
	"github.com/fortiblox/soroban-core/pkg/invocation"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

var (
	// ErrFootprintInsufficient is returned when the declared footprint
	// does not cover the computed requirements.
	ErrFootprintInsufficient = errors.New("footprint insufficient")

	// ErrFeeInsufficient is returned when the declared refundable fee is
	// below the metadata-derived minimum.
	ErrFeeInsufficient = errors.New("refundable fee insufficient")
)

// MinFeeFunc is the external fee formula: the minimum refundable fee for a
// given extended metadata size. This package never computes fees itself.
type MinFeeFunc func(metadataBytes uint32) int64

// footprintBuilder accumulates deduplicated ledger keys, preserving first
// insertion order. A key promoted to read-write leaves the read-only set.
type footprintBuilder struct {
	lim       xdr.Limits
	readOnly  []xdr.LedgerKey
	readWrite []xdr.LedgerKey
	mode      map[string]bool // identity -> true if read-write
}

func newFootprintBuilder(lim xdr.Limits) *footprintBuilder {
	return &footprintBuilder{lim: lim, mode: make(map[string]bool)}
}

func (b *footprintBuilder) add(key xdr.LedgerKey, write bool) error {
	id, err := key.Identity(b.lim)
	if err != nil {
		return err
	}
	isWrite, seen := b.mode[id]
	if seen {
		if write && !isWrite {
			// Promote: drop from read-only, append to read-write.
			for i := range b.readOnly {
				same, err := b.readOnly[i].Equal(&key, b.lim)
				if err != nil {
					return err
				}
				if same {
					b.readOnly = append(b.readOnly[:i], b.readOnly[i+1:]...)
					break
				}
			}
			b.readWrite = append(b.readWrite, key)
			b.mode[id] = true
		}
		return nil
	}
	b.mode[id] = write
	if write {
		b.readWrite = append(b.readWrite, key)
	} else {
		b.readOnly = append(b.readOnly, key)
	}
	return nil
}

func (b *footprintBuilder) footprint() xdr.LedgerFootprint {
	return xdr.LedgerFootprint{ReadOnly: b.readOnly, ReadWrite: b.readWrite}
}

// BuildFootprint computes the ledger keys implied by the functions of an
// operation and their authorization trees: the executable entry of every
// referenced contract, the code or created-contract entries of deploys and
// uploads, and the nonce entry of every authorizing address.
//
// Contract creation resolves the new contract's identifier, so derivation
// params are required when any function creates a contract.
func BuildFootprint(lim xdr.Limits, functions []xdr.HostFunction, params contractid.Params) (xdr.LedgerFootprint, error) {
	b := newFootprintBuilder(lim)
	for i := range functions {
		if err := addFunction(b, &functions[i], lim, params); err != nil {
			return xdr.LedgerFootprint{}, fmt.Errorf("function %d: %w", i, err)
		}
	}
	return b.footprint(), nil
}

func addFunction(b *footprintBuilder, f *xdr.HostFunction, lim xdr.Limits, params contractid.Params) error {
	switch f.Args.Type {
	case xdr.HostFunctionTypeInvokeContract:
		id, err := invokedContract(f.Args.InvokeContract)
		if err != nil {
			return err
		}
		if err := b.add(instanceKey(id), false); err != nil {
			return err
		}

	case xdr.HostFunctionTypeCreateContract:
		args := f.Args.CreateContract
		id, err := contractid.DeriveForCreate(lim, *args, params)
		if err != nil {
			return err
		}
		// The new instance entry is written; referenced wasm is only read.
		if err := b.add(instanceKey(id), true); err != nil {
			return err
		}
		if args.Source.Type == xdr.ContractCodeWasmRef {
			if err := b.add(xdr.ContractCodeKey(args.Source.WasmHash), false); err != nil {
				return err
			}
		}

	case xdr.HostFunctionTypeUploadContractWasm:
		hash := types.Hash(sha256.Sum256(f.Args.UploadContractWasm.Code))
		if err := b.add(xdr.ContractCodeKey(hash), true); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: unknown host function type %d", xdr.ErrMalformedInput, f.Args.Type)
	}

	for i := range f.Auth {
		if err := addAuth(b, &f.Auth[i]); err != nil {
			return err
		}
	}
	return nil
}

func addAuth(b *footprintBuilder, entry *xdr.ContractAuth) error {
	err := invocation.Walk(&entry.RootInvocation, func(inv *xdr.AuthorizedInvocation) error {
		return b.add(instanceKey(inv.ContractID), false)
	})
	if err != nil {
		return err
	}
	if entry.AddressWithNonce != nil {
		// The nonce entry is consumed and bumped on apply.
		key := xdr.NonceLedgerKey(entry.RootInvocation.ContractID, entry.AddressWithNonce.Address)
		if err := b.add(key, true); err != nil {
			return err
		}
	}
	return nil
}

// invokedContract extracts the target contract ID from invoke-contract
// args, which carry it as a 32-byte bytes value in position 0.
func invokedContract(args []xdr.ScVal) (types.Hash, error) {
	if len(args) < 2 {
		return types.Hash{}, fmt.Errorf("%w: invoke args need contract ID and function", xdr.ErrMalformedInput)
	}
	if args[0].Type != xdr.ScValTypeBytes {
		return types.Hash{}, fmt.Errorf("%w: invoke arg 0 must be contract ID bytes", xdr.ErrMalformedInput)
	}
	id, err := types.HashFromBytes(args[0].Bytes)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %v", xdr.ErrMalformedInput, err)
	}
	if args[1].Type != xdr.ScValTypeSymbol {
		return types.Hash{}, fmt.Errorf("%w: invoke arg 1 must be a function symbol", xdr.ErrMalformedInput)
	}
	return id, nil
}

func instanceKey(contractID types.Hash) xdr.LedgerKey {
	return xdr.ContractDataKey(contractID, xdr.ContractExecutableKeyVal())
}

// Validate checks a declared transaction data against a computed footprint
// and the external fee formula.
//
// The declared footprint may be a superset of the computed one (callers may
// pad, typically from a preflight suggestion); read-write declarations
// satisfy read-only requirements. A nil feeFn skips the fee check.
func Validate(lim xdr.Limits, data *xdr.SorobanTransactionData, computed xdr.LedgerFootprint, feeFn MinFeeFunc) error {
	declaredRO, err := keySet(lim, data.Resources.Footprint.ReadOnly)
	if err != nil {
		return err
	}
	declaredRW, err := keySet(lim, data.Resources.Footprint.ReadWrite)
	if err != nil {
		return err
	}

	for i := range computed.ReadOnly {
		id, err := computed.ReadOnly[i].Identity(lim)
		if err != nil {
			return err
		}
		if _, ok := declaredRO[id]; ok {
			continue
		}
		if _, ok := declaredRW[id]; ok {
			continue
		}
		return fmt.Errorf("%w: missing read key %d", ErrFootprintInsufficient, i)
	}
	for i := range computed.ReadWrite {
		id, err := computed.ReadWrite[i].Identity(lim)
		if err != nil {
			return err
		}
		if _, ok := declaredRW[id]; !ok {
			return fmt.Errorf("%w: missing write key %d", ErrFootprintInsufficient, i)
		}
	}

	if feeFn != nil {
		if min := feeFn(data.Resources.ExtendedMetaDataSizeBytes); data.RefundableFee < min {
			return fmt.Errorf("%w: declared %d, minimum %d", ErrFeeInsufficient, data.RefundableFee, min)
		}
	}
	return nil
}

func keySet(lim xdr.Limits, keys []xdr.LedgerKey) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(keys))
	for i := range keys {
		id, err := keys[i].Identity(lim)
		if err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, nil
}
