package xdr

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
)

// LedgerKeyType discriminates the ledger key union. The discriminant values
// are the network's ledger entry type codes for contract entries.
type LedgerKeyType int32

// Ledger key discriminants.
const (
	LedgerKeyTypeContractData LedgerKeyType = 6
	LedgerKeyTypeContractCode LedgerKeyType = 7
)

// LedgerKeyContractData addresses one contract data entry: contract instance
// state, or an address's replay nonce when Key is a ledger-key-nonce value.
type LedgerKeyContractData struct {
	ContractID types.Hash
	Key        ScVal
}

// LedgerKeyContractCode addresses an uploaded wasm blob by hash.
type LedgerKeyContractCode struct {
	Hash types.Hash
}

// LedgerKey names one ledger entry a transaction may read or write.
type LedgerKey struct {
	Type         LedgerKeyType
	ContractData *LedgerKeyContractData
	ContractCode *LedgerKeyContractCode
}

// ContractDataKey returns a contract data ledger key.
func ContractDataKey(contractID types.Hash, key ScVal) LedgerKey {
	return LedgerKey{
		Type:         LedgerKeyTypeContractData,
		ContractData: &LedgerKeyContractData{ContractID: contractID, Key: key},
	}
}

// ContractCodeKey returns a contract code ledger key.
func ContractCodeKey(hash types.Hash) LedgerKey {
	return LedgerKey{
		Type:         LedgerKeyTypeContractCode,
		ContractCode: &LedgerKeyContractCode{Hash: hash},
	}
}

// NonceLedgerKey returns the contract data key holding the replay nonce for
// address under contractID.
func NonceLedgerKey(contractID types.Hash, address ScAddress) LedgerKey {
	return ContractDataKey(contractID, NonceKeyVal(address))
}

// EncodeTo implements Encodable.
func (k *LedgerKey) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(k.Type)); err != nil {
		return err
	}
	switch k.Type {
	case LedgerKeyTypeContractData:
		if k.ContractData == nil {
			return fmt.Errorf("%w: contract data key with nil payload", ErrMalformedInput)
		}
		if err := e.PutFixedOpaque(k.ContractData.ContractID[:]); err != nil {
			return err
		}
		return k.ContractData.Key.EncodeTo(e)
	case LedgerKeyTypeContractCode:
		if k.ContractCode == nil {
			return fmt.Errorf("%w: contract code key with nil payload", ErrMalformedInput)
		}
		return e.PutFixedOpaque(k.ContractCode.Hash[:])
	default:
		return fmt.Errorf("%w: unknown ledger key type %d", ErrMalformedInput, k.Type)
	}
}

// DecodeFrom implements Decodable.
func (k *LedgerKey) DecodeFrom(d *Decoder) error {
	t, err := d.Int32()
	if err != nil {
		return err
	}
	*k = LedgerKey{Type: LedgerKeyType(t)}
	switch k.Type {
	case LedgerKeyTypeContractData:
		k.ContractData = new(LedgerKeyContractData)
		id, err := d.FixedOpaque(types.HashSize)
		if err != nil {
			return err
		}
		copy(k.ContractData.ContractID[:], id)
		return k.ContractData.Key.DecodeFrom(d)
	case LedgerKeyTypeContractCode:
		k.ContractCode = new(LedgerKeyContractCode)
		h, err := d.FixedOpaque(types.HashSize)
		if err != nil {
			return err
		}
		copy(k.ContractCode.Hash[:], h)
		return nil
	default:
		return fmt.Errorf("%w: unknown ledger key type %d", ErrMalformedInput, t)
	}
}

// Identity returns a byte string that uniquely identifies the key, for use
// as a map key when building and comparing footprints.
func (k *LedgerKey) Identity(lim Limits) (string, error) {
	raw, err := Marshal(lim, k)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Equal reports whether two ledger keys address the same entry.
func (k *LedgerKey) Equal(other *LedgerKey, lim Limits) (bool, error) {
	a, err := Marshal(lim, k)
	if err != nil {
		return false, err
	}
	b, err := Marshal(lim, other)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}

// LedgerFootprint declares the ledger keys a transaction may touch,
// split into read-only and read-write sets. Order is preserved.
type LedgerFootprint struct {
	ReadOnly  []LedgerKey
	ReadWrite []LedgerKey
}

func encodeKeySeq(e *Encoder, keys []LedgerKey) error {
	if err := e.PutSeqLen(len(keys), e.lim.MaxFootprintKeys); err != nil {
		return err
	}
	for i := range keys {
		if err := keys[i].EncodeTo(e); err != nil {
			return err
		}
	}
	return nil
}

func decodeKeySeq(d *Decoder) ([]LedgerKey, error) {
	n, err := d.SeqLen(d.lim.MaxFootprintKeys)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	keys := make([]LedgerKey, n)
	for i := range keys {
		if err := keys[i].DecodeFrom(d); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// EncodeTo implements Encodable.
func (f *LedgerFootprint) EncodeTo(e *Encoder) error {
	if err := encodeKeySeq(e, f.ReadOnly); err != nil {
		return err
	}
	return encodeKeySeq(e, f.ReadWrite)
}

// DecodeFrom implements Decodable.
func (f *LedgerFootprint) DecodeFrom(d *Decoder) error {
	*f = LedgerFootprint{}
	var err error
	if f.ReadOnly, err = decodeKeySeq(d); err != nil {
		return err
	}
	f.ReadWrite, err = decodeKeySeq(d)
	return err
}

// SorobanResources declares the resource budget a transaction requests:
// the footprint of touched ledger keys plus instruction and byte limits.
type SorobanResources struct {
	Footprint                 LedgerFootprint
	Instructions              uint32
	ReadBytes                 uint32
	WriteBytes                uint32
	ExtendedMetaDataSizeBytes uint32
}

// EncodeTo implements Encodable.
func (r *SorobanResources) EncodeTo(e *Encoder) error {
	if err := r.Footprint.EncodeTo(e); err != nil {
		return err
	}
	if err := e.PutUint32(r.Instructions); err != nil {
		return err
	}
	if err := e.PutUint32(r.ReadBytes); err != nil {
		return err
	}
	if err := e.PutUint32(r.WriteBytes); err != nil {
		return err
	}
	return e.PutUint32(r.ExtendedMetaDataSizeBytes)
}

// DecodeFrom implements Decodable.
func (r *SorobanResources) DecodeFrom(d *Decoder) error {
	*r = SorobanResources{}
	if err := r.Footprint.DecodeFrom(d); err != nil {
		return err
	}
	var err error
	if r.Instructions, err = d.Uint32(); err != nil {
		return err
	}
	if r.ReadBytes, err = d.Uint32(); err != nil {
		return err
	}
	if r.WriteBytes, err = d.Uint32(); err != nil {
		return err
	}
	r.ExtendedMetaDataSizeBytes, err = d.Uint32()
	return err
}

// ExtensionPoint is a reserved union with a single void arm.
type ExtensionPoint struct{}

// EncodeTo implements Encodable.
func (ExtensionPoint) EncodeTo(e *Encoder) error {
	return e.PutInt32(0)
}

// DecodeFrom implements Decodable.
func (*ExtensionPoint) DecodeFrom(d *Decoder) error {
	v, err := d.Int32()
	if err != nil {
		return err
	}
	if v != 0 {
		return fmt.Errorf("%w: unknown extension arm %d", ErrMalformedInput, v)
	}
	return nil
}

// SorobanTransactionData packages the resource declaration with the
// refundable fee the transaction offers for metadata.
type SorobanTransactionData struct {
	Resources     SorobanResources
	RefundableFee int64
	Ext           ExtensionPoint
}

// EncodeTo implements Encodable.
func (t *SorobanTransactionData) EncodeTo(e *Encoder) error {
	if err := t.Resources.EncodeTo(e); err != nil {
		return err
	}
	if err := e.PutInt64(t.RefundableFee); err != nil {
		return err
	}
	return t.Ext.EncodeTo(e)
}

// DecodeFrom implements Decodable.
func (t *SorobanTransactionData) DecodeFrom(d *Decoder) error {
	*t = SorobanTransactionData{}
	if err := t.Resources.DecodeFrom(d); err != nil {
		return err
	}
	var err error
	if t.RefundableFee, err = d.Int64(); err != nil {
		return err
	}
	return t.Ext.DecodeFrom(d)
}
