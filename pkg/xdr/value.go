package xdr

import (
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
)

// ScValType discriminates the closed ScVal union.
type ScValType int32

// ScVal discriminants.
const (
	ScValTypeBool ScValType = iota
	ScValTypeU32
	ScValTypeI32
	ScValTypeU64
	ScValTypeI64
	ScValTypeBytes
	ScValTypeSymbol
	ScValTypeAddress
	ScValTypeVec
	ScValTypeLedgerKeyNonce
	ScValTypeLedgerKeyContractExecutable
)

// ScVal is a host value: the argument type of contract invocations and
// authorization signature payloads. Exactly the arm selected by Type is
// meaningful; the codec never encodes the others.
type ScVal struct {
	Type    ScValType
	Bool    bool
	U32     uint32
	I32     int32
	U64     uint64
	I64     int64
	Bytes   []byte
	Sym     types.Symbol
	Address *ScAddress
	Vec     []ScVal

	// NonceAddress is the payload of a ledger-key-nonce value, which names
	// the address whose replay nonce a ledger key refers to.
	NonceAddress *ScAddress
}

// BoolVal returns a bool ScVal.
func BoolVal(v bool) ScVal { return ScVal{Type: ScValTypeBool, Bool: v} }

// U32Val returns a u32 ScVal.
func U32Val(v uint32) ScVal { return ScVal{Type: ScValTypeU32, U32: v} }

// I32Val returns an i32 ScVal.
func I32Val(v int32) ScVal { return ScVal{Type: ScValTypeI32, I32: v} }

// U64Val returns a u64 ScVal.
func U64Val(v uint64) ScVal { return ScVal{Type: ScValTypeU64, U64: v} }

// I64Val returns an i64 ScVal.
func I64Val(v int64) ScVal { return ScVal{Type: ScValTypeI64, I64: v} }

// BytesVal returns a bytes ScVal.
func BytesVal(b []byte) ScVal { return ScVal{Type: ScValTypeBytes, Bytes: b} }

// SymbolVal returns a symbol ScVal.
func SymbolVal(s types.Symbol) ScVal { return ScVal{Type: ScValTypeSymbol, Sym: s} }

// AddressVal returns an address ScVal.
func AddressVal(a ScAddress) ScVal { return ScVal{Type: ScValTypeAddress, Address: &a} }

// VecVal returns a vector ScVal.
func VecVal(vals ...ScVal) ScVal { return ScVal{Type: ScValTypeVec, Vec: vals} }

// NonceKeyVal returns a ledger-key-nonce ScVal for the given address.
func NonceKeyVal(a ScAddress) ScVal {
	return ScVal{Type: ScValTypeLedgerKeyNonce, NonceAddress: &a}
}

// ContractExecutableKeyVal returns the void ScVal that addresses a
// contract's executable entry in a ledger key.
func ContractExecutableKeyVal() ScVal {
	return ScVal{Type: ScValTypeLedgerKeyContractExecutable}
}

// EncodeTo implements Encodable.
func (v *ScVal) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(v.Type)); err != nil {
		return err
	}
	switch v.Type {
	case ScValTypeBool:
		return e.PutBool(v.Bool)
	case ScValTypeU32:
		return e.PutUint32(v.U32)
	case ScValTypeI32:
		return e.PutInt32(v.I32)
	case ScValTypeU64:
		return e.PutUint64(v.U64)
	case ScValTypeI64:
		return e.PutInt64(v.I64)
	case ScValTypeBytes:
		return e.PutVarOpaque(v.Bytes, e.lim.MaxBytesLen)
	case ScValTypeSymbol:
		if err := types.ValidateSymbolLen(string(v.Sym), int(e.lim.MaxSymbolLen)); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return e.PutVarOpaque([]byte(v.Sym), e.lim.MaxSymbolLen)
	case ScValTypeAddress:
		if v.Address == nil {
			return fmt.Errorf("%w: address value with nil address", ErrMalformedInput)
		}
		return v.Address.EncodeTo(e)
	case ScValTypeVec:
		if err := e.PutSeqLen(len(v.Vec), e.lim.MaxVecLen); err != nil {
			return err
		}
		for i := range v.Vec {
			if err := v.Vec[i].EncodeTo(e); err != nil {
				return err
			}
		}
		return nil
	case ScValTypeLedgerKeyNonce:
		if v.NonceAddress == nil {
			return fmt.Errorf("%w: nonce key with nil address", ErrMalformedInput)
		}
		return v.NonceAddress.EncodeTo(e)
	case ScValTypeLedgerKeyContractExecutable:
		return nil
	default:
		return fmt.Errorf("%w: unknown ScVal type %d", ErrMalformedInput, v.Type)
	}
}

// DecodeFrom implements Decodable.
func (v *ScVal) DecodeFrom(d *Decoder) error {
	t, err := d.Int32()
	if err != nil {
		return err
	}
	*v = ScVal{Type: ScValType(t)}
	switch v.Type {
	case ScValTypeBool:
		v.Bool, err = d.Bool()
		return err
	case ScValTypeU32:
		v.U32, err = d.Uint32()
		return err
	case ScValTypeI32:
		v.I32, err = d.Int32()
		return err
	case ScValTypeU64:
		v.U64, err = d.Uint64()
		return err
	case ScValTypeI64:
		v.I64, err = d.Int64()
		return err
	case ScValTypeBytes:
		v.Bytes, err = d.VarOpaque(d.lim.MaxBytesLen)
		return err
	case ScValTypeSymbol:
		raw, err := d.VarOpaque(d.lim.MaxSymbolLen)
		if err != nil {
			return err
		}
		if err := types.ValidateSymbolLen(string(raw), int(d.lim.MaxSymbolLen)); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		v.Sym = types.Symbol(raw)
		return nil
	case ScValTypeAddress:
		v.Address = new(ScAddress)
		return v.Address.DecodeFrom(d)
	case ScValTypeVec:
		n, err := d.SeqLen(d.lim.MaxVecLen)
		if err != nil {
			return err
		}
		if n > 0 {
			v.Vec = make([]ScVal, n)
			for i := range v.Vec {
				if err := v.Vec[i].DecodeFrom(d); err != nil {
					return err
				}
			}
		}
		return nil
	case ScValTypeLedgerKeyNonce:
		v.NonceAddress = new(ScAddress)
		return v.NonceAddress.DecodeFrom(d)
	case ScValTypeLedgerKeyContractExecutable:
		return nil
	default:
		return fmt.Errorf("%w: unknown ScVal type %d", ErrMalformedInput, t)
	}
}

// ScAddressType discriminates the ScAddress union.
type ScAddressType int32

// ScAddress discriminants.
const (
	ScAddressTypeAccount ScAddressType = iota
	ScAddressTypeContract
)

// ScAddress identifies an authorizing party: either a network account
// (Ed25519 key) or a contract.
type ScAddress struct {
	Type       ScAddressType
	AccountID  types.Pubkey // set for account addresses
	ContractID types.Hash   // set for contract addresses
}

// AccountAddress returns an account-kind ScAddress.
func AccountAddress(key types.Pubkey) ScAddress {
	return ScAddress{Type: ScAddressTypeAccount, AccountID: key}
}

// ContractAddress returns a contract-kind ScAddress.
func ContractAddress(id types.Hash) ScAddress {
	return ScAddress{Type: ScAddressTypeContract, ContractID: id}
}

// String renders the address for logs and CLI output.
func (a ScAddress) String() string {
	switch a.Type {
	case ScAddressTypeAccount:
		return "account:" + a.AccountID.String()
	case ScAddressTypeContract:
		return "contract:" + a.ContractID.String()
	default:
		return fmt.Sprintf("address(kind=%d)", a.Type)
	}
}

// EncodeTo implements Encodable.
func (a *ScAddress) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(a.Type)); err != nil {
		return err
	}
	switch a.Type {
	case ScAddressTypeAccount:
		return e.PutFixedOpaque(a.AccountID[:])
	case ScAddressTypeContract:
		return e.PutFixedOpaque(a.ContractID[:])
	default:
		return fmt.Errorf("%w: unknown address type %d", ErrMalformedInput, a.Type)
	}
}

// DecodeFrom implements Decodable.
func (a *ScAddress) DecodeFrom(d *Decoder) error {
	t, err := d.Int32()
	if err != nil {
		return err
	}
	*a = ScAddress{Type: ScAddressType(t)}
	switch a.Type {
	case ScAddressTypeAccount:
		b, err := d.FixedOpaque(types.PubkeySize)
		if err != nil {
			return err
		}
		copy(a.AccountID[:], b)
		return nil
	case ScAddressTypeContract:
		b, err := d.FixedOpaque(types.HashSize)
		if err != nil {
			return err
		}
		copy(a.ContractID[:], b)
		return nil
	default:
		return fmt.Errorf("%w: unknown address type %d", ErrMalformedInput, t)
	}
}

// AssetType discriminates the Asset union.
type AssetType int32

// Asset discriminants.
const (
	AssetTypeNative AssetType = iota
	AssetTypeAlphaNum4
	AssetTypeAlphaNum12
)

// Asset identifies a token for FromAsset contract ID derivation: the native
// asset or an issued asset named by code and issuer. The issuer becomes the
// implicit token administrator and need not exist on ledger yet.
type Asset struct {
	Type   AssetType
	Code   string       // 1-4 bytes for AlphaNum4, 5-12 for AlphaNum12
	Issuer types.Pubkey // issuing account, zero for native
}

// NativeAsset returns the native asset.
func NativeAsset() Asset {
	return Asset{Type: AssetTypeNative}
}

// IssuedAsset returns an alphanumeric asset, selecting the 4 or 12 byte
// code form from the code length. Codes are restricted to [a-zA-Z0-9]:
// they are zero-padded to a fixed width on the wire, so a code containing
// NUL would not decode back to itself.
func IssuedAsset(code string, issuer types.Pubkey) (Asset, error) {
	a := Asset{Code: code, Issuer: issuer}
	switch {
	case len(code) >= 1 && len(code) <= 4:
		a.Type = AssetTypeAlphaNum4
	case len(code) >= 5 && len(code) <= 12:
		a.Type = AssetTypeAlphaNum12
	default:
		return Asset{}, fmt.Errorf("%w: asset code length %d", ErrMalformedInput, len(code))
	}
	if err := a.validateCode(); err != nil {
		return Asset{}, err
	}
	return a, nil
}

func (a *Asset) codeSize() int {
	if a.Type == AssetTypeAlphaNum4 {
		return 4
	}
	return 12
}

func (a *Asset) validateCode() error {
	min, max := 1, 4
	if a.Type == AssetTypeAlphaNum12 {
		min, max = 5, 12
	}
	if len(a.Code) < min || len(a.Code) > max {
		return fmt.Errorf("%w: asset code length %d for type %d", ErrMalformedInput, len(a.Code), a.Type)
	}
	for i := 0; i < len(a.Code); i++ {
		c := a.Code[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return fmt.Errorf("%w: asset code byte %q at index %d", ErrMalformedInput, c, i)
		}
	}
	return nil
}

// EncodeTo implements Encodable. Issued asset codes are zero-padded to
// their fixed width on the wire.
func (a *Asset) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(a.Type)); err != nil {
		return err
	}
	switch a.Type {
	case AssetTypeNative:
		return nil
	case AssetTypeAlphaNum4, AssetTypeAlphaNum12:
		if err := a.validateCode(); err != nil {
			return err
		}
		code := make([]byte, a.codeSize())
		copy(code, a.Code)
		if err := e.PutFixedOpaque(code); err != nil {
			return err
		}
		return e.PutFixedOpaque(a.Issuer[:])
	default:
		return fmt.Errorf("%w: unknown asset type %d", ErrMalformedInput, a.Type)
	}
}

// DecodeFrom implements Decodable.
func (a *Asset) DecodeFrom(d *Decoder) error {
	t, err := d.Int32()
	if err != nil {
		return err
	}
	*a = Asset{Type: AssetType(t)}
	switch a.Type {
	case AssetTypeNative:
		return nil
	case AssetTypeAlphaNum4, AssetTypeAlphaNum12:
		code, err := d.FixedOpaque(a.codeSize())
		if err != nil {
			return err
		}
		// Strip the zero padding back off.
		end := len(code)
		for end > 0 && code[end-1] == 0 {
			end--
		}
		a.Code = string(code[:end])
		issuer, err := d.FixedOpaque(types.PubkeySize)
		if err != nil {
			return err
		}
		copy(a.Issuer[:], issuer)
		return a.validateCode()
	default:
		return fmt.Errorf("%w: unknown asset type %d", ErrMalformedInput, t)
	}
}
