package xdr

import (
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
)

// ContractIDType discriminates the ContractID derivation scheme union.
type ContractIDType int32

// ContractID discriminants.
const (
	// ContractIDFromSourceAccount derives from the invoking account and a salt.
	ContractIDFromSourceAccount ContractIDType = iota

	// ContractIDFromEd25519PublicKey derives from a bare key, salt, and a
	// signature proving control of the key. Not tied to an on-chain account.
	ContractIDFromEd25519PublicKey

	// ContractIDFromAsset derives from an asset descriptor. Legal only with
	// the built-in token contract code.
	ContractIDFromAsset
)

// ContractIDFromEd25519 is the payload of the self-authorizing scheme.
type ContractIDFromEd25519 struct {
	Key       types.Pubkey
	Signature types.Signature
	Salt      [32]byte
}

// ContractID selects exactly one of the three mutually exclusive contract
// identifier derivation schemes.
type ContractID struct {
	Type    ContractIDType
	Salt    [32]byte               // FromSourceAccount
	Ed25519 *ContractIDFromEd25519 // FromEd25519PublicKey
	Asset   *Asset                 // FromAsset
}

// EncodeTo implements Encodable.
func (c *ContractID) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(c.Type)); err != nil {
		return err
	}
	switch c.Type {
	case ContractIDFromSourceAccount:
		return e.PutFixedOpaque(c.Salt[:])
	case ContractIDFromEd25519PublicKey:
		if c.Ed25519 == nil {
			return fmt.Errorf("%w: ed25519 scheme with nil payload", ErrMalformedInput)
		}
		if err := e.PutFixedOpaque(c.Ed25519.Key[:]); err != nil {
			return err
		}
		if err := e.PutFixedOpaque(c.Ed25519.Signature[:]); err != nil {
			return err
		}
		return e.PutFixedOpaque(c.Ed25519.Salt[:])
	case ContractIDFromAsset:
		if c.Asset == nil {
			return fmt.Errorf("%w: asset scheme with nil asset", ErrMalformedInput)
		}
		return c.Asset.EncodeTo(e)
	default:
		return fmt.Errorf("%w: unknown contract ID scheme %d", ErrMalformedInput, c.Type)
	}
}

// DecodeFrom implements Decodable.
func (c *ContractID) DecodeFrom(d *Decoder) error {
	t, err := d.Int32()
	if err != nil {
		return err
	}
	*c = ContractID{Type: ContractIDType(t)}
	switch c.Type {
	case ContractIDFromSourceAccount:
		b, err := d.FixedOpaque(32)
		if err != nil {
			return err
		}
		copy(c.Salt[:], b)
		return nil
	case ContractIDFromEd25519PublicKey:
		c.Ed25519 = new(ContractIDFromEd25519)
		key, err := d.FixedOpaque(types.PubkeySize)
		if err != nil {
			return err
		}
		copy(c.Ed25519.Key[:], key)
		sig, err := d.FixedOpaque(types.SignatureSize)
		if err != nil {
			return err
		}
		copy(c.Ed25519.Signature[:], sig)
		salt, err := d.FixedOpaque(32)
		if err != nil {
			return err
		}
		copy(c.Ed25519.Salt[:], salt)
		return nil
	case ContractIDFromAsset:
		c.Asset = new(Asset)
		return c.Asset.DecodeFrom(d)
	default:
		return fmt.Errorf("%w: unknown contract ID scheme %d", ErrMalformedInput, t)
	}
}

// ContractCodeType discriminates the contract code reference union.
type ContractCodeType int32

// ContractCode discriminants.
const (
	// ContractCodeWasmRef references uploaded wasm by hash.
	ContractCodeWasmRef ContractCodeType = iota

	// ContractCodeToken selects the built-in token implementation.
	// Legal only together with the FromAsset derivation scheme.
	ContractCodeToken
)

// ContractCode references the code a created contract will run.
type ContractCode struct {
	Type     ContractCodeType
	WasmHash types.Hash // WasmRef only
}

// WasmRefCode returns a code reference to uploaded wasm.
func WasmRefCode(hash types.Hash) ContractCode {
	return ContractCode{Type: ContractCodeWasmRef, WasmHash: hash}
}

// TokenCode returns the built-in token code reference.
func TokenCode() ContractCode {
	return ContractCode{Type: ContractCodeToken}
}

// EncodeTo implements Encodable.
func (c *ContractCode) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(c.Type)); err != nil {
		return err
	}
	switch c.Type {
	case ContractCodeWasmRef:
		return e.PutFixedOpaque(c.WasmHash[:])
	case ContractCodeToken:
		return nil
	default:
		return fmt.Errorf("%w: unknown contract code kind %d", ErrMalformedInput, c.Type)
	}
}

// DecodeFrom implements Decodable.
func (c *ContractCode) DecodeFrom(d *Decoder) error {
	t, err := d.Int32()
	if err != nil {
		return err
	}
	*c = ContractCode{Type: ContractCodeType(t)}
	switch c.Type {
	case ContractCodeWasmRef:
		b, err := d.FixedOpaque(types.HashSize)
		if err != nil {
			return err
		}
		copy(c.WasmHash[:], b)
		return nil
	case ContractCodeToken:
		return nil
	default:
		return fmt.Errorf("%w: unknown contract code kind %d", ErrMalformedInput, t)
	}
}

// CreateContractArgs pairs a derivation scheme with the code the new
// contract will run.
type CreateContractArgs struct {
	ContractID ContractID
	Source     ContractCode
}

// EncodeTo implements Encodable.
func (a *CreateContractArgs) EncodeTo(e *Encoder) error {
	if err := a.ContractID.EncodeTo(e); err != nil {
		return err
	}
	return a.Source.EncodeTo(e)
}

// DecodeFrom implements Decodable.
func (a *CreateContractArgs) DecodeFrom(d *Decoder) error {
	if err := a.ContractID.DecodeFrom(d); err != nil {
		return err
	}
	return a.Source.DecodeFrom(d)
}

// UploadContractWasmArgs carries a wasm payload for upload.
type UploadContractWasmArgs struct {
	Code []byte
}

// EncodeTo implements Encodable.
func (a *UploadContractWasmArgs) EncodeTo(e *Encoder) error {
	return e.PutVarOpaque(a.Code, e.lim.MaxBytesLen)
}

// DecodeFrom implements Decodable.
func (a *UploadContractWasmArgs) DecodeFrom(d *Decoder) error {
	var err error
	a.Code, err = d.VarOpaque(d.lim.MaxBytesLen)
	return err
}

// HostFunctionType discriminates the HostFunctionArgs union.
type HostFunctionType int32

// HostFunction discriminants.
const (
	HostFunctionTypeInvokeContract HostFunctionType = iota
	HostFunctionTypeCreateContract
	HostFunctionTypeUploadContractWasm
)

// HostFunctionArgs selects one host function and its arguments.
//
// For InvokeContract the argument vector follows the host convention:
// element 0 is the contract ID as bytes, element 1 the function symbol,
// and the rest are the function's own arguments.
type HostFunctionArgs struct {
	Type               HostFunctionType
	InvokeContract     []ScVal
	CreateContract     *CreateContractArgs
	UploadContractWasm *UploadContractWasmArgs
}

// InvokeContractFn builds invoke-contract args from a contract ID, function
// name, and the function's arguments.
func InvokeContractFn(contractID types.Hash, fn types.Symbol, args ...ScVal) HostFunctionArgs {
	vec := make([]ScVal, 0, len(args)+2)
	vec = append(vec, BytesVal(contractID.Bytes()), SymbolVal(fn))
	vec = append(vec, args...)
	return HostFunctionArgs{Type: HostFunctionTypeInvokeContract, InvokeContract: vec}
}

// CreateContractFn builds create-contract args.
func CreateContractFn(args CreateContractArgs) HostFunctionArgs {
	return HostFunctionArgs{Type: HostFunctionTypeCreateContract, CreateContract: &args}
}

// UploadContractWasmFn builds upload-wasm args.
func UploadContractWasmFn(code []byte) HostFunctionArgs {
	return HostFunctionArgs{
		Type:               HostFunctionTypeUploadContractWasm,
		UploadContractWasm: &UploadContractWasmArgs{Code: code},
	}
}

// EncodeTo implements Encodable.
func (a *HostFunctionArgs) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(a.Type)); err != nil {
		return err
	}
	switch a.Type {
	case HostFunctionTypeInvokeContract:
		if err := e.PutSeqLen(len(a.InvokeContract), e.lim.MaxVecLen); err != nil {
			return err
		}
		for i := range a.InvokeContract {
			if err := a.InvokeContract[i].EncodeTo(e); err != nil {
				return err
			}
		}
		return nil
	case HostFunctionTypeCreateContract:
		if a.CreateContract == nil {
			return fmt.Errorf("%w: create-contract with nil args", ErrMalformedInput)
		}
		return a.CreateContract.EncodeTo(e)
	case HostFunctionTypeUploadContractWasm:
		if a.UploadContractWasm == nil {
			return fmt.Errorf("%w: upload-wasm with nil args", ErrMalformedInput)
		}
		return a.UploadContractWasm.EncodeTo(e)
	default:
		return fmt.Errorf("%w: unknown host function type %d", ErrMalformedInput, a.Type)
	}
}

// DecodeFrom implements Decodable.
func (a *HostFunctionArgs) DecodeFrom(d *Decoder) error {
	t, err := d.Int32()
	if err != nil {
		return err
	}
	*a = HostFunctionArgs{Type: HostFunctionType(t)}
	switch a.Type {
	case HostFunctionTypeInvokeContract:
		n, err := d.SeqLen(d.lim.MaxVecLen)
		if err != nil {
			return err
		}
		if n > 0 {
			a.InvokeContract = make([]ScVal, n)
			for i := range a.InvokeContract {
				if err := a.InvokeContract[i].DecodeFrom(d); err != nil {
					return err
				}
			}
		}
		return nil
	case HostFunctionTypeCreateContract:
		a.CreateContract = new(CreateContractArgs)
		return a.CreateContract.DecodeFrom(d)
	case HostFunctionTypeUploadContractWasm:
		a.UploadContractWasm = new(UploadContractWasmArgs)
		return a.UploadContractWasm.DecodeFrom(d)
	default:
		return fmt.Errorf("%w: unknown host function type %d", ErrMalformedInput, t)
	}
}

// AddressWithNonce binds an authorizing address to the replay nonce its
// authorization consumes.
type AddressWithNonce struct {
	Address ScAddress
	Nonce   uint64
}

// EncodeTo implements Encodable.
func (a *AddressWithNonce) EncodeTo(e *Encoder) error {
	if err := a.Address.EncodeTo(e); err != nil {
		return err
	}
	return e.PutUint64(a.Nonce)
}

// DecodeFrom implements Decodable.
func (a *AddressWithNonce) DecodeFrom(d *Decoder) error {
	if err := a.Address.DecodeFrom(d); err != nil {
		return err
	}
	var err error
	a.Nonce, err = d.Uint64()
	return err
}

// AuthorizedInvocation is one node of the authorization call tree: a single
// authorization-checked call, with the calls it makes in turn as children.
// Each node exclusively owns its children; the structure is strictly a tree.
type AuthorizedInvocation struct {
	ContractID     types.Hash
	FunctionName   types.Symbol
	Args           []ScVal
	SubInvocations []AuthorizedInvocation
}

// EncodeTo implements Encodable.
func (inv *AuthorizedInvocation) EncodeTo(e *Encoder) error {
	if err := e.PutFixedOpaque(inv.ContractID[:]); err != nil {
		return err
	}
	if err := types.ValidateSymbolLen(string(inv.FunctionName), int(e.lim.MaxSymbolLen)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if err := e.PutVarOpaque([]byte(inv.FunctionName), e.lim.MaxSymbolLen); err != nil {
		return err
	}
	if err := e.PutSeqLen(len(inv.Args), e.lim.MaxVecLen); err != nil {
		return err
	}
	for i := range inv.Args {
		if err := inv.Args[i].EncodeTo(e); err != nil {
			return err
		}
	}
	if err := e.PutSeqLen(len(inv.SubInvocations), e.lim.MaxVecLen); err != nil {
		return err
	}
	for i := range inv.SubInvocations {
		if err := inv.SubInvocations[i].EncodeTo(e); err != nil {
			return err
		}
	}
	return nil
}

// DecodeFrom implements Decodable.
func (inv *AuthorizedInvocation) DecodeFrom(d *Decoder) error {
	*inv = AuthorizedInvocation{}
	id, err := d.FixedOpaque(types.HashSize)
	if err != nil {
		return err
	}
	copy(inv.ContractID[:], id)
	name, err := d.VarOpaque(d.lim.MaxSymbolLen)
	if err != nil {
		return err
	}
	if err := types.ValidateSymbolLen(string(name), int(d.lim.MaxSymbolLen)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	inv.FunctionName = types.Symbol(name)
	nArgs, err := d.SeqLen(d.lim.MaxVecLen)
	if err != nil {
		return err
	}
	if nArgs > 0 {
		inv.Args = make([]ScVal, nArgs)
		for i := range inv.Args {
			if err := inv.Args[i].DecodeFrom(d); err != nil {
				return err
			}
		}
	}
	nSub, err := d.SeqLen(d.lim.MaxVecLen)
	if err != nil {
		return err
	}
	if nSub > 0 {
		inv.SubInvocations = make([]AuthorizedInvocation, nSub)
		for i := range inv.SubInvocations {
			if err := inv.SubInvocations[i].DecodeFrom(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// ContractAuth is one address's authorization of an invocation tree.
//
// AddressWithNonce absent means the transaction source account authorizes
// implicitly and SignatureArgs must be empty; the transaction-level
// signature suffices.
type ContractAuth struct {
	AddressWithNonce *AddressWithNonce
	RootInvocation   AuthorizedInvocation
	SignatureArgs    []ScVal
}

// EncodeTo implements Encodable.
func (c *ContractAuth) EncodeTo(e *Encoder) error {
	if c.AddressWithNonce == nil && len(c.SignatureArgs) > 0 {
		return fmt.Errorf("%w: signature args present without address", ErrMalformedInput)
	}
	if err := e.PutBool(c.AddressWithNonce != nil); err != nil {
		return err
	}
	if c.AddressWithNonce != nil {
		if err := c.AddressWithNonce.EncodeTo(e); err != nil {
			return err
		}
	}
	if err := c.RootInvocation.EncodeTo(e); err != nil {
		return err
	}
	if err := e.PutSeqLen(len(c.SignatureArgs), e.lim.MaxVecLen); err != nil {
		return err
	}
	for i := range c.SignatureArgs {
		if err := c.SignatureArgs[i].EncodeTo(e); err != nil {
			return err
		}
	}
	return nil
}

// DecodeFrom implements Decodable.
func (c *ContractAuth) DecodeFrom(d *Decoder) error {
	*c = ContractAuth{}
	present, err := d.Bool()
	if err != nil {
		return err
	}
	if present {
		c.AddressWithNonce = new(AddressWithNonce)
		if err := c.AddressWithNonce.DecodeFrom(d); err != nil {
			return err
		}
	}
	if err := c.RootInvocation.DecodeFrom(d); err != nil {
		return err
	}
	n, err := d.SeqLen(d.lim.MaxVecLen)
	if err != nil {
		return err
	}
	if n > 0 {
		if c.AddressWithNonce == nil {
			return fmt.Errorf("%w: signature args present without address", ErrMalformedInput)
		}
		c.SignatureArgs = make([]ScVal, n)
		for i := range c.SignatureArgs {
			if err := c.SignatureArgs[i].DecodeFrom(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// HostFunction is one host function invocation plus the authorization
// entries that gate it. Immutable once built.
type HostFunction struct {
	Args HostFunctionArgs
	Auth []ContractAuth
}

// EncodeTo implements Encodable.
func (f *HostFunction) EncodeTo(e *Encoder) error {
	if err := f.Args.EncodeTo(e); err != nil {
		return err
	}
	if err := e.PutSeqLen(len(f.Auth), e.lim.MaxVecLen); err != nil {
		return err
	}
	for i := range f.Auth {
		if err := f.Auth[i].EncodeTo(e); err != nil {
			return err
		}
	}
	return nil
}

// DecodeFrom implements Decodable.
func (f *HostFunction) DecodeFrom(d *Decoder) error {
	*f = HostFunction{}
	if err := f.Args.DecodeFrom(d); err != nil {
		return err
	}
	n, err := d.SeqLen(d.lim.MaxVecLen)
	if err != nil {
		return err
	}
	if n > 0 {
		f.Auth = make([]ContractAuth, n)
		for i := range f.Auth {
			if err := f.Auth[i].DecodeFrom(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// InvokeHostFunctionOp is the full operation: an ordered sequence of host
// functions the ledger applies all-or-nothing. This package only preserves
// ordering and the MaxOpsPerTx bound; atomicity is the ledger's concern.
type InvokeHostFunctionOp struct {
	Functions []HostFunction
}

// EncodeTo implements Encodable.
func (op *InvokeHostFunctionOp) EncodeTo(e *Encoder) error {
	if err := e.PutSeqLen(len(op.Functions), e.lim.MaxOpsPerTx); err != nil {
		return err
	}
	for i := range op.Functions {
		if err := op.Functions[i].EncodeTo(e); err != nil {
			return err
		}
	}
	return nil
}

// DecodeFrom implements Decodable.
func (op *InvokeHostFunctionOp) DecodeFrom(d *Decoder) error {
	*op = InvokeHostFunctionOp{}
	n, err := d.SeqLen(d.lim.MaxOpsPerTx)
	if err != nil {
		return err
	}
	if n > 0 {
		op.Functions = make([]HostFunction, n)
		for i := range op.Functions {
			if err := op.Functions[i].DecodeFrom(d); err != nil {
				return err
			}
		}
	}
	return nil
}
