package xdr

import "github.com/fortiblox/soroban-core/internal/types"

// EnvelopeType tags every hash preimage in the protocol. The values are the
// network's published constants and must be reproduced byte for byte; any
// deviation breaks interoperability with the network's verification logic.
type EnvelopeType int32

// Envelope type constants for contract preimages.
const (
	EnvelopeTypeContractIDFromEd25519       EnvelopeType = 8
	EnvelopeTypeContractIDFromAsset         EnvelopeType = 10
	EnvelopeTypeContractIDFromSourceAccount EnvelopeType = 11
	EnvelopeTypeCreateContractArgs          EnvelopeType = 12
	EnvelopeTypeContractAuth                EnvelopeType = 13
)

// PreimageFromEd25519 is the hash preimage of the self-authorizing
// contract ID scheme.
type PreimageFromEd25519 struct {
	NetworkID types.Hash
	Key       types.Pubkey
	Salt      [32]byte
}

// EncodeTo implements Encodable.
func (p *PreimageFromEd25519) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(EnvelopeTypeContractIDFromEd25519)); err != nil {
		return err
	}
	if err := e.PutFixedOpaque(p.NetworkID[:]); err != nil {
		return err
	}
	if err := e.PutFixedOpaque(p.Key[:]); err != nil {
		return err
	}
	return e.PutFixedOpaque(p.Salt[:])
}

// PreimageFromAsset is the hash preimage of the asset contract ID scheme.
type PreimageFromAsset struct {
	NetworkID types.Hash
	Asset     Asset
}

// EncodeTo implements Encodable.
func (p *PreimageFromAsset) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(EnvelopeTypeContractIDFromAsset)); err != nil {
		return err
	}
	if err := e.PutFixedOpaque(p.NetworkID[:]); err != nil {
		return err
	}
	return p.Asset.EncodeTo(e)
}

// PreimageFromSourceAccount is the hash preimage of the source-account
// contract ID scheme.
type PreimageFromSourceAccount struct {
	NetworkID     types.Hash
	SourceAccount types.Pubkey
	Salt          [32]byte
}

// EncodeTo implements Encodable.
func (p *PreimageFromSourceAccount) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(EnvelopeTypeContractIDFromSourceAccount)); err != nil {
		return err
	}
	if err := e.PutFixedOpaque(p.NetworkID[:]); err != nil {
		return err
	}
	if err := e.PutFixedOpaque(p.SourceAccount[:]); err != nil {
		return err
	}
	return e.PutFixedOpaque(p.Salt[:])
}

// PreimageCreateContractArgs is the distinct preimage a bare Ed25519 key
// signs to prove control over the creation request itself.
type PreimageCreateContractArgs struct {
	NetworkID types.Hash
	Source    ContractCode
	Salt      [32]byte
}

// EncodeTo implements Encodable.
func (p *PreimageCreateContractArgs) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(EnvelopeTypeCreateContractArgs)); err != nil {
		return err
	}
	if err := e.PutFixedOpaque(p.NetworkID[:]); err != nil {
		return err
	}
	if err := p.Source.EncodeTo(e); err != nil {
		return err
	}
	return e.PutFixedOpaque(p.Salt[:])
}

// PreimageContractAuth is the payload an authorizing address signs:
// the address-with-nonce pair and the exact invocation tree, bound to the
// network. Builder and verifier must produce identical bytes.
type PreimageContractAuth struct {
	NetworkID        types.Hash
	AddressWithNonce *AddressWithNonce
	Invocation       AuthorizedInvocation
}

// EncodeTo implements Encodable.
func (p *PreimageContractAuth) EncodeTo(e *Encoder) error {
	if err := e.PutInt32(int32(EnvelopeTypeContractAuth)); err != nil {
		return err
	}
	if err := e.PutFixedOpaque(p.NetworkID[:]); err != nil {
		return err
	}
	if err := e.PutBool(p.AddressWithNonce != nil); err != nil {
		return err
	}
	if p.AddressWithNonce != nil {
		if err := p.AddressWithNonce.EncodeTo(e); err != nil {
			return err
		}
	}
	return p.Invocation.EncodeTo(e)
}
