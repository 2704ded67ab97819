package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// Signer produces the signature arguments of an authorization entry for
// one address kind. Implementations may be slow or remote (hardware
// signers); Sign takes a context and may fail.
type Signer interface {
	// Address returns the address this signer authorizes for.
	Address() xdr.ScAddress

	// Sign signs the 32-byte authorization payload and returns the
	// signature arguments in the address kind's wire format.
	Sign(ctx context.Context, payload []byte) ([]xdr.ScVal, error)
}

// Ed25519Signer signs for a network account address. Its signature
// argument format is a single vector [public key bytes, signature bytes].
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  types.Pubkey
}

// NewEd25519Signer creates a signer from an Ed25519 private key.
func NewEd25519Signer(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, types.ErrInvalidPubkey
	}
	pub, err := types.PubkeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// Pubkey returns the signer's public key.
func (s *Ed25519Signer) Pubkey() types.Pubkey {
	return s.pub
}

// Address implements Signer.
func (s *Ed25519Signer) Address() xdr.ScAddress {
	return xdr.AccountAddress(s.pub)
}

// Sign implements Signer.
func (s *Ed25519Signer) Sign(_ context.Context, payload []byte) ([]xdr.ScVal, error) {
	sig := ed25519.Sign(s.priv, payload)
	return []xdr.ScVal{
		xdr.VecVal(xdr.BytesVal(s.pub.Bytes()), xdr.BytesVal(sig)),
	}, nil
}

// SignFunc is the capability a custom-account signer supplies: it returns
// the address-defined opaque signature payload for a 32-byte hash.
type SignFunc func(ctx context.Context, payload []byte) ([]xdr.ScVal, error)

// CustomSigner signs for a custom-account (contract) address. The account
// contract defines its own signature argument format, so the payload
// construction is delegated to the supplied capability.
type CustomSigner struct {
	addr xdr.ScAddress
	sign SignFunc
}

// NewCustomSigner creates a custom-account signer.
func NewCustomSigner(addr xdr.ScAddress, sign SignFunc) (*CustomSigner, error) {
	if sign == nil {
		return nil, fmt.Errorf("%w: nil sign capability", xdr.ErrMalformedInput)
	}
	return &CustomSigner{addr: addr, sign: sign}, nil
}

// Address implements Signer.
func (s *CustomSigner) Address() xdr.ScAddress {
	return s.addr
}

// Sign implements Signer.
func (s *CustomSigner) Sign(ctx context.Context, payload []byte) ([]xdr.ScVal, error) {
	return s.sign(ctx, payload)
}

// CustomVerifier checks a custom-account signature payload. The semantics
// belong to the account contract, which this library cannot execute, so
// verification is a caller-supplied capability.
type CustomVerifier interface {
	VerifyCustom(address xdr.ScAddress, payload []byte, sigArgs []xdr.ScVal) error
}

// CustomVerifierFunc adapts a function to the CustomVerifier interface.
type CustomVerifierFunc func(address xdr.ScAddress, payload []byte, sigArgs []xdr.ScVal) error

// VerifyCustom implements CustomVerifier.
func (f CustomVerifierFunc) VerifyCustom(address xdr.ScAddress, payload []byte, sigArgs []xdr.ScVal) error {
	return f(address, payload, sigArgs)
}
