// Package auth builds and verifies contract authorization entries.
//
// An entry binds an address and its replay nonce to the exact invocation
// tree the address authorizes. The signature covers the SHA-256 of the
// serialized contract-auth preimage, so any change to the tree, the nonce,
// or the address after signing invalidates the entry. Entries without an
// address are implicit source-account authorizations and carry no
// signature arguments; the transaction-level signature suffices.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/invocation"
	"github.com/fortiblox/soroban-core/pkg/nonce"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

var (
	// ErrSignatureInvalid is returned when signature arguments do not
	// verify against the recomputed authorization payload.
	ErrSignatureInvalid = errors.New("authorization signature invalid")

	// ErrUnsupportedAddressKind is returned when no verifier or signer
	// exists for the authorizing address's kind.
	ErrUnsupportedAddressKind = errors.New("unsupported address kind")

	// ErrAddressMismatch is returned when the signer's address differs
	// from the address carried by the entry being built.
	ErrAddressMismatch = errors.New("signer address mismatch")
)

// Builder assembles signed authorization entries for one network.
type Builder struct {
	passphrase string
	lim        xdr.Limits
	treeLim    invocation.Limits
}

// NewBuilder creates a Builder. treeLim bounds the invocation trees it
// accepts; a zero value applies only the codec's sequence bounds.
func NewBuilder(passphrase string, lim xdr.Limits, treeLim invocation.Limits) *Builder {
	return &Builder{passphrase: passphrase, lim: lim, treeLim: treeLim}
}

// Payload returns the 32-byte hash an authorizing address signs for the
// given address-with-nonce and invocation tree.
func Payload(lim xdr.Limits, passphrase string, awn *xdr.AddressWithNonce, inv xdr.AuthorizedInvocation) (types.Hash, error) {
	raw, err := xdr.Marshal(lim, &xdr.PreimageContractAuth{
		NetworkID:        types.NetworkID(passphrase),
		AddressWithNonce: awn,
		Invocation:       inv,
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("encode auth preimage: %w", err)
	}
	return types.ComputeHash(raw), nil
}

// Build assembles an authorization entry for the given tree.
//
// With awn nil the entry is an implicit source-account authorization:
// signature arguments are forced empty and signer is unused. Otherwise the
// signer must match awn.Address and its output becomes SignatureArgs.
func (b *Builder) Build(ctx context.Context, awn *xdr.AddressWithNonce, root *invocation.Node, signer Signer) (xdr.ContractAuth, error) {
	if err := invocation.Validate(root, b.treeLim, b.lim); err != nil {
		return xdr.ContractAuth{}, err
	}
	inv := root.ToXDR()

	if awn == nil {
		return xdr.ContractAuth{RootInvocation: inv}, nil
	}
	if signer == nil {
		return xdr.ContractAuth{}, fmt.Errorf("%w: no signer for %s", ErrUnsupportedAddressKind, awn.Address)
	}
	if signer.Address() != awn.Address {
		return xdr.ContractAuth{}, fmt.Errorf("%w: signer %s, entry %s", ErrAddressMismatch, signer.Address(), awn.Address)
	}

	payload, err := Payload(b.lim, b.passphrase, awn, inv)
	if err != nil {
		return xdr.ContractAuth{}, err
	}
	sigArgs, err := signer.Sign(ctx, payload.Bytes())
	if err != nil {
		return xdr.ContractAuth{}, fmt.Errorf("sign authorization: %w", err)
	}

	awnCopy := *awn
	return xdr.ContractAuth{
		AddressWithNonce: &awnCopy,
		RootInvocation:   inv,
		SignatureArgs:    sigArgs,
	}, nil
}

// BuildNext is Build with the nonce read from a tracker: it embeds the
// tracker's next expected value for (signer address, root contract).
func (b *Builder) BuildNext(ctx context.Context, tracker nonce.Tracker, root *invocation.Node, signer Signer) (xdr.ContractAuth, error) {
	if signer == nil {
		return xdr.ContractAuth{}, fmt.Errorf("%w: nil signer", ErrUnsupportedAddressKind)
	}
	n, err := tracker.Next(signer.Address(), root.ContractID)
	if err != nil {
		return xdr.ContractAuth{}, fmt.Errorf("next nonce: %w", err)
	}
	awn := &xdr.AddressWithNonce{Address: signer.Address(), Nonce: n}
	return b.Build(ctx, awn, root, signer)
}

// Verifier checks authorization entries for one network.
type Verifier struct {
	passphrase string
	lim        xdr.Limits

	// Custom verifies custom-account signature payloads. Nil means
	// entries authorized by contract addresses are unsupported.
	Custom CustomVerifier
}

// NewVerifier creates a Verifier.
func NewVerifier(passphrase string, lim xdr.Limits) *Verifier {
	return &Verifier{passphrase: passphrase, lim: lim}
}

// Verify recomputes the entry's payload and checks its signature arguments
// against the format implied by the authorizing address's kind.
func (v *Verifier) Verify(entry *xdr.ContractAuth) error {
	if entry.AddressWithNonce == nil {
		if len(entry.SignatureArgs) != 0 {
			return fmt.Errorf("%w: signature args without address", xdr.ErrMalformedInput)
		}
		// Implicit source-account authorization; the transaction-level
		// signature is checked by the transaction layer, not here.
		return nil
	}

	payload, err := Payload(v.lim, v.passphrase, entry.AddressWithNonce, entry.RootInvocation)
	if err != nil {
		return err
	}

	addr := entry.AddressWithNonce.Address
	switch addr.Type {
	case xdr.ScAddressTypeAccount:
		return verifyAccountSignature(addr.AccountID, payload, entry.SignatureArgs)
	case xdr.ScAddressTypeContract:
		if v.Custom == nil {
			return fmt.Errorf("%w: no custom verifier for %s", ErrUnsupportedAddressKind, addr)
		}
		return v.Custom.VerifyCustom(addr, payload.Bytes(), entry.SignatureArgs)
	default:
		return fmt.Errorf("%w: kind %d", ErrUnsupportedAddressKind, addr.Type)
	}
}

// VerifyWithTracker verifies the entry and additionally checks its nonce
// against the tracker's next expected value.
func (v *Verifier) VerifyWithTracker(entry *xdr.ContractAuth, tracker nonce.Tracker) error {
	if err := v.Verify(entry); err != nil {
		return err
	}
	if entry.AddressWithNonce == nil {
		return nil
	}
	expected, err := tracker.Next(entry.AddressWithNonce.Address, entry.RootInvocation.ContractID)
	if err != nil {
		return fmt.Errorf("next nonce: %w", err)
	}
	if entry.AddressWithNonce.Nonce != expected {
		return fmt.Errorf("%w: entry %d, expected %d", nonce.ErrNonceMismatch, entry.AddressWithNonce.Nonce, expected)
	}
	return nil
}

// verifyAccountSignature checks the account-kind format: exactly one
// [public key, signature] vector whose key is the authorizing account.
func verifyAccountSignature(account types.Pubkey, payload types.Hash, sigArgs []xdr.ScVal) error {
	if len(sigArgs) != 1 {
		return fmt.Errorf("%w: %d signature args, want 1", ErrSignatureInvalid, len(sigArgs))
	}
	entry := sigArgs[0]
	if entry.Type != xdr.ScValTypeVec || len(entry.Vec) != 2 {
		return fmt.Errorf("%w: malformed account signature entry", ErrSignatureInvalid)
	}
	keyVal, sigVal := entry.Vec[0], entry.Vec[1]
	if keyVal.Type != xdr.ScValTypeBytes || sigVal.Type != xdr.ScValTypeBytes {
		return fmt.Errorf("%w: malformed account signature entry", ErrSignatureInvalid)
	}
	pub, err := types.PubkeyFromBytes(keyVal.Bytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if pub != account {
		return fmt.Errorf("%w: signature key is not the authorizing account", ErrSignatureInvalid)
	}
	sig, err := types.SignatureFromBytes(sigVal.Bytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !sig.Verify(pub, payload.Bytes()) {
		return ErrSignatureInvalid
	}
	return nil
}
