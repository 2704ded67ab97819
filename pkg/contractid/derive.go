// Package contractid derives 32-byte contract identifiers from the three
// mutually exclusive preimage schemes.
//
// Every identifier is the SHA-256 of a tagged preimage that includes the
// network ID, so the same creation request yields different contracts on
// different networks. Derivation is pure: identical inputs always produce
// the identical identifier.
package contractid

import (
	"errors"
	"fmt"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

var (
	// ErrSchemeMismatch is returned for an illegal combination of
	// derivation scheme and contract code kind: the built-in token code
	// is legal only with the FromAsset scheme, and vice versa.
	ErrSchemeMismatch = errors.New("contract ID scheme mismatch")

	// ErrSignatureInvalid is returned when the signature of the
	// FromEd25519PublicKey scheme does not verify against the
	// create-contract-args preimage under the supplied key.
	ErrSignatureInvalid = errors.New("contract ID signature invalid")

	// ErrMissingSourceAccount is returned when the FromSourceAccount
	// scheme is derived without an invoking account in the params.
	ErrMissingSourceAccount = errors.New("source account required for derivation")
)

// Params carries the derivation context the scheme payload itself does
// not contain.
type Params struct {
	// NetworkPassphrase selects the network every preimage is bound to.
	NetworkPassphrase string

	// SourceAccount is the invoking account, required by the
	// FromSourceAccount scheme and ignored by the others.
	SourceAccount types.Pubkey
}

// Derive computes the contract identifier for the given scheme and code.
//
// The code reference participates in legality checks and, for the Ed25519
// scheme, in the signed create-contract-args preimage; it is not part of
// the identifier preimage itself.
func Derive(lim xdr.Limits, id xdr.ContractID, code xdr.ContractCode, p Params) (types.Hash, error) {
	var zero types.Hash
	if err := checkScheme(id, code); err != nil {
		return zero, err
	}
	networkID := types.NetworkID(p.NetworkPassphrase)

	switch id.Type {
	case xdr.ContractIDFromSourceAccount:
		if p.SourceAccount.IsZero() {
			return zero, ErrMissingSourceAccount
		}
		return hashPreimage(lim, &xdr.PreimageFromSourceAccount{
			NetworkID:     networkID,
			SourceAccount: p.SourceAccount,
			Salt:          id.Salt,
		})

	case xdr.ContractIDFromEd25519PublicKey:
		payload, err := hashPreimage(lim, &xdr.PreimageCreateContractArgs{
			NetworkID: networkID,
			Source:    code,
			Salt:      id.Ed25519.Salt,
		})
		if err != nil {
			return zero, err
		}
		if !id.Ed25519.Signature.Verify(id.Ed25519.Key, payload.Bytes()) {
			return zero, ErrSignatureInvalid
		}
		return hashPreimage(lim, &xdr.PreimageFromEd25519{
			NetworkID: networkID,
			Key:       id.Ed25519.Key,
			Salt:      id.Ed25519.Salt,
		})

	case xdr.ContractIDFromAsset:
		return hashPreimage(lim, &xdr.PreimageFromAsset{
			NetworkID: networkID,
			Asset:     *id.Asset,
		})

	default:
		return zero, fmt.Errorf("%w: unknown scheme %d", xdr.ErrMalformedInput, id.Type)
	}
}

// DeriveForCreate derives the identifier a CreateContractArgs will receive.
func DeriveForCreate(lim xdr.Limits, args xdr.CreateContractArgs, p Params) (types.Hash, error) {
	return Derive(lim, args.ContractID, args.Source, p)
}

// CreateContractPayload returns the hash a bare Ed25519 key must sign to
// authorize creation under the FromEd25519PublicKey scheme.
func CreateContractPayload(lim xdr.Limits, passphrase string, code xdr.ContractCode, salt [32]byte) (types.Hash, error) {
	return hashPreimage(lim, &xdr.PreimageCreateContractArgs{
		NetworkID: types.NetworkID(passphrase),
		Source:    code,
		Salt:      salt,
	})
}

func checkScheme(id xdr.ContractID, code xdr.ContractCode) error {
	switch {
	case code.Type == xdr.ContractCodeToken && id.Type != xdr.ContractIDFromAsset:
		return fmt.Errorf("%w: token code requires the asset scheme", ErrSchemeMismatch)
	case code.Type == xdr.ContractCodeWasmRef && id.Type == xdr.ContractIDFromAsset:
		return fmt.Errorf("%w: asset scheme requires the token code", ErrSchemeMismatch)
	}
	switch id.Type {
	case xdr.ContractIDFromEd25519PublicKey:
		if id.Ed25519 == nil {
			return fmt.Errorf("%w: ed25519 scheme with nil payload", xdr.ErrMalformedInput)
		}
	case xdr.ContractIDFromAsset:
		if id.Asset == nil {
			return fmt.Errorf("%w: asset scheme with nil asset", xdr.ErrMalformedInput)
		}
	}
	return nil
}

func hashPreimage(lim xdr.Limits, p xdr.Encodable) (types.Hash, error) {
	raw, err := xdr.Marshal(lim, p)
	if err != nil {
		return types.Hash{}, fmt.Errorf("encode preimage: %w", err)
	}
	return types.ComputeHash(raw), nil
}
