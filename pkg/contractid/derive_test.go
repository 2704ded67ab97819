package contractid

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

const testPassphrase = "Test SDF Network ; September 2015"

func testKeypair(t *testing.T) (types.Pubkey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	p, err := types.PubkeyFromBytes(pub)
	if err != nil {
		t.Fatalf("pubkey from bytes: %v", err)
	}
	return p, priv
}

func TestDeriveFromSourceAccount(t *testing.T) {
	lim := xdr.DefaultLimits()
	account, _ := testKeypair(t)
	var salt [32]byte
	salt[0] = 0x01

	id := xdr.ContractID{Type: xdr.ContractIDFromSourceAccount, Salt: salt}
	code := xdr.WasmRefCode(types.Hash{})
	params := Params{NetworkPassphrase: testPassphrase, SourceAccount: account}

	first, err := Derive(lim, id, code, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if first.IsZero() {
		t.Fatal("derived a zero contract ID")
	}

	t.Run("Deterministic", func(t *testing.T) {
		again, err := Derive(lim, id, code, params)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if again != first {
			t.Error("identical inputs should derive the identical ID")
		}
	})

	t.Run("SaltSensitive", func(t *testing.T) {
		other := id
		other.Salt[0] = 0x02
		got, err := Derive(lim, other, code, params)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if got == first {
			t.Error("a different salt should derive a different ID")
		}
	})

	t.Run("AccountSensitive", func(t *testing.T) {
		otherAccount, _ := testKeypair(t)
		got, err := Derive(lim, id, code, Params{
			NetworkPassphrase: testPassphrase,
			SourceAccount:     otherAccount,
		})
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if got == first {
			t.Error("a different account should derive a different ID")
		}
	})

	t.Run("NetworkSensitive", func(t *testing.T) {
		got, err := Derive(lim, id, code, Params{
			NetworkPassphrase: "Public Global Network ; September 2015",
			SourceAccount:     account,
		})
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if got == first {
			t.Error("a different network should derive a different ID")
		}
	})

	t.Run("MissingAccount", func(t *testing.T) {
		_, err := Derive(lim, id, code, Params{NetworkPassphrase: testPassphrase})
		if !errors.Is(err, ErrMissingSourceAccount) {
			t.Errorf("expected ErrMissingSourceAccount, got %v", err)
		}
	})
}

func TestDeriveFromEd25519(t *testing.T) {
	lim := xdr.DefaultLimits()
	pub, priv := testKeypair(t)
	var salt [32]byte
	salt[5] = 0xaa
	code := xdr.WasmRefCode(types.Hash{1, 2, 3})

	payload, err := CreateContractPayload(lim, testPassphrase, code, salt)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	sig, err := types.SignatureFromBytes(ed25519.Sign(priv, payload.Bytes()))
	if err != nil {
		t.Fatalf("signature: %v", err)
	}

	id := xdr.ContractID{
		Type: xdr.ContractIDFromEd25519PublicKey,
		Ed25519: &xdr.ContractIDFromEd25519{
			Key:       pub,
			Signature: sig,
			Salt:      salt,
		},
	}
	params := Params{NetworkPassphrase: testPassphrase}

	first, err := Derive(lim, id, code, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if first.IsZero() {
		t.Fatal("derived a zero contract ID")
	}

	t.Run("BadSignature", func(t *testing.T) {
		bad := id
		payload := *bad.Ed25519
		payload.Signature[0] ^= 0xff
		bad.Ed25519 = &payload
		if _, err := Derive(lim, bad, code, params); !errors.Is(err, ErrSignatureInvalid) {
			t.Errorf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("SignatureBindsCode", func(t *testing.T) {
		// The signature covers the create-contract-args preimage, which
		// includes the code reference. Swapping the code invalidates it.
		otherCode := xdr.WasmRefCode(types.Hash{9, 9, 9})
		if _, err := Derive(lim, id, otherCode, params); !errors.Is(err, ErrSignatureInvalid) {
			t.Errorf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("NoAccountRequired", func(t *testing.T) {
		// The scheme is self-authorizing: no source account participates.
		got, err := Derive(lim, id, code, params)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if got != first {
			t.Error("derivation should not depend on params.SourceAccount")
		}
	})
}

func TestDeriveFromAsset(t *testing.T) {
	lim := xdr.DefaultLimits()
	issuer, _ := testKeypair(t)
	asset, err := xdr.IssuedAsset("USDC", issuer)
	if err != nil {
		t.Fatalf("issued asset: %v", err)
	}

	id := xdr.ContractID{Type: xdr.ContractIDFromAsset, Asset: &asset}
	params := Params{NetworkPassphrase: testPassphrase}

	first, err := Derive(lim, id, xdr.TokenCode(), params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	t.Run("Deterministic", func(t *testing.T) {
		again, err := Derive(lim, id, xdr.TokenCode(), params)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if again != first {
			t.Error("identical inputs should derive the identical ID")
		}
	})

	t.Run("AssetSensitive", func(t *testing.T) {
		native := xdr.NativeAsset()
		got, err := Derive(lim, xdr.ContractID{Type: xdr.ContractIDFromAsset, Asset: &native},
			xdr.TokenCode(), params)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if got == first {
			t.Error("a different asset should derive a different ID")
		}
	})
}

func TestSchemeExclusivity(t *testing.T) {
	lim := xdr.DefaultLimits()
	account, _ := testKeypair(t)
	asset := xdr.NativeAsset()
	params := Params{NetworkPassphrase: testPassphrase, SourceAccount: account}

	t.Run("TokenCodeRequiresAssetScheme", func(t *testing.T) {
		id := xdr.ContractID{Type: xdr.ContractIDFromSourceAccount}
		if _, err := Derive(lim, id, xdr.TokenCode(), params); !errors.Is(err, ErrSchemeMismatch) {
			t.Errorf("expected ErrSchemeMismatch, got %v", err)
		}
	})

	t.Run("AssetSchemeRequiresTokenCode", func(t *testing.T) {
		id := xdr.ContractID{Type: xdr.ContractIDFromAsset, Asset: &asset}
		if _, err := Derive(lim, id, xdr.WasmRefCode(types.Hash{}), params); !errors.Is(err, ErrSchemeMismatch) {
			t.Errorf("expected ErrSchemeMismatch, got %v", err)
		}
	})
}

func TestDeriveForCreate(t *testing.T) {
	lim := xdr.DefaultLimits()
	account, _ := testKeypair(t)
	var salt [32]byte
	params := Params{NetworkPassphrase: testPassphrase, SourceAccount: account}

	args := xdr.CreateContractArgs{
		ContractID: xdr.ContractID{Type: xdr.ContractIDFromSourceAccount, Salt: salt},
		Source:     xdr.WasmRefCode(types.Hash{4, 4}),
	}
	fromArgs, err := DeriveForCreate(lim, args, params)
	if err != nil {
		t.Fatalf("derive for create: %v", err)
	}
	direct, err := Derive(lim, args.ContractID, args.Source, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if fromArgs != direct {
		t.Error("DeriveForCreate should agree with Derive")
	}
}
