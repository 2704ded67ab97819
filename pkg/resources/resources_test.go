package resources

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/contractid"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

const testPassphrase = "Test SDF Network ; September 2015"

func hashOf(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func accountOf(b byte) xdr.ScAddress {
	var p types.Pubkey
	p[0] = b
	return xdr.AccountAddress(p)
}

func containsKey(t *testing.T, lim xdr.Limits, keys []xdr.LedgerKey, want xdr.LedgerKey) bool {
	t.Helper()
	for i := range keys {
		same, err := keys[i].Equal(&want, lim)
		if err != nil {
			t.Fatalf("compare keys: %v", err)
		}
		if same {
			return true
		}
	}
	return false
}

func TestBuildFootprintInvoke(t *testing.T) {
	lim := xdr.DefaultLimits()
	contract := hashOf(1)

	fn := xdr.HostFunction{Args: xdr.InvokeContractFn(contract, "hello")}
	fp, err := BuildFootprint(lim, []xdr.HostFunction{fn}, contractid.Params{})
	if err != nil {
		t.Fatalf("build footprint: %v", err)
	}

	want := xdr.ContractDataKey(contract, xdr.ContractExecutableKeyVal())
	if !containsKey(t, lim, fp.ReadOnly, want) {
		t.Error("expected the invoked contract's executable entry in read-only")
	}
	if len(fp.ReadWrite) != 0 {
		t.Errorf("a plain invoke writes nothing, got %d write keys", len(fp.ReadWrite))
	}

	t.Run("Deduplicated", func(t *testing.T) {
		fp, err := BuildFootprint(lim, []xdr.HostFunction{fn, fn}, contractid.Params{})
		if err != nil {
			t.Fatalf("build footprint: %v", err)
		}
		if len(fp.ReadOnly) != 1 {
			t.Errorf("expected 1 deduplicated key, got %d", len(fp.ReadOnly))
		}
	})

	t.Run("MalformedInvokeArgs", func(t *testing.T) {
		bad := xdr.HostFunction{Args: xdr.HostFunctionArgs{
			Type:           xdr.HostFunctionTypeInvokeContract,
			InvokeContract: []xdr.ScVal{xdr.U32Val(1)},
		}}
		if _, err := BuildFootprint(lim, []xdr.HostFunction{bad}, contractid.Params{}); !errors.Is(err, xdr.ErrMalformedInput) {
			t.Errorf("expected ErrMalformedInput, got %v", err)
		}
	})
}

func TestBuildFootprintCreate(t *testing.T) {
	lim := xdr.DefaultLimits()
	var account types.Pubkey
	account[0] = 9
	params := contractid.Params{NetworkPassphrase: testPassphrase, SourceAccount: account}
	wasmHash := hashOf(0x55)

	args := xdr.CreateContractArgs{
		ContractID: xdr.ContractID{Type: xdr.ContractIDFromSourceAccount},
		Source:     xdr.WasmRefCode(wasmHash),
	}
	fn := xdr.HostFunction{Args: xdr.CreateContractFn(args)}

	fp, err := BuildFootprint(lim, []xdr.HostFunction{fn}, params)
	if err != nil {
		t.Fatalf("build footprint: %v", err)
	}

	newID, err := contractid.DeriveForCreate(lim, args, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	instance := xdr.ContractDataKey(newID, xdr.ContractExecutableKeyVal())
	if !containsKey(t, lim, fp.ReadWrite, instance) {
		t.Error("expected the created instance entry in read-write")
	}
	if !containsKey(t, lim, fp.ReadOnly, xdr.ContractCodeKey(wasmHash)) {
		t.Error("expected the referenced wasm entry in read-only")
	}

	t.Run("MissingParams", func(t *testing.T) {
		if _, err := BuildFootprint(lim, []xdr.HostFunction{fn}, contractid.Params{
			NetworkPassphrase: testPassphrase,
		}); !errors.Is(err, contractid.ErrMissingSourceAccount) {
			t.Errorf("expected ErrMissingSourceAccount, got %v", err)
		}
	})
}

func TestBuildFootprintUpload(t *testing.T) {
	lim := xdr.DefaultLimits()
	code := []byte{0x00, 0x61, 0x73, 0x6d, 1, 0, 0, 0}

	fn := xdr.HostFunction{Args: xdr.UploadContractWasmFn(code)}
	fp, err := BuildFootprint(lim, []xdr.HostFunction{fn}, contractid.Params{})
	if err != nil {
		t.Fatalf("build footprint: %v", err)
	}

	want := xdr.ContractCodeKey(types.Hash(sha256.Sum256(code)))
	if !containsKey(t, lim, fp.ReadWrite, want) {
		t.Error("expected the uploaded code entry in read-write")
	}
}

func TestBuildFootprintAuth(t *testing.T) {
	lim := xdr.DefaultLimits()
	contract := hashOf(1)
	sub := hashOf(2)
	addr := accountOf(7)

	fn := xdr.HostFunction{
		Args: xdr.InvokeContractFn(contract, "swap"),
		Auth: []xdr.ContractAuth{{
			AddressWithNonce: &xdr.AddressWithNonce{Address: addr, Nonce: 4},
			RootInvocation: xdr.AuthorizedInvocation{
				ContractID:   contract,
				FunctionName: "swap",
				SubInvocations: []xdr.AuthorizedInvocation{
					{ContractID: sub, FunctionName: "increase_allowance"},
				},
			},
		}},
	}

	fp, err := BuildFootprint(lim, []xdr.HostFunction{fn}, contractid.Params{})
	if err != nil {
		t.Fatalf("build footprint: %v", err)
	}

	if !containsKey(t, lim, fp.ReadOnly, xdr.ContractDataKey(sub, xdr.ContractExecutableKeyVal())) {
		t.Error("expected every tree node's executable entry in read-only")
	}
	nonceKey := xdr.NonceLedgerKey(contract, addr)
	if !containsKey(t, lim, fp.ReadWrite, nonceKey) {
		t.Error("expected the authorizing address's nonce entry in read-write")
	}

	t.Run("ImplicitEntryHasNoNonceKey", func(t *testing.T) {
		implicit := fn
		implicit.Auth = []xdr.ContractAuth{{RootInvocation: fn.Auth[0].RootInvocation}}
		fp, err := BuildFootprint(lim, []xdr.HostFunction{implicit}, contractid.Params{})
		if err != nil {
			t.Fatalf("build footprint: %v", err)
		}
		if len(fp.ReadWrite) != 0 {
			t.Errorf("implicit authorization consumes no nonce, got %d write keys", len(fp.ReadWrite))
		}
	})
}

func TestFootprintPromotion(t *testing.T) {
	lim := xdr.DefaultLimits()
	code := []byte{1, 2, 3}

	// The upload writes the code entry that the invoke-free create reads;
	// the shared key must end up in read-write only.
	var account types.Pubkey
	account[0] = 9
	params := contractid.Params{NetworkPassphrase: testPassphrase, SourceAccount: account}

	create := xdr.HostFunction{Args: xdr.CreateContractFn(xdr.CreateContractArgs{
		ContractID: xdr.ContractID{Type: xdr.ContractIDFromSourceAccount},
		Source:     xdr.WasmRefCode(types.Hash(sha256.Sum256(code))),
	})}
	upload := xdr.HostFunction{Args: xdr.UploadContractWasmFn(code)}

	fp, err := BuildFootprint(lim, []xdr.HostFunction{create, upload}, params)
	if err != nil {
		t.Fatalf("build footprint: %v", err)
	}

	codeKey := xdr.ContractCodeKey(types.Hash(sha256.Sum256(code)))
	if containsKey(t, lim, fp.ReadOnly, codeKey) {
		t.Error("promoted key should leave the read-only set")
	}
	if !containsKey(t, lim, fp.ReadWrite, codeKey) {
		t.Error("promoted key should land in the read-write set")
	}
}

func TestValidate(t *testing.T) {
	lim := xdr.DefaultLimits()
	roKey := xdr.ContractDataKey(hashOf(1), xdr.ContractExecutableKeyVal())
	rwKey := xdr.NonceLedgerKey(hashOf(1), accountOf(7))
	computed := xdr.LedgerFootprint{
		ReadOnly:  []xdr.LedgerKey{roKey},
		ReadWrite: []xdr.LedgerKey{rwKey},
	}
	minFee := func(metadataBytes uint32) int64 { return int64(metadataBytes) }

	base := func() *xdr.SorobanTransactionData {
		return &xdr.SorobanTransactionData{
			Resources: xdr.SorobanResources{
				Footprint: xdr.LedgerFootprint{
					ReadOnly:  []xdr.LedgerKey{roKey},
					ReadWrite: []xdr.LedgerKey{rwKey},
				},
				ExtendedMetaDataSizeBytes: 100,
			},
			RefundableFee: 100,
		}
	}

	t.Run("ExactCover", func(t *testing.T) {
		if err := Validate(lim, base(), computed, minFee); err != nil {
			t.Errorf("exact cover should pass: %v", err)
		}
	})

	t.Run("SupersetAllowed", func(t *testing.T) {
		data := base()
		data.Resources.Footprint.ReadOnly = append(data.Resources.Footprint.ReadOnly,
			xdr.ContractCodeKey(hashOf(0xee)))
		if err := Validate(lim, data, computed, minFee); err != nil {
			t.Errorf("a padded footprint should pass: %v", err)
		}
	})

	t.Run("ReadSatisfiedByWrite", func(t *testing.T) {
		data := base()
		data.Resources.Footprint = xdr.LedgerFootprint{
			ReadWrite: []xdr.LedgerKey{rwKey, roKey},
		}
		if err := Validate(lim, data, computed, minFee); err != nil {
			t.Errorf("read-write should satisfy a read requirement: %v", err)
		}
	})

	t.Run("MissingReadKey", func(t *testing.T) {
		data := base()
		data.Resources.Footprint.ReadOnly = nil
		if err := Validate(lim, data, computed, minFee); !errors.Is(err, ErrFootprintInsufficient) {
			t.Errorf("expected ErrFootprintInsufficient, got %v", err)
		}
	})

	t.Run("WriteNotSatisfiedByRead", func(t *testing.T) {
		data := base()
		data.Resources.Footprint = xdr.LedgerFootprint{
			ReadOnly: []xdr.LedgerKey{roKey, rwKey},
		}
		if err := Validate(lim, data, computed, minFee); !errors.Is(err, ErrFootprintInsufficient) {
			t.Errorf("expected ErrFootprintInsufficient, got %v", err)
		}
	})

	t.Run("FeeTooLow", func(t *testing.T) {
		data := base()
		data.RefundableFee = 99
		if err := Validate(lim, data, computed, minFee); !errors.Is(err, ErrFeeInsufficient) {
			t.Errorf("expected ErrFeeInsufficient, got %v", err)
		}
	})

	t.Run("NilFeeFuncSkipsCheck", func(t *testing.T) {
		data := base()
		data.RefundableFee = 0
		if err := Validate(lim, data, computed, nil); err != nil {
			t.Errorf("nil fee formula should skip the fee check: %v", err)
		}
	})
}
