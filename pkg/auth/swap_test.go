package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/contractid"
	"github.com/fortiblox/soroban-core/pkg/invocation"
	"github.com/fortiblox/soroban-core/pkg/nonce"
	"github.com/fortiblox/soroban-core/pkg/resources"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// TestAtomicSwap builds the full two-party swap operation: each party
// authorizes a swap call that in turn increases a token allowance for the
// swap contract, both entries ride one host function, and the declared
// resources must cover the computed footprint.
func TestAtomicSwap(t *testing.T) {
	ctx := context.Background()
	lim := xdr.DefaultLimits()
	b := NewBuilder(testPassphrase, lim, invocation.Limits{})
	v := NewVerifier(testPassphrase, lim)
	tracker := nonce.NewMemoryTracker()

	swapContract := hashOf(0x01)
	tokenA := hashOf(0xa0)
	tokenB := hashOf(0xb0)

	alice := testSigner(t)
	bob := testSigner(t)

	makeTree := func(token types.Hash, amount uint64) *invocation.Node {
		root := invocation.NewNode(swapContract, "swap",
			xdr.BytesVal(token.Bytes()), xdr.U64Val(amount))
		root.AddSub(invocation.NewNode(token, "increase_allowance",
			xdr.AddressVal(xdr.ContractAddress(swapContract)),
			xdr.U64Val(amount),
		))
		return root
	}

	aliceTree := makeTree(tokenA, 1000)
	bobTree := makeTree(tokenB, 5000)

	aliceAuth, err := b.BuildNext(ctx, tracker, aliceTree, alice)
	if err != nil {
		t.Fatalf("build alice auth: %v", err)
	}
	bobAuth, err := b.BuildNext(ctx, tracker, bobTree, bob)
	if err != nil {
		t.Fatalf("build bob auth: %v", err)
	}

	fn := xdr.HostFunction{
		Args: xdr.InvokeContractFn(swapContract, "swap",
			xdr.AddressVal(alice.Address()), xdr.AddressVal(bob.Address()),
			xdr.BytesVal(tokenA.Bytes()), xdr.BytesVal(tokenB.Bytes()),
			xdr.U64Val(1000), xdr.U64Val(5000),
		),
		Auth: []xdr.ContractAuth{aliceAuth, bobAuth},
	}
	op := xdr.InvokeHostFunctionOp{Functions: []xdr.HostFunction{fn}}

	t.Run("BothEntriesVerify", func(t *testing.T) {
		for i := range op.Functions[0].Auth {
			if err := v.VerifyWithTracker(&op.Functions[0].Auth[i], tracker); err != nil {
				t.Errorf("entry %d: %v", i, err)
			}
		}
	})

	t.Run("NoNonceConflict", func(t *testing.T) {
		if err := nonce.CheckConflicts(&op); err != nil {
			t.Errorf("expected no conflict: %v", err)
		}
	})

	t.Run("ConflictOnDuplicateEntry", func(t *testing.T) {
		dup := op
		dup.Functions = []xdr.HostFunction{{
			Args: fn.Args,
			Auth: []xdr.ContractAuth{aliceAuth, aliceAuth, bobAuth},
		}}
		if err := nonce.CheckConflicts(&dup); !errors.Is(err, nonce.ErrNonceConflict) {
			t.Errorf("expected ErrNonceConflict, got %v", err)
		}
	})

	t.Run("WireRoundTrip", func(t *testing.T) {
		raw, err := xdr.Marshal(lim, &op)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got xdr.InvokeHostFunctionOp
		if err := xdr.Unmarshal(lim, raw, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !reflect.DeepEqual(op, got) {
			t.Error("operation should survive the wire unchanged")
		}
		for i := range got.Functions[0].Auth {
			if err := v.Verify(&got.Functions[0].Auth[i]); err != nil {
				t.Errorf("decoded entry %d: %v", i, err)
			}
		}
	})

	t.Run("Resources", func(t *testing.T) {
		fp, err := resources.BuildFootprint(lim, op.Functions, contractid.Params{
			NetworkPassphrase: testPassphrase,
		})
		if err != nil {
			t.Fatalf("build footprint: %v", err)
		}

		// The swap contract and both tokens are read; both nonce entries
		// are written.
		if len(fp.ReadOnly) != 3 {
			t.Errorf("expected 3 read-only keys, got %d", len(fp.ReadOnly))
		}
		if len(fp.ReadWrite) != 2 {
			t.Errorf("expected 2 read-write keys, got %d", len(fp.ReadWrite))
		}

		minFee := func(metadataBytes uint32) int64 { return int64(metadataBytes) * 10 }
		data := &xdr.SorobanTransactionData{
			Resources: xdr.SorobanResources{
				Footprint:                 fp,
				Instructions:              1_000_000,
				ReadBytes:                 4096,
				WriteBytes:                512,
				ExtendedMetaDataSizeBytes: 100,
			},
			RefundableFee: 1000,
		}
		if err := resources.Validate(lim, data, fp, minFee); err != nil {
			t.Errorf("declared footprint should cover the computed one: %v", err)
		}

		short := *data
		short.Resources.Footprint = xdr.LedgerFootprint{ReadOnly: fp.ReadOnly}
		if err := resources.Validate(lim, &short, fp, minFee); !errors.Is(err, resources.ErrFootprintInsufficient) {
			t.Errorf("expected ErrFootprintInsufficient, got %v", err)
		}

		cheap := *data
		cheap.RefundableFee = 999
		if err := resources.Validate(lim, &cheap, fp, minFee); !errors.Is(err, resources.ErrFeeInsufficient) {
			t.Errorf("expected ErrFeeInsufficient, got %v", err)
		}
	})
}
