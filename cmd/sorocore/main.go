// sorocore: offline tooling for contract authorization structures.
//
// This is a thin CLI over the soroban-core library: derive contract IDs,
// decode authorization and transaction-data XDR, and verify authorization
// entries. It performs no network I/O.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/auth"
	"github.com/fortiblox/soroban-core/pkg/contractid"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	network      = flag.String("network", "Test SDF Network ; September 2015", "Network passphrase")
	account      = flag.String("account", "", "Base58 source account for -derive-source")
	saltHex      = flag.String("salt", "", "Hex 32-byte salt for -derive-source")
	assetCode    = flag.String("asset-code", "", "Asset code for -derive-asset (empty = native)")
	assetIssuer  = flag.String("asset-issuer", "", "Base58 asset issuer for -derive-asset")
	deriveSource = flag.Bool("derive-source", false, "Derive a contract ID from -account and -salt")
	deriveAsset  = flag.Bool("derive-asset", false, "Derive a token contract ID from -asset-code/-asset-issuer")
	decodeAuth   = flag.String("decode-auth", "", "Hex ContractAuth XDR to decode")
	decodeData   = flag.String("decode-txdata", "", "Hex SorobanTransactionData XDR to decode")
	verifyAuth   = flag.String("verify-auth", "", "Hex ContractAuth XDR to verify against -network")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("sorocore %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(0)
	lim := xdr.DefaultLimits()

	switch {
	case *deriveSource:
		runDeriveSource(lim)
	case *deriveAsset:
		runDeriveAsset(lim)
	case *decodeAuth != "":
		runDecodeAuth(lim, *decodeAuth)
	case *decodeData != "":
		runDecodeData(lim, *decodeData)
	case *verifyAuth != "":
		runVerifyAuth(lim, *verifyAuth)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runDeriveSource(lim xdr.Limits) {
	acct, err := types.PubkeyFromBase58(*account)
	if err != nil {
		log.Fatalf("bad -account: %v", err)
	}
	salt := decodeSalt(*saltHex)

	id, err := contractid.Derive(lim,
		xdr.ContractID{Type: xdr.ContractIDFromSourceAccount, Salt: salt},
		xdr.WasmRefCode(types.Hash{}),
		contractid.Params{NetworkPassphrase: *network, SourceAccount: acct},
	)
	if err != nil {
		log.Fatalf("derive: %v", err)
	}
	fmt.Printf("%s\n", id)
}

func runDeriveAsset(lim xdr.Limits) {
	var asset xdr.Asset
	if *assetCode == "" {
		asset = xdr.NativeAsset()
	} else {
		issuer, err := types.PubkeyFromBase58(*assetIssuer)
		if err != nil {
			log.Fatalf("bad -asset-issuer: %v", err)
		}
		asset, err = xdr.IssuedAsset(*assetCode, issuer)
		if err != nil {
			log.Fatalf("bad -asset-code: %v", err)
		}
	}

	id, err := contractid.Derive(lim,
		xdr.ContractID{Type: xdr.ContractIDFromAsset, Asset: &asset},
		xdr.TokenCode(),
		contractid.Params{NetworkPassphrase: *network},
	)
	if err != nil {
		log.Fatalf("derive: %v", err)
	}
	fmt.Printf("%s\n", id)
}

func runDecodeAuth(lim xdr.Limits, input string) {
	var entry xdr.ContractAuth
	decodeXDR(lim, input, &entry)
	printAuth(&entry)
}

func runDecodeData(lim xdr.Limits, input string) {
	var data xdr.SorobanTransactionData
	decodeXDR(lim, input, &data)

	r := data.Resources
	fmt.Printf("instructions:   %d\n", r.Instructions)
	fmt.Printf("read bytes:     %d\n", r.ReadBytes)
	fmt.Printf("write bytes:    %d\n", r.WriteBytes)
	fmt.Printf("metadata bytes: %d\n", r.ExtendedMetaDataSizeBytes)
	fmt.Printf("refundable fee: %d\n", data.RefundableFee)
	fmt.Printf("footprint:      %d read-only, %d read-write\n",
		len(r.Footprint.ReadOnly), len(r.Footprint.ReadWrite))
}

func runVerifyAuth(lim xdr.Limits, input string) {
	var entry xdr.ContractAuth
	decodeXDR(lim, input, &entry)

	v := auth.NewVerifier(*network, lim)
	if err := v.Verify(&entry); err != nil {
		log.Fatalf("verification failed: %v", err)
	}
	fmt.Println("ok")
}

func printAuth(entry *xdr.ContractAuth) {
	if entry.AddressWithNonce != nil {
		fmt.Printf("address: %s\n", entry.AddressWithNonce.Address)
		fmt.Printf("nonce:   %d\n", entry.AddressWithNonce.Nonce)
	} else {
		fmt.Println("address: (transaction source account)")
	}
	printInvocation(&entry.RootInvocation, 0)
	fmt.Printf("signature args: %d\n", len(entry.SignatureArgs))
}

func printInvocation(inv *xdr.AuthorizedInvocation, depth int) {
	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	fmt.Printf("call %s.%s (%d args)\n", inv.ContractID, inv.FunctionName, len(inv.Args))
	for i := range inv.SubInvocations {
		printInvocation(&inv.SubInvocations[i], depth+1)
	}
}

func decodeSalt(s string) [32]byte {
	var salt [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		log.Fatalf("bad -salt: need 32 hex-encoded bytes")
	}
	copy(salt[:], raw)
	return salt
}

func decodeXDR(lim xdr.Limits, input string, v xdr.Decodable) {
	raw, err := hex.DecodeString(input)
	if err != nil {
		log.Fatalf("bad hex input: %v", err)
	}
	if err := xdr.Unmarshal(lim, raw, v); err != nil {
		log.Fatalf("decode: %v", err)
	}
}
