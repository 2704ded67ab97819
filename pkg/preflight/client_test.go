package preflight

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

func testOp(t *testing.T) *xdr.InvokeHostFunctionOp {
	t.Helper()
	var contract types.Hash
	contract[0] = 1
	return &xdr.InvokeHostFunctionOp{Functions: []xdr.HostFunction{
		{Args: xdr.InvokeContractFn(contract, "hello")},
	}}
}

func testSuggestionData(t *testing.T, lim xdr.Limits) (xdr.SorobanTransactionData, string) {
	t.Helper()
	var contract types.Hash
	contract[0] = 1
	data := xdr.SorobanTransactionData{
		Resources: xdr.SorobanResources{
			Footprint: xdr.LedgerFootprint{
				ReadOnly: []xdr.LedgerKey{
					xdr.ContractDataKey(contract, xdr.ContractExecutableKeyVal()),
				},
			},
			Instructions:              2_000_000,
			ReadBytes:                 1024,
			ExtendedMetaDataSizeBytes: 256,
		},
		RefundableFee: 5000,
	}
	raw, err := xdr.Marshal(lim, &data)
	if err != nil {
		t.Fatalf("marshal suggestion: %v", err)
	}
	return data, base64.StdEncoding.EncodeToString(raw)
}

// simulateServer serves the simulateTransaction method, counting calls.
func simulateServer(t *testing.T, txDataB64 string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Method != "simulateTransaction" {
			t.Errorf("unexpected method %q", req.Method)
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"transactionData":%q,"minResourceFee":"7500"}}`,
			req.ID, txDataB64)
	}))
}

func TestSimulate(t *testing.T) {
	lim := xdr.DefaultLimits()
	want, txDataB64 := testSuggestionData(t, lim)

	var calls atomic.Int32
	srv := simulateServer(t, txDataB64, &calls)
	defer srv.Close()

	client, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	s, err := client.Simulate(context.Background(), lim, testOp(t))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if s.MinResourceFee != 7500 {
		t.Errorf("expected fee 7500, got %d", s.MinResourceFee)
	}
	if !reflect.DeepEqual(s.TransactionData, want) {
		t.Errorf("suggestion mismatch:\n want %+v\n got  %+v", want, s.TransactionData)
	}
}

func TestSimulateCached(t *testing.T) {
	lim := xdr.DefaultLimits()
	want, txDataB64 := testSuggestionData(t, lim)

	var calls atomic.Int32
	srv := simulateServer(t, txDataB64, &calls)
	defer srv.Close()

	client, err := NewClient(Config{
		Endpoint:  srv.URL,
		CachePath: filepath.Join(t.TempDir(), "preflight.db"),
		CacheTTL:  time.Minute,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	op := testOp(t)
	for i := 0; i < 3; i++ {
		s, err := client.Simulate(context.Background(), lim, op)
		if err != nil {
			t.Fatalf("simulate %d: %v", i, err)
		}
		if !reflect.DeepEqual(s.TransactionData, want) {
			t.Errorf("simulate %d: suggestion mismatch", i)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}

	// A different operation misses the cache.
	var other types.Hash
	other[0] = 2
	otherOp := &xdr.InvokeHostFunctionOp{Functions: []xdr.HostFunction{
		{Args: xdr.InvokeContractFn(other, "hello")},
	}}
	if _, err := client.Simulate(context.Background(), lim, otherOp); err != nil {
		t.Fatalf("simulate other: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 upstream calls, got %d", got)
	}
}

func TestSimulateErrors(t *testing.T) {
	lim := xdr.DefaultLimits()

	t.Run("SimulationFailed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"error":"host function trapped"}}`)
		}))
		defer srv.Close()

		client, err := NewClient(Config{Endpoint: srv.URL})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		defer client.Close()

		if _, err := client.Simulate(context.Background(), lim, testOp(t)); !errors.Is(err, ErrSimulationFailed) {
			t.Errorf("expected ErrSimulationFailed, got %v", err)
		}
	})

	t.Run("RPCError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"invalid request"}}`)
		}))
		defer srv.Close()

		client, err := NewClient(Config{Endpoint: srv.URL})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		defer client.Close()

		_, err = client.Simulate(context.Background(), lim, testOp(t))
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			t.Fatalf("expected an RPCError, got %v", err)
		}
		if rpcErr.Code != -32600 {
			t.Errorf("expected code -32600, got %d", rpcErr.Code)
		}
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client, err := NewClient(Config{Endpoint: srv.URL})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		defer client.Close()

		if _, err := client.Simulate(context.Background(), lim, testOp(t)); err == nil {
			t.Error("expected an error for a non-200 response")
		}
	})

	t.Run("Closed", func(t *testing.T) {
		client, err := NewClient(Config{Endpoint: "http://localhost:1"})
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if err := client.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if _, err := client.Simulate(context.Background(), lim, testOp(t)); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestConfigValidation(t *testing.T) {
	t.Run("NoEndpoint", func(t *testing.T) {
		if _, err := NewClient(Config{}); !errors.Is(err, ErrNoEndpoint) {
			t.Errorf("expected ErrNoEndpoint, got %v", err)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		cfg := Config{Endpoint: "http://localhost:8080"}.WithDefaults()
		if cfg.Timeout == 0 {
			t.Error("expected a default timeout")
		}
		if cfg.CacheTTL == 0 {
			t.Error("expected a default cache TTL")
		}
	})
}
