// Package ledgerstream follows nonce ledger-entry updates from a ledger
// node over gRPC.
//
// The authoritative nonce state lives in ledger entries owned by the
// external ledger collaborator. This client subscribes to updates of
// those entries for a set of contracts and replays them into a
// nonce.Tracker, so locally built authorizations embed nonces the
// network will actually accept.
package ledgerstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/fortiblox/soroban-core/internal/types"
	"github.com/fortiblox/soroban-core/pkg/nonce"
	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// Client errors.
var (
	ErrNotConnected     = errors.New("ledger stream not connected")
	ErrAlreadyConnected = errors.New("ledger stream already connected")
	ErrClosed           = errors.New("ledger stream closed")
	ErrStreamClosed     = errors.New("ledger stream closed by server")
	ErrMaxReconnects    = errors.New("max reconnection attempts reached")
)

// Update is one observed nonce consumption.
type Update struct {
	ContractID types.Hash
	Address    xdr.ScAddress
	Nonce      uint64
	Ledger     uint64
}

// Client is a gRPC client that streams nonce ledger-entry updates.
//
// Updates are applied to the configured tracker and also delivered on the
// Updates channel. The client reconnects on connection loss with
// exponential backoff; when reconnection attempts are exhausted the
// Updates channel is closed and Err reports ErrMaxReconnects.
type Client struct {
	config  Config
	tracker nonce.Tracker

	conn   *grpc.ClientConn
	stream *entryStream

	updates     chan Update
	updatesOnce sync.Once

	connected      atomic.Bool
	closed         atomic.Bool
	reconnectCount atomic.Int32
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	ctx       context.Context
	streamErr error
}

// NewClient creates a ledger stream client. Updates are applied to
// tracker as they arrive; tracker may be nil to only consume the channel.
func NewClient(config Config, tracker nonce.Tracker) (*Client, error) {
	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config:  cfg,
		tracker: tracker,
		updates: make(chan Update, cfg.BufferSize),
	}, nil
}

// Updates returns the channel of observed nonce consumptions. The channel
// is closed when the client is closed or the receive loop gives up.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Err returns the terminal stream error, if the receive loop gave up.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamErr
}

// Connect dials the endpoint and starts the receive loop.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Swap(true) {
		return ErrAlreadyConnected
	}

	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.dial(); err != nil {
		c.connected.Store(false)
		return err
	}

	c.wg.Add(1)
	go c.receiveLoop()
	return nil
}

// Close tears down the stream and connection. Close is idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.closeUpdates()
	return nil
}

func (c *Client) closeUpdates() {
	c.updatesOnce.Do(func() { close(c.updates) })
}

// fail records the terminal error and closes the update channel so
// consumers notice the stream is gone.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.streamErr = err
	c.mu.Unlock()
	log.Printf("ledgerstream: giving up: %v", err)
	c.closeUpdates()
}

func (c *Client) dial() error {
	kacp := keepalive.ClientParameters{
		Time:                DefaultKeepaliveTime,
		Timeout:             DefaultKeepaliveTimeout,
		PermitWithoutStream: true,
	}
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(c.config.MaxMessageSize),
		),
	}
	if c.config.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(
			credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
		))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	//nolint:staticcheck // Using Dial for compatibility with older gRPC versions
	conn, err := grpc.Dial(c.config.Endpoint, opts...)
	if err != nil {
		return fmt.Errorf("dial gRPC: %w", err)
	}

	streamDesc := &grpc.StreamDesc{
		StreamName:    "Subscribe",
		ServerStreams: true,
		ClientStreams: true,
	}
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	stream, err := conn.NewStream(ctx, streamDesc, "/ledgerstream.LedgerStream/Subscribe")
	if err != nil {
		conn.Close()
		return fmt.Errorf("create stream: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.stream = &entryStream{stream: stream}
	c.mu.Unlock()

	if err := c.sendSubscribeRequest(); err != nil {
		stream.CloseSend()
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (c *Client) sendSubscribeRequest() error {
	req := &subscribeRequest{
		ContractIds: c.config.Contracts,
		NonceOnly:   true,
	}
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return ErrNotConnected
	}
	return stream.Send(req)
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		ctx, stream := c.ctx, c.stream
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}

		update, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				err = ErrStreamClosed
			}
			if rerr := c.reconnect(err); rerr != nil {
				if ctx.Err() == nil && !c.closed.Load() {
					c.fail(rerr)
				}
				return
			}
			continue
		}
		c.processUpdate(update)
	}
}

func (c *Client) processUpdate(u *subscribeUpdate) {
	if u == nil || u.Entry == nil {
		return
	}
	contractID, err := types.HashFromBytes(u.Entry.ContractId)
	if err != nil {
		log.Printf("ledgerstream: dropping update with bad contract ID: %v", err)
		return
	}
	addr, err := decodeAddress(u.Entry.AddressKind, u.Entry.AddressBody)
	if err != nil {
		log.Printf("ledgerstream: dropping update with bad address: %v", err)
		return
	}

	if c.tracker != nil {
		if err := c.tracker.Observe(addr, contractID, u.Entry.Nonce); err != nil {
			log.Printf("ledgerstream: observe failed: %v", err)
		}
	}

	select {
	case c.updates <- Update{
		ContractID: contractID,
		Address:    addr,
		Nonce:      u.Entry.Nonce,
		Ledger:     u.Entry.Ledger,
	}:
	default:
		// Channel consumers are optional; the tracker already saw it.
	}
}

// reconnect attempts to re-establish the stream with exponential backoff.
// A successful redial resets the attempt counter, so MaxReconnects bounds
// attempts per outage rather than per client lifetime. Exhausting the
// bound returns ErrMaxReconnects.
func (c *Client) reconnect(cause error) error {
	backoff := c.config.ReconnectMinDelay
	for {
		if c.closed.Load() {
			return ErrClosed
		}
		n := c.reconnectCount.Add(1)
		if c.config.MaxReconnects > 0 && int(n) > c.config.MaxReconnects {
			return fmt.Errorf("%w: %d attempts, last error: %v", ErrMaxReconnects, n-1, cause)
		}

		c.mu.Lock()
		ctx := c.ctx
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := c.dial(); err != nil {
			log.Printf("ledgerstream: reconnect failed: %v", err)
			if backoff *= 2; backoff > c.config.ReconnectMaxDelay {
				backoff = c.config.ReconnectMaxDelay
			}
			continue
		}
		log.Printf("ledgerstream: reconnected to %s", c.config.Endpoint)
		c.reconnectCount.Store(0)
		return nil
	}
}

func decodeAddress(kind int32, body []byte) (xdr.ScAddress, error) {
	switch xdr.ScAddressType(kind) {
	case xdr.ScAddressTypeAccount:
		key, err := types.PubkeyFromBytes(body)
		if err != nil {
			return xdr.ScAddress{}, err
		}
		return xdr.AccountAddress(key), nil
	case xdr.ScAddressTypeContract:
		id, err := types.HashFromBytes(body)
		if err != nil {
			return xdr.ScAddress{}, err
		}
		return xdr.ContractAddress(id), nil
	default:
		return xdr.ScAddress{}, fmt.Errorf("unknown address kind %d", kind)
	}
}

// entryStream wraps a gRPC bidirectional stream for entry subscriptions.
type entryStream struct {
	stream grpc.ClientStream
}

// Send sends a subscription request to the server.
func (s *entryStream) Send(req *subscribeRequest) error {
	return s.stream.SendMsg(req)
}

// Recv receives a subscription update from the server.
func (s *entryStream) Recv() (*subscribeUpdate, error) {
	update := &subscribeUpdate{}
	if err := s.stream.RecvMsg(update); err != nil {
		return nil, err
	}
	return update, nil
}

// CloseSend closes the send side of the stream.
func (s *entryStream) CloseSend() error {
	return s.stream.CloseSend()
}

// subscribeRequest is a placeholder for the gRPC SubscribeRequest message.
// In production this would be generated from the service proto files; it
// is defined here to avoid a proto generation step.
type subscribeRequest struct {
	ContractIds [][]byte `protobuf:"bytes,1,rep,name=contract_ids"`
	NonceOnly   bool     `protobuf:"varint,2,opt,name=nonce_only"`
	FromLedger  *uint64  `protobuf:"varint,3,opt,name=from_ledger"`
}

func (x *subscribeRequest) Reset()         { *x = subscribeRequest{} }
func (x *subscribeRequest) String() string { return fmt.Sprintf("%+v", *x) }
func (x *subscribeRequest) ProtoMessage()  {}

// subscribeUpdate is a placeholder for the gRPC SubscribeUpdate message.
type subscribeUpdate struct {
	Entry *nonceEntryUpdate `protobuf:"bytes,1,opt,name=entry"`
	Ping  *pingUpdate       `protobuf:"bytes,2,opt,name=ping"`
}

func (x *subscribeUpdate) Reset()         { *x = subscribeUpdate{} }
func (x *subscribeUpdate) String() string { return fmt.Sprintf("%+v", *x) }
func (x *subscribeUpdate) ProtoMessage()  {}

type nonceEntryUpdate struct {
	ContractId  []byte `protobuf:"bytes,1,opt,name=contract_id"`
	AddressKind int32  `protobuf:"varint,2,opt,name=address_kind"`
	AddressBody []byte `protobuf:"bytes,3,opt,name=address_body"`
	Nonce       uint64 `protobuf:"varint,4,opt,name=nonce"`
	Ledger      uint64 `protobuf:"varint,5,opt,name=ledger"`
}

type pingUpdate struct {
	Id int32 `protobuf:"varint,1,opt,name=id"`
}
