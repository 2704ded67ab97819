// Package xdr implements the binary wire format for contract invocation,
// authorization, and resource structures.
//
// The format is standard XDR: big-endian, 4-byte alignment, length-prefixed
// variable opaques padded to 4 bytes, unions encoded as an int32 discriminant
// followed by exactly the payload for that arm, and optionals encoded as a
// bool prefix. Encoding and decoding are exact inverses: for every structure
// in this package, Unmarshal(Marshal(x)) reproduces x, including zero-length
// sequences and absent optionals.
//
// Sequence and opaque bounds are not hardcoded network constants. They are
// carried in a Limits value supplied by the caller; DefaultLimits documents
// the defaults. Exceeding a bound on either side fails with ErrLimitExceeded,
// never with truncation.
package xdr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrMalformedInput is returned when decoded bytes do not form a valid
	// structure: unknown union discriminant, short buffer, bad padding, or
	// trailing garbage.
	ErrMalformedInput = errors.New("malformed input")

	// ErrLimitExceeded is returned when a sequence or opaque exceeds its
	// configured bound, on encode or decode.
	ErrLimitExceeded = errors.New("limit exceeded")
)

// Default bounds. These mirror common network settings but carry no
// authority; override them through Limits for a specific network.
const (
	DefaultMaxOpsPerTx      = 100
	DefaultMaxVecLen        = 256
	DefaultMaxBytesLen      = 2 << 20
	DefaultMaxFootprintKeys = 1024
	DefaultMaxSymbolLen     = 32
)

// Limits bounds every variable-length element of the wire format.
// A zero value in any field is invalid; use DefaultLimits as a base.
type Limits struct {
	// MaxOpsPerTx bounds the functions sequence of InvokeHostFunctionOp.
	MaxOpsPerTx uint32

	// MaxVecLen bounds every ScVal vector, argument list, sub-invocation
	// list, authorization list, and signature argument list.
	MaxVecLen uint32

	// MaxBytesLen bounds variable opaques: ScVal bytes and wasm payloads.
	MaxBytesLen uint32

	// MaxFootprintKeys bounds each of the read-only and read-write key
	// sequences of a ledger footprint.
	MaxFootprintKeys uint32

	// MaxSymbolLen bounds contract function name symbols.
	MaxSymbolLen uint32
}

// DefaultLimits returns the default bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxOpsPerTx:      DefaultMaxOpsPerTx,
		MaxVecLen:        DefaultMaxVecLen,
		MaxBytesLen:      DefaultMaxBytesLen,
		MaxFootprintKeys: DefaultMaxFootprintKeys,
		MaxSymbolLen:     DefaultMaxSymbolLen,
	}
}

// Validate checks that every bound is positive.
func (l Limits) Validate() error {
	if l.MaxOpsPerTx == 0 || l.MaxVecLen == 0 || l.MaxBytesLen == 0 ||
		l.MaxFootprintKeys == 0 || l.MaxSymbolLen == 0 {
		return fmt.Errorf("%w: all limits must be positive", ErrMalformedInput)
	}
	return nil
}

// Encodable is implemented by every wire structure.
type Encodable interface {
	EncodeTo(*Encoder) error
}

// Decodable is implemented by every wire structure.
type Decodable interface {
	DecodeFrom(*Decoder) error
}

// Marshal encodes v under the given limits.
func Marshal(lim Limits, v Encodable) ([]byte, error) {
	if err := lim.Validate(); err != nil {
		return nil, err
	}
	e := NewEncoder(lim)
	if err := v.EncodeTo(e); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Unmarshal decodes data into v under the given limits.
// Trailing bytes after the structure are rejected as malformed.
func Unmarshal(lim Limits, data []byte, v Decodable) error {
	if err := lim.Validate(); err != nil {
		return err
	}
	d := NewDecoder(lim, data)
	if err := v.DecodeFrom(d); err != nil {
		return err
	}
	return d.Done()
}

// Encoder writes XDR primitives to an in-memory buffer.
type Encoder struct {
	buf bytes.Buffer
	lim Limits
}

// NewEncoder creates an encoder with the given limits.
func NewEncoder(lim Limits) *Encoder {
	return &Encoder{lim: lim}
}

// Limits returns the encoder's bounds.
func (e *Encoder) Limits() Limits {
	return e.lim
}

// Bytes returns the encoded output.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// PutUint32 writes a big-endian uint32.
func (e *Encoder) PutUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
	return nil
}

// PutInt32 writes a big-endian int32.
func (e *Encoder) PutInt32(v int32) error {
	return e.PutUint32(uint32(v))
}

// PutUint64 writes a big-endian uint64.
func (e *Encoder) PutUint64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
	return nil
}

// PutInt64 writes a big-endian int64.
func (e *Encoder) PutInt64(v int64) error {
	return e.PutUint64(uint64(v))
}

// PutBool writes an XDR bool (uint32 0 or 1).
func (e *Encoder) PutBool(v bool) error {
	if v {
		return e.PutUint32(1)
	}
	return e.PutUint32(0)
}

// PutFixedOpaque writes bytes with no length prefix, padded to 4.
func (e *Encoder) PutFixedOpaque(b []byte) error {
	e.buf.Write(b)
	e.pad(len(b))
	return nil
}

// PutVarOpaque writes a length-prefixed opaque padded to 4,
// rejecting payloads longer than max.
func (e *Encoder) PutVarOpaque(b []byte, max uint32) error {
	if uint32(len(b)) > max {
		return fmt.Errorf("%w: opaque length %d exceeds %d", ErrLimitExceeded, len(b), max)
	}
	if err := e.PutUint32(uint32(len(b))); err != nil {
		return err
	}
	return e.PutFixedOpaque(b)
}

// PutSeqLen writes a sequence length prefix, rejecting lengths above max.
func (e *Encoder) PutSeqLen(n int, max uint32) error {
	if n < 0 || uint32(n) > max {
		return fmt.Errorf("%w: sequence length %d exceeds %d", ErrLimitExceeded, n, max)
	}
	return e.PutUint32(uint32(n))
}

func (e *Encoder) pad(n int) {
	for i := 0; i < (4-n%4)%4; i++ {
		e.buf.WriteByte(0)
	}
}

// Decoder reads XDR primitives from a byte slice.
type Decoder struct {
	data []byte
	off  int
	lim  Limits
}

// NewDecoder creates a decoder over data with the given limits.
func NewDecoder(lim Limits, data []byte) *Decoder {
	return &Decoder{data: data, lim: lim}
}

// Limits returns the decoder's bounds.
func (d *Decoder) Limits() Limits {
	return d.lim
}

// Done verifies that the full input has been consumed.
func (d *Decoder) Done() error {
	if d.off != len(d.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedInput, len(d.data)-d.off)
	}
	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || len(d.data)-d.off < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformedInput, n, len(d.data)-d.off)
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

// Uint32 reads a big-endian uint32.
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Int32 reads a big-endian int32.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

// Uint64 reads a big-endian uint64.
func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Int64 reads a big-endian int64.
func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

// Bool reads an XDR bool. Values other than 0 and 1 are malformed.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool value %d", ErrMalformedInput, v)
	}
}

// FixedOpaque reads n bytes plus padding. The returned slice is a copy.
func (d *Decoder) FixedOpaque(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	if err := d.skipPad(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// VarOpaque reads a length-prefixed opaque, rejecting lengths above max.
// A zero-length opaque decodes to nil.
func (d *Decoder) VarOpaque(max uint32) ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("%w: opaque length %d exceeds %d", ErrLimitExceeded, n, max)
	}
	if n == 0 {
		return nil, nil
	}
	return d.FixedOpaque(int(n))
}

// SeqLen reads a sequence length prefix, rejecting lengths above max.
func (d *Decoder) SeqLen(max uint32) (int, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("%w: sequence length %d exceeds %d", ErrLimitExceeded, n, max)
	}
	return int(n), nil
}

func (d *Decoder) skipPad(n int) error {
	padding := (4 - n%4) % 4
	b, err := d.take(padding)
	if err != nil {
		return err
	}
	for _, c := range b {
		if c != 0 {
			return fmt.Errorf("%w: nonzero padding byte", ErrMalformedInput)
		}
	}
	return nil
}
