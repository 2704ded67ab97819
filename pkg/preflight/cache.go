package preflight

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/soroban-core/pkg/xdr"
)

// Bucket names for BoltDB.
var (
	// bucketSuggestions stores cached suggestions keyed by request digest.
	bucketSuggestions = []byte("suggestions")
)

// cacheEntryHeader is the fixed prefix of a cache value:
// 8-byte unix-nano store time + 8-byte min resource fee.
const cacheEntryHeader = 16

// suggestionCache is a BoltDB-backed cache of simulation suggestions.
//
// Keys are blake3 digests of the exact operation bytes; the digest is a
// cache identity only and never appears on the wire, where SHA-256 is
// mandatory. Values are zstd-compressed transaction data XDR.
type suggestionCache struct {
	db  *bolt.DB
	ttl time.Duration

	enc *zstd.Encoder
	dec *zstd.Decoder
}

func openSuggestionCache(path string, ttl time.Duration) (*suggestionCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSuggestions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}

	c := &suggestionCache{db: db, ttl: ttl, enc: enc, dec: dec}
	if err := c.pruneExpired(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the cache database.
func (c *suggestionCache) Close() error {
	c.enc.Close()
	c.dec.Close()
	return c.db.Close()
}

func cacheKey(opBytes []byte) []byte {
	sum := blake3.Sum256(opBytes)
	return sum[:]
}

// Get returns the cached suggestion for the operation bytes, if fresh.
func (c *suggestionCache) Get(opBytes []byte, lim xdr.Limits) (*Suggestion, bool) {
	var s *Suggestion
	_ = c.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(bucketSuggestions).Get(cacheKey(opBytes))
		if len(val) < cacheEntryHeader {
			return nil
		}
		storedAt := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
		if time.Since(storedAt) > c.ttl {
			return nil
		}
		fee := int64(binary.BigEndian.Uint64(val[8:16]))
		raw, err := c.dec.DecodeAll(val[cacheEntryHeader:], nil)
		if err != nil {
			return nil
		}
		var data xdr.SorobanTransactionData
		if err := xdr.Unmarshal(lim, raw, &data); err != nil {
			return nil
		}
		s = &Suggestion{TransactionData: data, MinResourceFee: fee}
		return nil
	})
	return s, s != nil
}

// Put stores a suggestion for the operation bytes.
func (c *suggestionCache) Put(opBytes []byte, s *Suggestion, lim xdr.Limits) error {
	raw, err := xdr.Marshal(lim, &s.TransactionData)
	if err != nil {
		return fmt.Errorf("encode suggestion: %w", err)
	}
	val := make([]byte, cacheEntryHeader, cacheEntryHeader+len(raw))
	binary.BigEndian.PutUint64(val[:8], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint64(val[8:16], uint64(s.MinResourceFee))
	val = c.enc.EncodeAll(raw, val)

	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSuggestions).Put(cacheKey(opBytes), val)
	})
}

// pruneExpired drops entries older than the TTL. Runs once on open.
func (c *suggestionCache) pruneExpired() error {
	cutoff := time.Now().Add(-c.ttl).UnixNano()
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSuggestions)
		cur := b.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			if len(v) < cacheEntryHeader || int64(binary.BigEndian.Uint64(v[:8])) < cutoff {
				if err := cur.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
