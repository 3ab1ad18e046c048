// Package storage caches finished forecast outcomes keyed by a fingerprint of
// the request that produced them. Only outcomes are stored; series and fitted
// models are never persisted.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/HatiCode/runrate/pkg/engine"
	"github.com/HatiCode/runrate/pkg/series"
)

// fingerprintVersion changes whenever the engine's output for a given input
// may change (catalog, grids, metrics), so stale cache entries stop matching.
const fingerprintVersion = "runrate/outcome/v1"

// Entry is one cached outcome.
type Entry struct {
	Key         string         `json:"key"`
	GeneratedAt time.Time      `json:"generated_at"`
	Outcome     engine.Outcome `json:"outcome"`
}

// Store caches outcomes.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	// Get returns the entry for key. found is false when there is none.
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)
}

// Fingerprint returns a hex sha256 digest identifying the normalized series
// and request. Identical inputs always produce the same key.
func Fingerprint(s *series.Series, req engine.Request) string {
	h := sha256.New()
	h.Write([]byte(fingerprintVersion))

	var buf [8]byte
	write := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	write(uint64(req.Steps))
	if req.GridSearch {
		write(1)
	} else {
		write(0)
	}

	write(uint64(s.Len()))
	for _, p := range s.Points() {
		write(uint64(p.Timestamp.UnixNano()))
		write(math.Float64bits(p.Value))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// NopStore never stores anything. It is used when caching is disabled.
type NopStore struct{}

// Put discards the entry.
func (NopStore) Put(context.Context, Entry) error { return nil }

// Get always reports a miss.
func (NopStore) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }
