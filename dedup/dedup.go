// Package dedup adapts the bloom package into a deduplication prefilter
// for the insertion-ordered signature and receipt sets the verifier
// maintains (§9 design note: "insertion-ordered set abstraction keyed by
// the Base64 text of the primitive; do not rely on hash-based
// deduplication alone"). A Filter never replaces the authoritative
// store-backed set: a "maybe present" answer still requires the caller to
// consult the real set before treating an incoming signature or receipt
// as a duplicate. A "definitely not present" answer lets the caller skip
// that lookup entirely, which matters once an AID accumulates a long
// history of multisig rotations and receipts.
package dedup

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/keriproto/go-keri-core/bloom"
	"github.com/keriproto/go-keri-core/codec"
)

// Class selects which of the four parallel bloom filters a key belongs
// to, one per insertion-ordered set the verifier dedups (§4.G Signature
// verification, §4.H Receipt processor).
type Class uint8

const (
	ClassControllerSigs Class = iota
	ClassWitnessSigs
	ClassNonTransReceipts
	ClassTransReceipts
)

// Filter is a fixed-capacity, 4-way bloom prefilter sized for one AID's
// expected signature/receipt volume.
type Filter struct {
	region []byte
}

// bitsPerElement trades memory for false-positive rate; 10 bits/element
// gives roughly 1% at k=7, ample for a prefilter whose false positives
// only cost one redundant store lookup.
const (
	bitsPerElement = 10
	hashCount      = 7
)

// NewFilter sizes and initializes a Filter for up to expectedElements
// insertions per class.
func NewFilter(expectedElements uint64) (*Filter, error) {
	if expectedElements == 0 {
		expectedElements = 1
	}
	if err := bloom.CheckBPE(bitsPerElement); err != nil {
		return nil, err
	}
	mBits := bloom.MBitsSafeCast(bloom.MBitsV1(expectedElements, bitsPerElement))
	if mBits == 0 {
		return nil, fmt.Errorf("dedup: element count too large for a single filter region")
	}
	region := make([]byte, bloom.RegionBytesV1(mBits))
	if err := bloom.InitV1(region, expectedElements, bitsPerElement, hashCount); err != nil {
		return nil, err
	}
	return &Filter{region: region}, nil
}

// Insert records key as present under class.
func (f *Filter) Insert(class Class, key [32]byte) error {
	return bloom.InsertV1(f.region, uint8(class), key[:])
}

// MaybeContains reports whether key might already be present under
// class. false means definitely absent.
func (f *Filter) MaybeContains(class Class, key [32]byte) (bool, error) {
	return bloom.MaybeContainsV1(f.region, uint8(class), key[:])
}

// SigKey derives the 32-byte dedup key for an indexed signature attached
// to (aid, digest): the event it signs, the index it claims, and the
// signature bytes themselves all participate, so two different
// signatures at the same index are never conflated.
func SigKey(aid, digest string, sig codec.IndexedSignature) [32]byte {
	h := sha256.New()
	h.Write([]byte(aid))
	h.Write([]byte{0})
	h.Write([]byte(digest))
	h.Write([]byte{0})
	if sig.Witness {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	var idx [4]byte
	idx[0] = byte(sig.Index >> 24)
	idx[1] = byte(sig.Index >> 16)
	idx[2] = byte(sig.Index >> 8)
	idx[3] = byte(sig.Index)
	h.Write(idx[:])
	h.Write(sig.Signature)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ReceiptKey derives the 32-byte dedup key for a receipt couple/quadruple
// identified by its receipter and signature, attached to (aid, digest).
func ReceiptKey(aid, digest, receipter string, signature []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(aid))
	h.Write([]byte{0})
	h.Write([]byte(digest))
	h.Write([]byte{0})
	h.Write([]byte(receipter))
	h.Write([]byte{0})
	h.Write(signature)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// expectedElementsPerAID sizes a Registry-managed Filter for a generous
// multisig/witness/receipt history (covers a large rotation count without
// the false-positive rate degrading enough to matter for a prefilter).
const expectedElementsPerAID = 256

// Registry lazily creates and caches one Filter per AID, letting callers
// that only ever see a single aid at a time (the verifier, the receipt
// processor) ask for "the filter for this AID" without managing their own
// map or mutex.
type Registry struct {
	mu      sync.Mutex
	filters map[string]*Filter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{filters: map[string]*Filter{}}
}

// FilterFor returns the Filter for aid, creating one on first use.
func (r *Registry) FilterFor(aid string) (*Filter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.filters[aid]; ok {
		return f, nil
	}
	f, err := NewFilter(expectedElementsPerAID)
	if err != nil {
		return nil, err
	}
	r.filters[aid] = f
	return f, nil
}
