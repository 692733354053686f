// Package store declares the durable storage interface the core consumes
// (§4.E): event bodies, the KEL index, first-seen log, signature and
// receipt sets, the five (plus three unverified-receipt) escrow indexes,
// timestamps, and per-AID key state. The core never implements a durable
// backend itself; storemem provides an in-memory reference implementation
// for tests, and a production host wires its own.
package store

import (
	"context"

	"github.com/keriproto/go-keri-core/cesr"
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/keystate"
)

// EventBodies stores the raw serialized bytes of accepted events, keyed
// by (AID, digest) so the same digest always resolves to the same bytes
// regardless of which KEL slot references it.
type EventBodies interface {
	// PutIfAbsent stores body under (aid, digest) only if nothing is
	// stored there yet; it reports whether it actually wrote.
	PutIfAbsent(ctx context.Context, aid, digest string, kind event.Kind, body []byte) (wrote bool, err error)
	Set(ctx context.Context, aid, digest string, kind event.Kind, body []byte) error
	Get(ctx context.Context, aid, digest string) (kind event.Kind, body []byte, ok bool, err error)
	Delete(ctx context.Context, aid, digest string) error
}

// KEL is the per-AID, per-sequence-number index. A given sn may carry
// more than one digest only transiently, while duplicity is still being
// resolved (§3 invariant 1, §4.G Duplicity) — IterateDuplicates exposes
// every digest ever appended at that sn, in append order.
type KEL interface {
	Append(ctx context.Context, aid string, sn codec.SeqNum, digest string) error
	GetLast(ctx context.Context, aid string, sn codec.SeqNum) (digest string, ok bool, err error)
	IterateDuplicates(ctx context.Context, aid string, sn codec.SeqNum) ([]string, error)
	// Retire discards every digest at sn except keep, and removes every
	// KEL entry at any sn' > sn outright, used by recovery (§4.G rot/drt:
	// "apply as the new authoritative branch") to discard a superseded
	// non-establishment suffix, not merely the single duplicated slot.
	// It returns every digest removed (at sn and above) so the caller
	// can reconcile the first-seen log (§3 invariant 2).
	Retire(ctx context.Context, aid string, sn codec.SeqNum, keep string) (removed []string, err error)
}

// FirstSeen is the per-AID monotonic, gap-free ordinal log (§3 invariant
// 2). Ordinals are assigned once per distinct digest; re-feeding an
// already-seen event must not advance the counter (§4.G Duplicity,
// §8 property 6 escrow idempotence).
type FirstSeen interface {
	Append(ctx context.Context, aid, digest string) (ordinal uint64, err error)
	GetByOrdinal(ctx context.Context, aid string, ordinal uint64) (digest string, ok bool, err error)
	// HasDigest reports whether digest already has an assigned ordinal
	// for aid, letting callers distinguish a fresh accept from a
	// duplicate re-feed without assigning a second ordinal.
	HasDigest(ctx context.Context, aid, digest string) (ordinal uint64, ok bool, err error)
	// Retire un-assigns the ordinals held by digests and rewinds the
	// per-AID counter so ordinals remain gap-free (§3 invariant 2).
	// Callers must retire a superseded suffix before assigning the
	// superseding event's own ordinal, since digests is expected to be
	// exactly the tail of the sequence in ordinal order.
	Retire(ctx context.Context, aid string, digests []string) error
}

// SignatureSets holds the insertion-ordered, deduplicated-by-text sets of
// indexed signatures attached to an event, keyed by (AID, digest). The
// same shape serves controller and witness signatures (§9 design note:
// "insertion-ordered set abstraction keyed by the Base64 text of the
// primitive").
type SignatureSets interface {
	Add(ctx context.Context, aid, digest string, sig codec.IndexedSignature) error
	GetAll(ctx context.Context, aid, digest string) ([]codec.IndexedSignature, error)
}

// ReceiptCouples holds non-transferable receipt (verfer, signature)
// couples keyed by the receipted event's digest.
type ReceiptCouples interface {
	Add(ctx context.Context, aid, digest string, couple cesr.ReceiptCouple) error
	GetAll(ctx context.Context, aid, digest string) ([]cesr.ReceiptCouple, error)
}

// ReceiptQuadruples holds transferable receipt quadruples keyed by the
// receipted event's digest.
type ReceiptQuadruples interface {
	Add(ctx context.Context, aid, digest string, quad cesr.ReceiptQuadruple) error
	GetAll(ctx context.Context, aid, digest string) ([]cesr.ReceiptQuadruple, error)
}

// AuthorizerCouples holds the (sn, digest) seal-source couple attached to
// a dip/drt event pending delegation verification, keyed by the child
// event's digest (§4.G Delegation, §9 Cyclic references note).
type AuthorizerCouples interface {
	Set(ctx context.Context, childAID, childDigest string, couple cesr.SealSourceCouple) error
	Get(ctx context.Context, childAID, childDigest string) (cesr.SealSourceCouple, bool, error)
}

// Timestamps records first-observed wall-clock time per (AID, digest),
// used by the escrow engine to compute per-class expiry (§4.I step 1).
type Timestamps interface {
	PutIfAbsent(ctx context.Context, aid, digest string, unixSeconds int64) (wrote bool, err error)
	Set(ctx context.Context, aid, digest string, unixSeconds int64) error
	Get(ctx context.Context, aid, digest string) (unixSeconds int64, ok bool, err error)
}

// EscrowEntry is one persisted, partially-evidenced event or receipt
// awaiting re-verification (§4.I). Payload carries whatever the
// escrow-class re-drive path needs to resume: the raw event body plus any
// signatures/couples already collected, and for receipt escrows the
// receipt material itself instead of an event body.
type EscrowEntry struct {
	AID     string
	Sn      codec.SeqNum
	Digest  string
	Kind    event.Kind
	Body    []byte
	Sigs    []codec.IndexedSignature
	Wigs    []codec.IndexedSignature
	Seal    *cesr.SealSourceCouple
	Couple  *cesr.ReceiptCouple
	Quad    *cesr.ReceiptQuadruple
}

// Escrows holds the five (plus three unverified-receipt) escrow indexes
// identified by kerierr.EscrowKind. Every Append is idempotent: appending
// an entry identical in (aid, sn, digest) to one already present is a
// no-op (§4.E "idempotent with respect to identical (key,value) pairs").
type Escrows interface {
	Append(ctx context.Context, kind kerierr.EscrowKind, entry EscrowEntry) error
	// Iterate returns every entry for kind in (aid, sn) key order, then
	// insertion order within a key (§4.I "iterates ... by (AID, sn), then
	// by duplicate insertion order").
	Iterate(ctx context.Context, kind kerierr.EscrowKind) ([]EscrowEntry, error)
	Delete(ctx context.Context, kind kerierr.EscrowKind, aid string, sn codec.SeqNum, digest string) error
}

// KeyStates holds the current per-AID key state snapshot (§3 "Key state
// (per AID)"). Exclusively owned by one verifier instance per AID; the
// store only persists and returns snapshots, it never mutates one.
type KeyStates interface {
	Put(ctx context.Context, state keystate.State) error
	Get(ctx context.Context, aid string) (keystate.State, bool, error)
}

// Store aggregates every durable collection the core depends on. A host
// wires one concrete implementation (or a set of them) satisfying Store;
// storemem.New returns an in-memory one suitable for tests.
type Store struct {
	Bodies             EventBodies
	KEL                KEL
	FirstSeen          FirstSeen
	ControllerSigs     SignatureSets
	WitnessSigs        SignatureSets
	NonTransReceipts   ReceiptCouples
	TransReceipts      ReceiptQuadruples
	Authorizers        AuthorizerCouples
	Timestamps         Timestamps
	Escrows            Escrows
	KeyStates          KeyStates
}
