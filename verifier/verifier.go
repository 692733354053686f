// Package verifier implements the per-AID key-state state machine
// (§4.G): applying icp/dip/rot/drt/ixn events to key state, verifying
// signatures and witness receipts against it, detecting duplicity, and
// replacing a superseded branch during recovery.
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/keriproto/go-keri-core/cesr"
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/cue"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/logging"
	"github.com/keriproto/go-keri-core/store"
)

// Incoming is one dispatched (event, attachments) tuple handed to the
// verifier by the stream parser or the escrow engine's re-drive loop.
type Incoming struct {
	Kind   event.Kind
	Body   []byte
	Header event.Header
	Sigs   []codec.IndexedSignature
	Wigs   []codec.IndexedSignature
	Seal   *cesr.SealSourceCouple
}

// Verifier applies events to the key state held in Store, escrowing
// partial evidence and emitting cues for the surrounding transport layer.
type Verifier struct {
	Store *store.Store
	Cues  cue.Sink

	// DigestCode is the algorithm used to compute each accepted event's
	// stored digest. It is independent of whatever derivation code an
	// AID or a receipt's reference digest happens to use (§9 "Multiple
	// hash algorithms": comparisons always recompute, never compare
	// strings across algorithms).
	DigestCode string

	// IsOwn reports whether aid is controlled by this node. The receipt
	// cue (§4.G Cue emission) fires only for non-own AIDs; §9 leaves the
	// transport-level policy for acting on it unspecified.
	IsOwn func(aid string) bool

	log logging.Logger
}

// New constructs a Verifier over s. cues may be nil (cue.Discard is used
// instead); isOwn may be nil (no AID is ever treated as local).
func New(s *store.Store, cues cue.Sink, isOwn func(string) bool) *Verifier {
	if cues == nil {
		cues = cue.Discard
	}
	if isOwn == nil {
		isOwn = func(string) bool { return false }
	}
	return &Verifier{
		Store:      s,
		Cues:       cues,
		DigestCode: codec.CodeBlake3_256,
		IsOwn:      isOwn,
		log:        logging.Named("verifier"),
	}
}

// Accept applies one incoming event to key state, dispatching on its
// type tag.
func (v *Verifier) Accept(ctx context.Context, msg Incoming) error {
	switch msg.Header.Type {
	case event.TypeInception:
		return v.acceptInception(ctx, msg, false)
	case event.TypeDelegatedInception:
		return v.acceptInception(ctx, msg, true)
	case event.TypeRotation:
		return v.acceptRotation(ctx, msg, false)
	case event.TypeDelegatedRotation:
		return v.acceptRotation(ctx, msg, true)
	case event.TypeInteraction:
		return v.acceptInteraction(ctx, msg)
	default:
		return &kerierr.ValidationError{AID: msg.Header.AID, Reason: fmt.Sprintf("event type %q is not a key event", msg.Header.Type)}
	}
}

func (v *Verifier) emitReceiptCue(aid string, sn codec.SeqNum, digest string) {
	if v.IsOwn(aid) {
		return
	}
	v.Cues.Emit(cue.Cue{Kind: cue.KindReceiptRequested, AID: aid, Sn: sn, Digest: digest})
}

func (v *Verifier) persistAccepted(ctx context.Context, aid string, sn codec.SeqNum, digest string, kind event.Kind, body []byte, sigs, wigs []codec.IndexedSignature) error {
	if _, err := v.Store.Bodies.PutIfAbsent(ctx, aid, digest, kind, body); err != nil {
		return err
	}
	if err := v.Store.KEL.Append(ctx, aid, sn, digest); err != nil {
		return err
	}
	if _, err := v.Store.FirstSeen.Append(ctx, aid, digest); err != nil {
		return err
	}
	if _, err := v.Store.Timestamps.PutIfAbsent(ctx, aid, digest, time.Now().Unix()); err != nil {
		return err
	}
	for _, s := range sigs {
		if err := v.Store.ControllerSigs.Add(ctx, aid, digest, s); err != nil {
			return err
		}
	}
	for _, w := range wigs {
		if err := v.Store.WitnessSigs.Add(ctx, aid, digest, w); err != nil {
			return err
		}
	}
	return nil
}

// checkDuplicity compares digest against whatever is already recorded at
// (aid, sn). If nothing is recorded, ok is false. If something is
// recorded and it matches digest, same is true (§4.G Duplicity:
// "idempotent ... do not re-increment first-seen ordinal"). If it
// differs, the event is likely-duplicitous.
func (v *Verifier) checkDuplicity(ctx context.Context, aid string, sn codec.SeqNum, digest string) (existing string, ok bool, same bool, err error) {
	existing, ok, err = v.Store.KEL.GetLast(ctx, aid, sn)
	if err != nil || !ok {
		return "", ok, false, err
	}
	return existing, true, existing == digest, nil
}

func eventDigest(digestCode string, body []byte) (string, error) {
	return codec.DigestText(digestCode, body)
}

func escrow(ctx context.Context, s *store.Store, kind kerierr.EscrowKind, entry store.EscrowEntry) error {
	if err := s.Escrows.Append(ctx, kind, entry); err != nil {
		return err
	}
	if entry.Digest != "" {
		if _, err := s.Timestamps.PutIfAbsent(ctx, entry.AID, entry.Digest, time.Now().Unix()); err != nil {
			return err
		}
	}
	return &kerierr.EscrowError{Kind: kind, AID: entry.AID, Reason: "awaiting further evidence"}
}

// persistPartial records signatures verified against a not-yet-satisfied
// threshold so a later message carrying a different signer's signature
// over the same digest accumulates against what is already known,
// rather than the escrow engine only ever seeing whichever single
// message arrived last (§9 "insertion-ordered set abstraction keyed by
// the Base64 text of the primitive").
func persistPartial(ctx context.Context, s *store.Store, aid, digest string, sigs, wigs []codec.IndexedSignature) error {
	for _, sig := range sigs {
		if err := s.ControllerSigs.Add(ctx, aid, digest, sig); err != nil {
			return err
		}
	}
	for _, w := range wigs {
		if err := s.WitnessSigs.Add(ctx, aid, digest, w); err != nil {
			return err
		}
	}
	return nil
}

func asValidation(aid, reason string) error {
	return &kerierr.ValidationError{AID: aid, Reason: reason}
}
