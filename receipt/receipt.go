// Package receipt implements the receipt processor (§4.H): matching
// non-transferable and transferable receipts against previously-accepted
// events. A receipt's reference digest may use a different hash
// algorithm than the one the referenced event was originally accepted
// under, so matching always recomputes the digest over the stored
// bytes rather than comparing encoded digest strings (§8 property 2).
package receipt

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/keriproto/go-keri-core/cesr"
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/dedup"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/logging"
	"github.com/keriproto/go-keri-core/store"
)

// Incoming is one dispatched rct or vrc message handed to the processor,
// carrying whichever attachment groups its type uses: a rct message
// carries indexed witness signatures and/or unindexed non-transferable
// couples, a vrc message carries transferable quadruples.
type Incoming struct {
	Kind            event.Kind
	Body            []byte
	Header          event.Header
	WitnessSigs     []codec.IndexedSignature
	NonTransCouples []cesr.ReceiptCouple
	TransQuads      []cesr.ReceiptQuadruple
}

// Processor matches receipts against the store's event bodies and key
// states, storing verified ones and escrowing the rest pending the
// referenced event or receipter establishment arriving.
type Processor struct {
	Store *store.Store
	log   logging.Logger

	// dedup prefilters the receipt couple/quadruple sets before falling
	// back to an authoritative GetAll (§9 design note: "insertion-ordered
	// set abstraction ... do not rely on hash-based deduplication alone").
	// A "definitely not present" answer skips that lookup outright; a
	// "maybe present" answer still requires consulting the real set.
	dedup *dedup.Registry
}

// New constructs a Processor over s.
func New(s *store.Store) *Processor {
	return &Processor{Store: s, log: logging.Named("receipt"), dedup: dedup.NewRegistry()}
}

// Accept dispatches on the message's type tag.
func (p *Processor) Accept(ctx context.Context, msg Incoming) error {
	switch msg.Header.Type {
	case event.TypeNonTransReceipt:
		return p.acceptNonTransferable(ctx, msg)
	case event.TypeTransferableReceipt:
		return p.acceptTransferable(ctx, msg)
	default:
		return &kerierr.ValidationError{AID: msg.Header.AID, Reason: "not a receipt event type"}
	}
}

func (p *Processor) acceptNonTransferable(ctx context.Context, msg Incoming) error {
	var rct event.NonTransReceipt
	if err := event.Unmarshal(msg.Kind, msg.Body, &rct); err != nil {
		return &kerierr.ValidationError{AID: msg.Header.AID, Reason: "malformed rct body: " + err.Error()}
	}
	aid := rct.AID
	sn, err := codec.ParseSeqNumHex(rct.Seq)
	if err != nil {
		return &kerierr.ValidationError{AID: aid, Reason: "malformed sequence number: " + err.Error()}
	}

	canonical, body, ok, err := p.locateReferencedBody(ctx, aid, sn, rct.D)
	if err != nil {
		return err
	}
	if !ok {
		return p.escrowNonTransferable(ctx, aid, sn, rct.D, msg)
	}

	state, _, err := p.Store.KeyStates.Get(ctx, aid)
	if err != nil {
		return err
	}

	filter, err := p.dedup.FilterFor(aid)
	if err != nil {
		return err
	}

	for _, idx := range msg.WitnessSigs {
		if idx.Index < 0 || idx.Index >= len(state.Witnesses) {
			continue
		}
		key := dedup.SigKey(aid, canonical, idx)
		if maybe, err := filter.MaybeContains(dedup.ClassWitnessSigs, key); err != nil {
			return err
		} else if maybe {
			existing, err := p.Store.WitnessSigs.GetAll(ctx, aid, canonical)
			if err != nil {
				return err
			}
			if sigAlreadyRecorded(existing, idx) {
				continue
			}
		}
		if !verifyCouple(state.Witnesses[idx.Index], body, idx.Signature) {
			continue
		}
		if err := p.Store.WitnessSigs.Add(ctx, aid, canonical, idx); err != nil {
			return err
		}
		if err := filter.Insert(dedup.ClassWitnessSigs, key); err != nil {
			return err
		}
	}

	for _, c := range msg.NonTransCouples {
		key := dedup.ReceiptKey(aid, canonical, c.Verfer, c.Signature)
		if maybe, err := filter.MaybeContains(dedup.ClassNonTransReceipts, key); err != nil {
			return err
		} else if maybe {
			existing, err := p.Store.NonTransReceipts.GetAll(ctx, aid, canonical)
			if err != nil {
				return err
			}
			if coupleAlreadyRecorded(existing, c) {
				continue
			}
		}
		if !verifyCouple(c.Verfer, body, c.Signature) {
			continue
		}
		if err := p.Store.NonTransReceipts.Add(ctx, aid, canonical, c); err != nil {
			return err
		}
		if err := filter.Insert(dedup.ClassNonTransReceipts, key); err != nil {
			return err
		}
	}
	return nil
}

func sigAlreadyRecorded(existing []codec.IndexedSignature, s codec.IndexedSignature) bool {
	for _, e := range existing {
		if e.Index == s.Index && e.Witness == s.Witness && string(e.Signature) == string(s.Signature) {
			return true
		}
	}
	return false
}

func coupleAlreadyRecorded(existing []cesr.ReceiptCouple, c cesr.ReceiptCouple) bool {
	for _, e := range existing {
		if e.Verfer == c.Verfer && string(e.Signature) == string(c.Signature) {
			return true
		}
	}
	return false
}

func quadAlreadyRecorded(existing []cesr.ReceiptQuadruple, q cesr.ReceiptQuadruple) bool {
	for _, e := range existing {
		if e.AID == q.AID && e.Signature.Index == q.Signature.Index && string(e.Signature.Signature) == string(q.Signature.Signature) {
			return true
		}
	}
	return false
}

func (p *Processor) acceptTransferable(ctx context.Context, msg Incoming) error {
	var vrc event.TransferableReceipt
	if err := event.Unmarshal(msg.Kind, msg.Body, &vrc); err != nil {
		return &kerierr.ValidationError{AID: msg.Header.AID, Reason: "malformed vrc body: " + err.Error()}
	}
	aid := vrc.AID
	sn, err := codec.ParseSeqNumHex(vrc.Seq)
	if err != nil {
		return &kerierr.ValidationError{AID: aid, Reason: "malformed sequence number: " + err.Error()}
	}

	canonical, body, ok, err := p.locateReferencedBody(ctx, aid, sn, vrc.D)
	if err != nil {
		return err
	}
	if !ok {
		return p.escrowTransferable(ctx, aid, sn, vrc.D, msg)
	}

	filter, err := p.dedup.FilterFor(aid)
	if err != nil {
		return err
	}

	for _, quad := range msg.TransQuads {
		receipterState, ok, err := p.Store.KeyStates.Get(ctx, quad.AID)
		if err != nil {
			return err
		}
		if !ok || receipterState.LastEstablishment.Sn.Cmp(quad.Sn) != 0 || receipterState.LastEstablishment.Digest != quad.Digest {
			return p.escrowTransferable(ctx, aid, sn, vrc.D, msg)
		}
		if quad.Signature.Index < 0 || quad.Signature.Index >= len(receipterState.SigningKeys) {
			continue
		}
		receipter := fmt.Sprintf("%s:%d", quad.AID, quad.Signature.Index)
		key := dedup.ReceiptKey(aid, canonical, receipter, quad.Signature.Signature)
		if maybe, err := filter.MaybeContains(dedup.ClassTransReceipts, key); err != nil {
			return err
		} else if maybe {
			existing, err := p.Store.TransReceipts.GetAll(ctx, aid, canonical)
			if err != nil {
				return err
			}
			if quadAlreadyRecorded(existing, quad) {
				continue
			}
		}
		if !verifyCouple(receipterState.SigningKeys[quad.Signature.Index], body, quad.Signature.Signature) {
			continue
		}
		if err := p.Store.TransReceipts.Add(ctx, aid, canonical, quad); err != nil {
			return err
		}
		if err := filter.Insert(dedup.ClassTransReceipts, key); err != nil {
			return err
		}
	}
	return nil
}

// locateReferencedBody resolves the receipt's (aid, sn, referencedDigest)
// to the actual stored event bytes: it fetches the canonical digest the
// event was accepted under, then confirms referencedDigest is a valid
// encoding of that same content before returning it, regardless of which
// digest algorithm referencedDigest itself uses (§4.H, §8 property 2).
func (p *Processor) locateReferencedBody(ctx context.Context, aid string, sn codec.SeqNum, referencedDigest string) (canonicalDigest string, body []byte, ok bool, err error) {
	canonicalDigest, ok, err = p.Store.KEL.GetLast(ctx, aid, sn)
	if err != nil || !ok {
		return "", nil, false, err
	}
	_, body, ok, err = p.Store.Bodies.Get(ctx, aid, canonicalDigest)
	if err != nil || !ok {
		return "", nil, false, err
	}
	match, err := codec.VerifyDigestText(referencedDigest, body)
	if err != nil {
		return "", nil, false, nil
	}
	if !match {
		return "", nil, false, &kerierr.ValidationError{AID: aid, Reason: "receipt digest does not match referenced event content"}
	}
	return canonicalDigest, body, true, nil
}

func (p *Processor) escrowNonTransferable(ctx context.Context, aid string, sn codec.SeqNum, digest string, msg Incoming) error {
	if len(msg.WitnessSigs) > 0 {
		entry := store.EscrowEntry{AID: aid, Sn: sn, Digest: digest, Kind: msg.Kind, Body: msg.Body, Wigs: msg.WitnessSigs}
		if err := p.Store.Escrows.Append(ctx, kerierr.EscrowUnverifiedWitnessReceipt, entry); err != nil {
			return err
		}
	}
	for _, c := range msg.NonTransCouples {
		couple := c
		entry := store.EscrowEntry{AID: aid, Sn: sn, Digest: digest, Kind: msg.Kind, Body: msg.Body, Couple: &couple}
		if err := p.Store.Escrows.Append(ctx, kerierr.EscrowUnverifiedNonTransferableReceipt, entry); err != nil {
			return err
		}
	}
	if digest != "" {
		if _, err := p.Store.Timestamps.PutIfAbsent(ctx, aid, digest, time.Now().Unix()); err != nil {
			return err
		}
	}
	p.log.Debugf("escrowed receipt for %s/%s: referenced event not yet seen", aid, sn.Hex())
	kind := kerierr.EscrowUnverifiedNonTransferableReceipt
	if len(msg.WitnessSigs) > 0 && len(msg.NonTransCouples) == 0 {
		kind = kerierr.EscrowUnverifiedWitnessReceipt
	}
	return &kerierr.EscrowError{Kind: kind, AID: aid, Reason: "referenced event not yet seen"}
}

func (p *Processor) escrowTransferable(ctx context.Context, aid string, sn codec.SeqNum, digest string, msg Incoming) error {
	for _, q := range msg.TransQuads {
		quad := q
		entry := store.EscrowEntry{AID: aid, Sn: sn, Digest: digest, Kind: msg.Kind, Body: msg.Body, Quad: &quad}
		if err := p.Store.Escrows.Append(ctx, kerierr.EscrowUnverifiedTransferableReceipt, entry); err != nil {
			return err
		}
	}
	if digest != "" {
		if _, err := p.Store.Timestamps.PutIfAbsent(ctx, aid, digest, time.Now().Unix()); err != nil {
			return err
		}
	}
	p.log.Debugf("escrowed transferable receipt for %s/%s: receipter establishment not yet seen", aid, sn.Hex())
	return &kerierr.EscrowError{Kind: kerierr.EscrowUnverifiedTransferableReceipt, AID: aid, Reason: "referenced event or receipter establishment not yet seen"}
}

func verifyCouple(keyText string, body, sig []byte) bool {
	prim, _, err := codec.DecodeText(keyText)
	if err != nil {
		return false
	}
	if len(prim.Raw) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(prim.Raw), body, sig)
}
