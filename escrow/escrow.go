// Package escrow implements the re-drive loop (§4.I): periodically
// re-attempting every partially-evidenced event or receipt held in one
// of the seven escrow indexes, promoting it once the missing evidence
// has arrived and expiring it once it has sat too long.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/keriproto/go-keri-core/cesr"
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/dedup"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/logging"
	"github.com/keriproto/go-keri-core/receipt"
	"github.com/keriproto/go-keri-core/store"
	"github.com/keriproto/go-keri-core/verifier"
)

// kinds lists every escrow index in re-drive order. The order only
// matters within a single pass: a transition from an earlier kind to a
// later one is caught in the same pass, a transition to an earlier one
// waits for the next (§4.I "terminates when a full pass ... finds no
// new keys" still holds either way, it just costs an extra pass).
var kinds = []kerierr.EscrowKind{
	kerierr.EscrowOutOfOrder,
	kerierr.EscrowPartiallySigned,
	kerierr.EscrowPartiallyWitnessed,
	kerierr.EscrowLikelyDuplicitous,
	kerierr.EscrowUnverifiedWitnessReceipt,
	kerierr.EscrowUnverifiedNonTransferableReceipt,
	kerierr.EscrowUnverifiedTransferableReceipt,
}

// DefaultTimeouts returns the per-escrow-class expiry durations named in
// §4.I: out-of-order entries are discarded sooner since a missing
// predecessor is rarely going to show up on its own, every other class
// waits an hour for its missing signature, witness receipt, or
// receipted event.
func DefaultTimeouts() map[kerierr.EscrowKind]time.Duration {
	return map[kerierr.EscrowKind]time.Duration{
		kerierr.EscrowOutOfOrder:                      20 * time.Minute,
		kerierr.EscrowPartiallySigned:                 time.Hour,
		kerierr.EscrowPartiallyWitnessed:               time.Hour,
		kerierr.EscrowLikelyDuplicitous:                time.Hour,
		kerierr.EscrowUnverifiedWitnessReceipt:         time.Hour,
		kerierr.EscrowUnverifiedNonTransferableReceipt: time.Hour,
		kerierr.EscrowUnverifiedTransferableReceipt:    time.Hour,
	}
}

// Engine drives the escrow indexes held in Store, re-invoking Verifier
// for event-shaped entries and Receipts for receipt-shaped ones.
type Engine struct {
	Store    *store.Store
	Verifier *verifier.Verifier
	Receipts *receipt.Processor
	Timeouts map[kerierr.EscrowKind]time.Duration

	// Now is the clock the engine checks entries against; defaults to
	// time.Now. Tests substitute a fixed clock to exercise expiry
	// without sleeping.
	Now func() time.Time

	// dedup records the keys of the signatures mergedSigs has seen; it
	// does not let a redrive skip the accumulated-set lookup.
	dedup *dedup.Registry

	log logging.Logger
}

// New constructs an Engine with the default per-class timeouts.
func New(s *store.Store, v *verifier.Verifier, r *receipt.Processor) *Engine {
	return &Engine{
		Store:    s,
		Verifier: v,
		Receipts: r,
		Timeouts: DefaultTimeouts(),
		Now:      time.Now,
		dedup:    dedup.NewRegistry(),
		log:      logging.Named("escrow"),
	}
}

// Run drives every escrow index to quiescence: it keeps making full
// passes over all seven indexes until one pass makes no progress at
// all, then returns (§4.I "iteration terminates when a full pass over
// the index finds no new keys").
func (e *Engine) Run(ctx context.Context) error {
	for {
		progressed := false
		for _, kind := range kinds {
			n, err := e.drive(ctx, kind)
			if err != nil {
				return err
			}
			if n > 0 {
				progressed = true
			}
		}
		if !progressed {
			return nil
		}
	}
}

// drive makes one pass over kind's index, returning how many entries
// changed state (promoted, expired, rejected, or reclassified).
func (e *Engine) drive(ctx context.Context, kind kerierr.EscrowKind) (int, error) {
	entries, err := e.Store.Escrows.Iterate(ctx, kind)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, entry := range entries {
		expired, err := e.expired(ctx, kind, entry)
		if err != nil {
			return changed, err
		}
		if expired {
			if err := e.Store.Escrows.Delete(ctx, kind, entry.AID, entry.Sn, entry.Digest); err != nil {
				return changed, err
			}
			e.log.Infof("escrow[%s] expired for %s/%s", kind, entry.AID, entry.Sn.Hex())
			changed++
			continue
		}

		acceptErr := e.redrive(ctx, kind, entry)
		if ee, ok := kerierr.AsEscrow(acceptErr); ok && ee.Kind == kind {
			// Same missing evidence as before; leave it for the next pass.
			continue
		}

		if err := e.Store.Escrows.Delete(ctx, kind, entry.AID, entry.Sn, entry.Digest); err != nil {
			return changed, err
		}
		changed++
		switch {
		case acceptErr == nil:
			e.log.Infof("escrow[%s] promoted %s/%s", kind, entry.AID, entry.Sn.Hex())
		case isEscrowErr(acceptErr):
			e.log.Debugf("escrow[%s] reclassified %s/%s: %v", kind, entry.AID, entry.Sn.Hex(), acceptErr)
		default:
			e.log.Warnf("escrow[%s] rejected %s/%s: %v", kind, entry.AID, entry.Sn.Hex(), acceptErr)
		}
	}
	return changed, nil
}

func isEscrowErr(err error) bool {
	_, ok := kerierr.AsEscrow(err)
	return ok
}

// expired reports whether entry has sat past kind's timeout, keyed by
// the first-observed timestamp recorded when it was escrowed (§4.I
// step 1). An entry with no recorded timestamp is treated as fresh
// rather than immediately expired.
func (e *Engine) expired(ctx context.Context, kind kerierr.EscrowKind, entry store.EscrowEntry) (bool, error) {
	if entry.Digest == "" {
		return false, nil
	}
	seen, ok, err := e.Store.Timestamps.Get(ctx, entry.AID, entry.Digest)
	if err != nil || !ok {
		return false, err
	}
	timeout, ok := e.Timeouts[kind]
	if !ok {
		timeout = time.Hour
	}
	return e.Now().After(time.Unix(seen, 0).Add(timeout)), nil
}

// redrive reconstructs the original Incoming message from entry and
// re-invokes the verifier or receipt processor it belongs to.
func (e *Engine) redrive(ctx context.Context, kind kerierr.EscrowKind, entry store.EscrowEntry) error {
	switch kind {
	case kerierr.EscrowUnverifiedWitnessReceipt, kerierr.EscrowUnverifiedNonTransferableReceipt, kerierr.EscrowUnverifiedTransferableReceipt:
		return e.redriveReceipt(ctx, entry)
	default:
		return e.redriveEvent(ctx, entry)
	}
}

// redriveEvent reconstructs the message that produced entry and hands it
// back to the verifier, merging in any signatures a different message
// accumulated against the same digest in the meantime — a partially
// signed multisig event is completed by separate signers sending
// separate messages, not by one message growing more signatures.
func (e *Engine) redriveEvent(ctx context.Context, entry store.EscrowEntry) error {
	var hdr event.Header
	if err := event.Unmarshal(entry.Kind, entry.Body, &hdr); err != nil {
		return err
	}

	sigs, err := e.mergedSigs(ctx, e.Store.ControllerSigs, dedup.ClassControllerSigs, entry.AID, entry.Digest, entry.Sigs)
	if err != nil {
		return err
	}
	wigs, err := e.mergedSigs(ctx, e.Store.WitnessSigs, dedup.ClassWitnessSigs, entry.AID, entry.Digest, entry.Wigs)
	if err != nil {
		return err
	}

	msg := verifier.Incoming{
		Kind:   entry.Kind,
		Body:   entry.Body,
		Header: hdr,
		Sigs:   sigs,
		Wigs:   wigs,
		Seal:   entry.Seal,
	}
	return e.Verifier.Accept(ctx, msg)
}

// mergedSigs folds set's accumulated signatures for (aid, digest) in with
// own, deduplicated. The GetAll round-trip is always made: signatures
// another message contributed are recorded in set by the verifier and
// never pass through this engine's dedup filter, so a "definitely not
// present" answer for own says nothing about what set holds. The filter
// only records the keys of the signatures seen here.
func (e *Engine) mergedSigs(ctx context.Context, set store.SignatureSets, class dedup.Class, aid, digest string, own []codec.IndexedSignature) ([]codec.IndexedSignature, error) {
	if digest == "" || len(own) == 0 {
		return own, nil
	}

	filter, err := e.dedup.FilterFor(aid)
	if err != nil {
		return nil, err
	}

	mightBeKnown := false
	for _, s := range own {
		maybe, err := filter.MaybeContains(class, dedup.SigKey(aid, digest, s))
		if err != nil {
			return nil, err
		}
		if maybe {
			mightBeKnown = true
			break
		}
	}
	if !mightBeKnown {
		for _, s := range own {
			if err := filter.Insert(class, dedup.SigKey(aid, digest, s)); err != nil {
				return nil, err
			}
		}
	}

	accumulated, err := set.GetAll(ctx, aid, digest)
	if err != nil {
		return nil, err
	}
	if len(accumulated) == 0 {
		return own, nil
	}
	seen := map[string]bool{}
	merged := make([]codec.IndexedSignature, 0, len(accumulated)+len(own))
	for _, s := range append(append([]codec.IndexedSignature{}, accumulated...), own...) {
		key := fmt.Sprintf("%d:%x", s.Index, s.Signature)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, s)
		if err := filter.Insert(class, dedup.SigKey(aid, digest, s)); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func (e *Engine) redriveReceipt(ctx context.Context, entry store.EscrowEntry) error {
	var hdr event.Header
	if err := event.Unmarshal(entry.Kind, entry.Body, &hdr); err != nil {
		return err
	}
	msg := receipt.Incoming{Kind: entry.Kind, Body: entry.Body, Header: hdr}
	if len(entry.Wigs) > 0 {
		msg.WitnessSigs = entry.Wigs
	}
	if entry.Couple != nil {
		msg.NonTransCouples = []cesr.ReceiptCouple{*entry.Couple}
	}
	if entry.Quad != nil {
		msg.TransQuads = []cesr.ReceiptQuadruple{*entry.Quad}
	}
	return e.Receipts.Accept(ctx, msg)
}
