package escrow

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"
	"time"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/keystate"
	"github.com/keriproto/go-keri-core/receipt"
	"github.com/keriproto/go-keri-core/storemem"
	"github.com/keriproto/go-keri-core/threshold"
	"github.com/keriproto/go-keri-core/verifier"
)

func seedKeypair(t *testing.T, seed byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	raw := make([]byte, ed25519.SeedSize)
	for i := range raw {
		raw[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(raw)
	return priv.Public().(ed25519.PublicKey), priv
}

func keyText(t *testing.T, pub ed25519.PublicKey) string {
	t.Helper()
	code, err := codec.Lookup(codec.CodeEd25519)
	if err != nil {
		t.Fatal(err)
	}
	text, err := codec.EncodeText(code, pub)
	if err != nil {
		t.Fatal(err)
	}
	return text
}

func marshalHeader(t *testing.T, kind event.Kind, body []byte) event.Header {
	t.Helper()
	var hdr event.Header
	if err := event.Unmarshal(kind, body, &hdr); err != nil {
		t.Fatal(err)
	}
	return hdr
}

// TestOutOfOrderPromotedOnceMissingEventArrives exercises §8 scenario
// S3: an ixn at sn=2 arrives before the sn=1 ixn it depends on and
// lands in the out-of-order escrow, then the missing sn=1 event is
// accepted directly and a Run sweeps the escrowed ixn back in.
func TestOutOfOrderPromotedOnceMissingEventArrives(t *testing.T) {
	ctx := context.Background()
	pub, priv := seedKeypair(t, 1)
	aid := "Eoutoforderflowplaceholderplaceholderpl01"
	icpDigest := "Eicpdigestplaceholderplaceholderplacehold02"

	s := storemem.New()
	initial := keystate.State{
		AID:               aid,
		Sn:                codec.NewSeqNum(0),
		EventDigest:       icpDigest,
		EventType:         string(event.TypeInception),
		SigningThreshold:  threshold.NewNumeric(1),
		SigningKeys:       []string{keyText(t, pub)},
		LastEstablishment: keystate.EstablishmentLocation{Sn: codec.NewSeqNum(0), Digest: icpDigest},
		Transferable:      true,
	}
	if err := s.KeyStates.Put(ctx, initial); err != nil {
		t.Fatal(err)
	}
	if err := s.KEL.Append(ctx, aid, codec.NewSeqNum(0), icpDigest); err != nil {
		t.Fatal(err)
	}

	v := verifier.New(s, nil, nil)
	r := receipt.New(s)
	e := New(s, v, r)

	ixn1 := event.Interaction{Header: event.Header{AID: aid, Seq: "1", Type: event.TypeInteraction}, P: icpDigest}
	ixn1Body, err := event.Marshal(event.KindJSON, &ixn1)
	if err != nil {
		t.Fatal(err)
	}
	ixn1Digest, err := codec.DigestText(codec.CodeBlake3_256, ixn1Body)
	if err != nil {
		t.Fatal(err)
	}

	ixn2 := event.Interaction{Header: event.Header{AID: aid, Seq: "2", Type: event.TypeInteraction}, P: ixn1Digest}
	ixn2Body, err := event.Marshal(event.KindJSON, &ixn2)
	if err != nil {
		t.Fatal(err)
	}
	ixn2Hdr := marshalHeader(t, event.KindJSON, ixn2Body)
	ixn2Sig := codec.IndexedSignature{Index: 0, Signature: ed25519.Sign(priv, ixn2Body)}
	msg2 := verifier.Incoming{Kind: event.KindJSON, Body: ixn2Body, Header: ixn2Hdr, Sigs: []codec.IndexedSignature{ixn2Sig}}

	err = v.Accept(ctx, msg2)
	if err == nil {
		t.Fatal("expected an out-of-order escrow for sn=2 before sn=1 exists")
	}
	ee, ok := kerierr.AsEscrow(err)
	if !ok || ee.Kind != kerierr.EscrowOutOfOrder {
		t.Fatalf("expected out-of-order escrow, got %v", err)
	}

	ixn1Hdr := marshalHeader(t, event.KindJSON, ixn1Body)
	ixn1Sig := codec.IndexedSignature{Index: 0, Signature: ed25519.Sign(priv, ixn1Body)}
	msg1 := verifier.Incoming{Kind: event.KindJSON, Body: ixn1Body, Header: ixn1Hdr, Sigs: []codec.IndexedSignature{ixn1Sig}}
	if err := v.Accept(ctx, msg1); err != nil {
		t.Fatalf("accepting sn=1 directly: %v", err)
	}

	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	state, ok, err := s.KeyStates.Get(ctx, aid)
	if err != nil || !ok {
		t.Fatalf("expected key state, ok=%v err=%v", ok, err)
	}
	if state.Sn.Hex() != "2" {
		t.Fatalf("expected sn=2 after the escrowed ixn was promoted, got %s", state.Sn.Hex())
	}

	entries, err := s.Escrows.Iterate(ctx, kerierr.EscrowOutOfOrder)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the out-of-order escrow to be drained, got %d entries", len(entries))
	}
}

// TestPartiallySignedPromotedWhenSecondSignerArrives exercises §8
// scenario S4: a 2-of-2 rotation signed by only one key escrows as
// partially-signed, the second signer's message arrives independently,
// and Run accumulates both signatures to complete the threshold.
func TestPartiallySignedPromotedWhenSecondSignerArrives(t *testing.T) {
	ctx := context.Background()
	pub0, priv0 := seedKeypair(t, 5)
	pub1, priv1 := seedKeypair(t, 6)
	aid := "Epartialsigplaceholderplaceholderplaceh01"
	icpDigest := "Eicpdigestplaceholderplaceholderplacehold03"

	nextCommitment, err := keystate.Commit(codec.CodeBlake3_256, threshold.NewNumeric(2), []string{keyText(t, pub0), keyText(t, pub1)})
	if err != nil {
		t.Fatal(err)
	}

	s := storemem.New()
	initial := keystate.State{
		AID:               aid,
		Sn:                codec.NewSeqNum(0),
		EventDigest:       icpDigest,
		EventType:         string(event.TypeInception),
		SigningThreshold:  threshold.NewNumeric(1),
		SigningKeys:       []string{keyText(t, pub0)},
		NextCommitment:    nextCommitment,
		WitnessThreshold:  0,
		LastEstablishment: keystate.EstablishmentLocation{Sn: codec.NewSeqNum(0), Digest: icpDigest},
		Transferable:      true,
	}
	if err := s.KeyStates.Put(ctx, initial); err != nil {
		t.Fatal(err)
	}
	if err := s.KEL.Append(ctx, aid, codec.NewSeqNum(0), icpDigest); err != nil {
		t.Fatal(err)
	}

	v := verifier.New(s, nil, nil)
	r := receipt.New(s)
	e := New(s, v, r)

	rot := event.Rotation{
		Header: event.Header{AID: aid, Seq: "1", Type: event.TypeRotation},
		P:      icpDigest,
		Kt:     threshold.NewNumeric(2),
		K:      []string{keyText(t, pub0), keyText(t, pub1)},
		N:      "",
		Bt:     0,
	}
	rotBody, err := event.Marshal(event.KindJSON, &rot)
	if err != nil {
		t.Fatal(err)
	}
	rotHdr := marshalHeader(t, event.KindJSON, rotBody)

	msgOne := verifier.Incoming{
		Kind:   event.KindJSON,
		Body:   rotBody,
		Header: rotHdr,
		Sigs:   []codec.IndexedSignature{{Index: 0, Signature: ed25519.Sign(priv0, rotBody)}},
	}
	err = v.Accept(ctx, msgOne)
	if err == nil {
		t.Fatal("expected a partially-signed escrow with only one of two required signatures")
	}
	ee, ok := kerierr.AsEscrow(err)
	if !ok || ee.Kind != kerierr.EscrowPartiallySigned {
		t.Fatalf("expected partially-signed escrow, got %v", err)
	}

	msgTwo := verifier.Incoming{
		Kind:   event.KindJSON,
		Body:   rotBody,
		Header: rotHdr,
		Sigs:   []codec.IndexedSignature{{Index: 1, Signature: ed25519.Sign(priv1, rotBody)}},
	}
	err = v.Accept(ctx, msgTwo)
	if err == nil {
		t.Fatal("expected the second signer's message to also escrow since it alone is still short of the threshold")
	}

	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	state, ok, err := s.KeyStates.Get(ctx, aid)
	if err != nil || !ok {
		t.Fatalf("expected key state, ok=%v err=%v", ok, err)
	}
	if state.Sn.Hex() != "1" {
		t.Fatalf("expected the rotation to be promoted once both signatures accumulated, got sn=%s", state.Sn.Hex())
	}
	if len(state.SigningKeys) != 2 {
		t.Fatalf("expected both rotated-in keys, got %v", state.SigningKeys)
	}

	entries, err := s.Escrows.Iterate(ctx, kerierr.EscrowPartiallySigned)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the partially-signed escrow to be drained, got %d entries", len(entries))
	}
}

// TestUnverifiedWitnessReceiptPromotedWhenEventArrives exercises §8
// scenario S6: a witness receipt for an event this node has not yet
// accepted escrows as unverified, then the referenced event is
// accepted and Run re-matches the receipt against it.
func TestUnverifiedWitnessReceiptPromotedWhenEventArrives(t *testing.T) {
	ctx := context.Background()
	controllerPub, controllerPriv := seedKeypair(t, 9)
	witnessPub, witnessPriv := seedKeypair(t, 10)
	aid := "Ereceiptedflowplaceholderplaceholderpla01"

	s := storemem.New()
	v := verifier.New(s, nil, nil)
	r := receipt.New(s)
	e := New(s, v, r)

	witnessText := keyText(t, witnessPub)
	placeholder := strings.Repeat("#", len(codec.CodeBlake3_256)+43)
	icp := event.Inception{
		Header: event.Header{AID: placeholder, Seq: "0", Type: event.TypeInception},
		Kt:     threshold.NewNumeric(1),
		K:      []string{keyText(t, controllerPub)},
		N:      "",
		Bt:     1,
		B:      []string{witnessText},
	}
	body, err := event.Marshal(event.KindJSON, &icp)
	if err != nil {
		t.Fatal(err)
	}
	digest, err := codec.DigestText(codec.CodeBlake3_256, body)
	if err != nil {
		t.Fatal(err)
	}
	icp.Header.AID = digest
	body, err = event.Marshal(event.KindJSON, &icp)
	if err != nil {
		t.Fatal(err)
	}
	hdr := marshalHeader(t, event.KindJSON, body)

	rct := event.NonTransReceipt{Header: event.Header{AID: hdr.AID, Seq: "0", Type: event.TypeNonTransReceipt}, D: digest}
	rctBody, err := event.Marshal(event.KindJSON, &rct)
	if err != nil {
		t.Fatal(err)
	}
	rctHdr := marshalHeader(t, event.KindJSON, rctBody)
	rctMsg := receipt.Incoming{
		Kind:        event.KindJSON,
		Body:        rctBody,
		Header:      rctHdr,
		WitnessSigs: []codec.IndexedSignature{{Index: 0, Signature: ed25519.Sign(witnessPriv, body), Witness: true}},
	}

	err = r.Accept(ctx, rctMsg)
	if err == nil {
		t.Fatal("expected the receipt to escrow since the receipted event is not yet known")
	}
	ee, ok := kerierr.AsEscrow(err)
	if !ok || ee.Kind != kerierr.EscrowUnverifiedWitnessReceipt {
		t.Fatalf("expected unverified-witness-receipt escrow, got %v", err)
	}

	icpMsg := verifier.Incoming{
		Kind:   event.KindJSON,
		Body:   body,
		Header: hdr,
		Sigs:   []codec.IndexedSignature{{Index: 0, Signature: ed25519.Sign(controllerPriv, body)}},
		Wigs:   []codec.IndexedSignature{{Index: 0, Signature: ed25519.Sign(witnessPriv, body), Witness: true}},
	}
	if err := v.Accept(ctx, icpMsg); err != nil {
		t.Fatalf("accepting the inception: %v", err)
	}

	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored, err := s.WitnessSigs.GetAll(ctx, hdr.AID, digest)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected the witness signature to be recorded once the event was known, got %d", len(stored))
	}

	entries, err := s.Escrows.Iterate(ctx, kerierr.EscrowUnverifiedWitnessReceipt)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the unverified-witness-receipt escrow to be drained, got %d entries", len(entries))
	}
}

// TestExpiredEntryIsDropped exercises the §4.I timeout path directly:
// an out-of-order entry whose recorded timestamp is older than its
// class's timeout is discarded rather than retried forever.
func TestExpiredEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	pub, priv := seedKeypair(t, 20)
	aid := "Eexpiredflowplaceholderplaceholderplaceh01"

	s := storemem.New()
	v := verifier.New(s, nil, nil)
	r := receipt.New(s)
	e := New(s, v, r)
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return past.Add(2 * time.Hour) }

	ixn := event.Interaction{Header: event.Header{AID: aid, Seq: "3", Type: event.TypeInteraction}, P: "Epriorplaceholderplaceholderplaceholderp01"}
	ixnBody, err := event.Marshal(event.KindJSON, &ixn)
	if err != nil {
		t.Fatal(err)
	}
	ixnHdr := marshalHeader(t, event.KindJSON, ixnBody)
	msg := verifier.Incoming{
		Kind:   event.KindJSON,
		Body:   ixnBody,
		Header: ixnHdr,
		Sigs:   []codec.IndexedSignature{{Index: 0, Signature: ed25519.Sign(priv, ixnBody)}},
	}
	err = v.Accept(ctx, msg)
	if err == nil {
		t.Fatal("expected an out-of-order escrow for an AID with no recorded key state")
	}
	digest, err := codec.DigestText(codec.CodeBlake3_256, ixnBody)
	if err != nil {
		t.Fatal(err)
	}
	if serr := s.Timestamps.Set(ctx, aid, digest, past.Unix()); serr != nil {
		t.Fatal(serr)
	}

	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := s.Escrows.Iterate(ctx, kerierr.EscrowOutOfOrder)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the stale entry to be expired, got %d entries", len(entries))
	}
}
