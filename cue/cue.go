// Package cue defines the out-of-band notifications the verifier emits
// to the surrounding system (§9 Cue glossary entry; §4.G Cue emission).
// The core never acts on a cue itself — signing a receipt, replaying a
// clone, or escrowing a key-state notice are all left to the transport
// layer that embeds this module (§1 scope: "the TCP listener/dialer ...
// cooperative-task scheduling glue" are external collaborators).
package cue

import "github.com/keriproto/go-keri-core/codec"

// Kind identifies which cue fired.
type Kind int

const (
	// KindReceiptRequested is emitted on acceptance of a non-own event;
	// the transport layer may sign and reply with a receipt (§4.G Cue
	// emission; §9 "direct mode" cueing is left as an external policy).
	KindReceiptRequested Kind = iota
	// KindNoticeBadCloneFN names a cloned replay whose first-seen
	// ordinal does not match what the local first-seen log expects. No
	// component in this module emits it.
	KindNoticeBadCloneFN
	// KindKeyStateNotice names an unsolicited ksn event, for which no
	// escrow path exists (§9 Open Question). No component in this module
	// emits it; the verifier rejects a ksn as not a key event.
	KindKeyStateNotice
)

// Cue is one emitted notification.
type Cue struct {
	Kind   Kind
	AID    string
	Sn     codec.SeqNum
	Digest string
}

// Sink receives cues as the verifier/escrow engine produce them. A nil
// Sink is valid and simply discards cues, matching components under
// test that don't care about transport-layer notification.
type Sink interface {
	Emit(c Cue)
}

// Collector is a Sink that buffers cues in memory, used by tests and by
// any host that prefers polling over a push interface.
type Collector struct {
	Cues []Cue
}

func (c *Collector) Emit(cue Cue) {
	c.Cues = append(c.Cues, cue)
}

// Discard is a Sink that drops every cue.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(Cue) {}
