package cesr

import (
	"fmt"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/keriproto/go-keri-core/logging"
)

// Mode selects how the parser treats underflow and how it discovers the
// end of the attachment group (§4.F "Framing modes").
type Mode int

const (
	// ModeFramed: the caller guarantees the buffer holds exactly one
	// event plus its attachments. Underflow is a bug in the caller, not
	// a suspend condition.
	ModeFramed Mode = iota
	// ModeLive: events may cross buffer boundaries; on underflow Step
	// returns Need(n) and the caller retries once more bytes arrive.
	ModeLive
	// ModePipelined: the first counter announces the total byte length
	// of the attachment group that follows; the parser collects the
	// whole group before parsing any of it, so an extraction error
	// inside the group discards only the group (kerierr.SizedGroupError),
	// never corrupting the stream position.
	ModePipelined
)

// Step is the outcome of one parser cycle (§9 design note: "explicit
// resumable state machines ... returning Need(n) | Produced(msg) |
// Error(e)").
type Step struct {
	// Need, when > 0, is how many additional bytes (beyond len(buf))
	// the parser needs before it can make progress; the caller should
	// suspend and retry with a longer buffer.
	Need int
	// Message is non-nil when a full (event, attachments) tuple was
	// produced.
	Message *Message
	// Consumed is how many bytes of buf this step used, valid whenever
	// Message is non-nil or Err is a recoverable validation error that
	// still advances the stream.
	Consumed int
	// Err is set on failure; see kerierr for the taxonomy that
	// determines whether the caller should flush the buffer, discard
	// just a sized group, or simply continue.
	Err error
}

// Parser tokenizes a byte stream into Messages. It holds no buffer of
// its own: callers own the buffer and call Step repeatedly, slicing off
// Consumed bytes (live mode) or discarding the whole buffer on a
// cold-start/extraction error per the recovery table in §4.F.
type Parser struct {
	Mode Mode
	log  logging.Logger
}

// NewParser constructs a Parser for the given framing mode.
func NewParser(mode Mode) *Parser {
	return &Parser{Mode: mode, log: logging.Named("cesr")}
}

// Step attempts to parse exactly one message from the head of buf.
func (p *Parser) Step(buf []byte) Step {
	if len(buf) == 0 {
		return p.suspendOrShortage(1)
	}

	tritet, err := codec.SniffTritet(buf[0])
	if err != nil {
		// Cold-start error: the recovery table says flush the whole
		// buffer and restart on the next input; we signal that by
		// reporting a full-buffer Consumed alongside the error so a
		// caller following the recovery table knows to drop everything.
		return Step{Err: err, Consumed: len(buf)}
	}

	kind, ok := kindForTritet(tritet)
	if !ok {
		return Step{Err: fmt.Errorf("%w: stream head is an attachment opcode, not a message start", kerierr.ErrColdStart), Consumed: len(buf)}
	}

	evKind, size, err := event.SniffKindAndSize(buf)
	if err != nil {
		if err == kerierr.ErrShortage {
			return p.suspendOrShortage(1)
		}
		return Step{Err: err, Consumed: len(buf)}
	}
	if evKind != kind {
		return Step{Err: fmt.Errorf("%w: tritet/version-string kind mismatch", kerierr.ErrExtraction), Consumed: len(buf)}
	}
	if len(buf) < size {
		return p.suspendOrShortage(size - len(buf))
	}

	body := buf[:size]
	var hdr event.Header
	if err := event.Unmarshal(evKind, body, &hdr); err != nil {
		return Step{Err: err, Consumed: size}
	}

	rest := buf[size:]
	attachments, consumedAttach, err := p.parseAttachments(rest)
	if err != nil {
		if err == kerierr.ErrShortage {
			return p.suspendOrShortage(1)
		}
		if sg, ok := err.(*kerierr.SizedGroupError); ok {
			// The group's own byte length was already known (pipelined
			// mode); only the group is discarded, the stream position
			// past it remains valid.
			return Step{Err: sg, Consumed: size + consumedAttach}
		}
		return Step{Err: err, Consumed: len(buf)}
	}

	return Step{
		Consumed: size + consumedAttach,
		Message: &Message{
			Kind:        evKind,
			Body:        body,
			Header:      hdr,
			Attachments: attachments,
		},
	}
}

func (p *Parser) suspendOrShortage(need int) Step {
	if p.Mode == ModeFramed {
		return Step{Err: kerierr.ErrShortage}
	}
	return Step{Need: need}
}

func kindForTritet(t codec.Tritet) (event.Kind, bool) {
	switch t {
	case codec.TritetJSON:
		return event.KindJSON, true
	case codec.TritetCBOR:
		return event.KindCBOR, true
	case codec.TritetMsgPackFixMap, codec.TritetMsgPackMap:
		return event.KindMGPK, true
	default:
		return "", false
	}
}

// parseAttachments runs the attachment loop (§4.F): repeatedly re-sniff
// the tritet, and for a counter-led group, dispatch on the counter kind
// to pull that many elements. The loop stops as soon as the remaining
// bytes look like the start of the next message (a map-start tritet);
// running out of bytes also ends it in framed mode, and is a shortage in
// the other modes.
func (p *Parser) parseAttachments(buf []byte) (Attachments, int, error) {
	var out Attachments
	consumed := 0
	first := true

	for {
		if len(buf) == 0 {
			if p.Mode == ModeFramed {
				return out, consumed, nil
			}
			return out, consumed, kerierr.ErrShortage
		}

		tritet, err := codec.SniffTritet(buf[0])
		if err != nil {
			return out, consumed, err
		}
		if _, isMsg := kindForTritet(tritet); isMsg {
			// Next message begins; this event has no more attachments.
			return out, consumed, nil
		}

		var counter codec.Counter
		var n int
		if p.Mode == ModePipelined && first {
			counter, n, err = codec.DecodeBigCounter(string(buf))
		} else {
			counter, n, err = codec.DecodeCounter(string(buf))
		}
		first = false
		if err != nil {
			return out, consumed, err
		}
		buf = buf[n:]
		consumed += n

		if p.Mode == ModePipelined && counter.Kind == codec.CounterPipelinedQuadlets {
			groupLen := counter.Count * 4
			if len(buf) < groupLen {
				return out, consumed, kerierr.ErrShortage
			}
			inner := &Parser{Mode: ModeFramed, log: p.log}
			group, _, err := inner.parseAttachments(buf[:groupLen])
			consumed += groupLen
			if err != nil {
				return out, consumed, &kerierr.SizedGroupError{Cause: err}
			}
			return group, consumed, nil
		}

		groupConsumed, err := p.dispatchGroup(&out, counter, &buf)
		consumed += groupConsumed
		if err != nil {
			if p.Mode == ModePipelined {
				return out, consumed, &kerierr.SizedGroupError{Cause: err}
			}
			return out, consumed, err
		}
	}
}

// dispatchGroup consumes counter.Count elements of the kind counter
// announces, appending them to out and advancing *buf past the
// elements it parsed. It returns the number of bytes consumed.
func (p *Parser) dispatchGroup(out *Attachments, counter codec.Counter, buf *[]byte) (int, error) {
	consumed := 0
	switch counter.Kind {
	case codec.CounterControllerSigs:
		for i := 0; i < counter.Count; i++ {
			sig, n, err := codec.DecodeIndexedSignature(string(*buf))
			if err != nil {
				return consumed, err
			}
			out.ControllerSigs = append(out.ControllerSigs, sig)
			*buf = (*buf)[n:]
			consumed += n
		}
	case codec.CounterWitnessSigs:
		for i := 0; i < counter.Count; i++ {
			sig, n, err := codec.DecodeIndexedSignature(string(*buf))
			if err != nil {
				return consumed, err
			}
			sig.Witness = true
			out.WitnessSigs = append(out.WitnessSigs, sig)
			*buf = (*buf)[n:]
			consumed += n
		}
	case codec.CounterNonTransReceipts:
		for i := 0; i < counter.Count; i++ {
			couple, n, err := decodeReceiptCouple(*buf)
			if err != nil {
				return consumed, err
			}
			out.NonTransReceipts = append(out.NonTransReceipts, couple)
			*buf = (*buf)[n:]
			consumed += n
		}
	case codec.CounterTransReceiptQuads:
		for i := 0; i < counter.Count; i++ {
			quad, n, err := decodeReceiptQuadruple(*buf)
			if err != nil {
				return consumed, err
			}
			out.TransReceiptQuads = append(out.TransReceiptQuads, quad)
			*buf = (*buf)[n:]
			consumed += n
		}
	case codec.CounterTransIndexedSigGrps:
		for i := 0; i < counter.Count; i++ {
			grp, n, err := p.decodeTransSigGroup(*buf)
			if err != nil {
				return consumed, err
			}
			out.TransSigGroups = append(out.TransSigGroups, grp)
			*buf = (*buf)[n:]
			consumed += n
		}
	case codec.CounterFirstSeenReplay:
		for i := 0; i < counter.Count; i++ {
			rc, n, err := decodeReplayCouple(*buf)
			if err != nil {
				return consumed, err
			}
			out.FirstSeenReplay = append(out.FirstSeenReplay, rc)
			*buf = (*buf)[n:]
			consumed += n
		}
	case codec.CounterSealSourceCouples:
		for i := 0; i < counter.Count; i++ {
			sc, n, err := decodeSealSourceCouple(*buf)
			if err != nil {
				return consumed, err
			}
			out.SealSources = append(out.SealSources, sc)
			*buf = (*buf)[n:]
			consumed += n
		}
	default:
		return consumed, fmt.Errorf("%w: unsupported counter kind in this context", kerierr.ErrExtraction)
	}
	return consumed, nil
}

func decodeReceiptCouple(buf []byte) (ReceiptCouple, int, error) {
	verferPrim, n1, err := codec.DecodeText(string(buf))
	if err != nil {
		return ReceiptCouple{}, 0, err
	}
	sigPrim, n2, err := codec.DecodeText(string(buf[n1:]))
	if err != nil {
		return ReceiptCouple{}, 0, err
	}
	return ReceiptCouple{Verfer: verferPrim.Text, Signature: sigPrim.Raw}, n1 + n2, nil
}

func decodeReceiptQuadruple(buf []byte) (ReceiptQuadruple, int, error) {
	aidPrim, n1, err := codec.DecodeText(string(buf))
	if err != nil {
		return ReceiptQuadruple{}, 0, err
	}
	snPrim, n2, err := codec.DecodeText(string(buf[n1:]))
	if err != nil {
		return ReceiptQuadruple{}, 0, err
	}
	digestPrim, n3, err := codec.DecodeText(string(buf[n1+n2:]))
	if err != nil {
		return ReceiptQuadruple{}, 0, err
	}
	sig, n4, err := codec.DecodeIndexedSignature(string(buf[n1+n2+n3:]))
	if err != nil {
		return ReceiptQuadruple{}, 0, err
	}
	sn, err := codec.DecodeSeqNumRaw(snPrim.Raw)
	if err != nil {
		return ReceiptQuadruple{}, 0, err
	}
	return ReceiptQuadruple{AID: aidPrim.Text, Sn: sn, Digest: digestPrim.Text, Signature: sig}, n1 + n2 + n3 + n4, nil
}

func (p *Parser) decodeTransSigGroup(buf []byte) (TransIndexedSigGroup, int, error) {
	aidPrim, n1, err := codec.DecodeText(string(buf))
	if err != nil {
		return TransIndexedSigGroup{}, 0, err
	}
	snPrim, n2, err := codec.DecodeText(string(buf[n1:]))
	if err != nil {
		return TransIndexedSigGroup{}, 0, err
	}
	digestPrim, n3, err := codec.DecodeText(string(buf[n1+n2:]))
	if err != nil {
		return TransIndexedSigGroup{}, 0, err
	}
	sn, err := codec.DecodeSeqNumRaw(snPrim.Raw)
	if err != nil {
		return TransIndexedSigGroup{}, 0, err
	}

	rest := buf[n1+n2+n3:]
	nestedCounter, n4, err := codec.DecodeCounter(string(rest))
	if err != nil {
		return TransIndexedSigGroup{}, 0, err
	}
	if nestedCounter.Kind != codec.CounterControllerSigs {
		return TransIndexedSigGroup{}, 0, fmt.Errorf("%w: expected nested controller-signatures group", kerierr.ErrExtraction)
	}
	rest = rest[n4:]
	consumed := n1 + n2 + n3 + n4
	sigs := make([]codec.IndexedSignature, 0, nestedCounter.Count)
	for i := 0; i < nestedCounter.Count; i++ {
		sig, n, err := codec.DecodeIndexedSignature(string(rest))
		if err != nil {
			return TransIndexedSigGroup{}, 0, err
		}
		sigs = append(sigs, sig)
		rest = rest[n:]
		consumed += n
	}
	return TransIndexedSigGroup{AID: aidPrim.Text, Sn: sn, Digest: digestPrim.Text, Sigs: sigs}, consumed, nil
}

func decodeReplayCouple(buf []byte) (ReplayCouple, int, error) {
	snPrim, n1, err := codec.DecodeText(string(buf))
	if err != nil {
		return ReplayCouple{}, 0, err
	}
	tsPrim, n2, err := codec.DecodeText(string(buf[n1:]))
	if err != nil {
		return ReplayCouple{}, 0, err
	}
	sn, err := codec.DecodeSeqNumRaw(snPrim.Raw)
	if err != nil {
		return ReplayCouple{}, 0, err
	}
	return ReplayCouple{Sn: sn, Timestamp: tsPrim.Text}, n1 + n2, nil
}

func decodeSealSourceCouple(buf []byte) (SealSourceCouple, int, error) {
	snPrim, n1, err := codec.DecodeText(string(buf))
	if err != nil {
		return SealSourceCouple{}, 0, err
	}
	digestPrim, n2, err := codec.DecodeText(string(buf[n1:]))
	if err != nil {
		return SealSourceCouple{}, 0, err
	}
	sn, err := codec.DecodeSeqNumRaw(snPrim.Raw)
	if err != nil {
		return SealSourceCouple{}, 0, err
	}
	return SealSourceCouple{Sn: sn, Digest: digestPrim.Text}, n1 + n2, nil
}
