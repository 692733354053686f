// Package cesr implements the composable streaming parser (§4.F): a
// cold-start-sensitive tokenizer that turns a byte stream into
// (event, attachments) tuples, switching between Base64 text and
// 3-byte-aligned binary CESR framing as it goes.
package cesr

import (
	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
)

// ReceiptCouple is a non-transferable receipt's (key, signature) pair.
type ReceiptCouple struct {
	Verfer    string
	Signature []byte
}

// ReceiptQuadruple is a transferable receipt's (AID, sn, digest,
// indexed-signature) attachment.
type ReceiptQuadruple struct {
	AID       string
	Sn        codec.SeqNum
	Digest    string
	Signature codec.IndexedSignature
}

// TransIndexedSigGroup anchors one or more controller-indexed signatures
// to the establishment event of a specific transferable receipter.
type TransIndexedSigGroup struct {
	AID    string
	Sn     codec.SeqNum
	Digest string
	Sigs   []codec.IndexedSignature
}

// ReplayCouple is a first-seen replay (sn, timestamp) pair.
type ReplayCouple struct {
	Sn        codec.SeqNum
	Timestamp string
}

// SealSourceCouple is an (sn, digest) authorizer couple, used to locate
// a delegating or issuing event.
type SealSourceCouple struct {
	Sn     codec.SeqNum
	Digest string
}

// Attachments holds every attachment group the parser recognized
// trailing one event body (§4.A Counter primitive, §4.F attachment loop).
type Attachments struct {
	ControllerSigs    []codec.IndexedSignature
	WitnessSigs       []codec.IndexedSignature
	NonTransReceipts  []ReceiptCouple
	TransReceiptQuads []ReceiptQuadruple
	TransSigGroups    []TransIndexedSigGroup
	FirstSeenReplay   []ReplayCouple
	SealSources       []SealSourceCouple
}

// Message is what the parser hands to the dispatcher: the serialization
// kind and raw bytes of the event body, its common header (so the
// dispatcher knows which concrete type to fully decode into without a
// second scan), and any attachments collected after it.
type Message struct {
	Kind        event.Kind
	Body        []byte
	Header      event.Header
	Attachments Attachments
}
