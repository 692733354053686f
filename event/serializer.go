package event

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/keriproto/go-keri-core/kerierr"
	"github.com/vmihailenco/msgpack/v5"
)

// cborEncMode preserves Go struct field declaration order in the
// encoded map rather than sorting keys, since KERI's canonical field
// order is fixed per event type (§3) and is not CBOR's "canonical"
// (sorted) form.
var cborEncMode = mustCBOREncMode()

func mustCBOREncMode() cbor.EncMode {
	opts := cbor.EncOptions{
		Sort: cbor.SortNone,
	}
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Marshal implements the two-pass construction of §4.B: the version
// string is first written with size=0, the body serialized once to
// measure its length (the version string occupies a fixed 17
// characters regardless of the size digits it carries, so this single
// pass already determines the final length), then the version string is
// rewritten with the true size and the body serialized again so the
// bytes handed to the caller carry a self-consistent size field.
func Marshal[T Versioned](kind Kind, ev T) ([]byte, error) {
	placeholder, err := BuildVersionString(kind, 0)
	if err != nil {
		return nil, err
	}
	ev.SetVersion(placeholder)

	body, err := encodeKind(kind, ev)
	if err != nil {
		return nil, err
	}

	final, err := BuildVersionString(kind, len(body))
	if err != nil {
		return nil, err
	}
	ev.SetVersion(final)

	body, err = encodeKind(kind, ev)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func encodeKind(kind Kind, v any) ([]byte, error) {
	switch kind {
	case KindJSON:
		return json.Marshal(v)
	case KindCBOR:
		return cborEncMode.Marshal(v)
	case KindMGPK:
		return msgpack.Marshal(v)
	default:
		return nil, fmt.Errorf("%w: unsupported serialization kind %q", kerierr.ErrExtraction, kind)
	}
}

// Unmarshal decodes body (of the given kind) into ev and verifies the
// round-trip law: the version string's declared size must equal the
// actual byte length of body (§4.B, §8 property 7).
func Unmarshal[T any](kind Kind, body []byte, ev T) error {
	if err := decodeKind(kind, body, ev); err != nil {
		return err
	}
	vh, ok := any(ev).(interface{ GetHeader() Header })
	if !ok {
		return fmt.Errorf("%w: decoded value has no header", kerierr.ErrExtraction)
	}
	_, size, err := ParseVersionString(vh.GetHeader().Version)
	if err != nil {
		return err
	}
	if size != len(body) {
		return fmt.Errorf("%w: declared %d, actual %d", kerierr.ErrBadSize, size, len(body))
	}
	return nil
}

func decodeKind(kind Kind, body []byte, v any) error {
	switch kind {
	case KindJSON:
		return json.Unmarshal(body, v)
	case KindCBOR:
		return cbor.Unmarshal(body, v)
	case KindMGPK:
		return msgpack.Unmarshal(body, v)
	default:
		return fmt.Errorf("%w: unsupported serialization kind %q", kerierr.ErrExtraction, kind)
	}
}

// SniffKindAndSize reads just the version string's declared kind and
// size from the head of a buffer, without fully decoding the body. The
// caller uses this to know how many more bytes to collect before
// attempting a full Unmarshal (§4.F: "the version string's size field
// tells the parser how many bytes the body occupies").
func SniffKindAndSize(head []byte) (Kind, int, error) {
	idx, err := findVersionField(head)
	if err != nil {
		return "", 0, err
	}
	if len(head) < idx+VersionStringLen {
		return "", 0, kerierr.ErrShortage
	}
	return ParseVersionString(string(head[idx : idx+VersionStringLen]))
}

// findVersionField locates the "KERI" tag within the first bytes of a
// JSON/CBOR/MessagePack encoded event body. Because "v" is always the
// first field and its value is always the version string, the tag
// appears at a small, kind-dependent offset from the start of the
// message; callers pass the message from its first byte, map-start
// token included, and only tags starting in the first 32 bytes are
// found.
func findVersionField(head []byte) (int, error) {
	for i := 0; i+4 <= len(head) && i < 32; i++ {
		if string(head[i:i+4]) == "KERI" {
			return i, nil
		}
	}
	return 0, kerierr.ErrShortage
}
