// Package event implements the KERI event serializer (§4.B): the
// ordered-map event bodies, their fixed-width version string, and the
// JSON/CBOR/MessagePack encodings selected per event at construction.
package event

import (
	"fmt"
	"strings"

	"github.com/keriproto/go-keri-core/kerierr"
)

// Kind is the serialization kind an event body is encoded in.
type Kind string

const (
	KindJSON Kind = "JSON"
	KindCBOR Kind = "CBOR"
	KindMGPK Kind = "MGPK"
)

// ProtocolMajor and ProtocolMinor are the protocol version this core
// implements; events declaring any other major version are rejected as
// kerierr.ErrUnsupportedVersion (§7: Version errors are fatal for that
// message).
const (
	ProtocolMajor = "1"
	ProtocolMinor = "0"
)

// versionPrefix is everything before the size field: "KERI" + major + minor + kind.
func versionPrefix(kind Kind) string {
	return "KERI" + ProtocolMajor + ProtocolMinor + string(kind)
}

// VersionStringLen is the fixed 17-character width of the version
// string (§6): "KERI" (4) + major (1) + minor (1) + kind (4) + 6 hex
// size digits + "_" (1).
const VersionStringLen = 17

// BuildVersionString renders the version string for the given kind and
// body size, zero-padded to 6 hex digits.
func BuildVersionString(kind Kind, size int) (string, error) {
	if size < 0 || size > 0xFFFFFF {
		return "", fmt.Errorf("%w: body size %d out of representable range", kerierr.ErrBadSize, size)
	}
	vs := fmt.Sprintf("%s%06x_", versionPrefix(kind), size)
	if len(vs) != VersionStringLen {
		return "", fmt.Errorf("%w: constructed version string has wrong length", kerierr.ErrBadSize)
	}
	return vs, nil
}

// ParseVersionString extracts the kind and declared size from a version
// string read off the wire.
func ParseVersionString(vs string) (Kind, int, error) {
	if len(vs) != VersionStringLen {
		return "", 0, fmt.Errorf("%w: version string must be %d characters", kerierr.ErrExtraction, VersionStringLen)
	}
	if !strings.HasPrefix(vs, "KERI") {
		return "", 0, fmt.Errorf("%w: version string missing KERI tag", kerierr.ErrExtraction)
	}
	major, minor := vs[4:5], vs[5:6]
	if major != ProtocolMajor {
		return "", 0, fmt.Errorf("%w: protocol major version %s", kerierr.ErrUnsupportedVersion, major)
	}
	_ = minor
	kind := Kind(vs[6:10])
	switch kind {
	case KindJSON, KindCBOR, KindMGPK:
	default:
		return "", 0, fmt.Errorf("%w: unrecognized serialization kind %q", kerierr.ErrExtraction, kind)
	}
	if vs[16] != '_' {
		return "", 0, fmt.Errorf("%w: version string missing terminator", kerierr.ErrExtraction)
	}
	var size int
	if _, err := fmt.Sscanf(vs[10:16], "%06x", &size); err != nil {
		return "", 0, fmt.Errorf("%w: malformed size field", kerierr.ErrExtraction)
	}
	return kind, size, nil
}
