package event

import (
	"testing"

	"github.com/keriproto/go-keri-core/threshold"
	"github.com/stretchr/testify/require"
)

func sampleInception() Inception {
	return Inception{
		Header: Header{AID: "Eaid0000000000000000000000000000000000000", Seq: "0", Type: TypeInception},
		Kt:     threshold.NewNumeric(1),
		K:      []string{"Dkey00000000000000000000000000000000000000"},
		N:      "Enext000000000000000000000000000000000000",
		Bt:     0,
		B:      nil,
	}
}

func TestJSONRoundTrip(t *testing.T) {
	icp := sampleInception()
	body, err := Marshal(KindJSON, &icp)
	require.NoError(t, err)

	var back Inception
	require.NoError(t, Unmarshal(KindJSON, body, &back))
	require.Equal(t, icp.AID, back.AID)
	require.Equal(t, icp.K, back.K)
	require.Equal(t, icp.Kt.Limen(), back.Kt.Limen())

	kind, size, err := ParseVersionString(back.Version)
	require.NoError(t, err)
	require.Equal(t, KindJSON, kind)
	require.Equal(t, len(body), size)
}

func TestCBORRoundTrip(t *testing.T) {
	icp := sampleInception()
	body, err := Marshal(KindCBOR, &icp)
	require.NoError(t, err)

	var back Inception
	require.NoError(t, Unmarshal(KindCBOR, body, &back))
	require.Equal(t, icp.AID, back.AID)
	require.Equal(t, icp.N, back.N)
}

func TestMsgpackRoundTrip(t *testing.T) {
	icp := sampleInception()
	body, err := Marshal(KindMGPK, &icp)
	require.NoError(t, err)

	var back Inception
	require.NoError(t, Unmarshal(KindMGPK, body, &back))
	require.Equal(t, icp.AID, back.AID)
}

func TestBadSizeRejected(t *testing.T) {
	icp := sampleInception()
	body, err := Marshal(KindJSON, &icp)
	require.NoError(t, err)

	tampered := append(body, []byte(`{"extra":true}`)...)
	var back Inception
	err = Unmarshal(KindJSON, tampered, &back)
	require.Error(t, err)
}

func TestVersionStringShape(t *testing.T) {
	vs, err := BuildVersionString(KindJSON, 123)
	require.NoError(t, err)
	require.Len(t, vs, VersionStringLen)
	require.Equal(t, "KERI10JSON00007b_", vs)

	kind, size, err := ParseVersionString(vs)
	require.NoError(t, err)
	require.Equal(t, KindJSON, kind)
	require.Equal(t, 123, size)
}
