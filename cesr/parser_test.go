package cesr

import (
	"testing"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/event"
	"github.com/keriproto/go-keri-core/threshold"
	"github.com/stretchr/testify/require"
)

func sampleInception() event.Inception {
	return event.Inception{
		Header: event.Header{AID: "Eaid0000000000000000000000000000000000000", Seq: "0", Type: event.TypeInception},
		Kt:     threshold.NewNumeric(1),
		K:      []string{"Dkey00000000000000000000000000000000000000"},
		N:      "Enext000000000000000000000000000000000000",
	}
}

func TestStepParsesFramedEventWithSignature(t *testing.T) {
	icp := sampleInception()
	body, err := event.Marshal(event.KindJSON, &icp)
	require.NoError(t, err)

	sig := make([]byte, 64)
	sig[0] = 0x07
	sigText, err := codec.EncodeIndexedSignature(sig, 0, false)
	require.NoError(t, err)

	counter, err := codec.EncodeCounter(codec.CounterControllerSigs, 1)
	require.NoError(t, err)

	stream := append([]byte{}, body...)
	stream = append(stream, []byte(counter)...)
	stream = append(stream, []byte(sigText)...)

	p := NewParser(ModeFramed)
	step := p.Step(stream)
	require.NoError(t, step.Err)
	require.NotNil(t, step.Message)
	require.Equal(t, event.KindJSON, step.Message.Kind)
	require.Equal(t, event.TypeInception, step.Message.Header.Type)
	require.Len(t, step.Message.Attachments.ControllerSigs, 1)
	require.Equal(t, sig, step.Message.Attachments.ControllerSigs[0].Signature)
	require.Equal(t, len(stream), step.Consumed)
}

func TestStepNoAttachments(t *testing.T) {
	icp := sampleInception()
	body, err := event.Marshal(event.KindJSON, &icp)
	require.NoError(t, err)

	p := NewParser(ModeFramed)
	step := p.Step(body)
	require.NoError(t, step.Err)
	require.NotNil(t, step.Message)
	require.Empty(t, step.Message.Attachments.ControllerSigs)
	require.Equal(t, len(body), step.Consumed)
}

func TestStepLiveModeSuspendsOnShortBody(t *testing.T) {
	icp := sampleInception()
	body, err := event.Marshal(event.KindJSON, &icp)
	require.NoError(t, err)

	p := NewParser(ModeLive)
	partial := body[:len(body)-5]
	step := p.Step(partial)
	require.Nil(t, step.Err)
	require.Nil(t, step.Message)
	require.Greater(t, step.Need, 0)
}

func TestStepColdStartError(t *testing.T) {
	p := NewParser(ModeFramed)
	step := p.Step([]byte{0x00, 0x01, 0x02})
	require.Error(t, step.Err)
	require.Equal(t, 3, step.Consumed)
}

func TestStepTwoControllerSignatures(t *testing.T) {
	icp := sampleInception()
	body, err := event.Marshal(event.KindJSON, &icp)
	require.NoError(t, err)

	sigA := make([]byte, 64)
	sigA[0] = 0x01
	sigB := make([]byte, 64)
	sigB[0] = 0x02
	sigTextA, err := codec.EncodeIndexedSignature(sigA, 0, false)
	require.NoError(t, err)
	sigTextB, err := codec.EncodeIndexedSignature(sigB, 1, false)
	require.NoError(t, err)
	counter, err := codec.EncodeCounter(codec.CounterControllerSigs, 2)
	require.NoError(t, err)

	stream := append([]byte{}, body...)
	stream = append(stream, []byte(counter)...)
	stream = append(stream, []byte(sigTextA)...)
	stream = append(stream, []byte(sigTextB)...)

	p := NewParser(ModeFramed)
	step := p.Step(stream)
	require.NoError(t, step.Err)
	require.Len(t, step.Message.Attachments.ControllerSigs, 2)
	require.Equal(t, 0, step.Message.Attachments.ControllerSigs[0].Index)
	require.Equal(t, 1, step.Message.Attachments.ControllerSigs[1].Index)
}
