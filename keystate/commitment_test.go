package keystate

import (
	"testing"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/keriproto/go-keri-core/threshold"
	"github.com/stretchr/testify/require"
)

func TestCommitVerifyRoundTrip(t *testing.T) {
	kt := threshold.NewNumeric(1)
	next := []string{"Dnextkey0000000000000000000000"}

	commitment, err := Commit(codec.CodeBlake3_256, kt, next)
	require.NoError(t, err)
	require.NotEmpty(t, commitment)

	ok, err := VerifyCommitment(commitment, kt, next)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyCommitment(commitment, kt, []string{"Dsomeotherkey00000000000000000"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmptyCommitmentForNonTransferable(t *testing.T) {
	commitment, err := Commit(codec.CodeBlake3_256, threshold.NewNumeric(1), nil)
	require.NoError(t, err)
	require.Equal(t, EmptyCommitment, commitment)

	ok, err := VerifyCommitment(EmptyCommitment, threshold.NewNumeric(1), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplyWitnessRotation(t *testing.T) {
	prev := []string{"B1", "B2", "B3"}
	out, err := ApplyWitnessRotation(prev, []string{"B2"}, []string{"B4"})
	require.NoError(t, err)
	require.Equal(t, []string{"B1", "B3", "B4"}, out)
}

func TestApplyWitnessRotationRejectsOverlap(t *testing.T) {
	prev := []string{"B1", "B2"}
	_, err := ApplyWitnessRotation(prev, []string{"B1"}, []string{"B1"})
	require.Error(t, err)

	_, err = ApplyWitnessRotation(prev, []string{"B9"}, nil)
	require.Error(t, err)
}

func TestValidWitnessThreshold(t *testing.T) {
	require.True(t, ValidWitnessThreshold(0, nil))
	require.False(t, ValidWitnessThreshold(1, nil))
	require.True(t, ValidWitnessThreshold(2, []string{"B1", "B2"}))
	require.False(t, ValidWitnessThreshold(3, []string{"B1", "B2"}))
}
