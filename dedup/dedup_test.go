package dedup

import (
	"testing"

	"github.com/keriproto/go-keri-core/codec"
	"github.com/stretchr/testify/require"
)

func TestFilterInsertAndQuery(t *testing.T) {
	f, err := NewFilter(100)
	require.NoError(t, err)

	sig := codec.IndexedSignature{Index: 0, Signature: make([]byte, 64)}
	key := SigKey("Eaid", "Edig", sig)

	present, err := f.MaybeContains(ClassControllerSigs, key)
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, f.Insert(ClassControllerSigs, key))

	present, err = f.MaybeContains(ClassControllerSigs, key)
	require.NoError(t, err)
	require.True(t, present)

	other := SigKey("Eaid", "Edig", codec.IndexedSignature{Index: 1, Signature: make([]byte, 64)})
	presentOther, err := f.MaybeContains(ClassControllerSigs, other)
	require.NoError(t, err)
	require.False(t, presentOther)
}

func TestFilterClassesAreIndependent(t *testing.T) {
	f, err := NewFilter(10)
	require.NoError(t, err)

	sig := codec.IndexedSignature{Index: 0, Signature: make([]byte, 64)}
	key := SigKey("Eaid", "Edig", sig)
	require.NoError(t, f.Insert(ClassControllerSigs, key))

	present, err := f.MaybeContains(ClassWitnessSigs, key)
	require.NoError(t, err)
	require.False(t, present)
}

func TestRegistryCachesOnePerAID(t *testing.T) {
	r := NewRegistry()

	f1, err := r.FilterFor("Eaid1")
	require.NoError(t, err)
	f2, err := r.FilterFor("Eaid1")
	require.NoError(t, err)
	require.Same(t, f1, f2)

	f3, err := r.FilterFor("Eaid2")
	require.NoError(t, err)
	require.NotSame(t, f1, f3)
}

func TestRegistryFiltersAreIndependentPerAID(t *testing.T) {
	r := NewRegistry()
	sig := codec.IndexedSignature{Index: 0, Signature: make([]byte, 64)}
	key := SigKey("Eaid1", "Edig", sig)

	f1, err := r.FilterFor("Eaid1")
	require.NoError(t, err)
	require.NoError(t, f1.Insert(ClassControllerSigs, key))

	f2, err := r.FilterFor("Eaid2")
	require.NoError(t, err)
	present, err := f2.MaybeContains(ClassControllerSigs, key)
	require.NoError(t, err)
	require.False(t, present)
}
