package translation

import (
	"errors"
	"testing"

	"gomemd/protocol"
	"gomemd/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare(t *testing.T) {
	table, err := Prepare("op", nil, 0)
	require.NoError(t, err)
	assert.True(t, table.IsDefault())

	explicit := Explicit(0x1AD000)
	_, err = Prepare("op", &explicit, protocol.FeatureMemoryRead)
	require.Error(t, err)
	assert.Equal(t, status.Unsupported, status.Of(err))

	table, err = Prepare("op", &explicit, protocol.FeatureDTTExplicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, table)

	// the result does not alias the caller's value
	explicit.DirectoryTableBase = 0
	assert.Equal(t, uint64(0x1AD000), table.DirectoryTableBase)
}

func TestPrepareUnknownKind(t *testing.T) {
	dtt := protocol.DirectoryTableType{Kind: 7}
	_, err := Prepare("op", &dtt, protocol.FeatureDTTExplicit)
	require.Error(t, err)
	assert.Equal(t, status.GeneralFailure, status.Of(err))
}

func TestResolveExplicitSkipsLookup(t *testing.T) {
	root, err := Resolve("op", 4, Explicit(0x2000), func(protocol.ProcessID) (uint64, bool, error) {
		t.Fatal("lookup called for explicit selector")
		return 0, false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2000), root)
}

func TestResolveDefaultLooksUpEveryTime(t *testing.T) {
	roots := []uint64{0x1000, 0x5000}
	calls := 0
	lookup := func(pid protocol.ProcessID) (uint64, bool, error) {
		root := roots[calls]
		calls++
		return root, true, nil
	}

	first, err := Resolve("op", 4, Default(), lookup)
	require.NoError(t, err)
	second, err := Resolve("op", 4, Default(), lookup)
	require.NoError(t, err)

	assert.Equal(t, uint64(0x1000), first)
	assert.Equal(t, uint64(0x5000), second)
	assert.Equal(t, 2, calls)
}

func TestResolveDefaultErrors(t *testing.T) {
	_, err := Resolve("op", 4, Default(), func(protocol.ProcessID) (uint64, bool, error) {
		return 0, false, nil
	})
	assert.Equal(t, status.InvalidProcess, status.Of(err))

	boom := errors.New("boom")
	_, err = Resolve("op", 4, Default(), func(protocol.ProcessID) (uint64, bool, error) {
		return 0, false, boom
	})
	assert.ErrorIs(t, err, boom)
}
