package identity

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, SeedLength)

	a, err := FromSeed(seed)
	require.NoError(t, err)
	b, err := FromSeed(seed)
	require.NoError(t, err)

	require.Equal(t, a.PeerID, b.PeerID)
}

func TestFromSeedDifferentSeedsDifferentIdentity(t *testing.T) {
	a, err := FromSeed(bytes.Repeat([]byte{0x01}, SeedLength))
	require.NoError(t, err)
	b, err := FromSeed(bytes.Repeat([]byte{0x02}, SeedLength))
	require.NoError(t, err)

	require.NotEqual(t, a.PeerID, b.PeerID)
}

func TestFromSeedRejectsWrongLength(t *testing.T) {
	_, err := FromSeed([]byte{0x01, 0x02})
	require.Error(t, err)
}
