package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/premint"
)

func TestDigestStableAcrossInsertionOrder(t *testing.T) {
	s1 := newTestStorage(t, false)
	s2 := newTestStorage(t, false)

	a := zoraPremint(1, 1, "ipfs://a")
	b := zoraPremint(2, 1, "ipfs://b")

	require.NoError(t, s1.Store(a))
	require.NoError(t, s1.Store(b))

	require.NoError(t, s2.Store(b))
	require.NoError(t, s2.Store(a))

	d1, err := s1.Digest(QueryOptions{})
	require.NoError(t, err)
	d2, err := s2.Digest(QueryOptions{})
	require.NoError(t, err)

	require.Equal(t, d1.Rehash(), d2.Rehash())
	require.Empty(t, d1.Diff(d2))
}

func TestDigestDivergesOnContentChange(t *testing.T) {
	s1 := newTestStorage(t, false)
	s2 := newTestStorage(t, false)

	require.NoError(t, s1.Store(zoraPremint(1, 1, "ipfs://a")))
	require.NoError(t, s2.Store(zoraPremint(1, 1, "ipfs://different")))

	d1, err := s1.Digest(QueryOptions{})
	require.NoError(t, err)
	d2, err := s2.Digest(QueryOptions{})
	require.NoError(t, err)

	require.NotEqual(t, d1.Rehash(), d2.Rehash())
	diff := d1.Diff(d2)
	require.NotEmpty(t, diff)
}

func TestBuildDigestMatchesStorageDigestForSameContent(t *testing.T) {
	s := newTestStorage(t, false)
	p := zoraPremint(3, 1, "ipfs://c")
	require.NoError(t, s.Store(p))

	storageDigest, err := s.Digest(QueryOptions{})
	require.NoError(t, err)

	built := BuildDigest([]premint.Premint{p})
	require.Equal(t, storageDigest.Rehash(), built.Rehash())
}
