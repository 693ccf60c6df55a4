package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCountersStartAtZero(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, int64(0), r.PremintsAccepted.Value())
	require.Equal(t, int64(0), r.BroadcastsSent.Value())
}

func TestPremintRejectedByRule(t *testing.T) {
	r := NewRegistry()
	r.PremintRejected("TokenUriLength")
	r.PremintRejected("TokenUriLength")
	r.PremintRejected("SignerMatches")

	counts := r.PremintsRejectedByRule()
	require.Equal(t, int64(2), counts["TokenUriLength"])
	require.Equal(t, int64(1), counts["SignerMatches"])
}

func TestClaimRetiredByMode(t *testing.T) {
	r := NewRegistry()
	r.ClaimRetired("check")
	r.ClaimRetired("check")
	r.ClaimRetired("trust")

	counts := r.ClaimsRetiredByMode()
	require.Equal(t, int64(2), counts["check"])
	require.Equal(t, int64(1), counts["trust"])
}
