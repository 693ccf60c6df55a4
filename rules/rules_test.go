package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/crypto"
	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/storage"
)

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New("", false, false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func simplePremint(id, uri string, version uint64) *premint.Simple {
	return &premint.Simple{
		ChainID: 1,
		Sender:  common.HexToAddress("0x66f9664f97F2b50F62D13eA064982f936dE76657"),
		TokenID: 1,
		Media:   uri,
		UID:     id,
		Version: version,
	}
}

// Scenario 2 from spec.md §8: existing-uri rule.
func TestExistingTokenURIRule(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Store(simplePremint("A", "ipfs://X", 1)))

	engine := NewEngine(false, nil)
	engine.AddDefaultRules()

	// A different logical premint reusing the same uri is rejected.
	results, err := engine.Evaluate(context.Background(), simplePremint("B", "ipfs://X", 1), s)
	require.NoError(t, err)
	require.True(t, results.IsReject())
	require.Contains(t, results.RejectReasons()[0], "Token URI already exists")

	// A new revision of the same logical premint is accepted.
	results, err = engine.Evaluate(context.Background(), simplePremint("A", "ipfs://X", 2), s)
	require.NoError(t, err)
	require.True(t, results.IsAccept())
}

func TestVersionIsHigherRule(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Store(simplePremint("A", "ipfs://X", 2)))

	engine := NewEngine(false, nil)
	engine.AddDefaultRules()

	results, err := engine.Evaluate(context.Background(), simplePremint("A", "ipfs://X", 1), s)
	require.NoError(t, err)
	require.True(t, results.IsReject())
}

func TestTokenURILengthRule(t *testing.T) {
	s := newTestStorage(t)
	engine := NewEngine(false, nil)
	engine.AddDefaultRules()

	results, err := engine.Evaluate(context.Background(), simplePremint("A", "", 1), s)
	require.NoError(t, err)
	require.True(t, results.IsReject())
}

// Scenario 5 from spec.md §8: signature rejection.
func TestIsValidSignatureAcceptsGenuineAndRejectsTampered(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	admin := crypto.PubkeyToAddress(key.PublicKey)

	z := &premint.ZoraPremintV2{
		Collection: premint.ContractCreationConfig{ContractAdmin: admin},
		Premint: premint.PremintConfigV2{
			TokenConfig: premint.TokenCreationConfig{TokenURI: "ipfs://x"},
			UID:         1,
			Version:     1,
		},
		CollectionAddress: common.HexToAddress("0xA"),
		ChainID:           7777777,
	}

	hash := z.Eip712SigningHash()
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)

	z.Signature = "0x" + hexEncode(sig)
	eval, err := isValidSignature(z, &RuleContext{})
	require.NoError(t, err)
	require.Equal(t, Accept, eval.Verdict)

	tampered := append([]byte(nil), sig...)
	tampered[32] ^= 0xFF // flip a byte in S, leaving R (and its curve validity) untouched
	z.Signature = "0x" + hexEncode(tampered)
	eval, err = isValidSignature(z, &RuleContext{})
	require.NoError(t, err)
	require.Equal(t, Reject, eval.Verdict)
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}

func TestIsChainSupported(t *testing.T) {
	z := &premint.ZoraPremintV2{ChainID: 7777777}
	eval, err := isChainSupported(z, &RuleContext{})
	require.NoError(t, err)
	require.Equal(t, Accept, eval.Verdict)

	z.ChainID = 999
	eval, err = isChainSupported(z, &RuleContext{})
	require.NoError(t, err)
	require.Equal(t, Reject, eval.Verdict)
}

func TestRPCRulesIgnoreWithoutClient(t *testing.T) {
	z := &premint.ZoraPremintV2{ChainID: 7777777}
	ctx := &RuleContext{Ctx: context.Background()}

	for _, check := range []func(*premint.ZoraPremintV2, *RuleContext) (Evaluation, error){
		isAuthorizedToCreatePremint, notMinted, premintVersionSupported,
	} {
		eval, err := check(z, ctx)
		require.NoError(t, err)
		require.Equal(t, Ignore, eval.Verdict)
	}
}
