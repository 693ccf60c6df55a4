package premint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/common"
)

func TestSimpleRoundTripCodec(t *testing.T) {
	s := &Simple{
		ChainID:     1,
		Sender:      common.HexToAddress("0x66f9664f97F2b50F62D13eA064982f936dE76657"),
		TokenID:     1,
		Media:       "https://ipfs.io/ipfs/Qm",
		Name:        "test",
		Description: "desc",
		UID:         "1",
		Version:     1,
	}

	data, err := ToJSON(s)
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)

	got, ok := decoded.(*Simple)
	require.True(t, ok)
	assert.Equal(t, s, got)
}

func TestZoraPremintV2RoundTripCodec(t *testing.T) {
	z := &ZoraPremintV2{
		Collection: ContractCreationConfig{
			ContractAdmin: common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
			ContractURI:   "ipfs://uri",
			ContractName:  "name",
		},
		Premint: PremintConfigV2{
			TokenConfig: TokenCreationConfig{
				TokenURI:            "ipfs://tokenIpfsId0",
				MaxSupply:           big.NewInt(100000000000000000),
				MaxTokensPerAddress: 10,
				PricePerToken:       0,
				MintStart:           0,
				MintDuration:        100,
				RoyaltyBPS:          8758,
				PayoutRecipient:     common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
				FixedPriceMinter:    common.HexToAddress("0x7e5A9B6F4bB9efC27F83E18F29e4326480668f87"),
				CreateReferral:      common.HexToAddress("0x63779E68424A0746cF04B2bc51f868185a7660dF"),
			},
			UID:     105,
			Version: 1,
			Deleted: false,
		},
		CollectionAddress: common.HexToAddress("0x7777773606e7e46C8Ba8B98C08f5cD218e31d340"),
		ChainID:           7777777,
		Signature:         "0xdeadbeef",
	}

	data, err := ToJSON(z)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"zora_premint_v2"`)

	decoded, err := FromJSON(data)
	require.NoError(t, err)

	got, ok := decoded.(*ZoraPremintV2)
	require.True(t, ok)
	assert.Equal(t, z.Premint.UID, got.Premint.UID)
	assert.Equal(t, z.ChainID, got.ChainID)
	assert.Equal(t, z.Collection.ContractAdmin, got.Collection.ContractAdmin)
}

func TestEnvelopeUnknownType(t *testing.T) {
	_, err := FromJSON([]byte(`{"type":"not_a_kind"}`))
	assert.Error(t, err)
}

func TestMetadataID(t *testing.T) {
	z := &ZoraPremintV2{
		ChainID:           7777777,
		CollectionAddress: common.HexToAddress("0xA"),
		Premint:           PremintConfigV2{UID: 1},
	}
	meta := z.Metadata()
	assert.Equal(t, "7777777:0x000000000000000000000000000000000000000a:1", meta.ID)
}
