package premint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/crypto"
)

func TestEip712SignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	admin := crypto.PubkeyToAddress(key.PublicKey)

	z := &ZoraPremintV2{
		Collection: ContractCreationConfig{
			ContractAdmin: admin,
			ContractURI:   "ipfs://uri",
			ContractName:  "name",
		},
		Premint: PremintConfigV2{
			TokenConfig: TokenCreationConfig{
				TokenURI:            "ipfs://tokenIpfsId0",
				MaxSupply:           big.NewInt(1_000_000),
				MaxTokensPerAddress: 10,
				RoyaltyBPS:          500,
				PayoutRecipient:     admin,
				FixedPriceMinter:    common.HexToAddress("0x7e5A9B6F4bB9efC27F83E18F29e4326480668f87"),
				CreateReferral:      common.HexToAddress("0x63779E68424A0746cF04B2bc51f868185a7660dF"),
			},
			UID:     1,
			Version: 1,
		},
		CollectionAddress: common.HexToAddress("0x7777773606e7e46C8Ba8B98C08f5cD218e31d340"),
		ChainID:           7777777,
	}

	hash := z.Eip712SigningHash()
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	require.NoError(t, err)
	recovered := crypto.PubkeyToAddress(*pub)
	require.Equal(t, admin, recovered)
}

func TestEip712SigningHashChangesWithDomain(t *testing.T) {
	base := ZoraPremintV2{
		Premint:           PremintConfigV2{TokenConfig: TokenCreationConfig{MaxSupply: big.NewInt(1)}},
		CollectionAddress: common.HexToAddress("0xA"),
		ChainID:           1,
	}
	other := base
	other.ChainID = 2

	require.NotEqual(t, base.Eip712SigningHash(), other.Eip712SigningHash())
}
