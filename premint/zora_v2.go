package premint

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/crypto"
)

// PremintFactoryAddr is the Zora premint executor contract address every
// ZoraPremintV2 is decoded/verified against, carried over from the
// original's PREMINT_FACTORY_ADDR constant.
var PremintFactoryAddr = common.HexToAddress("0x7777773606e7e46C8Ba8B98C08f5cD218e31d340")

// mintedV2EventSignature is the "mint executed" event the chain watcher
// filters for and the claim mapper/verifier decode against.
const mintedV2EventSignature = "PremintedV2(address,uint256,bool,uint32,address,address)"

// MintedV2Topic0 is the PremintedV2 event's topic0, exported so the chain
// watcher can filter logs for it.
var MintedV2Topic0 = crypto.Keccak256Hash([]byte(mintedV2EventSignature))

// ContractCreationConfig mirrors IZoraPremintV2.ContractCreationConfig: the
// collection-level fields signed over as part of the EIP-712 struct.
type ContractCreationConfig struct {
	ContractAdmin common.Address `json:"contractAdmin"`
	ContractURI   string         `json:"contractURI"`
	ContractName  string         `json:"contractName"`
}

// TokenCreationConfig mirrors IZoraPremintV2.TokenCreationConfig.
type TokenCreationConfig struct {
	TokenURI            string   `json:"tokenURI"`
	MaxSupply           *big.Int `json:"maxSupply"`
	MaxTokensPerAddress uint64   `json:"maxTokensPerAddress"`
	PricePerToken       uint64   `json:"pricePerToken"`
	MintStart           uint64   `json:"mintStart"`
	MintDuration        uint64   `json:"mintDuration"`
	RoyaltyBPS          uint32   `json:"royaltyBPS"`
	PayoutRecipient     common.Address `json:"payoutRecipient"`
	FixedPriceMinter    common.Address `json:"fixedPriceMinter"`
	CreateReferral      common.Address `json:"createReferral"`
}

// PremintConfigV2 mirrors IZoraPremintV2.PremintConfigV2, the struct
// actually signed over under the EIP-712 domain.
type PremintConfigV2 struct {
	TokenConfig TokenCreationConfig `json:"tokenConfig"`
	UID         uint32              `json:"uid"`
	Version     uint32              `json:"version"`
	Deleted     bool                `json:"deleted"`
}

// ZoraPremintV2 is the "zora_premint_v2" kind: a Zora Creator 1155 premint
// signed by the collection's contract admin, verified either offline
// (signature recovery) or via RPC view calls against the factory contract.
type ZoraPremintV2 struct {
	Collection        ContractCreationConfig `json:"collection"`
	Premint           PremintConfigV2        `json:"premint"`
	CollectionAddress common.Address         `json:"collectionAddress"`
	ChainID           uint64                 `json:"chainId"`
	Signature         string                 `json:"signature"`
}

// Eip712Domain builds the signing domain: name="Preminter", version="2",
// chain_id, verifying_contract=collection_address. No salt.
func (z *ZoraPremintV2) Eip712Domain() Eip712Domain {
	return Eip712Domain{
		Name:              "Preminter",
		Version:           "2",
		ChainID:           z.ChainID,
		VerifyingContract: z.CollectionAddress,
	}
}

var (
	tokenCreationConfigTypeHash = crypto.Keccak256([]byte(
		"TokenCreationConfig(string tokenURI,uint256 maxSupply,uint64 maxTokensPerAddress,uint96 pricePerToken,uint64 mintStart,uint64 mintDuration,uint32 royaltyBPS,address payoutRecipient,address fixedPriceMinter,address createReferral)",
	))
	premintConfigV2TypeHash = crypto.Keccak256([]byte(
		"CreatorAttribution(TokenCreationConfig tokenConfig,uint32 uid,uint32 version,bool deleted)" +
			"TokenCreationConfig(string tokenURI,uint256 maxSupply,uint64 maxTokensPerAddress,uint96 pricePerToken,uint64 mintStart,uint64 mintDuration,uint32 royaltyBPS,address payoutRecipient,address fixedPriceMinter,address createReferral)",
	))
)

func (t TokenCreationConfig) structHash() common.Hash {
	return crypto.Keccak256Hash(
		tokenCreationConfigTypeHash,
		crypto.Keccak256([]byte(t.TokenURI)),
		leftPadBigInt(t.MaxSupply),
		leftPadUint64(t.MaxTokensPerAddress),
		leftPadUint64(t.PricePerToken),
		leftPadUint64(t.MintStart),
		leftPadUint64(t.MintDuration),
		leftPadUint32(t.RoyaltyBPS),
		leftPadAddress(t.PayoutRecipient),
		leftPadAddress(t.FixedPriceMinter),
		leftPadAddress(t.CreateReferral),
	)
}

// Eip712SigningHash computes the "CreatorAttribution" struct hash and
// combines it with the domain separator, yielding the 32-byte digest the
// collection's contract admin is expected to have signed.
func (z *ZoraPremintV2) Eip712SigningHash() common.Hash {
	tokenHash := z.Premint.TokenConfig.structHash()
	structHash := crypto.Keccak256Hash(
		premintConfigV2TypeHash,
		tokenHash.Bytes(),
		leftPadUint32(z.Premint.UID),
		leftPadUint32(z.Premint.Version),
		leftPadBool(z.Premint.Deleted),
	)
	return SigningHash(z.Eip712Domain(), structHash)
}

// Metadata implements Premint.
func (z *ZoraPremintV2) Metadata() Metadata {
	id := idFormat(z.ChainID, z.CollectionAddress, strconv.FormatUint(uint64(z.Premint.UID), 10))
	return Metadata{
		ID:                id,
		Kind:              KindZoraPremint,
		Version:           uint64(z.Premint.Version),
		Signer:            z.Collection.ContractAdmin,
		ChainID:           z.ChainID,
		CollectionAddress: z.CollectionAddress,
		TokenID:           new(big.Int).SetUint64(uint64(z.Premint.UID)),
		URI:               z.Premint.TokenConfig.TokenURI,
	}
}

// MapClaim implements ClaimMapper: decodes a PremintedV2 log into an
// InclusionClaim, reconstructing premint_id the same way Metadata().ID
// does.
func (z *ZoraPremintV2) MapClaim(chainID uint64, log ChainLog) (InclusionClaim, error) {
	if len(log.Topics) == 0 || log.Topics[0] != MintedV2Topic0 {
		return InclusionClaim{}, fmt.Errorf("premint: log does not match PremintedV2 signature")
	}
	if log.Address != PremintFactoryAddr {
		return InclusionClaim{}, fmt.Errorf("premint: log not emitted by premint factory")
	}
	uid, err := decodePremintedV2UID(log)
	if err != nil {
		return InclusionClaim{}, err
	}
	contractAddress := common.BytesToAddress(log.Topics[1].Bytes())
	return InclusionClaim{
		PremintID: idFormat(chainID, contractAddress, strconv.FormatUint(uid, 10)),
		ChainID:   chainID,
		TxHash:    log.TxHash,
		LogIndex:  log.LogIndex,
		Kind:      KindZoraPremint,
	}, nil
}

// VerifyClaim implements ClaimVerifier: the minimum validation set named by
// SPEC_FULL.md's Open Question decision — receipt/log/tx all agree with
// the claim, the log was emitted by the factory contract, and the log's
// first topic is the PremintedV2 event signature.
func (z *ZoraPremintV2) VerifyClaim(chainID uint64, tx ChainTx, log ChainLog, claim InclusionClaim) bool {
	if len(log.Topics) == 0 || log.Topics[0] != MintedV2Topic0 {
		return false
	}
	uid, err := decodePremintedV2UID(log)
	if err != nil {
		return false
	}
	conditions := []bool{
		log.Address == PremintFactoryAddr,
		log.TxHash == tx.Hash,
		claim.TxHash == tx.Hash,
		claim.LogIndex == log.LogIndex,
		claim.PremintID == idFormat(chainID, common.BytesToAddress(log.Topics[1].Bytes()), strconv.FormatUint(uid, 10)),
		claim.Kind == KindZoraPremint,
		claim.ChainID == chainID,
	}
	for _, ok := range conditions {
		if !ok {
			return false
		}
	}
	return true
}

// decodePremintedV2UID extracts the indexed `uid` field from the log's
// topics. PremintedV2(address contractAddress indexed, uint256 tokenId
// indexed, bool isMintFee, uint32 uid indexed, address sender, address
// contractAdmin) in the deployed contract keeps uid as a topic; this
// watcher configuration treats it as the 4th topic (Topics[3]), after
// topic0 and the contractAddress (Topics[1]) and tokenId (Topics[2])
// topics.
func decodePremintedV2UID(log ChainLog) (uint64, error) {
	if len(log.Topics) < 4 {
		return 0, fmt.Errorf("premint: PremintedV2 log missing uid topic")
	}
	uidHash := log.Topics[3]
	return new(big.Int).SetBytes(uidHash.Bytes()).Uint64(), nil
}
