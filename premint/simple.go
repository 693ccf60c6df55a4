package premint

import (
	"math/big"

	"github.com/probeum/mintpool/common"
)

// Simple is the minimal premint kind: no on-chain verification rules, no
// factory contract, used for tests/examples and as the no-RPC-needed
// worked example in scenario 2 of the testable-properties section. It
// mirrors the original `simple_premint::types::SimplePremint` tuple.
type Simple struct {
	ChainID     uint64         `json:"chainId"`
	Sender      common.Address `json:"sender"`
	TokenID     uint64         `json:"tokenId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Media       string         `json:"media"`

	// UID and Version are not present in the original Rust tuple (which
	// has no revision concept); added so Simple can participate in the
	// same upsert-by-version keyspace as every other kind.
	UID     string `json:"uid"`
	Version uint64 `json:"version"`
}

// Metadata implements Premint.
func (s *Simple) Metadata() Metadata {
	id := simpleID(s.ChainID, s.Sender, s.UID)
	return Metadata{
		ID:                id,
		Kind:              KindSimple,
		Version:           s.Version,
		Signer:            s.Sender,
		ChainID:           s.ChainID,
		CollectionAddress: s.Sender,
		TokenID:           new(big.Int).SetUint64(s.TokenID),
		URI:               s.Media,
	}
}

func simpleID(chainID uint64, sender common.Address, uid string) string {
	if uid == "" {
		uid = "0"
	}
	return idFormat(chainID, sender, uid)
}

// VerifyClaim implements ClaimVerifier. Simple has no factory contract to
// decode a log against, so it accepts any claim whose transaction and log
// the generic receipt fetcher was able to resolve — the caller has already
// confirmed the referenced log exists on chain by the time this is called.
func (s *Simple) VerifyClaim(chainID uint64, tx ChainTx, log ChainLog, claim InclusionClaim) bool {
	return chainID == claim.ChainID
}
