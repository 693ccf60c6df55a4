// Package premint defines the polymorphic premint model: typed variants
// (simple, zora_premint_v2) sharing a common metadata projection, a
// canonical JSON envelope, and the per-variant hooks the rules engine and
// chain watcher need (eip712 domain, claim mapping/verification).
//
// The tagged-variant shape mirrors the teacher's transaction variants
// (core/types/legacy_tx.go, access_list_tx.go, dynamic_fee_tx.go all
// implementing TxData, projected through transaction_message.go's Message
// type) generalized from "kinds of signed transaction" to "kinds of signed
// premint".
package premint

import (
	"fmt"
	"math/big"

	"github.com/probeum/mintpool/common"
)

// idFormat builds the stable content-derived premint id shared by every
// variant: "{chain_id}:{collection_address}:{uid}", per SPEC_FULL.md §3/§6.
func idFormat(chainID uint64, collection common.Address, uid string) string {
	return fmt.Sprintf("%d:%s:%s", chainID, collection.Hex(), uid)
}

// Kind names a premint variant; used as the JSON "type" tag, the table
// lookup key, and the gossip topic suffix.
type Kind string

const (
	KindSimple      Kind = "simple"
	KindZoraPremint Kind = "zora_premint_v2"
)

// Metadata is the common projection every premint variant exposes,
// regardless of its typed body. It is what the rules engine and storage
// layer operate against.
type Metadata struct {
	ID                 string
	Kind               Kind
	Version            uint64
	Signer             common.Address
	ChainID            uint64
	CollectionAddress  common.Address
	TokenID             *big.Int
	URI                string
}

// Premint is implemented by every concrete premint variant.
type Premint interface {
	// Metadata projects the variant's fields into the common shape used
	// by storage and the rules engine.
	Metadata() Metadata
}

// ClaimMapper is implemented by variants whose on-chain mint event can be
// decoded from a chain log into an InclusionClaim.
type ClaimMapper interface {
	// MapClaim builds the InclusionClaim a chain-watcher log implies,
	// reconstructing premint_id the same way Metadata().ID does.
	MapClaim(chainID uint64, log ChainLog) (InclusionClaim, error)
}

// ClaimVerifier is implemented by variants that can independently confirm
// a peer-submitted InclusionClaim against a fetched receipt/log/tx triple.
type ClaimVerifier interface {
	VerifyClaim(chainID uint64, tx ChainTx, log ChainLog, claim InclusionClaim) bool
}

// ChainLog is the minimal projection of an RPC log entry premint variants
// need to decode their own mint event, kept free of any go-ethereum/RPC
// client type so this package has no transport dependency.
type ChainLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	TxHash      common.Hash
	LogIndex    uint64
	BlockNumber uint64
}

// ChainTx is the minimal projection of a fetched transaction needed by
// VerifyClaim.
type ChainTx struct {
	Hash common.Hash
}

// InclusionClaim is evidence that a premint's mint event has been observed
// on-chain: { premint_id, chain_id, tx_hash, log_index, kind }, per
// SPEC_FULL.md §3.
type InclusionClaim struct {
	PremintID string `json:"premintId"`
	ChainID   uint64 `json:"chainId"`
	TxHash    common.Hash `json:"txHash"`
	LogIndex  uint64 `json:"logIndex"`
	Kind      Kind   `json:"kind"`
}

// PeerInclusionClaim wraps an InclusionClaim with the peer id it was
// received from, for the controller's mode-gated retirement logic.
type PeerInclusionClaim struct {
	Claim      InclusionClaim
	FromPeerID string
}
