package premint

import (
	"math/big"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/crypto"
)

// Eip712Domain is the EIP-712 domain separator input. Zora V2 premints use
// name="Preminter", version="2", a per-premint chain_id, and
// verifying_contract=collection_address (no salt), per SPEC_FULL.md §6.
type Eip712Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

var (
	domainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
)

// SeparatorHash computes the domain separator, the first half of the final
// EIP-712 signing hash.
func (d Eip712Domain) SeparatorHash() common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash,
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		leftPadUint64(d.ChainID),
		leftPadAddress(d.VerifyingContract),
	)
}

// SigningHash combines a domain separator with an EIP-712 struct hash the
// way `\x19\x01 || domainSeparator || structHash` does, ready to be signed
// or recovered against directly (no further hashing needed).
func SigningHash(domain Eip712Domain, structHash common.Hash) common.Hash {
	prefix := []byte{0x19, 0x01}
	return crypto.Keccak256Hash(prefix, domain.SeparatorHash().Bytes(), structHash.Bytes())
}

func leftPadUint64(v uint64) []byte {
	b := make([]byte, 32)
	big.NewInt(0).SetUint64(v).FillBytes(b)
	return b
}

func leftPadAddress(a common.Address) []byte {
	b := make([]byte, 32)
	copy(b[12:], a.Bytes())
	return b
}

func leftPadBigInt(v *big.Int) []byte {
	b := make([]byte, 32)
	if v == nil {
		return b
	}
	v.FillBytes(b)
	return b
}

func leftPadUint32(v uint32) []byte { return leftPadUint64(uint64(v)) }
func leftPadUint16(v uint16) []byte { return leftPadUint64(uint64(v)) }

func leftPadBool(v bool) []byte {
	b := make([]byte, 32)
	if v {
		b[31] = 1
	}
	return b
}
