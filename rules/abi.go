package rules

import (
	"fmt"
	"math/big"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/crypto"
)

// The three view calls below are hand-encoded rather than routed through a
// full contract-binding/ABI library: the factory's interface is a fixed,
// tiny surface (three read-only calls), and this tree deliberately avoids
// pulling in a heavy ABI codegen dependency for it — the same call-by-raw-
// selector approach the teacher's probe/gprobe RPC layer uses internally
// for fixed, well-known method signatures.

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

var (
	isAuthorizedToCreatePremintSelector       = selector("isAuthorizedToCreatePremint(address,address,address)")
	premintStatusSelector                     = selector("premintStatus(address,uint32)")
	supportedPremintSignatureVersionsSelector = selector("supportedPremintSignatureVersions(address)")
)

func encodeIsAuthorizedToCreatePremintCall(contractAddress, signer, premintContractConfigContractAdmin common.Address) []byte {
	data := make([]byte, 0, 4+32*3)
	data = append(data, isAuthorizedToCreatePremintSelector...)
	data = append(data, padAddress(contractAddress)...)
	data = append(data, padAddress(signer)...)
	data = append(data, padAddress(premintContractConfigContractAdmin)...)
	return data
}

func encodePremintStatusCall(contractAddress common.Address, uid uint32) []byte {
	data := make([]byte, 0, 4+32*2)
	data = append(data, premintStatusSelector...)
	data = append(data, padAddress(contractAddress)...)
	data = append(data, padUint64(uint64(uid))...)
	return data
}

func encodeSupportedPremintSignatureVersionsCall(contractAddress common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, supportedPremintSignatureVersionsSelector...)
	data = append(data, padAddress(contractAddress)...)
	return data
}

func padAddress(a common.Address) []byte {
	b := make([]byte, 32)
	copy(b[12:], a.Bytes())
	return b
}

func padUint64(v uint64) []byte {
	b := make([]byte, 32)
	big.NewInt(0).SetUint64(v).FillBytes(b)
	return b
}

// decodeStringArray decodes a single dynamic `string[]` ABI return value:
// [offset][length][elem0 offset]...[elem string length+data]...
func decodeStringArray(out []byte) ([]string, error) {
	if len(out) < 32 {
		return nil, fmt.Errorf("return data too short for dynamic array")
	}
	arrOffset := new(big.Int).SetBytes(out[0:32]).Uint64()
	if uint64(len(out)) < arrOffset+32 {
		return nil, fmt.Errorf("return data truncated at array length")
	}
	count := new(big.Int).SetBytes(out[arrOffset : arrOffset+32]).Uint64()

	elems := make([]string, 0, count)
	base := arrOffset + 32
	for i := uint64(0); i < count; i++ {
		elemOffsetPos := base + i*32
		if uint64(len(out)) < elemOffsetPos+32 {
			return nil, fmt.Errorf("return data truncated at element offset %d", i)
		}
		elemOffset := base + new(big.Int).SetBytes(out[elemOffsetPos:elemOffsetPos+32]).Uint64()
		if uint64(len(out)) < elemOffset+32 {
			return nil, fmt.Errorf("return data truncated at string length %d", i)
		}
		strLen := new(big.Int).SetBytes(out[elemOffset : elemOffset+32]).Uint64()
		start := elemOffset + 32
		if uint64(len(out)) < start+strLen {
			return nil, fmt.Errorf("return data truncated at string body %d", i)
		}
		elems = append(elems, string(out[start:start+strLen]))
	}
	return elems, nil
}
