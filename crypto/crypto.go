// Copyright 2014 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package crypto provides the Keccak256 hashing and secp256k1 signature
// primitives mintpool needs to compute premint ids and to recover and check
// EIP-712 signatures. Trimmed from the teacher's crypto package down to the
// operations premints actually need (no account-type-tagged address
// derivation, no on-disk key file helpers beyond the minimum the node's own
// identity loading uses); the curve operations that used to come from
// go-ethereum's internal secp256k1 cgo binding now come from the pure-Go
// github.com/btcsuite/btcd/btcec implementation, already required by the
// teacher's go.mod for wallet tooling elsewhere in the original tree.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
	"golang.org/x/crypto/sha3"

	"github.com/probeum/mintpool/common"
)

// SignatureLength is the byte length of a recoverable secp256k1 signature:
// 32 bytes R + 32 bytes S + 1 byte recovery id.
const SignatureLength = 64 + 1

// DigestLength is the length in bytes of a Keccak256 digest.
const DigestLength = 32

var (
	secp256k1N, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1halfN = new(big.Int).Div(secp256k1N, big.NewInt(2))

	errInvalidPubkey   = errors.New("invalid secp256k1 public key")
	errInvalidSignature = errors.New("invalid signature")
)

// KeccakState wraps sha3.state, additionally supporting Read to extract a
// variable amount of data from the hash state.
type KeccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// Keccak256 calculates and returns the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	b := make([]byte, DigestLength)
	d := NewKeccakState()
	for _, in := range data {
		d.Write(in)
	}
	d.Read(b)
	return b
}

// Keccak256Hash calculates the Keccak256 hash, returned as a common.Hash.
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	d := NewKeccakState()
	for _, in := range data {
		d.Write(in)
	}
	d.Read(h[:])
	return h
}

// S256 returns the secp256k1 curve used by both Ethereum-style addressing
// and EIP-712 signatures.
func S256() elliptic.Curve {
	return btcec.S256()
}

// ToECDSA creates a private key with the given D value.
func ToECDSA(d []byte) (*ecdsa.PrivateKey, error) {
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = S256()
	if 8*len(d) != priv.Params().BitSize {
		return nil, fmt.Errorf("invalid length, need %d bits", priv.Params().BitSize)
	}
	priv.D = new(big.Int).SetBytes(d)
	if priv.D.Cmp(secp256k1N) >= 0 {
		return nil, errors.New("invalid private key, >=N")
	}
	if priv.D.Sign() <= 0 {
		return nil, errors.New("invalid private key, zero or negative")
	}
	priv.PublicKey.X, priv.PublicKey.Y = priv.PublicKey.Curve.ScalarBaseMult(d)
	if priv.PublicKey.X == nil {
		return nil, errors.New("invalid private key")
	}
	return priv, nil
}

// HexToECDSA parses a secp256k1 private key from a hex string.
func HexToECDSA(hexkey string) (*ecdsa.PrivateKey, error) {
	b, err := hex.DecodeString(hexkey)
	if err != nil {
		return nil, errors.New("invalid hex data for private key")
	}
	return ToECDSA(b)
}

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(S256(), rand.Reader)
}

// FromECDSAPub serializes a public key to its uncompressed point encoding.
func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(S256(), pub.X, pub.Y)
}

// UnmarshalPubkey converts bytes to a secp256k1 public key.
func UnmarshalPubkey(pub []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(S256(), pub)
	if x == nil {
		return nil, errInvalidPubkey
	}
	return &ecdsa.PublicKey{Curve: S256(), X: x, Y: y}, nil
}

// PubkeyToAddress derives the 20 byte address that signs with priv.
func PubkeyToAddress(p ecdsa.PublicKey) common.Address {
	pubBytes := FromECDSAPub(&p)
	return common.BytesToAddress(Keccak256(pubBytes[1:])[12:])
}

// Sign produces a recoverable 65-byte secp256k1 signature over a 32-byte
// digest (as required by EIP-712: callers hash the typed-data struct first).
func Sign(digestHash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(digestHash) != DigestLength {
		return nil, fmt.Errorf("hash is required to be exactly %d bytes (%d)", DigestLength, len(digestHash))
	}
	var priv btcec.PrivateKey
	priv.Curve = S256()
	priv.D = prv.D
	priv.PublicKey.X = prv.X
	priv.PublicKey.Y = prv.Y
	sig, err := btcec.SignCompact(btcec.S256(), &priv, digestHash, false)
	if err != nil {
		return nil, err
	}
	// btcec's compact format is [recovery(+27), R, S]; EIP-712 tooling
	// expects [R, S, recovery].
	out := make([]byte, SignatureLength)
	copy(out, sig[1:])
	out[64] = sig[0] - 27
	return out, nil
}

// Ecrecover returns the uncompressed public key that created the given
// signature over digestHash.
func Ecrecover(digestHash, sig []byte) ([]byte, error) {
	pub, err := SigToPub(digestHash, sig)
	if err != nil {
		return nil, err
	}
	return FromECDSAPub(pub), nil
}

// SigToPub returns the public key that created the given signature.
func SigToPub(digestHash, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, errInvalidSignature
	}
	btcsig := make([]byte, SignatureLength)
	btcsig[0] = sig[64] + 27
	copy(btcsig[1:], sig[:64])

	pub, _, err := btcec.RecoverCompact(btcec.S256(), btcsig, digestHash)
	if err != nil {
		return nil, err
	}
	return pub.ToECDSA(), nil
}

// ValidateSignatureValues reports whether r, s fall within the curve's valid
// range, rejecting the upper-half malleable range for v in {0,1}.
func ValidateSignatureValues(v byte, r, s *big.Int) bool {
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if s.Cmp(secp256k1halfN) > 0 {
		return false
	}
	return r.Cmp(secp256k1N) < 0 && s.Cmp(secp256k1N) < 0 && (v == 0 || v == 1)
}
