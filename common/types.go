// Package common holds small value types shared across mintpool's packages:
// fixed-size hashes and addresses, and a handful of validation helpers.
// Adapted from the teacher's common package, which imported these types
// from upstream go-ethereum/common rather than defining them locally; since
// this tree no longer depends on go-ethereum, they are reimplemented here in
// the same shape (20-byte checksummed address, 32-byte hash, hex codec).
package common

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
)

const (
	HashLength    = 32
	AddressLength = 20
)

// Hash represents a 32 byte keccak256 hash.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func HexToHash(s string) Hash { return BytesToHash(FromHex(s)) }

func (h Hash) Bytes() []byte   { return h[:] }
func (h Hash) Hex() string     { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) String() string  { return h.Hex() }
func (h Hash) IsZero() bool    { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }
func (h *Hash) UnmarshalText(text []byte) error {
	*h = BytesToHash(FromHex(string(text)))
	return nil
}

// Address represents a 20 byte address, the same layout Ethereum uses.
type Address [AddressLength]byte

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func HexToAddress(s string) Address { return BytesToAddress(FromHex(s)) }

func (a Address) Bytes() []byte  { return a[:] }
func (a Address) Hex() string    { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) String() string { return a.Hex() }
func (a Address) IsZero() bool   { return a == Address{} }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }
func (a *Address) UnmarshalText(text []byte) error {
	*a = BytesToAddress(FromHex(string(text)))
	return nil
}

// FromHex decodes a 0x-prefixed (or bare) hex string, returning nil on error
// rather than panicking — callers that need strict validation should use
// hex.DecodeString directly.
func FromHex(s string) []byte {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// ValidateNil reports an error naming msg if data is a nil interface or a
// nil pointer/slice/map held in a non-nil interface.
func ValidateNil(data interface{}, msg string) error {
	if data == nil {
		return fmt.Errorf("%s must be specified", msg)
	}
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		if v.IsNil() {
			return fmt.Errorf("%s must be specified", msg)
		}
	}
	return nil
}

// ByteSliceEqual reports whether a and b hold identical bytes, including
// distinguishing nil from an empty non-nil slice.
func ByteSliceEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
