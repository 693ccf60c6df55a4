package storage

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/probeum/mintpool/merkletree"
	"github.com/probeum/mintpool/premint"
)

var tokenIDBucketModulus = big.NewInt(100)

// Digest builds the sync-acceleration trie over every active premint
// matching opts, keyed by the path spec.md §4.6 names:
// [kind, chain_id, addr[0:2], addr[2:4], addr, token_id mod 100]. Kept off
// the hot insert path per SPEC_FULL.md §4.6/§9 — rebuilt lazily, only when
// a sync round wants to compare pools.
func (s *Storage) Digest(opts QueryOptions) (*merkletree.Tree, error) {
	premints, err := s.ListAllWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: building digest: %w", err)
	}
	return BuildDigest(premints), nil
}

// BuildDigest builds the same trie Digest does over an arbitrary slice of
// premints, so a caller holding a remote peer's pulled premints (not a
// *Storage) can build a comparable tree — used by the controller's sync
// round to diff its local pool against what a peer just sent back.
func BuildDigest(premints []premint.Premint) *merkletree.Tree {
	tree := merkletree.New()
	for _, p := range premints {
		meta := p.Metadata()
		addr := meta.CollectionAddress.Hex()
		bucket := "0"
		if meta.TokenID != nil {
			bucket = new(big.Int).Mod(meta.TokenID, tokenIDBucketModulus).String()
		}
		body, err := premint.ToJSON(p)
		if err != nil {
			continue
		}
		tree.Insert(digestPath(meta, addr, bucket), string(body))
	}
	return tree
}

func digestPath(meta premint.Metadata, addr, bucket string) []string {
	prefix1, prefix2 := addrPrefixes(addr)
	return []string{
		string(meta.Kind),
		strconv.FormatUint(meta.ChainID, 10),
		prefix1,
		prefix2,
		addr,
		bucket,
	}
}

func addrPrefixes(addr string) (string, string) {
	h := addr
	if len(h) >= 2 && (h[0] == '0' && (h[1] == 'x' || h[1] == 'X')) {
		h = h[2:]
	}
	p1 := h
	if len(p1) > 2 {
		p1 = p1[:2]
	}
	p2 := h
	if len(p2) > 4 {
		p2 = p2[2:4]
	} else if len(p2) > 2 {
		p2 = p2[2:]
	} else {
		p2 = ""
	}
	return p1, p2
}
