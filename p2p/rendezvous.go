package p2p

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// cidType is the DHT provider-record key type; aliased so callers don't
// need to import go-cid directly just to pass RendezvousKey around.
type cidType = cid.Cid

// rendezvousCID derives the fixed DHT provider-record key nodes advertise
// themselves under, per SPEC_FULL.md §4.4 ("a fixed key `mintpool::gossip`").
// Kademlia provider records are keyed by CID, not an arbitrary byte string,
// so the key is wrapped as a raw-codec CIDv1 over its SHA-256 multihash.
func rendezvousCID() (cidType, error) {
	sum, err := mh.Sum([]byte(RendezvousKey), mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
