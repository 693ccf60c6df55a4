package p2p

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/probeum/mintpool/premint"
)

// EventKind discriminates the events the swarm emits to the pool
// controller, per SPEC_FULL.md §4.4.4 and §4.2.
type EventKind int

const (
	EventPremintReceived EventKind = iota
	EventClaimReceived
	EventPeerConnected
	EventPeerDisconnected
)

// Event is one swarm-to-controller notification. Only the field matching
// Kind is populated.
type Event struct {
	Kind    EventKind
	Premint premint.Premint
	Claim   premint.PeerInclusionClaim
	Peer    peer.ID
}
