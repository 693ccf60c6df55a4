// Package identity derives a node's libp2p Ed25519 keypair and peer id from
// the 32-byte secret in config.Config, mirroring the original's
// `Keypair::ed25519_from_bytes(secret)` — the peer id is deterministic across
// restarts as long as SECRET is unchanged, the same guarantee
// config.Config.IdentitySeed documents for its callers.
package identity

import (
	"crypto/ed25519"
	"fmt"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

const SeedLength = 32

// Identity is a node's derived keypair and the peer id it implies.
type Identity struct {
	PrivateKey libp2pcrypto.PrivKey
	PublicKey  libp2pcrypto.PubKey
	PeerID     peer.ID
}

// FromSeed derives a deterministic Ed25519 identity from a 32-byte seed.
// The same seed always yields the same peer id, the property
// config.Config.Secret relies on for stable node identity across restarts.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("identity: seed must be %d bytes, got %d", SeedLength, len(seed))
	}

	stdKey := ed25519.NewKeyFromSeed(seed)
	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(stdKey)
	if err != nil {
		return nil, fmt.Errorf("identity: unmarshaling derived key: %w", err)
	}
	pub := priv.GetPublic()

	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: deriving peer id: %w", err)
	}

	return &Identity{PrivateKey: priv, PublicKey: pub, PeerID: id}, nil
}
