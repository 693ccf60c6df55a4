package p2p

import (
	"encoding/json"
	"hash/fnv"
	"strings"

	pubsub_pb "github.com/libp2p/go-libp2p-pubsub/pb"

	"github.com/probeum/mintpool/premint"
)

// AnnounceTopic is the fixed peer-address gossip topic, per SPEC_FULL.md §6.
const AnnounceTopic = "mintpool::announce"

// PremintTopic returns the gossip topic a given premint kind's signed
// messages are published on.
func PremintTopic(kind premint.Kind) string { return "mintpool::premint::" + string(kind) }

// ClaimTopic returns the gossip topic a given premint kind's inclusion
// claims are published on.
func ClaimTopic(kind premint.Kind) string { return "mintpool::claim::" + string(kind) }

// claimMessage is the wire shape published on a claim topic, per
// SPEC_FULL.md §6: `{ "premintId", "chainId", "txHash", "logIndex", "kind" }`.
type claimMessage = premint.InclusionClaim

// messageID implements the deterministic message id SPEC_FULL.md §4.4.1
// requires: for the announce topic, a hash of the raw payload; for
// premint/claim topics, the payload is parsed and the id is a hash of the
// logical premint id, so republishing the same logical premint with
// different bytes (e.g. whitespace) is deduplicated by the gossip mesh.
func messageID(m *pubsub_pb.Message) string {
	topic := m.GetTopic()
	if topic == AnnounceTopic {
		return hashBytes(m.GetData())
	}
	if id, ok := logicalPremintID(topic, m.GetData()); ok {
		return hashBytes([]byte(id))
	}
	return hashBytes(m.GetData())
}

// logicalPremintID extracts the stable premint id a premint-kind or
// claim-kind gossip payload carries: claim messages carry it directly as
// "premintId"; premint messages are the typed envelope, decoded through
// Metadata().ID.
func logicalPremintID(topic string, data []byte) (string, bool) {
	if strings.HasPrefix(topic, "mintpool::claim::") {
		var claim claimMessage
		if err := json.Unmarshal(data, &claim); err == nil && claim.PremintID != "" {
			return claim.PremintID, true
		}
		return "", false
	}
	if strings.HasPrefix(topic, "mintpool::premint::") {
		p, err := premint.FromJSON(data)
		if err != nil {
			return "", false
		}
		return p.Metadata().ID, true
	}
	return "", false
}

func hashBytes(b []byte) string {
	h := fnv.New64a()
	h.Write(b)
	sum := h.Sum64()
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(sum >> (8 * i))
	}
	return string(out)
}
