package p2p

import (
	"encoding/json"
	"testing"

	pubsub_pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/stretchr/testify/require"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/premint"
)

func pbMessage(topic string, data []byte) *pubsub_pb.Message {
	return &pubsub_pb.Message{Topic: &topic, Data: data}
}

func TestPremintAndClaimTopicNaming(t *testing.T) {
	require.Equal(t, "mintpool::premint::simple", PremintTopic(premint.KindSimple))
	require.Equal(t, "mintpool::claim::simple", ClaimTopic(premint.KindSimple))
}

func TestMessageIDAnnounceHashesRawPayload(t *testing.T) {
	a := pbMessage(AnnounceTopic, []byte("/ip4/1.2.3.4/tcp/1000/p2p/abc"))
	b := pbMessage(AnnounceTopic, []byte("/ip4/1.2.3.4/tcp/1000/p2p/abc"))
	require.Equal(t, messageID(a), messageID(b))

	c := pbMessage(AnnounceTopic, []byte("/ip4/5.6.7.8/tcp/1000/p2p/def"))
	require.NotEqual(t, messageID(a), messageID(c))
}

func TestMessageIDClaimTopicHashesLogicalPremintID(t *testing.T) {
	claim1 := premint.InclusionClaim{PremintID: "claim-1", ChainID: 1, Kind: premint.KindSimple}
	claim2 := premint.InclusionClaim{PremintID: "claim-1", ChainID: 2, Kind: premint.KindSimple}

	data1, err := json.Marshal(claim1)
	require.NoError(t, err)
	data2, err := json.Marshal(claim2)
	require.NoError(t, err)

	topic := ClaimTopic(premint.KindSimple)
	id1 := messageID(pbMessage(topic, data1))
	id2 := messageID(pbMessage(topic, data2))

	require.Equal(t, id1, id2, "same logical premint id should dedup regardless of other field differences")
}

func TestMessageIDPremintTopicHashesLogicalPremintID(t *testing.T) {
	s := &premint.Simple{
		ChainID: 1,
		Sender:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		UID:     "uid-1",
		Version: 1,
		Name:    "first",
	}
	body1, err := premint.ToJSON(s)
	require.NoError(t, err)

	sameIDDifferentName := &premint.Simple{
		ChainID: 1,
		Sender:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		UID:     "uid-1",
		Version: 2,
		Name:    "second",
	}
	body2, err := premint.ToJSON(sameIDDifferentName)
	require.NoError(t, err)

	topic := PremintTopic(premint.KindSimple)
	id1 := messageID(pbMessage(topic, body1))
	id2 := messageID(pbMessage(topic, body2))

	require.Equal(t, id1, id2, "republishing the same logical premint with new bytes should dedup")
}
