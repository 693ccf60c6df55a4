package p2p

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/probeum/mintpool/log"
	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/storage"
)

const syncStreamTimeout = 10 * time.Second

// syncResponse is the tagged union the requester decodes, per
// SPEC_FULL.md §6: `Premints([...])` or `Error("…")`.
type syncResponse struct {
	Premints []json.RawMessage `json:"premints,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// syncResponder answers incoming /mintpool-sync/1 requests by running the
// caller-supplied query against local storage.
type syncResponder struct {
	host host.Host
	deps Deps
}

func newSyncResponder(h host.Host, deps Deps) *syncResponder {
	r := &syncResponder{host: h, deps: deps}
	h.SetStreamHandler(SyncProtocolID, r.handleStream)
	return r
}

func (r *syncResponder) handleStream(stream network.Stream) {
	defer stream.Close()
	stream.SetDeadline(time.Now().Add(syncStreamTimeout))

	req, err := readFrame(stream)
	if err != nil {
		log.Debug("p2p sync: reading request", "err", err)
		return
	}

	var opts storage.QueryOptions
	if err := json.Unmarshal(req, &opts); err != nil {
		writeErrorResponse(stream, fmt.Sprintf("malformed query: %v", err))
		return
	}

	premints, err := r.deps.ListAllWithOptions(opts)
	if err != nil {
		writeErrorResponse(stream, err.Error())
		return
	}

	raws := make([]json.RawMessage, 0, len(premints))
	for _, p := range premints {
		body, err := premint.ToJSON(p)
		if err != nil {
			continue
		}
		raws = append(raws, body)
	}

	writeFrame(stream, mustMarshal(syncResponse{Premints: raws}))
}

func writeErrorResponse(stream network.Stream, msg string) {
	writeFrame(stream, mustMarshal(syncResponse{Error: msg}))
}

// RequestSync sends a QueryOptions request to one peer over
// /mintpool-sync/1 and returns the decoded, as-yet-unvalidated premint
// list. The caller (the pool controller) is responsible for re-validating
// every returned premint through the rules engine before insertion, per
// SPEC_FULL.md §4.4.3.
func (s *Swarm) RequestSync(ctx context.Context, p peer.ID, opts storage.QueryOptions) ([]premint.Premint, error) {
	stream, err := s.host.NewStream(ctx, p, SyncProtocolID)
	if err != nil {
		return nil, fmt.Errorf("p2p sync: opening stream to %s: %w", p, err)
	}
	defer stream.Close()
	stream.SetDeadline(time.Now().Add(syncStreamTimeout))

	if err := writeFrame(stream, mustMarshal(opts)); err != nil {
		return nil, fmt.Errorf("p2p sync: writing request: %w", err)
	}

	raw, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("p2p sync: reading response: %w", err)
	}

	var resp syncResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("p2p sync: decoding response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("p2p sync: peer returned error: %s", resp.Error)
	}

	out := make([]premint.Premint, 0, len(resp.Premints))
	for _, raw := range resp.Premints {
		p, err := premint.FromJSON(raw)
		if err != nil {
			log.Debug("p2p sync: dropping malformed premint in response", "err", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// RandomMeshPeer picks an arbitrary currently-connected peer to sync
// against, per SPEC_FULL.md §4.4.3 ("the swarm picks a random current
// mesh peer").
func (s *Swarm) RandomMeshPeer() (peer.ID, bool) {
	peers := s.host.Network().Peers()
	if len(peers) == 0 {
		return "", false
	}
	return peers[int(time.Now().UnixNano())%len(peers)], true
}

// writeFrame writes a length-prefixed frame: a big-endian uint32 length
// followed by the payload, the stable binary framing SPEC_FULL.md §6
// requires ("length-prefixed binary form of the JSON shape").
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

const maxFrameSize = 16 * 1024 * 1024

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("p2p sync: frame too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
