// Package peer implements the per-connection protocol state machine
// described in spec §4.1: one instance per accepted connection,
// driving a recv → dispatch → respond loop until the transport fails.
// Grounded on tulva's peer.go read loop and chihaya's frontend/http
// Frontend/Config/ListenAndServe/Stop shape, adapted from HTTP request
// handling to a raw framed TCP connection.
package peer

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Anshorei/zeronet-tracker/address"
	"github.com/Anshorei/zeronet-tracker/pkg/log"
	"github.com/Anshorei/zeronet-tracker/shared"
	"github.com/Anshorei/zeronet-tracker/storage"
	"github.com/Anshorei/zeronet-tracker/wire"
)

// errHandshakeRewriteFailed signals that the incoming handshake's onion
// identity failed to parse: per spec §4.1, the handler logs the
// failure and leaves current_address unrewritten, without sending a
// response to that one handshake — it does not tear down the
// connection, which keeps serving further requests normally.
var errHandshakeRewriteFailed = errors.New("peer: handshake address rewrite failed")

// connHandler drives one accepted connection.
type connHandler struct {
	conn    *wire.Conn
	state   *shared.State
	peerID  string
	current address.PeerAddress

	recordRequest func(cmd string)
}

// serve runs the recv/dispatch/respond loop until the transport fails;
// a failed handshake rewrite skips that one response and the loop
// continues. It never returns an error the caller needs to act on beyond logging
// and counting the connection as closed.
func (h *connHandler) serve() {
	for {
		req, err := h.conn.ReadMessage()
		if err != nil {
			log.Info("connection closed", log.Err(err))
			return
		}

		parsed, err := wire.ParseRequest(req)
		if err != nil {
			h.writeError(0, err)
			continue
		}

		if h.recordRequest != nil {
			h.recordRequest(parsed.Cmd)
		}

		switch parsed.Cmd {
		case "handshake":
			if err := h.handleHandshake(parsed); err != nil {
				if !errors.Is(err, errHandshakeRewriteFailed) {
					h.writeError(parsed.ReqID, err)
				}
			}
		case "announce":
			if err := h.handleAnnounce(parsed); err != nil {
				h.writeError(parsed.ReqID, err)
			}
		default:
			if err := h.conn.WriteMessage(wire.UnknownCommandResponse(parsed.ReqID)); err != nil {
				log.Error("failed to write response", log.Err(err))
				continue
			}
		}
	}
}

func (h *connHandler) writeError(reqID int64, err error) {
	resp := wire.ErrorResponse(reqID, fmt.Sprintf("Invalid data: %v", err))
	if writeErr := h.conn.WriteMessage(resp); writeErr != nil {
		log.Error("failed to write error response", log.Err(writeErr))
	}
}

// handleHandshake implements spec §4.1.1. On rewrite failure it
// returns errHandshakeRewriteFailed so the caller skips sending a
// response to this one handshake; the connection itself stays open
// and keeps serving subsequent requests.
func (h *connHandler) handleHandshake(req wire.Request) error {
	hs, err := wire.HandshakeFromDict(req.Body)
	if err != nil {
		return err
	}

	if hs.Onion != "" {
		rewritten, err := address.ParseOnionString(hs.Onion, hs.FileserverPort)
		if err != nil {
			log.Info("handshake address rewrite failed", log.Err(err))
			return errHandshakeRewriteFailed
		}
		h.current = rewritten
	}

	resp := wire.Handshake{
		Crypt:          hs.Crypt,
		FileserverPort: hs.FileserverPort,
		Protocol:       hs.Protocol,
		PortOpened:     hs.PortOpened,
		PeerID:         h.peerID,
		Rev:            hs.Rev,
		TargetIP:       hs.TargetIP,
		Version:        hs.Version,
	}
	return h.conn.WriteMessage(wire.Response(req.ReqID, resp.ToDict()))
}

// handleAnnounce implements spec §4.1.2. The shared lock is acquired
// exactly once for the full mutate-then-read sequence so that the
// returned peer list reflects this announce's own effect.
func (h *connHandler) handleAnnounce(req wire.Request) error {
	ann, err := wire.AnnounceFromDict(req.Body)
	if err != nil {
		return err
	}

	primary := h.current.WithPort(ann.Port)
	now := time.Now()

	hashes := make([]storage.Hash, len(ann.Hashes))
	for i, hb := range ann.Hashes {
		hashes[i] = storage.Hash(hb)
	}

	db, unlock := h.state.Lock()
	defer unlock()

	if ann.Delete {
		if _, err := db.RemovePeer(primary); err != nil {
			log.Error("remove_peer failed", log.Err(err))
			panic(err)
		}
	}

	if len(ann.Onions) == 0 {
		upsertPrimary(db, primary, hashes, now)
	} else {
		upsertOnionGroups(db, ann, hashes, now)
	}

	peers, err := buildAnnouncePeers(db, hashes, ann.NeedTypes)
	if err != nil {
		log.Error("get_peers_for_hash failed", log.Err(err))
		panic(err)
	}

	resp := wire.AnnounceResponse{Peers: peers}
	return h.conn.WriteMessage(wire.Response(req.ReqID, resp.ToDict()))
}

// upsertPrimary implements announce case A: a single non-onion peer
// seeding every hash in the announce, skipped entirely when the
// formatted address is loopback/private.
func upsertPrimary(db storage.PeerDatabase, primary address.PeerAddress, hashes []storage.Hash, now time.Time) {
	if primary.IsLoopbackOrPrivate() {
		return
	}
	if _, err := db.UpdatePeer(storage.Peer{Address: primary, DateAdded: now, LastSeen: now}, hashes); err != nil {
		log.Error("update_peer failed", log.Err(err))
		panic(err)
	}
}

// upsertOnionGroups implements announce case B: onions[i] pairs with
// hashes[i] positionally; entries are grouped by onion identifier and
// each group is upserted as one peer seeding its full hash list.
func upsertOnionGroups(db storage.PeerDatabase, ann wire.Announce, hashes []storage.Hash, now time.Time) {
	groups := make(map[string][]storage.Hash)
	order := make([]string, 0, len(ann.Onions))
	n := len(ann.Onions)
	if len(hashes) < n {
		n = len(hashes)
	}
	for i := 0; i < n; i++ {
		onion := ann.Onions[i]
		if _, seen := groups[onion]; !seen {
			order = append(order, onion)
		}
		groups[onion] = append(groups[onion], hashes[i])
	}

	for _, onion := range order {
		addr, err := address.Parse(fmt.Sprintf("%s.onion:%d", onion, ann.Port))
		if err != nil {
			log.Info("announce onion address parse failed", log.Err(err))
			continue
		}
		if _, err := db.UpdatePeer(storage.Peer{Address: addr, DateAdded: now, LastSeen: now}, groups[onion]); err != nil {
			log.Error("update_peer failed", log.Err(err))
			panic(err)
		}
	}
}

// neededFamilies maps the recognized need_types strings (§9's
// duplicate ip4/ipv4 acceptance preserved) to the families to include.
func neededFamilies(needTypes []string) (v4, v6, onion bool) {
	for _, t := range needTypes {
		switch t {
		case "ipv4", "ip4":
			v4 = true
		case "ipv6":
			v6 = true
		case "onion":
			onion = true
		}
	}
	return
}

// buildAnnouncePeers implements the response-list construction of
// spec §4.1.2: one AnnouncePeers per requested hash, index-aligned
// with hashes, populated only for the families need_types requests.
func buildAnnouncePeers(db storage.PeerDatabase, hashes []storage.Hash, needTypes []string) ([]wire.AnnouncePeers, error) {
	wantV4, wantV6, wantOnion := neededFamilies(needTypes)

	out := make([]wire.AnnouncePeers, len(hashes))
	for i, h := range hashes {
		peers, err := db.GetPeersForHash(h)
		if err != nil {
			return nil, err
		}

		var entry wire.AnnouncePeers
		for _, p := range peers {
			switch p.Address.Family {
			case address.IPv4:
				if wantV4 {
					entry.IPv4 = append(entry.IPv4, p.Address.Pack())
				}
			case address.IPv6:
				if wantV6 {
					entry.IPv6 = append(entry.IPv6, p.Address.Pack())
				}
			case address.OnionV2, address.OnionV3:
				if wantOnion {
					entry.OnionV2 = append(entry.OnionV2, p.Address.Pack())
				}
			}
		}
		out[i] = entry
	}
	return out, nil
}

// transportAddress resolves the remote endpoint of conn into a
// PeerAddress, the handler's initial current_address (spec §4.1).
func transportAddress(conn net.Conn) (address.PeerAddress, error) {
	return address.Parse(conn.RemoteAddr().String())
}
