package wire

import "fmt"

// Request is a decoded incoming message: {cmd, req_id, ...fields}.
type Request struct {
	Cmd   string
	ReqID int64
	Body  Dict
}

// ParseRequest extracts the envelope fields (cmd, req_id) from a
// decoded Dict; the remaining keys are left in Body for the command's
// own parser to pick apart.
func ParseRequest(d Dict) (Request, error) {
	cmd, ok := getString(d, "cmd")
	if !ok {
		return Request{}, fmt.Errorf("wire: request missing \"cmd\"")
	}
	reqID, _ := getInt64(d, "req_id")

	body := Dict{}
	for k, v := range d {
		if k == "cmd" || k == "req_id" {
			continue
		}
		body[k] = v
	}

	return Request{Cmd: cmd, ReqID: reqID, Body: body}, nil
}

// Response wraps a body dict with the "cmd"/"to" response envelope
// fields described in spec §6.
func Response(reqID int64, body Dict) Dict {
	out := Dict{"cmd": "response", "to": reqID}
	for k, v := range body {
		out[k] = v
	}
	return out
}

// ErrorResponse builds a response to reqID whose body is {error: string}.
func ErrorResponse(reqID int64, message string) Dict {
	return Response(reqID, Dict{"error": message})
}

// UnknownCommandResponse is the literal-string body sent in reply to
// any command the handler does not recognize.
func UnknownCommandResponse(reqID int64) Dict {
	return Dict{"cmd": "response", "to": reqID, "body": "Unknown request"}
}

// --- Handshake -------------------------------------------------------

// Handshake is the handshake request/response body (spec §6).
type Handshake struct {
	Crypt          string
	CryptSupported []string
	FileserverPort uint16
	Onion          string
	Protocol       string
	PortOpened     bool
	PeerID         string
	Rev            int64
	TargetIP       string
	Version        string
}

// HandshakeFromDict parses a Handshake out of a request body.
func HandshakeFromDict(d Dict) (Handshake, error) {
	var h Handshake
	h.Crypt, _ = getString(d, "crypt")
	h.CryptSupported, _ = getStringList(d, "crypt_supported")
	port, ok := getInt64(d, "fileserver_port")
	if !ok {
		return Handshake{}, fmt.Errorf("wire: handshake missing \"fileserver_port\"")
	}
	h.FileserverPort = uint16(port)
	h.Onion, _ = getString(d, "onion")
	h.Protocol, _ = getString(d, "protocol")
	h.PortOpened = getBool(d, "port_opened")
	h.PeerID, _ = getString(d, "peer_id")
	h.Rev, _ = getInt64(d, "rev")
	h.TargetIP, _ = getString(d, "target_ip")
	h.Version, _ = getString(d, "version")
	return h, nil
}

// ToDict encodes a Handshake response body.
func (h Handshake) ToDict() Dict {
	d := Dict{
		"crypt":           h.Crypt,
		"fileserver_port": h.FileserverPort,
		"protocol":        h.Protocol,
		"port_opened":     h.PortOpened,
		"peer_id":         h.PeerID,
		"rev":             h.Rev,
		"target_ip":       h.TargetIP,
		"version":         h.Version,
	}
	if len(h.CryptSupported) > 0 {
		d["crypt_supported"] = h.CryptSupported
	}
	if h.Onion != "" {
		d["onion"] = h.Onion
	}
	return d
}

// --- Announce ----------------------------------------------------------

// Announce is the announce request body (spec §6).
type Announce struct {
	Hashes        [][]byte
	Onions        []string
	OnionSigns    [][]byte
	OnionSignThis string
	Port          uint16
	NeedTypes     []string
	NeedNum       int64
	Add           []string
	Delete        bool
}

// AnnounceFromDict parses an Announce out of a request body.
func AnnounceFromDict(d Dict) (Announce, error) {
	var a Announce
	a.Hashes, _ = getBytesList(d, "hashes")
	a.Onions, _ = getStringList(d, "onions")
	a.OnionSigns, _ = getBytesList(d, "onion_signs")
	a.OnionSignThis, _ = getString(d, "onion_sign_this")

	port, ok := getInt64(d, "port")
	if !ok {
		return Announce{}, fmt.Errorf("wire: announce missing \"port\"")
	}
	a.Port = uint16(port)

	a.NeedTypes, _ = getStringList(d, "need_types")
	a.NeedNum, _ = getInt64(d, "need_num")
	a.Add, _ = getStringList(d, "add")
	a.Delete = getBool(d, "delete")

	return a, nil
}

// AnnouncePeers is one per-hash entry in an AnnounceResponse's peers list.
type AnnouncePeers struct {
	IPv4    [][]byte
	IPv6    [][]byte
	OnionV2 [][]byte
}

// ToDict encodes an AnnouncePeers entry.
func (p AnnouncePeers) ToDict() Dict {
	return Dict{
		"ip_v4":    bytesListOrEmpty(p.IPv4),
		"ip_v6":    bytesListOrEmpty(p.IPv6),
		"onion_v2": bytesListOrEmpty(p.OnionV2),
	}
}

func bytesListOrEmpty(v [][]byte) [][]byte {
	if v == nil {
		return [][]byte{}
	}
	return v
}

// AnnounceResponse is the announce response body (spec §6).
type AnnounceResponse struct {
	Peers []AnnouncePeers
}

// ToDict encodes an AnnounceResponse body.
func (r AnnounceResponse) ToDict() Dict {
	peers := make([]interface{}, len(r.Peers))
	for i, p := range r.Peers {
		peers[i] = map[string]interface{}(p.ToDict())
	}
	return Dict{"peers": peers}
}

// --- Dict field accessors ----------------------------------------------

func getString(d Dict, key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case []byte:
		return string(t), true
	case string:
		return t, true
	}
	return "", false
}

func getInt64(d Dict, key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

func getBool(d Dict, key string) bool {
	n, ok := getInt64(d, key)
	return ok && n != 0
}

func getStringList(d Dict, key string) ([]string, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case []byte:
			out = append(out, string(t))
		case string:
			out = append(out, t)
		}
	}
	return out, true
}

func getBytesList(d Dict, key string) ([][]byte, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		if b, ok := item.([]byte); ok {
			out = append(out, b)
		}
	}
	return out, true
}
