// Package address implements the PeerAddress value type: parsing,
// formatting, and the network-wire packing of the four endpoint
// families a peer can announce under (IPv4, IPv6, OnionV2, OnionV3).
//
// Address parsing has no counterpart in the example corpus — no pack
// library there speaks onion addresses — so it is built directly on
// encoding/base32 and net rather than vendoring an import that
// has nothing to ground it.
package address

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Family identifies which of the four endpoint kinds a PeerAddress holds.
type Family int

const (
	IPv4 Family = iota
	IPv6
	OnionV2
	OnionV3
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	case OnionV2:
		return "OnionV2"
	case OnionV3:
		return "OnionV3"
	default:
		return "Unknown"
	}
}

const (
	onionV2IdentityLen = 10
	onionV3IdentityLen = 35
)

var onionEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// PeerAddress is a tagged union over the four endpoint families a peer
// in the registry can be reached at. It is a value type: two
// PeerAddresses are Equal when every field, including the port,
// matches.
type PeerAddress struct {
	Family Family
	IP     net.IP // set for IPv4 and IPv6
	Onion  []byte // set for OnionV2 (10 bytes) and OnionV3 (35 bytes)
	Port   uint16
}

// Equal reports whether a and b describe the same endpoint.
func (a PeerAddress) Equal(b PeerAddress) bool {
	if a.Family != b.Family || a.Port != b.Port {
		return false
	}
	switch a.Family {
	case IPv4, IPv6:
		return a.IP.Equal(b.IP)
	case OnionV2, OnionV3:
		return string(a.Onion) == string(b.Onion)
	default:
		return false
	}
}

// Parse parses a formatted peer address, e.g. "127.0.0.1:15441",
// "[::1]:15441", or "zp2ynpztyxj2kw7x.onion:15441".
func Parse(s string) (PeerAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("address: invalid host:port %q: %w", s, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("address: invalid port %q: %w", portStr, err)
	}

	if strings.HasSuffix(host, ".onion") {
		return parseOnion(strings.TrimSuffix(host, ".onion"), uint16(port))
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return PeerAddress{}, fmt.Errorf("address: invalid IP %q", host)
	}

	if v4 := ip.To4(); v4 != nil {
		return PeerAddress{Family: IPv4, IP: v4, Port: uint16(port)}, nil
	}

	return PeerAddress{Family: IPv6, IP: ip.To16(), Port: uint16(port)}, nil
}

func parseOnion(identity string, port uint16) (PeerAddress, error) {
	decoded, err := onionEncoding.DecodeString(strings.ToUpper(identity))
	if err != nil {
		return PeerAddress{}, fmt.Errorf("address: invalid onion identity %q: %w", identity, err)
	}

	switch len(decoded) {
	case onionV2IdentityLen:
		return PeerAddress{Family: OnionV2, Onion: decoded, Port: port}, nil
	case onionV3IdentityLen:
		return PeerAddress{Family: OnionV3, Onion: decoded, Port: port}, nil
	default:
		return PeerAddress{}, fmt.Errorf("address: onion identity %q decodes to %d bytes, want %d or %d",
			identity, len(decoded), onionV2IdentityLen, onionV3IdentityLen)
	}
}

// FromOnionIdentity builds a PeerAddress directly from decoded onion
// identity bytes, choosing OnionV2 or OnionV3 by length. Used by the
// peer handler when pairing an announce's bare onion identifiers
// (without the ".onion" suffix or a port) with a port taken from the
// announce body.
func FromOnionIdentity(identity []byte, port uint16) (PeerAddress, error) {
	switch len(identity) {
	case onionV2IdentityLen:
		return PeerAddress{Family: OnionV2, Onion: append([]byte(nil), identity...), Port: port}, nil
	case onionV3IdentityLen:
		return PeerAddress{Family: OnionV3, Onion: append([]byte(nil), identity...), Port: port}, nil
	default:
		return PeerAddress{}, fmt.Errorf("address: onion identity is %d bytes, want %d or %d",
			len(identity), onionV2IdentityLen, onionV3IdentityLen)
	}
}

// ParseOnionString parses a bare onion announce string of the form
// "<base32 identity>.onion" or "<base32 identity>", pairing it with
// port to produce a PeerAddress.
func ParseOnionString(onion string, port uint16) (PeerAddress, error) {
	return parseOnion(strings.TrimSuffix(onion, ".onion"), port)
}

// Format renders the address the way it appears on the wire and in
// logs, e.g. "127.0.0.1:15441" or "zp2ynpztyxj2kw7x.onion:15441".
func (a PeerAddress) Format() string {
	switch a.Family {
	case IPv4, IPv6:
		return net.JoinHostPort(a.IP.String(), strconv.Itoa(int(a.Port)))
	case OnionV2, OnionV3:
		identity := strings.ToLower(onionEncoding.EncodeToString(a.Onion))
		return identity + ".onion:" + strconv.Itoa(int(a.Port))
	default:
		return ""
	}
}

// String implements fmt.Stringer via Format.
func (a PeerAddress) String() string { return a.Format() }

// Pack returns the bit-exact network encoding used by the wire
// protocol: address bytes followed by a 2-byte big-endian port.
func (a PeerAddress) Pack() []byte {
	var addrBytes []byte
	switch a.Family {
	case IPv4:
		addrBytes = a.IP.To4()
	case IPv6:
		addrBytes = a.IP.To16()
	case OnionV2, OnionV3:
		addrBytes = a.Onion
	}

	buf := make([]byte, len(addrBytes)+2)
	copy(buf, addrBytes)
	buf[len(addrBytes)] = byte(a.Port >> 8)
	buf[len(addrBytes)+1] = byte(a.Port)
	return buf
}

// WithPort returns a copy of a with the port replaced, preserving the
// family and identity bytes.
func (a PeerAddress) WithPort(port uint16) PeerAddress {
	b := a
	b.Port = port
	return b
}

// GetPort returns the address's port.
func (a PeerAddress) GetPort() uint16 { return a.Port }

// IsLoopbackOrPrivate reports whether the formatted address begins
// with "127.0.0.1" or "192.", the canonical rule the peer handler
// uses to skip inserting a self-announced loopback/local peer.
func (a PeerAddress) IsLoopbackOrPrivate() bool {
	f := a.Format()
	return strings.HasPrefix(f, "127.0.0.1") || strings.HasPrefix(f, "192.")
}

// ErrUnknownFamily is returned when an operation needs a concrete
// family that a PeerAddress's zero value does not carry.
var ErrUnknownFamily = errors.New("address: unknown family")
