package nat

import (
	"errors"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	// ErrNotTCP4 reports a packet that is not IPv4 carrying TCP.
	ErrNotTCP4 = errors.New("nat: not an IPv4/TCP packet")
	// ErrTableFull reports that no external socket could be
	// allocated for a new outbound session.
	ErrTableFull = errors.New("nat: translation table full")
	// ErrNoSession reports an inbound packet whose destination has
	// no active translation.
	ErrNoSession = errors.New("nat: no session for destination")
)

// Translator rewrites IPv4/TCP packets between an internal network
// range and a Table's external address pool. Packets sourced inside
// the internal range are source-translated (SNAT); everything else
// is treated as inbound and destination-translated (DNAT).
//
// Translator is not safe for concurrent use; the caller serializes
// Translate calls, which in turn serializes all Table access.
type Translator struct {
	table    *Table
	internal netip.Prefix
}

// NewTranslator returns a Translator for the given internal range,
// allocating external sockets from the given address pool.
func NewTranslator(internal netip.Prefix, external []netip.Addr) *Translator {
	return &Translator{
		table:    NewTable(external),
		internal: internal.Masked(),
	}
}

// Table exposes the underlying NAT table.
func (t *Translator) Table() *Table {
	return t.table
}

// Translate classifies the raw IPv4 packet as outbound or inbound
// and returns a rewritten copy with recomputed IP and TCP
// checksums. The input slice is never modified. Errors: ErrNotTCP4
// for packets this translator does not handle, ErrTableFull when an
// outbound session cannot be allocated, ErrNoSession for inbound
// packets with no mapping. All three mean the packet should be
// dropped.
func (t *Translator) Translate(packet []byte) ([]byte, error) {
	var (
		ip      layers.IPv4
		tcp     layers.TCP
		payload gopacket.Payload
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &ip, &tcp, &payload)
	parser.IgnoreUnsupported = true

	var decoded []gopacket.LayerType
	if err := parser.DecodeLayers(packet, &decoded); err != nil {
		return nil, ErrNotTCP4
	}
	if !decodedTCP4(decoded) {
		return nil, ErrNotTCP4
	}

	src := addrPort(ip.SrcIP, uint16(tcp.SrcPort))
	if t.internal.Contains(src.Addr()) {
		// Outbound: reuse the session if one exists, otherwise
		// allocate.
		external, ok := t.table.TranslateSource(src)
		if !ok {
			external, ok = t.table.Add(src)
			if !ok {
				return nil, ErrTableFull
			}
		}
		ip.SrcIP = net.IP(external.Addr().AsSlice())
		tcp.SrcPort = layers.TCPPort(external.Port())
	} else {
		// Inbound: only established sessions get through.
		dst := addrPort(ip.DstIP, uint16(tcp.DstPort))
		internal, ok := t.table.TranslateDestination(dst)
		if !ok {
			return nil, ErrNoSession
		}
		ip.DstIP = net.IP(internal.Addr().AsSlice())
		tcp.DstPort = layers.TCPPort(internal.Port())
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := tcp.SetNetworkLayerForChecksum(&ip); err != nil {
		return nil, err
	}
	if err := gopacket.SerializeLayers(buf, opts, &ip, &tcp, payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodedTCP4(decoded []gopacket.LayerType) bool {
	var ip4, tcp bool
	for _, lt := range decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			ip4 = true
		case layers.LayerTypeTCP:
			tcp = true
		}
	}
	return ip4 && tcp
}

func addrPort(ip net.IP, port uint16) netip.AddrPort {
	addr, _ := netip.AddrFromSlice(ip.To4())
	return netip.AddrPortFrom(addr, port)
}
