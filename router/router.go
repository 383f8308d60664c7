// Package router is the access point's run loop: it intercepts
// frames on the wireless interface, applies the hardware address
// policy, rewrites IPv4/TCP traffic through the NAT translator, and
// re-emits the result.
package router

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/mdlayher/ethernet"
	log "github.com/sirupsen/logrus"

	"go.universe.tf/softap/macfilter"
	"go.universe.tf/softap/nat"
)

// Interface is the raw link-layer surface the router drives.
// Satisfied by *nif.Interface.
type Interface interface {
	HardwareAddr() net.HardwareAddr
	Recv() ([]byte, error)
	Send(frame []byte, dst net.HardwareAddr) error
	SetReadDeadline(t time.Time) error
}

// NeighborCache resolves internal IPv4 addresses to hardware
// addresses. Satisfied by *arp.Manager and *arp.Cache.
type NeighborCache interface {
	LookupAddr(addr netip.Addr) (net.HardwareAddr, bool)
}

// Router forwards translated packets between the internal network
// and the uplink. Inbound traffic resolves its destination hardware
// address through the ARP manager's cache; outbound traffic is
// framed for the uplink gateway.
type Router struct {
	Translator *nat.Translator
	Neighbors  NeighborCache
	// Policy gates which stations may send traffic; nil admits
	// all. It only applies to packets sourced inside Internal, so
	// replies framed by the uplink gateway are never filtered.
	Policy *macfilter.Policy
	// Internal is the internal network range, used to classify
	// translated packets for framing.
	Internal netip.Prefix
	// UplinkMAC is the next hop for outbound frames.
	UplinkMAC net.HardwareAddr
	// Poll bounds how long one receive blocks before the loop
	// re-checks for cancellation.
	Poll time.Duration
}

// Run intercepts and forwards frames until ctx is cancelled or the
// interface is closed. Translation failures (capacity exhausted,
// no session) drop the packet and keep the loop alive.
func (r *Router) Run(ctx context.Context, ifc Interface) error {
	poll := r.Poll
	if poll == 0 {
		poll = 250 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ifc.SetReadDeadline(time.Now().Add(poll))
		frame, err := ifc.Recv()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		r.process(ifc, frame)
	}
}

func (r *Router) process(ifc Interface, frame []byte) {
	var f ethernet.Frame
	if err := f.UnmarshalBinary(frame); err != nil {
		return
	}
	if f.EtherType != ethernet.EtherTypeIPv4 {
		return
	}
	if r.Policy != nil && r.stationSourced(f.Payload) && !r.Policy.Check(f.Source) {
		log.Debugf("router: dropping frame from denied station %s", f.Source)
		return
	}

	out, err := r.Translator.Translate(f.Payload)
	switch {
	case errors.Is(err, nat.ErrNotTCP4):
		return
	case errors.Is(err, nat.ErrTableFull):
		log.Warnf("router: NAT capacity exhausted, dropping packet from %s", f.Source)
		return
	case errors.Is(err, nat.ErrNoSession):
		log.Debugf("router: no session for inbound packet, dropping")
		return
	case err != nil:
		log.Warnf("router: translation failed: %s", err)
		return
	}

	dstMAC, ok := r.nextHop(out)
	if !ok {
		return
	}

	ef := &ethernet.Frame{
		Destination: dstMAC,
		Source:      ifc.HardwareAddr(),
		EtherType:   ethernet.EtherTypeIPv4,
		Payload:     out,
	}
	fb, err := ef.MarshalBinary()
	if err != nil {
		log.Warnf("router: framing failed: %s", err)
		return
	}
	if err := ifc.Send(fb, dstMAC); err != nil {
		log.Warnf("router: send failed: %s", err)
	}
}

// stationSourced reports whether the packet originates inside the
// internal range, i.e. was sent by a station rather than framed by
// the uplink gateway.
func (r *Router) stationSourced(packet []byte) bool {
	if len(packet) < 20 {
		return false
	}
	return r.Internal.Contains(netip.AddrFrom4([4]byte(packet[12:16])))
}

// nextHop picks the destination hardware address for a translated
// packet: internal destinations resolve through the ARP cache,
// everything else heads for the uplink gateway.
func (r *Router) nextHop(packet []byte) (net.HardwareAddr, bool) {
	if len(packet) < 20 {
		return nil, false
	}
	dst := netip.AddrFrom4([4]byte(packet[16:20]))

	if r.Internal.Contains(dst) {
		mac, ok := r.Neighbors.LookupAddr(dst)
		if !ok {
			log.Debugf("router: no hardware address cached for %s, dropping", dst)
			return nil, false
		}
		return mac, true
	}
	return r.UplinkMAC, true
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
