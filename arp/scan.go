package arp

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/netip"
	"time"

	marp "github.com/mdlayher/arp"
	"github.com/mdlayher/ethernet"
	log "github.com/sirupsen/logrus"
)

// Interface is the link-layer surface the resolver needs. Satisfied
// by *nif.Interface.
type Interface interface {
	HardwareAddr() net.HardwareAddr
	IPv4Addr() netip.Addr
	Recv() ([]byte, error)
	Send(frame []byte, dst net.HardwareAddr) error
	SetReadDeadline(t time.Time) error
}

// Resolver sweeps a set of IPv4 addresses with broadcast ARP
// requests while concurrently collecting replies.
type Resolver struct {
	// Delay is how long the reply listener stays open after the
	// last request goes out. A scan always takes at least this
	// long; shrink it in tests.
	Delay time.Duration

	// Poll bounds how long the listener blocks on one receive
	// before re-checking for termination.
	Poll time.Duration

	// Buffer is the reply channel capacity.
	Buffer int
}

// NewResolver returns a Resolver with production timings: a 2.5s
// listening window polled every 250ms, buffering up to 256 replies.
func NewResolver() *Resolver {
	return &Resolver{
		Delay:  2500 * time.Millisecond,
		Poll:   250 * time.Millisecond,
		Buffer: 256,
	}
}

// Scan broadcasts one ARP request per target over ifc and returns
// every reply observed before the listening window closes. Zero
// replies is a valid outcome, not an error. The request and reply
// sides run concurrently; neither assumes any ordering between
// request transmission and reply arrival.
func (r *Resolver) Scan(ifc Interface, targets []netip.Addr) ([]Entry, error) {
	replies := make(chan Entry, r.Buffer)
	done := make(chan struct{})

	go func() {
		defer close(replies)
		r.listen(ifc, replies, done)
	}()

	reqErr := make(chan error, 1)
	go func() {
		defer close(done)
		reqErr <- r.request(ifc, targets)
	}()

	// Drain until the listener closes the channel. This also
	// provides the live consumption that keeps the listener from
	// stalling on a full buffer.
	var entries []Entry
	for e := range replies {
		entries = append(entries, e)
	}

	if err := <-reqErr; err != nil {
		return entries, err
	}
	return entries, nil
}

// request transmits one broadcast ARP request per target, then holds
// the listening window open for the configured delay. Returning
// closes the window.
func (r *Resolver) request(ifc Interface, targets []netip.Addr) error {
	for _, target := range targets {
		frame, err := requestFrame(ifc.HardwareAddr(), ifc.IPv4Addr(), target)
		if err != nil {
			return err
		}
		if err := ifc.Send(frame, ethernet.Broadcast); err != nil {
			return err
		}
	}

	time.Sleep(r.Delay)
	return nil
}

// listen receives frames from ifc until the scan window closes or
// the interface is exhausted, forwarding ARP resolutions as cache
// entries. Malformed frames are skipped without comment; a noisy
// segment produces them continuously. Frames whose sender hardware
// address is our own are self-originated and never become entries.
func (r *Resolver) listen(ifc Interface, replies chan<- Entry, done <-chan struct{}) {
	self := ifc.HardwareAddr()

	for {
		select {
		case <-done:
			return
		default:
		}

		ifc.SetReadDeadline(time.Now().Add(r.Poll))
		frame, err := ifc.Recv()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if err != io.EOF {
				log.Debugf("arp listen: %s", err)
			}
			return
		}

		var f ethernet.Frame
		if err := f.UnmarshalBinary(frame); err != nil {
			continue
		}
		if f.EtherType != ethernet.EtherTypeARP {
			continue
		}
		var p marp.Packet
		if err := p.UnmarshalBinary(f.Payload); err != nil {
			continue
		}
		if bytes.Equal(p.SenderHardwareAddr, self) {
			continue
		}

		entry := Entry{
			Addr:      p.SenderIP,
			MAC:       p.SenderHardwareAddr,
			CreatedAt: time.Now(),
		}
		select {
		case replies <- entry:
		case <-done:
			return
		}
	}
}

// requestFrame builds an Ethernet-framed ARP who-has for target,
// addressed to the broadcast hardware address.
func requestFrame(mac net.HardwareAddr, addr, target netip.Addr) ([]byte, error) {
	p, err := marp.NewPacket(marp.OperationRequest, mac, addr, net.HardwareAddr{0, 0, 0, 0, 0, 0}, target)
	if err != nil {
		return nil, err
	}
	pb, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}

	f := &ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      mac,
		EtherType:   ethernet.EtherTypeARP,
		Payload:     pb,
	}
	return f.MarshalBinary()
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
