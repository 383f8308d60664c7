// Package nif exposes OS network interfaces as raw link-layer
// endpoints: a resolved interface carries its hardware and IPv4
// addresses and a frame-level send/receive surface.
package nif

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/mdlayher/packet"
	"golang.org/x/sys/unix"
)

// ErrInterfaceNotFound reports that no interface with the requested
// name exists on this host.
var ErrInterfaceNotFound = errors.New("nif: interface not found")

// Conn is the raw link-layer socket behind an Interface. Satisfied
// by *packet.Conn; tests substitute in-memory fakes.
type Conn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, addr net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Interface is a network interface opened for raw link-layer I/O.
// The transmit and receive sides are guarded by separate locks, so
// one sender and one receiver may proceed concurrently while
// concurrent senders (or concurrent receivers) serialize against
// each other.
type Interface struct {
	name  string
	index int
	mac   net.HardwareAddr
	addr  netip.Addr

	conn Conn
	txMu sync.Mutex
	rxMu sync.Mutex
}

// Resolve opens the named interface for raw link-layer traffic.
// A missing interface is reported as ErrInterfaceNotFound.
func Resolve(name string) (*Interface, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInterfaceNotFound, name)
	}

	conn, err := packet.Listen(ifi, packet.Raw, unix.ETH_P_ALL, nil)
	if err != nil {
		return nil, fmt.Errorf("opening raw socket on %q: %w", name, err)
	}

	return &Interface{
		name:  ifi.Name,
		index: ifi.Index,
		mac:   ifi.HardwareAddr,
		addr:  firstIPv4(ifi),
		conn:  conn,
	}, nil
}

// New wraps an already-open Conn; used by tests and by callers that
// manage their own sockets.
func New(name string, index int, mac net.HardwareAddr, addr netip.Addr, conn Conn) *Interface {
	return &Interface{name: name, index: index, mac: mac, addr: addr, conn: conn}
}

// Name returns the OS interface name.
func (i *Interface) Name() string { return i.name }

// Index returns the OS interface index.
func (i *Interface) Index() int { return i.index }

// HardwareAddr returns the interface's link-layer address.
func (i *Interface) HardwareAddr() net.HardwareAddr { return i.mac }

// IPv4Addr returns the interface's first IPv4 address, or the zero
// Addr if it has none.
func (i *Interface) IPv4Addr() netip.Addr { return i.addr }

// Recv yields the next frame from the interface. Returns io.EOF
// once the underlying socket is closed. Timeout errors from a read
// deadline pass through unchanged so callers can poll.
func (i *Interface) Recv() ([]byte, error) {
	i.rxMu.Lock()
	defer i.rxMu.Unlock()

	buf := make([]byte, 65535)
	n, _, err := i.conn.ReadFrom(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return buf[:n], nil
}

// Send transmits one frame to the given link-layer destination.
func (i *Interface) Send(frame []byte, dst net.HardwareAddr) error {
	i.txMu.Lock()
	defer i.txMu.Unlock()

	_, err := i.conn.WriteTo(frame, &packet.Addr{HardwareAddr: dst})
	return err
}

// SetReadDeadline bounds the next Recv call.
func (i *Interface) SetReadDeadline(t time.Time) error {
	return i.conn.SetReadDeadline(t)
}

// Close shuts the raw socket; pending and future Recv calls return
// io.EOF.
func (i *Interface) Close() error {
	return i.conn.Close()
}

func firstIPv4(ifi *net.Interface) netip.Addr {
	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.To4() == nil {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipnet.IP.To4())
		if ok {
			return addr
		}
	}
	return netip.Addr{}
}
