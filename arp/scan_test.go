package arp

import (
	"io"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	marp "github.com/mdlayher/arp"
	"github.com/mdlayher/ethernet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ifcMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	ifcAddr = netip.MustParseAddr("192.168.0.1")
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeIfc feeds pre-loaded frames to the listener and records what
// the requester transmits.
type fakeIfc struct {
	mac  net.HardwareAddr
	addr netip.Addr

	frames chan []byte

	mu       sync.Mutex
	deadline time.Time
	sent     [][]byte
}

func newFakeIfc(buffered int) *fakeIfc {
	return &fakeIfc{
		mac:    ifcMAC,
		addr:   ifcAddr,
		frames: make(chan []byte, buffered),
	}
}

func (f *fakeIfc) HardwareAddr() net.HardwareAddr { return f.mac }
func (f *fakeIfc) IPv4Addr() netip.Addr           { return f.addr }

func (f *fakeIfc) Recv() ([]byte, error) {
	f.mu.Lock()
	deadline := f.deadline
	f.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-timeout:
		return nil, timeoutError{}
	}
}

func (f *fakeIfc) Send(frame []byte, dst net.HardwareAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}

func (f *fakeIfc) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	return nil
}

func (f *fakeIfc) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func testResolver() *Resolver {
	return &Resolver{
		Delay:  50 * time.Millisecond,
		Poll:   5 * time.Millisecond,
		Buffer: 256,
	}
}

func replyFrame(t *testing.T, senderMAC net.HardwareAddr, senderIP netip.Addr) []byte {
	t.Helper()

	p, err := marp.NewPacket(marp.OperationReply, senderMAC, senderIP, ifcMAC, ifcAddr)
	require.NoError(t, err)
	pb, err := p.MarshalBinary()
	require.NoError(t, err)

	f := &ethernet.Frame{
		Destination: ifcMAC,
		Source:      senderMAC,
		EtherType:   ethernet.EtherTypeARP,
		Payload:     pb,
	}
	fb, err := f.MarshalBinary()
	require.NoError(t, err)
	return fb
}

func TestScanCollectsReplies(t *testing.T) {
	ifc := newFakeIfc(16)

	ifc.frames <- replyFrame(t, mac1, netip.MustParseAddr("192.168.0.5"))
	ifc.frames <- replyFrame(t, mac2, netip.MustParseAddr("192.168.0.6"))

	targets := []netip.Addr{
		netip.MustParseAddr("192.168.0.5"),
		netip.MustParseAddr("192.168.0.6"),
		netip.MustParseAddr("192.168.0.7"),
	}
	entries, err := testResolver().Scan(ifc, targets)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, netip.MustParseAddr("192.168.0.5"), entries[0].Addr)
	assert.Equal(t, mac1, entries[0].MAC)
	assert.Equal(t, netip.MustParseAddr("192.168.0.6"), entries[1].Addr)
	assert.Equal(t, mac2, entries[1].MAC)

	// One broadcast request per target, carrying our own addresses
	// as the sender fields.
	sent := ifc.sentFrames()
	require.Len(t, sent, len(targets))
	for i, frame := range sent {
		var ef ethernet.Frame
		require.NoError(t, ef.UnmarshalBinary(frame))
		assert.Equal(t, ethernet.Broadcast, ef.Destination)
		assert.Equal(t, ethernet.EtherTypeARP, ef.EtherType)

		var p marp.Packet
		require.NoError(t, p.UnmarshalBinary(ef.Payload))
		assert.Equal(t, marp.OperationRequest, p.Operation)
		assert.Equal(t, ifcMAC, p.SenderHardwareAddr)
		assert.Equal(t, ifcAddr, p.SenderIP)
		assert.Equal(t, targets[i], p.TargetIP)
	}
}

func TestScanSkipsNoise(t *testing.T) {
	ifc := newFakeIfc(16)

	// Garbage, a non-ARP frame, and an ARP frame with a truncated
	// payload: all silently skipped.
	ifc.frames <- []byte{0xde, 0xad}
	nonARP := &ethernet.Frame{
		Destination: ifcMAC,
		Source:      mac1,
		EtherType:   ethernet.EtherTypeIPv4,
		Payload:     []byte{0x45, 0x00},
	}
	fb, err := nonARP.MarshalBinary()
	require.NoError(t, err)
	ifc.frames <- fb
	truncated := &ethernet.Frame{
		Destination: ifcMAC,
		Source:      mac1,
		EtherType:   ethernet.EtherTypeARP,
		Payload:     []byte{0x00, 0x01},
	}
	fb, err = truncated.MarshalBinary()
	require.NoError(t, err)
	ifc.frames <- fb

	ifc.frames <- replyFrame(t, mac1, netip.MustParseAddr("192.168.0.5"))

	entries, err := testResolver().Scan(ifc, []netip.Addr{netip.MustParseAddr("192.168.0.5")})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, netip.MustParseAddr("192.168.0.5"), entries[0].Addr)
}

func TestScanSuppressesSelfReplies(t *testing.T) {
	ifc := newFakeIfc(16)

	// A resolution frame carrying our own hardware address as the
	// sender must never become a cache entry.
	ifc.frames <- replyFrame(t, ifcMAC, ifcAddr)

	entries, err := testResolver().Scan(ifc, []netip.Addr{netip.MustParseAddr("192.168.0.5")})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanZeroReplies(t *testing.T) {
	ifc := newFakeIfc(1)

	entries, err := testResolver().Scan(ifc, []netip.Addr{netip.MustParseAddr("192.168.0.5")})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanInterfaceClosed(t *testing.T) {
	ifc := newFakeIfc(1)
	close(ifc.frames)

	// A closed interface ends the listener early; the scan still
	// completes cleanly after the request window.
	entries, err := testResolver().Scan(ifc, []netip.Addr{netip.MustParseAddr("192.168.0.5")})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
