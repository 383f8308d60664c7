package macfilter

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	macA = net.HardwareAddr{0x20, 0x67, 0xf4, 0x66, 0x22, 0x01}
	macB = net.HardwareAddr{0xfa, 0x21, 0x27, 0x03, 0x30, 0x49}
)

func TestPublicAdmitsAll(t *testing.T) {
	p := NewPublic()
	assert.True(t, p.Check(macA))
	assert.True(t, p.Check(macB))

	assert.ErrorIs(t, p.Allow(macA), ErrNotAllowlist)
	assert.ErrorIs(t, p.Deny(macA), ErrNotDenylist)
}

func TestAllowlist(t *testing.T) {
	p := NewAllowlist()
	assert.False(t, p.Check(macA))

	require.NoError(t, p.Allow(macA))
	assert.True(t, p.Check(macA))
	assert.False(t, p.Check(macB))

	assert.ErrorIs(t, p.Deny(macB), ErrNotDenylist)
}

func TestDenylist(t *testing.T) {
	p := NewDenylist()
	assert.True(t, p.Check(macA))

	require.NoError(t, p.Deny(macA))
	assert.False(t, p.Check(macA))
	assert.True(t, p.Check(macB))

	assert.ErrorIs(t, p.Allow(macB), ErrNotAllowlist)
}
