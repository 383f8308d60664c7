// Package macfilter is a static allow/deny list for link-layer
// addresses.
package macfilter

import (
	"bytes"
	"errors"
	"net"
)

// Kind selects how a Policy treats addresses not on its list.
type Kind int

const (
	// Public admits every address.
	Public Kind = iota
	// Allowlist admits only listed addresses.
	Allowlist
	// Denylist admits everything except listed addresses.
	Denylist
)

var (
	// ErrNotAllowlist reports Allow called on a non-allowlist policy.
	ErrNotAllowlist = errors.New("macfilter: not an allowlist policy")
	// ErrNotDenylist reports Deny called on a non-denylist policy.
	ErrNotDenylist = errors.New("macfilter: not a denylist policy")
)

// Policy decides which hardware addresses may exchange traffic
// through the access point.
type Policy struct {
	kind Kind
	list []net.HardwareAddr
}

// NewPublic returns a policy admitting all addresses.
func NewPublic() *Policy {
	return &Policy{kind: Public}
}

// NewAllowlist returns a policy admitting only explicitly allowed
// addresses, initially none.
func NewAllowlist() *Policy {
	return &Policy{kind: Allowlist}
}

// NewDenylist returns a policy admitting all but explicitly denied
// addresses, initially all.
func NewDenylist() *Policy {
	return &Policy{kind: Denylist}
}

// Allow adds an address to an allowlist policy.
func (p *Policy) Allow(mac net.HardwareAddr) error {
	if p.kind != Allowlist {
		return ErrNotAllowlist
	}
	p.list = append(p.list, mac)
	return nil
}

// Deny adds an address to a denylist policy.
func (p *Policy) Deny(mac net.HardwareAddr) error {
	if p.kind != Denylist {
		return ErrNotDenylist
	}
	p.list = append(p.list, mac)
	return nil
}

// Check reports whether the address is admitted by the policy.
func (p *Policy) Check(mac net.HardwareAddr) bool {
	switch p.kind {
	case Allowlist:
		return p.contains(mac)
	case Denylist:
		return !p.contains(mac)
	default:
		return true
	}
}

func (p *Policy) contains(mac net.HardwareAddr) bool {
	for _, m := range p.list {
		if bytes.Equal(m, mac) {
			return true
		}
	}
	return false
}
