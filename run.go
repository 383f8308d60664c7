package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os/signal"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"go.universe.tf/softap/arp"
	"go.universe.tf/softap/macfilter"
	"go.universe.tf/softap/nat"
	"go.universe.tf/softap/nif"
	"go.universe.tf/softap/router"
)

func run(c *cli.Context) error {
	log.Info("Starting")

	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	uplinkMAC, err := net.ParseMAC(c.String("uplink-mac"))
	if err != nil {
		return fmt.Errorf("parsing uplink-mac: %w", err)
	}

	external := cfg.ExternalAddrs
	if len(external) == 0 {
		external, err = uplinkIPs(cfg.UplinkInterface)
		if err != nil {
			log.Fatalf("Getting uplink IPs: %s", err)
		}
	}
	if len(external) == 0 {
		log.Fatalf("No external addresses available for NAT on %s", cfg.UplinkInterface)
	}

	var policy *macfilter.Policy
	if allow := c.StringSlice("allow"); len(allow) > 0 {
		policy = macfilter.NewAllowlist()
		for _, s := range allow {
			mac, err := net.ParseMAC(s)
			if err != nil {
				return fmt.Errorf("parsing allowed MAC %q: %w", s, err)
			}
			policy.Allow(mac)
		}
	}

	ifc, err := nif.Resolve(cfg.WirelessInterface)
	if err != nil {
		log.Fatalf("Opening %s: %s", cfg.WirelessInterface, err)
	}
	defer ifc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	neighbors := &syncedARP{
		manager: arp.NewManager(cfg.Range, cfg.RefreshInterval, cfg.WirelessInterface),
	}
	if err := neighbors.scan(); err != nil {
		log.Fatalf("Initial ARP scan: %s", err)
	}
	go neighbors.refreshLoop(ctx, cfg.RefreshInterval)

	r := &router.Router{
		Translator: nat.NewTranslator(cfg.Range, external),
		Neighbors:  neighbors,
		Policy:     policy,
		Internal:   cfg.Range,
		UplinkMAC:  uplinkMAC,
	}

	log.Infof("Routing on %s via %s", cfg.WirelessInterface, cfg.UplinkInterface)
	if err := r.Run(ctx, ifc); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Exiting")
	return nil
}

// arpManager is the slice of arp.Manager the synchronized wrapper
// drives.
type arpManager interface {
	Scan() error
	Stale() []netip.Addr
	Resolve(targets []netip.Addr) ([]arp.Entry, error)
	Replace(entries []arp.Entry)
	LookupAddr(addr netip.Addr) (net.HardwareAddr, bool)
}

// syncedARP serializes cache access to the single-writer ARP
// manager: the router's neighbor lookups against the refresh loop's
// cache replacements. The resolver's listening window runs outside
// the lock so lookups, and with them inbound forwarding, keep
// flowing during a refresh.
type syncedARP struct {
	mu      sync.Mutex
	manager arpManager
}

func (s *syncedARP) LookupAddr(addr netip.Addr) (net.HardwareAddr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.LookupAddr(addr)
}

func (s *syncedARP) scan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Scan()
}

func (s *syncedARP) refresh() error {
	s.mu.Lock()
	stale := s.manager.Stale()
	s.mu.Unlock()
	if len(stale) == 0 {
		return nil
	}

	entries, err := s.manager.Resolve(stale)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.manager.Replace(entries)
	s.mu.Unlock()
	return nil
}

// refreshLoop re-resolves stale cache entries once per interval
// until ctx is cancelled.
func (s *syncedARP) refreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refresh(); err != nil {
				log.Warnf("ARP refresh: %s", err)
			}
		}
	}
}

// uplinkIPs lists the global unicast IPv4 addresses of the uplink
// interface.
func uplinkIPs(ifName string) ([]netip.Addr, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("getting %s interface info: %w", ifName, err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("getting %s interface addrs: %w", ifName, err)
	}

	ret := []netip.Addr{}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.To4() == nil || !ipnet.IP.IsGlobalUnicast() {
			continue
		}
		a, ok := netip.AddrFromSlice(ipnet.IP.To4())
		if !ok {
			continue
		}
		ret = append(ret, a)
	}

	return ret, nil
}
