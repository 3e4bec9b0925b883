// Package netutil enumerates the addresses a listener can be reached on.
package netutil

import (
	"net"
	"net/netip"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// interfaceIPs is swapped out by tests.
var interfaceIPs = func() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			log.Warnf("netutil: could not get addresses for interface %s: %v", iface.Name, err)
			continue
		}
		for _, addr := range addrs {
			switch v := addr.(type) {
			case *net.IPNet:
				ips = append(ips, v.IP)
			case *net.IPAddr:
				ips = append(ips, v.IP)
			}
		}
	}
	return ips, nil
}

// ListenAddrs returns host:port pairs on which a listener bound to addr accepts
// connections. A specific IP yields itself; an unspecified one (":5000", "0.0.0.0:5000",
// "[::]:5000") yields every address of every interface that is up, filtered by IP family
// when the wildcard was explicit. "localhost" is always included for the port.
func ListenAddrs(addr net.Addr) []string {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		log.Errorf("netutil: failed to parse listener address %q: %v", addr.String(), err)
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		log.Errorf("netutil: could not determine port for listener %q", addr.String())
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(h string) {
		hp := net.JoinHostPort(h, portStr)
		if _, ok := seen[hp]; ok {
			return
		}
		seen[hp] = struct{}{}
		out = append(out, hp)
	}

	var listenIP netip.Addr
	if host != "" {
		ip, err := netip.ParseAddr(host)
		if err != nil {
			// A host name: take it as is
			add(host)
			add("localhost")
			return out
		}
		listenIP = ip.Unmap()
	}

	if listenIP.IsValid() && !listenIP.IsUnspecified() {
		add(listenIP.String())
		if listenIP.IsLoopback() {
			add("localhost")
		}
		return out
	}

	ips, err := interfaceIPs()
	if err != nil {
		log.Errorf("netutil: failed to get network interfaces: %v", err)
	}
	for _, raw := range ips {
		ip, ok := netip.AddrFromSlice(raw)
		if !ok || ip.IsUnspecified() {
			continue
		}
		ip = ip.Unmap()
		if listenIP.IsValid() {
			if listenIP.Is4() && !ip.Is4() {
				continue
			}
			if listenIP.Is6() && ip.Is4() {
				continue
			}
		}
		add(ip.WithZone("").String())
	}
	add("localhost")

	return out
}
