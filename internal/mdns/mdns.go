package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the DNS-SD service type advertised by IQ sample servers.
	DefaultService = "_iq._tcp"
	DefaultDomain  = "local."
)

// Host represents a discovered IQ endpoint.
type Host struct {
	Instance  string // Advertised name: "iq on pluto"
	Hostname  string // DNS hostname: "pluto.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Addr returns a dialable host:port, preferring IPv4 addresses and falling
// back to the advertised hostname.
func (h Host) Addr() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(h.Addresses) > 0 {
		host = h.Addresses[0].String()
	}
	return net.JoinHostPort(host, strconv.Itoa(h.Port))
}

// Discover browses service in domain until ctx is done and returns the
// deduplicated hosts, sorted by instance name. Empty service and domain
// select the defaults.
func Discover(ctx context.Context, service, domain string) ([]Host, error) {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				h := hostFromEntry(e)
				resultMap[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}

	<-done

	out := make([]Host, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instance != out[j].Instance {
			return out[i].Instance < out[j].Instance
		}
		return out[i].Port < out[j].Port
	})
	return out, nil
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       append([]string{}, e.Text...),
	}
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
