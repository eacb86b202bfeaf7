package screenlogic

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// GatewayInfo describes a controller found on the network.
type GatewayInfo struct {
	IP      string `json:"ip" yaml:"ip"`
	Port    int    `json:"port" yaml:"port"`
	Type    int    `json:"type" yaml:"type"`
	Subtype int    `json:"subtype" yaml:"subtype"`
	Name    string `json:"name" yaml:"name"`
}

// OK reports whether the record names a reachable endpoint.
func (g GatewayInfo) OK() bool {
	return g.IP != "" && g.Port > 0 && g.Port <= 65535
}

// Address returns the host:port form of the endpoint.
func (g GatewayInfo) Address() string {
	return net.JoinHostPort(g.IP, strconv.Itoa(g.Port))
}

// Discoverer locates a controller.
type Discoverer interface {
	Discover(ctx context.Context) (GatewayInfo, error)
}

// StaticDiscoverer returns a fixed, configured endpoint.
type StaticDiscoverer struct {
	Info GatewayInfo
}

// Ensure StaticDiscoverer implements Discoverer.
var _ Discoverer = StaticDiscoverer{}

// Discover returns the configured endpoint, or ErrDiscoveryFailed when it is
// incomplete.
func (d StaticDiscoverer) Discover(_ context.Context) (GatewayInfo, error) {
	if !d.Info.OK() {
		return GatewayInfo{}, fmt.Errorf("%w: no usable endpoint configured (ip %q, port %d)",
			ErrDiscoveryFailed, d.Info.IP, d.Info.Port)
	}
	return d.Info, nil
}

// DiscovererFunc adapts a function to the Discoverer interface.
type DiscovererFunc func(ctx context.Context) (GatewayInfo, error)

// Discover calls f.
func (f DiscovererFunc) Discover(ctx context.Context) (GatewayInfo, error) {
	return f(ctx)
}
