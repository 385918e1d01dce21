package capabilities

import (
	"strings"

	"github.com/lion-dev/lion/internal/domain"
)

// HostSpec describes the host scope of a NetworkCap: either a literal IP
// address, a domain (matched exactly or as a proper subdomain), or Any.
type HostSpec struct {
	Any    bool
	IP     string
	Domain string
}

// PortSpec describes the port scope of a NetworkCap: a single port, an
// inclusive range, or Any.
type PortSpec struct {
	Any  bool
	Low  uint16
	High uint16 // Low == High for a single port
}

func (p PortSpec) allows(port uint16) bool {
	if p.Any {
		return true
	}
	return port >= p.Low && port <= p.High
}

// NetworkCap grants access to a host/port scope under connect/listen
// operation bits. Grounded on lion_capability/src/model/network.rs.
type NetworkCap struct {
	Hosts   []HostSpec
	Ports   []PortSpec
	Connect bool
	Listen  bool
}

func (c *NetworkCap) Variant() Variant { return VariantNetwork }

func (c *NetworkCap) hostAllowed(host string) bool {
	for _, h := range c.Hosts {
		if h.Any {
			return true
		}
		if h.IP != "" && h.IP == host {
			return true
		}
		if h.Domain != "" {
			if h.Domain == host {
				return true
			}
			if strings.HasSuffix(host, "."+h.Domain) {
				return true
			}
		}
	}
	return false
}

func (c *NetworkCap) portAllowed(port uint16) bool {
	for _, p := range c.Ports {
		if p.allows(port) {
			return true
		}
	}
	return false
}

func (c *NetworkCap) Permits(req domain.AccessRequest) error {
	if req.Kind != domain.RequestNetwork {
		return denied("network capability cannot permit %s requests", req.Kind)
	}
	if !c.hostAllowed(req.Host) {
		return denied("host %q is not within any allowed scope", req.Host)
	}
	if !c.portAllowed(req.Port) {
		return denied("port %d is not within any allowed scope", req.Port)
	}
	if req.Connect && !c.Connect {
		return denied("connect operation is not allowed")
	}
	if req.Listen && !c.Listen {
		return denied("listen operation is not allowed")
	}
	return nil
}

func (c *NetworkCap) Constrain(constraints []Constraint) (Capability, error) {
	hosts := append([]HostSpec(nil), c.Hosts...)
	ports := append([]PortSpec(nil), c.Ports...)
	connect, listen := c.Connect, c.Listen

	for _, con := range constraints {
		switch con.Kind {
		case ConstraintNetworkHost:
			hosts = intersectHosts(hosts, con.Host)
		case ConstraintNetworkPort:
			ports = intersectPorts(ports, PortSpec{Low: con.PortLow, High: con.PortHigh})
		case ConstraintNetworkOperation:
			if con.Connect.Set {
				connect = con.Connect.Value && connect
			}
			if con.Listen.Set {
				listen = con.Listen.Value && listen
			}
		default:
			return nil, constraintErr("constraint kind %q does not apply to a network capability", con.Kind)
		}
	}

	return &NetworkCap{Hosts: hosts, Ports: ports, Connect: connect, Listen: listen}, nil
}

func (c *NetworkCap) Split() []Capability {
	var parts []Capability
	if c.Connect {
		parts = append(parts, &NetworkCap{Hosts: c.Hosts, Ports: c.Ports, Connect: true})
	}
	if c.Listen {
		parts = append(parts, &NetworkCap{Hosts: c.Hosts, Ports: c.Ports, Listen: true})
	}
	if len(parts) == 0 {
		return []Capability{&NetworkCap{Hosts: c.Hosts, Ports: c.Ports}}
	}
	return parts
}

func (c *NetworkCap) Join(other Capability) (Capability, error) {
	o, ok := other.(*NetworkCap)
	if !ok {
		return nil, compositionErr("cannot join network capability with %s capability", other.Variant())
	}
	return &NetworkCap{
		Hosts:   unionHosts(c.Hosts, o.Hosts),
		Ports:   unionPorts(c.Ports, o.Ports),
		Connect: c.Connect || o.Connect,
		Listen:  c.Listen || o.Listen,
	}, nil
}

func (c *NetworkCap) Includes(other Capability) bool {
	o, ok := other.(*NetworkCap)
	if !ok {
		return false
	}
	if o.Connect && !c.Connect {
		return false
	}
	if o.Listen && !c.Listen {
		return false
	}
	for _, h := range o.Hosts {
		probe := h.IP
		if probe == "" {
			probe = h.Domain
		}
		if !c.hostAllowed(probe) && !h.Any {
			return false
		}
		if h.Any && !anyHost(c.Hosts) {
			return false
		}
	}
	for _, p := range o.Ports {
		if p.Any {
			if !anyPort(c.Ports) {
				return false
			}
			continue
		}
		if !c.portAllowed(p.Low) || !c.portAllowed(p.High) {
			return false
		}
	}
	return true
}

func anyHost(hosts []HostSpec) bool {
	for _, h := range hosts {
		if h.Any {
			return true
		}
	}
	return false
}

func anyPort(ports []PortSpec) bool {
	for _, p := range ports {
		if p.Any {
			return true
		}
	}
	return false
}

// intersectHosts narrows the host scope to whichever is more specific
// between the existing scope and the constraint's single host string. The
// constraint host may itself be "*" for Any, an IP literal, or a domain.
func intersectHosts(existing []HostSpec, constraint string) []HostSpec {
	target := parseHostSpec(constraint)
	if target.Any {
		return existing
	}
	var out []HostSpec
	for _, h := range existing {
		if h.Any {
			out = append(out, target)
			continue
		}
		if h == target {
			out = append(out, h)
		}
	}
	return out
}

func parseHostSpec(s string) HostSpec {
	if s == "*" || s == "" {
		return HostSpec{Any: true}
	}
	if looksLikeIP(s) {
		return HostSpec{IP: s}
	}
	return HostSpec{Domain: s}
}

func looksLikeIP(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func unionHosts(a, b []HostSpec) []HostSpec {
	out := append([]HostSpec(nil), a...)
	for _, h := range b {
		dup := false
		for _, existing := range out {
			if existing == h {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, h)
		}
	}
	return out
}

func intersectPorts(existing []PortSpec, constraint PortSpec) []PortSpec {
	var out []PortSpec
	for _, p := range existing {
		lo, hi := constraint.Low, constraint.High
		if p.Any {
			out = append(out, constraint)
			continue
		}
		newLow := maxU16(p.Low, lo)
		newHigh := minU16(p.High, hi)
		if newLow <= newHigh {
			out = append(out, PortSpec{Low: newLow, High: newHigh})
		}
	}
	return out
}

func unionPorts(a, b []PortSpec) []PortSpec {
	return append(append([]PortSpec(nil), a...), b...)
}

func maxU16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func minU16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}
