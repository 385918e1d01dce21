package capabilities

import "github.com/lion-dev/lion/internal/domain"

// MemoryCap grants read/write access to a set of shared-memory region
// identifiers, matched exactly (not by prefix, unlike File) per spec.md
// §4.A.
type MemoryCap struct {
	Regions []string
	Read    bool
	Write   bool
}

func (c *MemoryCap) Variant() Variant { return VariantMemory }

func (c *MemoryCap) Permits(req domain.AccessRequest) error {
	if req.Kind != domain.RequestMemory {
		return denied("memory capability cannot permit %s requests", req.Kind)
	}
	if !contains(c.Regions, req.Region) {
		return denied("region %q is not within scope", req.Region)
	}
	if req.Read && !c.Read {
		return denied("read access is not allowed")
	}
	if req.Write && !c.Write {
		return denied("write access is not allowed")
	}
	return nil
}

func (c *MemoryCap) Constrain(constraints []Constraint) (Capability, error) {
	regions := append([]string(nil), c.Regions...)
	read, write := c.Read, c.Write

	for _, con := range constraints {
		if con.Kind != ConstraintMemoryRegion {
			return nil, constraintErr("constraint kind %q does not apply to a memory capability", con.Kind)
		}
		if con.Region != "" {
			if contains(regions, con.Region) {
				regions = []string{con.Region}
			} else {
				regions = nil
			}
		}
		if con.Read.Set {
			read = con.Read.Value && read
		}
		if con.Write.Set {
			write = con.Write.Value && write
		}
	}

	return &MemoryCap{Regions: regions, Read: read, Write: write}, nil
}

func (c *MemoryCap) Split() []Capability {
	var parts []Capability
	if c.Read {
		parts = append(parts, &MemoryCap{Regions: c.Regions, Read: true})
	}
	if c.Write {
		parts = append(parts, &MemoryCap{Regions: c.Regions, Write: true})
	}
	if len(parts) == 0 {
		return []Capability{&MemoryCap{Regions: c.Regions}}
	}
	return parts
}

func (c *MemoryCap) Join(other Capability) (Capability, error) {
	o, ok := other.(*MemoryCap)
	if !ok {
		return nil, compositionErr("cannot join memory capability with %s capability", other.Variant())
	}
	return &MemoryCap{
		Regions: unionStrings(c.Regions, o.Regions),
		Read:    c.Read || o.Read,
		Write:   c.Write || o.Write,
	}, nil
}

func (c *MemoryCap) Includes(other Capability) bool {
	o, ok := other.(*MemoryCap)
	if !ok {
		return false
	}
	if o.Read && !c.Read {
		return false
	}
	if o.Write && !c.Write {
		return false
	}
	for _, r := range o.Regions {
		if !contains(c.Regions, r) {
			return false
		}
	}
	return true
}
