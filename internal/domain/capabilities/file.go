package capabilities

import "github.com/lion-dev/lion/internal/domain"

// FileCap grants access to a set of absolute path prefixes under a fixed
// set of operation bits (read/write/execute). Grounded on
// lion_capability/src/model/file.rs in the original source.
type FileCap struct {
	Paths   []string
	Read    bool
	Write   bool
	Execute bool
}

// NewFileCap constructs a file capability over the given path prefixes.
func NewFileCap(paths []string, read, write, execute bool) *FileCap {
	return &FileCap{Paths: append([]string(nil), paths...), Read: read, Write: write, Execute: execute}
}

func (c *FileCap) Variant() Variant { return VariantFile }

func (c *FileCap) Permits(req domain.AccessRequest) error {
	if req.Kind != domain.RequestFile {
		return denied("file capability cannot permit %s requests", req.Kind)
	}
	if !isPathAllowed(req.Path, c.Paths) {
		return denied("path %q is not within any allowed prefix", req.Path)
	}
	if req.Read && !c.Read {
		return denied("read access is not allowed")
	}
	if req.Write && !c.Write {
		return denied("write access is not allowed")
	}
	if req.Execute && !c.Execute {
		return denied("execute access is not allowed")
	}
	return nil
}

func (c *FileCap) Constrain(constraints []Constraint) (Capability, error) {
	paths := append([]string(nil), c.Paths...)
	read, write, execute := c.Read, c.Write, c.Execute

	for _, con := range constraints {
		switch con.Kind {
		case ConstraintFilePath:
			paths = intersectPaths(paths, con.Path)
		case ConstraintFileOperation:
			if con.Read.Set {
				read = con.Read.Value && read
			}
			if con.Write.Set {
				write = con.Write.Value && write
			}
			if con.Execute.Set {
				execute = con.Execute.Value && execute
			}
		default:
			return nil, constraintErr("constraint kind %q does not apply to a file capability", con.Kind)
		}
	}

	return &FileCap{Paths: paths, Read: read, Write: write, Execute: execute}, nil
}

func (c *FileCap) Split() []Capability {
	var parts []Capability
	if c.Read {
		parts = append(parts, &FileCap{Paths: c.Paths, Read: true})
	}
	if c.Write {
		parts = append(parts, &FileCap{Paths: c.Paths, Write: true})
	}
	if c.Execute {
		parts = append(parts, &FileCap{Paths: c.Paths, Execute: true})
	}
	if len(parts) == 0 {
		return []Capability{&FileCap{Paths: c.Paths}}
	}
	return parts
}

func (c *FileCap) Join(other Capability) (Capability, error) {
	o, ok := other.(*FileCap)
	if !ok {
		return nil, compositionErr("cannot join file capability with %s capability", other.Variant())
	}
	return &FileCap{
		Paths:   unionPaths(c.Paths, o.Paths),
		Read:    c.Read || o.Read,
		Write:   c.Write || o.Write,
		Execute: c.Execute || o.Execute,
	}, nil
}

func (c *FileCap) Includes(other Capability) bool {
	o, ok := other.(*FileCap)
	if !ok {
		return false
	}
	if o.Read && !c.Read {
		return false
	}
	if o.Write && !c.Write {
		return false
	}
	if o.Execute && !c.Execute {
		return false
	}
	for _, p := range o.Paths {
		if !isPathAllowed(p, c.Paths) {
			return false
		}
	}
	return true
}

func unionPaths(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, p := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
