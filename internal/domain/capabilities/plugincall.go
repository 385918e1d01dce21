package capabilities

import "github.com/lion-dev/lion/internal/domain"

// PluginCallCap grants permission to invoke named functions on named
// plugins. An empty Plugins set means allow-any-target; an empty
// Functions set means allow-any-function (spec.md §4.A).
type PluginCallCap struct {
	Plugins   []string
	Functions []string
}

func (c *PluginCallCap) Variant() Variant { return VariantPluginCall }

func (c *PluginCallCap) Permits(req domain.AccessRequest) error {
	if req.Kind != domain.RequestPluginCall {
		return denied("plugin_call capability cannot permit %s requests", req.Kind)
	}
	if len(c.Plugins) > 0 && !contains(c.Plugins, req.Target) {
		return denied("target plugin %q is not whitelisted", req.Target)
	}
	if len(c.Functions) > 0 && !contains(c.Functions, req.Function) {
		return denied("function %q is not whitelisted", req.Function)
	}
	return nil
}

func (c *PluginCallCap) Constrain(constraints []Constraint) (Capability, error) {
	plugins := append([]string(nil), c.Plugins...)
	functions := append([]string(nil), c.Functions...)

	for _, con := range constraints {
		if con.Kind != ConstraintPluginCall {
			return nil, constraintErr("constraint kind %q does not apply to a plugin_call capability", con.Kind)
		}
		if con.PluginID != "" {
			plugins = intersectWhitelist(plugins, con.PluginID)
		}
		if con.Function != "" {
			functions = intersectWhitelist(functions, con.Function)
		}
	}

	return &PluginCallCap{Plugins: plugins, Functions: functions}, nil
}

func (c *PluginCallCap) Split() []Capability {
	return []Capability{&PluginCallCap{Plugins: c.Plugins, Functions: c.Functions}}
}

func (c *PluginCallCap) Join(other Capability) (Capability, error) {
	o, ok := other.(*PluginCallCap)
	if !ok {
		return nil, compositionErr("cannot join plugin_call capability with %s capability", other.Variant())
	}
	// allow-any on either side of a union is absorbing
	if len(c.Plugins) == 0 || len(o.Plugins) == 0 {
		return &PluginCallCap{Functions: unionStrings(c.Functions, o.Functions)}, nil
	}
	if len(c.Functions) == 0 || len(o.Functions) == 0 {
		return &PluginCallCap{Plugins: unionStrings(c.Plugins, o.Plugins)}, nil
	}
	return &PluginCallCap{
		Plugins:   unionStrings(c.Plugins, o.Plugins),
		Functions: unionStrings(c.Functions, o.Functions),
	}, nil
}

func (c *PluginCallCap) Includes(other Capability) bool {
	o, ok := other.(*PluginCallCap)
	if !ok {
		return false
	}
	if len(c.Plugins) > 0 {
		if len(o.Plugins) == 0 {
			return false
		}
		for _, p := range o.Plugins {
			if !contains(c.Plugins, p) {
				return false
			}
		}
	}
	if len(c.Functions) > 0 {
		if len(o.Functions) == 0 {
			return false
		}
		for _, f := range o.Functions {
			if !contains(c.Functions, f) {
				return false
			}
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// intersectWhitelist narrows an allow-any-or-whitelist set down to a
// single value, provided that value was already allowed.
func intersectWhitelist(existing []string, value string) []string {
	if len(existing) == 0 {
		return []string{value}
	}
	if contains(existing, value) {
		return []string{value}
	}
	return nil
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
