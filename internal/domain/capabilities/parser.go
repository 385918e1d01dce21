package capabilities

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseConstraint parses one constraint string per the grammar in
// spec.md §6:
//
//	constraint := type ":" value
//
// Known types are file_path, file_operation, network_host, network_port,
// network_operation, plugin_call, memory_region, message, resource_usage;
// anything else is accepted as a Custom constraint. Per the Open Question
// in spec.md §9, every boolean kv is parsed honestly — read is whatever
// the string says, never forced to true.
func ParseConstraint(s string) (Constraint, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok {
		return Constraint{}, fmt.Errorf("malformed constraint %q: missing \":\"", s)
	}

	switch ConstraintKind(kind) {
	case ConstraintFilePath:
		return Constraint{Kind: ConstraintFilePath, Path: value}, nil

	case ConstraintFileOperation:
		flags, err := parseBoolKVs(value, "read", "write", "execute")
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{
			Kind:    ConstraintFileOperation,
			Read:    flags["read"],
			Write:   flags["write"],
			Execute: flags["execute"],
		}, nil

	case ConstraintNetworkHost:
		return Constraint{Kind: ConstraintNetworkHost, Host: value}, nil

	case ConstraintNetworkPort:
		low, high, err := parsePortValue(value)
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{Kind: ConstraintNetworkPort, PortLow: low, PortHigh: high}, nil

	case ConstraintNetworkOperation:
		flags, err := parseBoolKVs(value, "connect", "listen", "bind")
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{
			Kind:    ConstraintNetworkOperation,
			Connect: flags["connect"],
			Listen:  flags["listen"],
			Bind:    flags["bind"],
		}, nil

	case ConstraintPluginCall:
		pluginID, function, ok := strings.Cut(value, ":")
		if !ok {
			return Constraint{}, fmt.Errorf("malformed plugin_call constraint %q: expected plugin_id:function", value)
		}
		return Constraint{Kind: ConstraintPluginCall, PluginID: pluginID, Function: function}, nil

	case ConstraintMemoryRegion:
		region, rest, ok := strings.Cut(value, ":")
		if !ok {
			return Constraint{}, fmt.Errorf("malformed memory_region constraint %q: expected region_id:kv,...", value)
		}
		flags, err := parseBoolKVs(rest, "read", "write")
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{Kind: ConstraintMemoryRegion, Region: region, Read: flags["read"], Write: flags["write"]}, nil

	case ConstraintMessage:
		recipient, topic, ok := strings.Cut(value, ":")
		if !ok {
			return Constraint{}, fmt.Errorf("malformed message constraint %q: expected recipient:topic", value)
		}
		return Constraint{Kind: ConstraintMessage, Recipient: recipient, Topic: topic}, nil

	case ConstraintResourceUsage:
		usage, err := parseResourceUsage(value)
		if err != nil {
			return Constraint{}, err
		}
		usage.Kind = ConstraintResourceUsage
		return usage, nil

	default:
		return Constraint{Kind: ConstraintCustom, CustomType: kind, CustomValue: value}, nil
	}
}

// ParseConstraints parses a slice of constraint strings in order,
// stopping at the first parse error.
func ParseConstraints(strs []string) ([]Constraint, error) {
	out := make([]Constraint, 0, len(strs))
	for _, s := range strs {
		c, err := ParseConstraint(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// parseBoolKVs parses a comma-separated "key=bool" list, honoring only
// the given allowed keys, and returns the BoolFlag for each. Keys not
// present in the input are left unset.
func parseBoolKVs(s string, allowed ...string) (map[string]BoolFlag, error) {
	result := make(map[string]BoolFlag, len(allowed))
	if strings.TrimSpace(s) == "" {
		return result, nil
	}
	for _, kv := range strings.Split(s, ",") {
		key, valStr, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("malformed key=value pair %q", kv)
		}
		key = strings.TrimSpace(key)
		if !contains(allowed, key) {
			return nil, fmt.Errorf("unknown flag %q in constraint (expected one of %v)", key, allowed)
		}
		val, err := strconv.ParseBool(strings.TrimSpace(valStr))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean value %q for %q: %w", valStr, key, err)
		}
		result[key] = BoolFlag{Set: true, Value: val}
	}
	return result, nil
}

// parsePortValue accepts "N" for a single port or "LOW-HIGH" for a range.
func parsePortValue(value string) (low, high uint16, err error) {
	if lo, hi, ok := strings.Cut(value, "-"); ok {
		loN, err := strconv.ParseUint(lo, 10, 16)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port range %q: %w", value, err)
		}
		hiN, err := strconv.ParseUint(hi, 10, 16)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port range %q: %w", value, err)
		}
		return uint16(loN), uint16(hiN), nil
	}
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port %q: %w", value, err)
	}
	return uint16(n), uint16(n), nil
}

func parseResourceUsage(s string) (Constraint, error) {
	var c Constraint
	if strings.TrimSpace(s) == "" {
		return c, nil
	}
	for _, kv := range strings.Split(s, ",") {
		key, valStr, ok := strings.Cut(kv, "=")
		if !ok {
			return c, fmt.Errorf("malformed key=value pair %q", kv)
		}
		key = strings.TrimSpace(key)
		val, err := strconv.ParseFloat(strings.TrimSpace(valStr), 64)
		if err != nil {
			return c, fmt.Errorf("invalid numeric value %q for %q: %w", valStr, key, err)
		}
		switch key {
		case "max_cpu":
			c.MaxCPU = val
		case "max_memory":
			c.MaxMemory = val
		case "max_network":
			c.MaxNetwork = val
		case "max_disk":
			c.MaxDisk = val
		default:
			return c, fmt.Errorf("unknown resource_usage key %q", key)
		}
	}
	return c, nil
}
