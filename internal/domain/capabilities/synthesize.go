package capabilities

import "github.com/lion-dev/lion/internal/domain"

// SynthesizeFromConstraints builds a transient capability of the variant
// matching kind directly out of a set of policy constraints, rather than
// by narrowing some pre-existing grant. This backs spec.md §4.D step 4:
// "if none [of the plugin's capabilities] permits [the request] and the
// resolver returned AllowWithConstraints, synthesize a transient
// capability from the constraints and re-check" — the constraints alone
// describe the grant, so each field defaults to the most permissive value
// and is narrowed only by constraints that actually mention it. With no
// Path, Host, Port or Region constraint the corresponding File, Network or
// Memory scope stays empty, so that capability permits nothing (fails
// closed). PluginCall and Message capabilities treat an empty scope as
// allow-any, so with no plugin_call or message constraint the synthesized
// capability permits any target, recipient or topic.
func SynthesizeFromConstraints(kind domain.RequestKind, constraints []Constraint) Capability {
	switch kind {
	case domain.RequestFile:
		return synthesizeFile(constraints)
	case domain.RequestNetwork:
		return synthesizeNetwork(constraints)
	case domain.RequestPluginCall:
		return synthesizePluginCall(constraints)
	case domain.RequestMemory:
		return synthesizeMemory(constraints)
	case domain.RequestMessage:
		return synthesizeMessage(constraints)
	default:
		return nil
	}
}

func synthesizeFile(constraints []Constraint) *FileCap {
	cap := &FileCap{Read: true, Write: true, Execute: true}
	for _, con := range constraints {
		switch con.Kind {
		case ConstraintFilePath:
			cap.Paths = append(cap.Paths, con.Path)
		case ConstraintFileOperation:
			cap.Read = flagValue(con.Read, cap.Read)
			cap.Write = flagValue(con.Write, cap.Write)
			cap.Execute = flagValue(con.Execute, cap.Execute)
		}
	}
	return cap
}

func synthesizeNetwork(constraints []Constraint) *NetworkCap {
	cap := &NetworkCap{Connect: true, Listen: true}
	for _, con := range constraints {
		switch con.Kind {
		case ConstraintNetworkHost:
			cap.Hosts = append(cap.Hosts, parseHostSpec(con.Host))
		case ConstraintNetworkPort:
			cap.Ports = append(cap.Ports, PortSpec{Low: con.PortLow, High: con.PortHigh})
		case ConstraintNetworkOperation:
			cap.Connect = flagValue(con.Connect, cap.Connect)
			cap.Listen = flagValue(con.Listen, cap.Listen)
		}
	}
	return cap
}

func synthesizePluginCall(constraints []Constraint) *PluginCallCap {
	cap := &PluginCallCap{}
	for _, con := range constraints {
		if con.Kind != ConstraintPluginCall {
			continue
		}
		if con.PluginID != "" {
			cap.Plugins = append(cap.Plugins, con.PluginID)
		}
		if con.Function != "" {
			cap.Functions = append(cap.Functions, con.Function)
		}
	}
	return cap
}

func synthesizeMemory(constraints []Constraint) *MemoryCap {
	cap := &MemoryCap{Read: true, Write: true}
	for _, con := range constraints {
		if con.Kind != ConstraintMemoryRegion {
			continue
		}
		if con.Region != "" {
			cap.Regions = append(cap.Regions, con.Region)
		}
		cap.Read = flagValue(con.Read, cap.Read)
		cap.Write = flagValue(con.Write, cap.Write)
	}
	return cap
}

func synthesizeMessage(constraints []Constraint) *MessageCap {
	cap := &MessageCap{Send: true, Receive: true}
	for _, con := range constraints {
		if con.Kind != ConstraintMessage {
			continue
		}
		if con.Recipient != "" {
			cap.Recipients = append(cap.Recipients, con.Recipient)
		}
		if con.Topic != "" {
			cap.Topics = append(cap.Topics, con.Topic)
		}
	}
	return cap
}
