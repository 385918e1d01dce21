package capabilities

import "github.com/lion-dev/lion/internal/domain"

// MessageCap grants permission to send to / receive from a set of
// recipients and topics. Empty Recipients or Topics means allow-any,
// matching the PluginCall convention (File, by contrast, treats an empty
// path set as deny-all) (spec.md §4.A). Direction bits
// gate send_direct and subscribe operations respectively.
type MessageCap struct {
	Recipients []string
	Topics     []string
	Send       bool
	Receive    bool
}

func (c *MessageCap) Variant() Variant { return VariantMessage }

func (c *MessageCap) Permits(req domain.AccessRequest) error {
	if req.Kind != domain.RequestMessage {
		return denied("message capability cannot permit %s requests", req.Kind)
	}
	if len(c.Recipients) > 0 && req.Recipient != "" && !contains(c.Recipients, req.Recipient) {
		return denied("recipient %q is not whitelisted", req.Recipient)
	}
	if len(c.Topics) > 0 && req.Topic != "" && !contains(c.Topics, req.Topic) {
		return denied("topic %q is not whitelisted", req.Topic)
	}
	if req.Send && !c.Send {
		return denied("send is not allowed")
	}
	if req.Receive && !c.Receive {
		return denied("receive is not allowed")
	}
	if !req.Send && !req.Receive {
		return denied("no message operation is allowed")
	}
	return nil
}

func (c *MessageCap) Constrain(constraints []Constraint) (Capability, error) {
	recipients := append([]string(nil), c.Recipients...)
	topics := append([]string(nil), c.Topics...)

	for _, con := range constraints {
		if con.Kind != ConstraintMessage {
			return nil, constraintErr("constraint kind %q does not apply to a message capability", con.Kind)
		}
		if con.Recipient != "" {
			recipients = intersectWhitelist(recipients, con.Recipient)
		}
		if con.Topic != "" {
			topics = intersectWhitelist(topics, con.Topic)
		}
	}

	return &MessageCap{Recipients: recipients, Topics: topics, Send: c.Send, Receive: c.Receive}, nil
}

func (c *MessageCap) Split() []Capability {
	var parts []Capability
	if c.Send {
		parts = append(parts, &MessageCap{Recipients: c.Recipients, Topics: c.Topics, Send: true})
	}
	if c.Receive {
		parts = append(parts, &MessageCap{Recipients: c.Recipients, Topics: c.Topics, Receive: true})
	}
	if len(parts) == 0 {
		return []Capability{&MessageCap{Recipients: c.Recipients, Topics: c.Topics}}
	}
	return parts
}

func (c *MessageCap) Join(other Capability) (Capability, error) {
	o, ok := other.(*MessageCap)
	if !ok {
		return nil, compositionErr("cannot join message capability with %s capability", other.Variant())
	}
	var recipients []string
	if len(c.Recipients) > 0 && len(o.Recipients) > 0 {
		recipients = unionStrings(c.Recipients, o.Recipients)
	}
	var topics []string
	if len(c.Topics) > 0 && len(o.Topics) > 0 {
		topics = unionStrings(c.Topics, o.Topics)
	}
	return &MessageCap{
		Recipients: recipients,
		Topics:     topics,
		Send:       c.Send || o.Send,
		Receive:    c.Receive || o.Receive,
	}, nil
}

func (c *MessageCap) Includes(other Capability) bool {
	o, ok := other.(*MessageCap)
	if !ok {
		return false
	}
	if o.Send && !c.Send {
		return false
	}
	if o.Receive && !c.Receive {
		return false
	}
	if len(c.Recipients) > 0 {
		if len(o.Recipients) == 0 {
			return false
		}
		for _, r := range o.Recipients {
			if !contains(c.Recipients, r) {
				return false
			}
		}
	}
	if len(c.Topics) > 0 {
		if len(o.Topics) == 0 {
			return false
		}
		for _, t := range o.Topics {
			if !contains(c.Topics, t) {
				return false
			}
		}
	}
	return true
}
