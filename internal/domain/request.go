package domain

// RequestKind discriminates the variants of AccessRequest. Capabilities and
// policy objects are matched against a request by kind before any
// finer-grained scope comparison happens.
type RequestKind string

const (
	RequestFile       RequestKind = "file"
	RequestNetwork    RequestKind = "network"
	RequestPluginCall RequestKind = "plugin_call"
	RequestMemory     RequestKind = "memory"
	RequestMessage    RequestKind = "message"
	RequestCustom     RequestKind = "custom"
)

// AccessRequest is the immutable tagged sum describing one mediated
// operation a plugin wants to perform. Exactly one of the per-kind fields
// is meaningful, selected by Kind.
type AccessRequest struct {
	Kind RequestKind

	// File
	Path    string
	Read    bool
	Write   bool
	Execute bool

	// Network
	Host    string
	Port    uint16
	Connect bool
	Listen  bool

	// PluginCall
	Target   string
	Function string

	// Memory (reuses Read/Write above)
	Region string

	// Message
	Recipient string
	Topic     string
	Send      bool
	Receive   bool

	// Custom
	CustomType       string
	CustomAttributes map[string]string
}

// FileRequest builds an AccessRequest for a file operation.
func FileRequest(path string, read, write, execute bool) AccessRequest {
	return AccessRequest{Kind: RequestFile, Path: path, Read: read, Write: write, Execute: execute}
}

// NetworkRequest builds an AccessRequest for a network operation.
func NetworkRequest(host string, port uint16, connect, listen bool) AccessRequest {
	return AccessRequest{Kind: RequestNetwork, Host: host, Port: port, Connect: connect, Listen: listen}
}

// PluginCallRequest builds an AccessRequest for an inter-plugin call.
func PluginCallRequest(target, function string) AccessRequest {
	return AccessRequest{Kind: RequestPluginCall, Target: target, Function: function}
}

// MemoryRequest builds an AccessRequest for a shared-memory region access.
func MemoryRequest(region string, read, write bool) AccessRequest {
	return AccessRequest{Kind: RequestMemory, Region: region, Read: read, Write: write}
}

// MessageRequest builds an AccessRequest for a message-bus operation.
// send and receive mirror FileRequest's per-operation bits: a publish or
// direct send sets send, a subscribe sets receive.
func MessageRequest(recipient, topic string, send, receive bool) AccessRequest {
	return AccessRequest{Kind: RequestMessage, Recipient: recipient, Topic: topic, Send: send, Receive: receive}
}

// CustomRequest builds an AccessRequest for an extension-defined operation.
func CustomRequest(customType string, attrs map[string]string) AccessRequest {
	return AccessRequest{Kind: RequestCustom, CustomType: customType, CustomAttributes: attrs}
}
