package capabilities

var (
	_ Capability = (*FileCap)(nil)
	_ Capability = (*NetworkCap)(nil)
	_ Capability = (*PluginCallCap)(nil)
	_ Capability = (*MemoryCap)(nil)
	_ Capability = (*MessageCap)(nil)
)
