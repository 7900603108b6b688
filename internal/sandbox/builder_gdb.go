//go:build gdb

package sandbox

// WithDebugPort enables the guest debugging endpoint on a port.
func (b *Builder) WithDebugPort(port uint16) *Builder {
	b.cfg.DebugPort = &port
	return b
}
