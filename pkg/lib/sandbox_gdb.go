//go:build gdb

package lib

// WithDebugPort enables the guest debugging endpoint on a port.
func (b *Builder) WithDebugPort(port uint16) *Builder {
	b.b.WithDebugPort(port)
	return b
}
