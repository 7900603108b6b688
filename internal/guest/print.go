package guest

import (
	"context"
	"unicode/utf8"

	"github.com/slok/scriptbox/internal/abi"
)

// printFrameOverhead is the output buffer space reserved for the host call
// envelope of a print.
const printFrameOverhead = 64

// PrintString relays text to the host print function and returns the host
// status, the bytes printed or -1 on failure. Text that doesn't fit in the
// output buffer is relayed in chunks split on rune boundaries.
func (p *Program) PrintString(ctx context.Context, s string) int64 {
	chunkSize := int(p.env.Layout().Output.Size) - printFrameOverhead
	if chunkSize < utf8.UTFMax {
		return -1
	}

	var total int64
	for len(s) > 0 {
		end := min(len(s), chunkSize)
		for end > 0 && end < len(s) && !utf8.RuneStart(s[end]) {
			end--
		}
		// No rune start in the chunk, split the bytes as they are.
		if end == 0 {
			end = min(len(s), chunkSize)
		}

		v, err := p.env.CallHost(ctx, abi.FuncHostPrint, abi.TypeInt, abi.String(s[:end]))
		if err != nil {
			return -1
		}
		n, _ := v.AsInt()
		total += n
		s = s[end:]
	}

	return total
}

// PrintChar relays a single character to the host print function.
func (p *Program) PrintChar(ctx context.Context, c byte) int64 {
	return p.PrintString(ctx, string([]byte{c}))
}
