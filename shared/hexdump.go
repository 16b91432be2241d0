package shared

import (
	"fmt"
	"strconv"
	"strings"
)

const dumpWidth = 16

// HexDump renders a buffer as offset-prefixed hex lines with a printable
// column, suitable for debug-level packet logging.
func HexDump(data []byte) string {
	var b strings.Builder
	for offset := 0; offset < len(data); offset += dumpWidth {
		end := offset + dumpWidth
		if end > len(data) {
			end = len(data)
		}
		appendDumpLine(&b, data[offset:end], offset)
	}
	return b.String()
}

func appendDumpLine(b *strings.Builder, line []byte, offset int) {
	fmt.Fprintf(b, "(%04X) ", offset)
	for i := 0; i < dumpWidth; i++ {
		if i == 8 {
			// Visual aid - spacing between groups of 8 bytes.
			b.WriteString("  ")
		}
		if i < len(line) {
			fmt.Fprintf(b, "%02x ", line[i])
		} else {
			b.WriteString("   ")
		}
	}
	b.WriteString("    ")
	for _, c := range line {
		if strconv.IsPrint(rune(c)) && c < 0x80 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	b.WriteByte('\n')
}
