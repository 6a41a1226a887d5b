// Package hexdump formats memory read from a target process.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"gomemd/protocol"
)

// Options customizes the dump.
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// StartAddress is the address of the first byte
	StartAddress uint64

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Modules, when set, annotates 8 byte aligned values that point into one
	// of the modules with module+offset.
	Modules []protocol.ProcessModuleInfo
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		GroupSize:    1,
		ShowASCII:    true,
	}
}

// Dump creates a hex dump of data.
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpAt is Dump with default options starting at address.
func DumpAt(data []byte, address uint64) string {
	options := DefaultOptions()
	options.StartAddress = address
	return Dump(data, options)
}

// DumpToWriter writes a hex dump of data to writer.
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}

	for line, offset := 0, 0; offset < len(data); line, offset = line+1, offset+options.BytesPerLine {
		if options.MaxLines > 0 && line >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			return
		}

		end := min(offset+options.BytesPerLine, len(data))
		writeLine(writer, data[offset:end], options.StartAddress+uint64(offset), options)
	}
}

// hexWidth is the printed width of n bytes of hex.
func hexWidth(n int, options Options) int {
	if n == 0 {
		return 0
	}
	groups := (n + options.GroupSize - 1) / options.GroupSize
	return n*2 + groups - 1
}

func writeLine(writer io.Writer, data []byte, address uint64, options Options) {
	fmt.Fprintf(writer, "%016x  ", address)

	var hex strings.Builder
	for i, b := range data {
		if i > 0 && i%options.GroupSize == 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02x", b)
	}

	// keep the ASCII column aligned on short lines
	fmt.Fprint(writer, hex.String(), strings.Repeat(" ", hexWidth(options.BytesPerLine, options)-hex.Len()))

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")
		for _, b := range data {
			if b >= 0x20 && b < 0x7f {
				writer.Write([]byte{b})
			} else {
				fmt.Fprint(writer, ".")
			}
		}
		if len(options.Modules) > 0 {
			fmt.Fprint(writer, strings.Repeat(" ", options.BytesPerLine-len(data)))
		}
	}

	if len(options.Modules) > 0 {
		var notes []string
		for i := 0; i+8 <= len(data); i += 8 {
			if note, ok := Symbolize(binary.LittleEndian.Uint64(data[i:i+8]), options.Modules); ok {
				notes = append(notes, note)
			}
		}
		if len(notes) > 0 {
			fmt.Fprint(writer, " | ", strings.Join(notes, " "))
		}
	}

	fmt.Fprintln(writer)
}

// Symbolize names ptr as module+offset when it falls inside one of modules.
func Symbolize(ptr uint64, modules []protocol.ProcessModuleInfo) (string, bool) {
	for i := range modules {
		if modules[i].Contains(ptr) {
			return fmt.Sprintf("%s+0x%x", modules[i].Name(), ptr-modules[i].BaseAddress), true
		}
	}
	return "", false
}
