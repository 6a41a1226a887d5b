package pod

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Symbolizer names an address, e.g. as module+offset.
type Symbolizer func(addr uint64) (string, bool)

// Fprint writes the fields of the struct v (or *struct) as a table of name,
// offset, value and note. Field tags steer the formatting:
//
//	pod:"ptr"   unsigned value shown as an address and passed to symbolize
//	pod:"cstr"  byte array shown as a NUL terminated string
//	pod:"flags" unsigned value expanded into one row per set bit
//
// symbolize may be nil.
func Fprint(w io.Writer, v any, symbolize Symbolizer) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("nil pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct or *struct, got %s", rv.Kind())
	}
	if symbolize == nil {
		symbolize = func(uint64) (string, bool) { return "", false }
	}

	rt := rv.Type()
	fmt.Fprintf(w, "%s (0x%X bytes)\n", rt.Name(), rt.Size())

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Field", "Offset", "Value", "Note"})
	t.SetStyle(table.StyleLight)

	p := printer{t: t, symbolize: symbolize}
	p.structRows(rv, "", 0)

	t.Render()
	return nil
}

type printer struct {
	t         table.Writer
	symbolize Symbolizer
}

func (p *printer) structRows(rv reflect.Value, prefix string, base uintptr) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		p.fieldRows(rv.Field(i), prefix+field.Name, base+field.Offset, field.Tag.Get("pod"))
	}
}

func (p *printer) fieldRows(fv reflect.Value, name string, offset uintptr, tag string) {
	switch {
	case fv.Kind() == reflect.Struct:
		p.structRows(fv, name+".", offset)

	case fv.Kind() == reflect.Array && fv.Type().Elem().Kind() == reflect.Uint8 && tag == "cstr":
		b := make([]byte, fv.Len())
		reflect.Copy(reflect.ValueOf(b), fv)
		if n := bytes.IndexByte(b, 0); n >= 0 {
			b = b[:n]
		}
		p.row(name, offset, fmt.Sprintf("%q", b), "")

	case fv.Kind() == reflect.Array:
		elemSize := fv.Type().Elem().Size()
		for j := 0; j < fv.Len(); j++ {
			p.fieldRows(fv.Index(j), fmt.Sprintf("%s[%d]", name, j), offset+uintptr(j)*elemSize, tag)
		}

	case isUnsigned(fv.Kind()) && tag == "ptr":
		addr := fv.Uint()
		note, _ := p.symbolize(addr)
		p.row(name, offset, fmt.Sprintf("0x%016X", addr), note)

	case isUnsigned(fv.Kind()) && tag == "flags":
		p.row(name, offset, fmt.Sprintf("0x%X", fv.Uint()), "")
		bits := fv.Type().Bits()
		for b := 0; b < bits; b++ {
			if fv.Uint()>>b&1 == 1 {
				p.row("", offset, fmt.Sprintf("0x%0*X", (bits+3)/4, uint64(1)<<b), fmt.Sprintf("bit %d", b))
			}
		}

	default:
		p.row(name, offset, scalar(fv), stringerNote(fv))
	}
}

func (p *printer) row(name string, offset uintptr, value, note string) {
	p.t.AppendRow(table.Row{name, fmt.Sprintf("0x%04X", offset), value, note})
}

func isUnsigned(kind reflect.Kind) bool {
	switch kind {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func scalar(fv reflect.Value) string {
	switch {
	case isUnsigned(fv.Kind()):
		return fmt.Sprintf("%d (0x%X)", fv.Uint(), fv.Uint())
	case fv.CanInt():
		return fmt.Sprintf("%d", fv.Int())
	case fv.CanFloat():
		return fmt.Sprintf("%g", fv.Float())
	case fv.Kind() == reflect.Bool:
		return fmt.Sprintf("%t", fv.Bool())
	default:
		return fmt.Sprintf("%v", fv)
	}
}

func stringerNote(fv reflect.Value) string {
	if !fv.CanInterface() {
		return ""
	}
	s, ok := fv.Interface().(fmt.Stringer)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s.String())
}
