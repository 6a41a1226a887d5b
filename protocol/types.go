package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// ProcessID identifies a process on the target system.
type ProcessID uint32

// VersionInfo describes a component taking part in the session.
type VersionInfo struct {
	ApplicationName [0x20]byte
	VersionMajor    uint32
	VersionMinor    uint32
	VersionPatch    uint32
}

// NewVersionInfo builds a VersionInfo. Names longer than the fixed buffer are truncated.
func NewVersionInfo(name string, major, minor, patch uint32) VersionInfo {
	info := VersionInfo{
		VersionMajor: major,
		VersionMinor: minor,
		VersionPatch: patch,
	}
	info.SetApplicationName(name)
	return info
}

// SetApplicationName stores name, truncated to leave room for a NUL terminator.
func (v *VersionInfo) SetApplicationName(name string) {
	v.ApplicationName = [0x20]byte{}
	copy(v.ApplicationName[:len(v.ApplicationName)-1], name)
}

// Name returns the application name up to the first NUL byte.
func (v VersionInfo) Name() string {
	return cString(v.ApplicationName[:])
}

// Semver returns "major.minor.patch".
func (v VersionInfo) Semver() string {
	return fmt.Sprintf("%d.%d.%d", v.VersionMajor, v.VersionMinor, v.VersionPatch)
}

func (v VersionInfo) String() string {
	name := v.Name()
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("%s %s", name, v.Semver())
}

// DirectoryTableKind tags a DirectoryTableType.
type DirectoryTableKind uint32

const (
	// DirectoryTableDefault uses the paging root the system knows for the target process.
	DirectoryTableDefault DirectoryTableKind = iota
	// DirectoryTableExplicit uses a caller supplied paging root.
	DirectoryTableExplicit
)

// DirectoryTableType selects the paging root used to translate addresses.
// It is a value type: copies are passed across the command boundary and nothing
// keeps a reference to the caller's value.
type DirectoryTableType struct {
	Kind               DirectoryTableKind
	DirectoryTableBase uint64
}

func (d DirectoryTableType) IsDefault() bool {
	return d.Kind == DirectoryTableDefault
}

func (d DirectoryTableType) String() string {
	switch d.Kind {
	case DirectoryTableDefault:
		return "default"
	case DirectoryTableExplicit:
		return fmt.Sprintf("explicit(0x%X)", d.DirectoryTableBase)
	default:
		return fmt.Sprintf("DirectoryTableKind(%d)", uint32(d.Kind))
	}
}

// ProcessInfo is a single process record produced by the process list command.
// ImageBaseName is not guaranteed to be NUL terminated.
type ProcessInfo struct {
	ProcessID          ProcessID
	ImageBaseName      [0x0F]byte
	DirectoryTableBase uint64
}

// SetImageBaseName stores name, truncated to the fixed buffer.
func (p *ProcessInfo) SetImageBaseName(name string) {
	p.ImageBaseName = [0x0F]byte{}
	copy(p.ImageBaseName[:], name)
}

// Name returns a copy of the image base name.
func (p *ProcessInfo) Name() string {
	return cString(p.ImageBaseName[:])
}

// ProcessModuleInfo is a single module record produced by the module list command.
type ProcessModuleInfo struct {
	BaseDllName [0x100]byte
	BaseAddress uint64
	ModuleSize  uint64
}

// SetBaseDllName stores name, truncated to leave room for a NUL terminator.
func (m *ProcessModuleInfo) SetBaseDllName(name string) {
	m.BaseDllName = [0x100]byte{}
	copy(m.BaseDllName[:len(m.BaseDllName)-1], name)
}

// Name returns a copy of the module name.
func (m *ProcessModuleInfo) Name() string {
	return cString(m.BaseDllName[:])
}

// Contains reports whether addr lies inside the module image.
func (m *ProcessModuleInfo) Contains(addr uint64) bool {
	return addr >= m.BaseAddress && addr-m.BaseAddress < m.ModuleSize
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.Clone(string(b))
}
