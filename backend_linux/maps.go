package backend_linux

import (
	"bufio"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gomemd/protocol"
)

// MemoryRegion is one line of /proc/<pid>/maps.
type MemoryRegion struct {
	Start  uint64
	End    uint64
	Perms  string // e.g. "r-xp"
	Offset uint64
	Path   string // empty for anonymous mappings
}

func (r MemoryRegion) IsReadable() bool {
	return len(r.Perms) > 0 && r.Perms[0] == 'r'
}

func (r MemoryRegion) IsWritable() bool {
	return len(r.Perms) > 1 && r.Perms[1] == 'w'
}

// IsFileBacked reports whether the region maps a file on disk, as opposed to
// anonymous memory or pseudo mappings like [heap] and [vdso].
func (r MemoryRegion) IsFileBacked() bool {
	return strings.HasPrefix(r.Path, "/")
}

// ParseMaps parses the /proc/<pid>/maps format. Malformed lines are skipped.
func ParseMaps(r io.Reader) ([]MemoryRegion, error) {
	var regions []MemoryRegion

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		// Address range, e.g. "00400000-0040b000"
		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}

		start, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || end < start {
			continue
		}

		region := MemoryRegion{
			Start: start,
			End:   end,
			Perms: fields[1],
		}
		if len(fields) > 2 {
			region.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
		}
		if len(fields) > 5 {
			// paths may contain spaces; " (deleted)" suffixes are kept
			region.Path = strings.Join(fields[5:], " ")
		}

		regions = append(regions, region)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Start < regions[j].Start
	})
	return regions, nil
}

// ModulesFromMaps groups file backed regions into loaded modules. A module
// starts at its first mapping of file offset 0 and spans up to the end of the
// last mapping of the same file.
func ModulesFromMaps(regions []MemoryRegion) []protocol.ProcessModuleInfo {
	type span struct {
		base, end uint64
	}

	var order []string
	spans := make(map[string]*span)

	for _, region := range regions {
		if !region.IsFileBacked() {
			continue
		}

		s, ok := spans[region.Path]
		if !ok {
			if region.Offset != 0 {
				continue
			}
			s = &span{base: region.Start, end: region.End}
			spans[region.Path] = s
			order = append(order, region.Path)
			continue
		}
		if region.End > s.end {
			s.end = region.End
		}
	}

	modules := make([]protocol.ProcessModuleInfo, 0, len(order))
	for _, path := range order {
		s := spans[path]

		var module protocol.ProcessModuleInfo
		module.SetBaseDllName(filepath.Base(path))
		module.BaseAddress = s.base
		module.ModuleSize = s.end - s.base
		modules = append(modules, module)
	}
	return modules
}
