// Package snapshot saves the memory of the modules of a process to a directory
// and serves reads from it later without a driver.
//
// A snapshot directory holds snapshot.yaml with the metadata and one
// blob_0x<address>_<size>.bin file per readable region.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gomemd/protocol"
	"gomemd/search"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"gopkg.in/yaml.v3"
)

const (
	metadataFile = "snapshot.yaml"
	pageSize     = 0x1000
	chunkSize    = 1 << 20
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "snapshot"))

// Module is a module of the captured process.
type Module struct {
	Name string `yaml:"name"`
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

// Region is a range of memory that was readable when the snapshot was taken.
type Region struct {
	Address uint64 `yaml:"address"`
	Size    uint64 `yaml:"size"`
}

func (r Region) end() uint64 {
	return r.Address + r.Size
}

func (r Region) filename() string {
	return fmt.Sprintf("blob_0x%x_%d.bin", r.Address, r.Size)
}

// Metadata describes a snapshot.
type Metadata struct {
	ProcessID protocol.ProcessID `yaml:"pid"`
	Name      string             `yaml:"name"`
	Captured  time.Time          `yaml:"captured"`
	Modules   []Module           `yaml:"modules"`
	Regions   []Region           `yaml:"regions"`
}

// Snapshot is a saved or loaded snapshot. It implements search.Reader.
type Snapshot struct {
	Metadata
	blobs map[uint64][]byte
}

var _ search.Reader = (*Snapshot)(nil)

// Save reads every module of target through r and writes the readable parts to
// dirname. Unreadable pages are left out.
func Save(dirname string, r search.Reader, target search.Target, name string, modules []protocol.ProcessModuleInfo) (*Snapshot, error) {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	log.Infoln("Saving process", target.ProcessID, "to directory:", dirname)

	snap := &Snapshot{
		Metadata: Metadata{
			ProcessID: target.ProcessID,
			Name:      name,
			Captured:  time.Now().UTC().Truncate(time.Second),
		},
		blobs: make(map[uint64][]byte),
	}

	for i := range modules {
		module := &modules[i]
		snap.Modules = append(snap.Modules, Module{Name: module.Name(), Base: module.BaseAddress, Size: module.ModuleSize})
	}

	// modules are captured in address order so that neighbours end up in one region
	order := make([]*protocol.ProcessModuleInfo, len(modules))
	for i := range modules {
		order[i] = &modules[i]
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].BaseAddress < order[j].BaseAddress
	})

	c := capture{snap: snap}
	var covered uint64
	for _, module := range order {
		start, end := max(module.BaseAddress, covered), module.BaseAddress+module.ModuleSize
		if start >= end {
			continue
		}
		if err := c.read(r, target, start, end-start); err != nil {
			return nil, fmt.Errorf("failed to capture %s: %w", module.Name(), err)
		}
		covered = end
	}
	c.flush()

	for _, region := range snap.Regions {
		if err := os.WriteFile(filepath.Join(dirname, region.filename()), snap.blobs[region.Address], 0644); err != nil {
			return nil, fmt.Errorf("failed to write blob: %w", err)
		}
	}

	metadata, err := yaml.Marshal(&snap.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, metadataFile), metadata, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	log.Infoln("Saved", len(snap.Regions), "regions of", len(snap.Modules), "modules")
	return snap, nil
}

// Load reads a snapshot written by Save.
func Load(dirname string) (*Snapshot, error) {
	metadata, err := os.ReadFile(filepath.Join(dirname, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	snap := &Snapshot{blobs: make(map[uint64][]byte)}
	if err := yaml.Unmarshal(metadata, &snap.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	sort.Slice(snap.Regions, func(i, j int) bool {
		return snap.Regions[i].Address < snap.Regions[j].Address
	})

	for _, region := range snap.Regions {
		data, err := os.ReadFile(filepath.Join(dirname, region.filename()))
		if err != nil {
			return nil, fmt.Errorf("failed to read blob: %w", err)
		}
		if uint64(len(data)) != region.Size {
			return nil, fmt.Errorf("blob %s holds %d bytes", region.filename(), len(data))
		}
		snap.blobs[region.Address] = data
	}

	return snap, nil
}

// ModuleList returns the modules of the captured process.
func (s *Snapshot) ModuleList() []protocol.ProcessModuleInfo {
	modules := make([]protocol.ProcessModuleInfo, len(s.Modules))
	for i, module := range s.Modules {
		modules[i].SetBaseDllName(module.Name)
		modules[i].BaseAddress = module.Base
		modules[i].ModuleSize = module.Size
	}
	return modules
}

// capture collects contiguous readable memory into regions.
type capture struct {
	snap  *Snapshot
	start uint64
	data  []byte
}

func (c *capture) append(address uint64, data []byte) {
	if len(c.data) > 0 && c.start+uint64(len(c.data)) != address {
		c.flush()
	}
	if len(c.data) == 0 {
		c.start = address
	}
	c.data = append(c.data, data...)
}

func (c *capture) flush() {
	if len(c.data) == 0 {
		return
	}
	region := Region{Address: c.start, Size: uint64(len(c.data))}
	c.snap.Regions = append(c.snap.Regions, region)
	c.snap.blobs[region.Address] = c.data
	c.data = nil
}

func (c *capture) read(r search.Reader, target search.Target, start, size uint64) error {
	end := start + size
	for addr := start; addr < end; {
		buf := make([]byte, min(chunkSize, end-addr))
		err := r.Read(target.ProcessID, target.DirectoryTable, addr, buf)
		switch {
		case err == nil:
			c.append(addr, buf)
		case search.Unreadable(err):
			if err := c.readPages(r, target, addr, buf); err != nil {
				return err
			}
		default:
			return err
		}
		addr += uint64(len(buf))
	}
	return nil
}

func (c *capture) readPages(r search.Reader, target search.Target, addr uint64, buf []byte) error {
	for off := 0; off < len(buf); {
		pageEnd := int((addr+uint64(off))/pageSize*pageSize + pageSize - addr)
		if pageEnd > len(buf) {
			pageEnd = len(buf)
		}

		page := buf[off:pageEnd]
		err := r.Read(target.ProcessID, target.DirectoryTable, addr+uint64(off), page)
		switch {
		case err == nil:
			c.append(addr+uint64(off), page)
		case search.Unreadable(err):
			c.flush()
		default:
			return err
		}
		off = pageEnd
	}
	return nil
}
