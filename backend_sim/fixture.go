package backend_sim

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"gomemd/protocol"

	"gopkg.in/yaml.v3"
)

// Fixture describes the initial state of a simulated driver.
//
//	driver:
//	  name: gomemd-sim
//	  version: [1, 2, 0]
//	  features: [PROCESS_LIST, MEMORY_READ]
//	processes:
//	  - pid: 4
//	    name: System
//	    modules:
//	      - {name: ntoskrnl.exe, base: 0xfffff80000000000, size: 0x1000}
//	    memory:
//	      - {address: 0x10000, data: "efbeadde"}
type Fixture struct {
	Driver    FixtureDriver    `yaml:"driver"`
	Processes []FixtureProcess `yaml:"processes"`
}

type FixtureDriver struct {
	Name     string   `yaml:"name"`
	Version  []uint32 `yaml:"version"`
	Features []string `yaml:"features"`
}

type FixtureProcess struct {
	PID     uint32          `yaml:"pid"`
	Name    string          `yaml:"name"`
	Modules []FixtureModule `yaml:"modules"`
	Memory  []FixtureMemory `yaml:"memory"`
}

type FixtureModule struct {
	Name string `yaml:"name"`
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
}

type FixtureMemory struct {
	Address uint64 `yaml:"address"`
	Size    uint64 `yaml:"size"`
	Data    string `yaml:"data"`
}

// LoadFixtureFile builds a driver from a YAML fixture on disk.
func LoadFixtureFile(path string) (*Driver, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer file.Close()

	return LoadFixture(file)
}

// LoadFixture builds a driver from a YAML fixture.
func LoadFixture(r io.Reader) (*Driver, error) {
	var fixture Fixture
	if err := yaml.NewDecoder(r).Decode(&fixture); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	return fixture.Build()
}

// Build creates the driver described by the fixture.
func (f *Fixture) Build() (*Driver, error) {
	var opts []Option

	if f.Driver.Name != "" || len(f.Driver.Version) > 0 {
		var v [3]uint32
		copy(v[:], f.Driver.Version)
		name := f.Driver.Name
		if name == "" {
			name = "gomemd-sim"
		}
		opts = append(opts, WithVersion(protocol.NewVersionInfo(name, v[0], v[1], v[2])))
	}

	if f.Driver.Features != nil {
		var features protocol.DriverFeature
		for _, name := range f.Driver.Features {
			feature, ok := protocol.ParseFeature(name)
			if !ok {
				return nil, fmt.Errorf("unknown feature %q", name)
			}
			features |= feature
		}
		opts = append(opts, WithFeatures(features))
	}

	d := New(opts...)
	for _, proc := range f.Processes {
		pid := protocol.ProcessID(proc.PID)
		d.Spawn(pid, proc.Name)

		for _, module := range proc.Modules {
			if err := d.AddModule(pid, module.Name, module.Base, module.Size); err != nil {
				return nil, err
			}
		}

		for _, region := range proc.Memory {
			data, err := hex.DecodeString(strings.ReplaceAll(region.Data, " ", ""))
			if err != nil {
				return nil, fmt.Errorf("process %d region 0x%X: invalid data: %w", pid, region.Address, err)
			}
			if err := d.Map(pid, region.Address, region.Size); err != nil {
				return nil, err
			}
			if err := d.Poke(pid, region.Address, data); err != nil {
				return nil, err
			}
		}
	}

	return d, nil
}
