// Package backend_sim is an in-process driver that keeps its own processes,
// paging roots and address spaces. It implements the full command set,
// including explicit directory table bases, and is used to exercise clients
// without a privileged driver.
package backend_sim

import (
	"fmt"
	"sort"
	"sync"

	"gomemd/backend"
	"gomemd/protocol"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Name is the registry name of the simulated backend.
const Name = "sim"

// AllFeatures is the feature set advertised by default.
const AllFeatures = protocol.FeatureProcessList |
	protocol.FeatureProcessModules |
	protocol.FeatureMemoryRead |
	protocol.FeatureMemoryWrite |
	protocol.FeatureDTTExplicit

func init() {
	backend.Register(Name, func(opts backend.Options) (protocol.Backend, error) {
		if opts.SimFixture == "" {
			return New(), nil
		}
		return LoadFixtureFile(opts.SimFixture)
	})
}

// Process is a simulated process. Root is its current paging root.
type Process struct {
	ID      protocol.ProcessID
	Name    string
	Root    uint64
	Modules []Module
}

// Module is a simulated loaded module.
type Module struct {
	Name string
	Base uint64
	Size uint64
}

// Driver is the simulated backend.
type Driver struct {
	mu  sync.Mutex
	log *logger.Logger

	protocolVersion uint32
	version         protocol.VersionInfo
	features        protocol.DriverFeature
	unavailable     bool
	failEnumeration bool

	processes map[protocol.ProcessID]*Process
	spaces    map[uint64]*addressSpace
	nextRoot  uint64

	calls  map[protocol.CommandID]int
	closed bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithFeatures overrides the advertised feature set.
func WithFeatures(features protocol.DriverFeature) Option {
	return func(d *Driver) {
		d.features = features
	}
}

// WithVersion overrides the reported driver version.
func WithVersion(version protocol.VersionInfo) Option {
	return func(d *Driver) {
		d.version = version
	}
}

// WithProtocolVersion makes the driver speak another protocol version.
func WithProtocolVersion(v uint32) Option {
	return func(d *Driver) {
		d.protocolVersion = v
	}
}

// Unavailable makes the driver refuse every session.
func Unavailable() Option {
	return func(d *Driver) {
		d.unavailable = true
	}
}

// New creates an empty simulated driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		log:             logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "backend-sim")),
		protocolVersion: protocol.ProtocolVersion,
		version:         protocol.NewVersionInfo("gomemd-sim", 1, 0, 0),
		features:        AllFeatures,
		processes:       make(map[protocol.ProcessID]*Process),
		spaces:          make(map[uint64]*addressSpace),
		nextRoot:        0x1AD000,
		calls:           make(map[protocol.CommandID]int),
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Spawn starts a process with a fresh, empty address space and returns its root.
// An existing process with the same ID is replaced, as happens when an ID is reused.
func (d *Driver) Spawn(pid protocol.ProcessID, name string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	root := d.nextRoot
	d.nextRoot += pageSize
	d.spaces[root] = newAddressSpace()
	d.processes[pid] = &Process{ID: pid, Name: name, Root: root}

	d.log.Debugln("spawned process", pid, name, fmt.Sprintf("root=0x%X", root))
	return root
}

// Exit removes the process. Its address space stays reachable through an explicit root.
func (d *Driver) Exit(pid protocol.ProcessID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.processes, pid)
}

// Root returns the current paging root of pid.
func (d *Driver) Root(pid protocol.ProcessID) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	proc, ok := d.processes[pid]
	if !ok {
		return 0, false
	}
	return proc.Root, true
}

// Map backs [addr, addr+size) of pid's address space with zeroed pages.
func (d *Driver) Map(pid protocol.ProcessID, addr, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	space, err := d.spaceOf(pid)
	if err != nil {
		return err
	}
	space.mapRange(addr, size)
	return nil
}

// Poke maps and fills memory of pid without going through the command interface.
func (d *Driver) Poke(pid protocol.ProcessID, addr uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	space, err := d.spaceOf(pid)
	if err != nil {
		return err
	}
	space.mapRange(addr, uint64(len(data)))
	space.write(addr, data)
	return nil
}

// Peek reads memory of pid without going through the command interface.
func (d *Driver) Peek(pid protocol.ProcessID, addr uint64, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	space, err := d.spaceOf(pid)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if n, _ := space.read(addr, buf); n != size {
		return nil, fmt.Errorf("peek 0x%X: only %d of %d bytes mapped", addr, n, size)
	}
	return buf, nil
}

// PageOut marks the page holding addr in pid's address space as paged out.
func (d *Driver) PageOut(pid protocol.ProcessID, addr uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	space, err := d.spaceOf(pid)
	if err != nil {
		return err
	}
	space.pageOut(addr)
	return nil
}

// AddModule records a loaded module and maps its image.
func (d *Driver) AddModule(pid protocol.ProcessID, name string, base, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	proc, ok := d.processes[pid]
	if !ok {
		return fmt.Errorf("process %d does not exist", pid)
	}
	proc.Modules = append(proc.Modules, Module{Name: name, Base: base, Size: size})
	d.spaces[proc.Root].mapRange(base, size)
	return nil
}

// FailEnumeration makes process and module walks fail with a command error.
func (d *Driver) FailEnumeration(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failEnumeration = fail
}

// Calls returns how many times a command was executed.
func (d *Driver) Calls(id protocol.CommandID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[id]
}

// TotalCalls returns the number of executed commands.
func (d *Driver) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for _, n := range d.calls {
		total += n
	}
	return total
}

func (d *Driver) spaceOf(pid protocol.ProcessID) (*addressSpace, error) {
	proc, ok := d.processes[pid]
	if !ok {
		return nil, fmt.Errorf("process %d does not exist", pid)
	}
	return d.spaces[proc.Root], nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) ExecuteCommand(cmd protocol.Command) (protocol.CommandResult, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return protocol.CommandError, "driver closed"
	}
	d.calls[cmd.CommandID()]++

	switch cmd := cmd.(type) {
	case *protocol.DriverCommandInitialize:
		return d.initialize(cmd)
	case *protocol.DriverCommandProcessList:
		return d.processList(cmd)
	case *protocol.DriverCommandProcessModules:
		return d.processModules(cmd)
	case *protocol.DriverCommandMemoryRead:
		return d.memoryRead(cmd)
	case *protocol.DriverCommandMemoryWrite:
		return d.memoryWrite(cmd)
	default:
		return protocol.CommandInvalid, ""
	}
}

func (d *Driver) initialize(cmd *protocol.DriverCommandInitialize) (protocol.CommandResult, string) {
	cmd.DriverProtocolVersion = d.protocolVersion
	cmd.DriverVersion = d.version
	cmd.DriverFeatures = d.features

	if d.unavailable {
		cmd.Result = protocol.InitializeUnavailable
		return protocol.CommandSuccess, ""
	}

	d.log.Debugln("session from", cmd.ClientVersion.String())
	cmd.Result = protocol.InitializeSuccess
	return protocol.CommandSuccess, ""
}

func (d *Driver) sortedProcesses() []*Process {
	procs := make([]*Process, 0, len(d.processes))
	for _, proc := range d.processes {
		procs = append(procs, proc)
	}
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].ID < procs[j].ID
	})
	return procs
}

func (d *Driver) processList(cmd *protocol.DriverCommandProcessList) (protocol.CommandResult, string) {
	if !d.features.Has(protocol.FeatureProcessList) {
		return protocol.CommandFeatureUnsupported, ""
	}
	if d.failEnumeration {
		return protocol.CommandError, "process list walk aborted"
	}

	procs := d.sortedProcesses()
	records := make([]protocol.ProcessInfo, len(procs))
	for i, proc := range procs {
		records[i].ProcessID = proc.ID
		records[i].SetImageBaseName(proc.Name)
		records[i].DirectoryTableBase = proc.Root
	}

	cmd.FillProcesses(records)
	return protocol.CommandSuccess, ""
}

func (d *Driver) processModules(cmd *protocol.DriverCommandProcessModules) (protocol.CommandResult, string) {
	if !d.features.Has(protocol.FeatureProcessModules) {
		return protocol.CommandFeatureUnsupported, ""
	}

	proc, ok := d.processes[cmd.ProcessID]
	if !ok {
		cmd.ProcessUnknown = true
		return protocol.CommandSuccess, ""
	}
	if d.failEnumeration {
		return protocol.CommandError, "module list walk aborted"
	}

	// The module list lives in the target's address space; under a foreign
	// root it is only visible if that root belongs to some process.
	owner := proc
	if !cmd.DirectoryTableType.IsDefault() {
		owner = nil
		for _, candidate := range d.processes {
			if candidate.Root == cmd.DirectoryTableType.DirectoryTableBase {
				owner = candidate
				break
			}
		}
		if owner == nil {
			return protocol.CommandError, fmt.Sprintf("module list not readable under root 0x%X", cmd.DirectoryTableType.DirectoryTableBase)
		}
	}

	records := make([]protocol.ProcessModuleInfo, len(owner.Modules))
	for i, module := range owner.Modules {
		records[i].SetBaseDllName(module.Name)
		records[i].BaseAddress = module.Base
		records[i].ModuleSize = module.Size
	}

	cmd.FillModules(records)
	return protocol.CommandSuccess, ""
}

// resolveSpace picks the address space for a memory command. DEFAULT is
// resolved from the process table as it is right now.
func (d *Driver) resolveSpace(pid protocol.ProcessID, dtt protocol.DirectoryTableType) (*addressSpace, bool) {
	proc, ok := d.processes[pid]
	if !ok {
		return nil, false
	}

	root := proc.Root
	if !dtt.IsDefault() {
		root = dtt.DirectoryTableBase
	}

	space, ok := d.spaces[root]
	if !ok {
		space = newAddressSpace()
	}
	return space, true
}

func (d *Driver) memoryRead(cmd *protocol.DriverCommandMemoryRead) (protocol.CommandResult, string) {
	if !d.features.Has(protocol.FeatureMemoryRead) {
		return protocol.CommandFeatureUnsupported, ""
	}
	if !cmd.DirectoryTableType.IsDefault() && !d.features.Has(protocol.FeatureDTTExplicit) {
		return protocol.CommandFeatureUnsupported, ""
	}

	space, ok := d.resolveSpace(cmd.ProcessID, cmd.DirectoryTableType)
	if !ok {
		cmd.Result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessProcessUnknown}
		return protocol.CommandSuccess, ""
	}

	n, pagedOut := space.read(cmd.Address, cmd.Buffer)
	if pagedOut {
		cmd.Result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessSourcePagedOut}
		return protocol.CommandSuccess, ""
	}

	cmd.Complete(n)
	return protocol.CommandSuccess, ""
}

func (d *Driver) memoryWrite(cmd *protocol.DriverCommandMemoryWrite) (protocol.CommandResult, string) {
	if !d.features.Has(protocol.FeatureMemoryWrite) {
		return protocol.CommandFeatureUnsupported, ""
	}
	if !cmd.DirectoryTableType.IsDefault() && !d.features.Has(protocol.FeatureDTTExplicit) {
		return protocol.CommandFeatureUnsupported, ""
	}

	space, ok := d.resolveSpace(cmd.ProcessID, cmd.DirectoryTableType)
	if !ok {
		cmd.Result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessProcessUnknown}
		return protocol.CommandSuccess, ""
	}

	n, pagedOut := space.write(cmd.Address, cmd.Buffer)
	if pagedOut {
		cmd.Result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessDestinationPagedOut}
		return protocol.CommandSuccess, ""
	}

	cmd.Complete(n)
	return protocol.CommandSuccess, ""
}
