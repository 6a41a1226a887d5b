package driver

import (
	"iter"
	"sync"
	"sync/atomic"

	"gomemd/protocol"
	"gomemd/status"
	"gomemd/translation"
)

// ProcessVisitor receives one process per call and returns false to stop.
// The record is only valid during the call; copy what you need to keep.
type ProcessVisitor func(info *protocol.ProcessInfo) bool

// ModuleVisitor receives one module per call and returns false to stop.
// The record, including its name buffer, is only valid during the call.
type ModuleVisitor func(info *protocol.ProcessModuleInfo) bool

// ProcessList calls visit for every process known to the driver, in driver
// order. Stopping early is not an error.
//
// Records are taken from a buffer owned by this call and wiped before it
// returns. The visitor runs on the calling goroutine without any lock held.
func (i *Interface) ProcessList(visit ProcessVisitor) error {
	records, err := i.walkProcesses("process list")
	if err != nil {
		return err
	}
	defer clear(records)

	for n := range records {
		if !visit(&records[n]) {
			break
		}
	}
	return nil
}

// ProcessModuleList calls visit for every module loaded by pid. A nil dtt
// selects the default directory table.
func (i *Interface) ProcessModuleList(pid protocol.ProcessID, dtt *protocol.DirectoryTableType, visit ModuleVisitor) error {
	records, err := i.walkModules("process module list", pid, dtt)
	if err != nil {
		return err
	}
	defer clear(records)

	for n := range records {
		if !visit(&records[n]) {
			break
		}
	}
	return nil
}

// walkProcesses fetches the process list, growing the buffer while the driver
// reports more processes than fit, up to the configured retry budget.
func (i *Interface) walkProcesses(op string) ([]protocol.ProcessInfo, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if err := i.usable(op); err != nil {
		return nil, err
	}
	if err := i.require(op, protocol.FeatureProcessList); err != nil {
		return nil, err
	}

	buffer := make([]protocol.ProcessInfo, i.processCapacity)
	for retry := 0; retry <= i.retries; retry++ {
		cmd := &protocol.DriverCommandProcessList{Buffer: buffer}
		if err := i.execute(op, cmd, status.EnumerationFailed); err != nil {
			return nil, err
		}

		if cmd.ProcessCount > len(buffer) {
			i.log.Debugln("Process buffer too small, driver reported", cmd.ProcessCount, "processes")
			buffer = make([]protocol.ProcessInfo, cmd.ProcessCount+0x10)
			continue
		}
		return buffer[:cmd.ProcessCount], nil
	}

	return nil, status.Newf(op, status.EnumerationFailed, "process count kept growing after %d retries", i.retries)
}

func (i *Interface) walkModules(op string, pid protocol.ProcessID, dtt *protocol.DirectoryTableType) ([]protocol.ProcessModuleInfo, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if err := i.usable(op); err != nil {
		return nil, err
	}
	if err := i.require(op, protocol.FeatureProcessModules); err != nil {
		return nil, err
	}

	table, err := translation.Prepare(op, dtt, i.driverFeatures)
	if err != nil {
		return nil, err
	}

	buffer := make([]protocol.ProcessModuleInfo, i.moduleCapacity)
	for retry := 0; retry <= i.retries; retry++ {
		cmd := &protocol.DriverCommandProcessModules{
			ProcessID:          pid,
			DirectoryTableType: table,
			Buffer:             buffer,
		}
		if err := i.execute(op, cmd, status.EnumerationFailed); err != nil {
			return nil, err
		}

		if cmd.ProcessUnknown {
			return nil, status.Newf(op, status.InvalidProcess, "process %d unknown", pid)
		}

		if cmd.ModuleCount > len(buffer) {
			i.log.Debugln("Module buffer too small, driver reported", cmd.ModuleCount, "modules for process", pid)
			buffer = make([]protocol.ProcessModuleInfo, cmd.ModuleCount)
			continue
		}
		return buffer[:cmd.ModuleCount], nil
	}

	return nil, status.Newf(op, status.EnumerationFailed, "module count kept growing after %d retries", i.retries)
}

// Sequence is a lazy, finite, single-use enumeration. Iterate All once, then
// check Err.
type Sequence[T any] struct {
	walk func(visit func(*T) bool) error
	used atomic.Bool

	mu  sync.Mutex
	err error
}

// All returns the iterator. Yielded records are only valid until the loop
// body advances. A second iteration yields nothing and sets Err, unless Err
// already holds the error of the first one.
func (s *Sequence[T]) All() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		if !s.used.CompareAndSwap(false, true) {
			s.mu.Lock()
			if s.err == nil {
				s.err = status.Newf("sequence", status.GeneralFailure, "sequence already consumed")
			}
			s.mu.Unlock()
			return
		}

		err := s.walk(yield)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

// Err returns the first error the sequence ran into, if any.
func (s *Sequence[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Processes returns the process list as a lazy sequence. Nothing is sent to
// the driver until the sequence is iterated.
func (i *Interface) Processes() *Sequence[protocol.ProcessInfo] {
	return &Sequence[protocol.ProcessInfo]{
		walk: func(visit func(*protocol.ProcessInfo) bool) error {
			return i.ProcessList(visit)
		},
	}
}

// Modules returns the module list of pid as a lazy sequence. dtt is copied.
func (i *Interface) Modules(pid protocol.ProcessID, dtt *protocol.DirectoryTableType) *Sequence[protocol.ProcessModuleInfo] {
	var table *protocol.DirectoryTableType
	if dtt != nil {
		copied := *dtt
		table = &copied
	}

	return &Sequence[protocol.ProcessModuleInfo]{
		walk: func(visit func(*protocol.ProcessModuleInfo) bool) error {
			return i.ProcessModuleList(pid, table, visit)
		},
	}
}
