package driver

import (
	"gomemd/protocol"
	"gomemd/translation"
)

// ResolveDirectoryTable returns the paging root dtt selects for pid at this
// moment. An explicit selector resolves to its own value without contacting
// the driver. DEFAULT walks the driver's process list on every call, so a
// process ID that was reused resolves to the new process.
func (i *Interface) ResolveDirectoryTable(pid protocol.ProcessID, dtt *protocol.DirectoryTableType) (uint64, error) {
	const op = "resolve directory table"

	i.mu.RLock()
	if err := i.usable(op); err != nil {
		i.mu.RUnlock()
		return 0, err
	}
	table, err := translation.Prepare(op, dtt, i.driverFeatures)
	i.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	return translation.Resolve(op, pid, table, func(pid protocol.ProcessID) (uint64, bool, error) {
		var (
			root  uint64
			found bool
		)

		err := i.ProcessList(func(info *protocol.ProcessInfo) bool {
			if info.ProcessID != pid {
				return true
			}
			root, found = info.DirectoryTableBase, true
			return false
		})
		return root, found, err
	})
}
