package driver

import (
	"fmt"

	"gomemd/protocol"
	"gomemd/status"
	"gomemd/translation"
)

// Read copies len(buf) bytes from address in the target process into buf.
// A nil dtt selects the default directory table.
//
// Once the read was sent to the driver the transfer is all or nothing: on
// failure buf is zeroed, so it never holds a fragment of target memory next to
// an error. A read refused up front (closed handle, missing feature, rejected
// directory table) leaves buf untouched. The target process may change the
// memory while it is being read.
func (i *Interface) Read(pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, buf []byte) error {
	const op = "memory read"

	i.mu.RLock()
	defer i.mu.RUnlock()

	if err := i.usable(op); err != nil {
		return err
	}
	if err := i.require(op, protocol.FeatureMemoryRead); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	table, err := translation.Prepare(op, dtt, i.driverFeatures)
	if err != nil {
		return err
	}

	i.readCalls.Add(1)
	cmd := &protocol.DriverCommandMemoryRead{
		ProcessID:          pid,
		DirectoryTableType: table,
		Address:            address,
		Buffer:             buf,
	}
	if err := i.execute(op, cmd, status.GeneralFailure); err != nil {
		clear(buf)
		return err
	}

	if err := memoryAccessError(op, pid, address, len(buf), cmd.Result); err != nil {
		clear(buf)
		i.log.Debugln(fmt.Sprintf("Mem access failed for process %d at 0x%X (len 0x%X): %s", pid, address, len(buf), cmd.Result))
		return err
	}
	return nil
}

// Write copies buf to address in the target process. A nil dtt selects the
// default directory table. Visibility of the new bytes to the target's caches
// is whatever the driver guarantees.
func (i *Interface) Write(pid protocol.ProcessID, dtt *protocol.DirectoryTableType, address uint64, buf []byte) error {
	const op = "memory write"

	i.mu.RLock()
	defer i.mu.RUnlock()

	if err := i.usable(op); err != nil {
		return err
	}
	if err := i.require(op, protocol.FeatureMemoryWrite); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	table, err := translation.Prepare(op, dtt, i.driverFeatures)
	if err != nil {
		return err
	}

	cmd := &protocol.DriverCommandMemoryWrite{
		ProcessID:          pid,
		DirectoryTableType: table,
		Address:            address,
		Buffer:             buf,
	}
	if err := i.execute(op, cmd, status.GeneralFailure); err != nil {
		return err
	}

	if err := memoryAccessError(op, pid, address, len(buf), cmd.Result); err != nil {
		i.log.Debugln(fmt.Sprintf("Mem write failed for process %d at 0x%X (len 0x%X): %s", pid, address, len(buf), cmd.Result))
		return err
	}
	return nil
}

func memoryAccessError(op string, pid protocol.ProcessID, address uint64, length int, result protocol.MemoryAccessResult) error {
	switch result.Status {
	case protocol.MemoryAccessSuccess:
		return nil
	case protocol.MemoryAccessProcessUnknown:
		return status.Newf(op, status.InvalidProcess, "process %d unknown", pid)
	case protocol.MemoryAccessPartialSuccess:
		if result.BytesCopied <= 0 {
			return status.Newf(op, status.TranslationFailed, "0x%X not mapped", address)
		}
		return status.Newf(op, status.PartialTransfer, "%d of %d bytes at 0x%X", result.BytesCopied, length, address)
	case protocol.MemoryAccessSourcePagedOut, protocol.MemoryAccessDestinationPagedOut:
		return status.Newf(op, status.TranslationFailed, "0x%X: %s", address, result)
	default:
		return status.Newf(op, status.GeneralFailure, "unknown memory access result %s", result)
	}
}
