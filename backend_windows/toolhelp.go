//go:build windows

package backend_windows

import (
	"errors"
	"fmt"
	"unsafe"

	"gomemd/protocol"

	"golang.org/x/sys/windows"
)

var errProcessUnknown = errors.New("process unknown")

func listProcesses() ([]protocol.ProcessInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var processes []protocol.ProcessInfo
	for err = windows.Process32First(snapshot, &entry); err == nil; err = windows.Process32Next(snapshot, &entry) {
		if entry.ProcessID == 0 {
			continue // System Idle Process
		}

		var info protocol.ProcessInfo
		info.ProcessID = protocol.ProcessID(entry.ProcessID)
		info.SetImageBaseName(windows.UTF16ToString(entry.ExeFile[:]))
		processes = append(processes, info)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Process32Next failed: %w", err)
	}

	return processes, nil
}

func listModules(pid protocol.ProcessID) ([]protocol.ProcessModuleInfo, error) {
	var (
		snapshot windows.Handle
		err      error
	)

	// ERROR_BAD_LENGTH means the module list changed while the snapshot was taken.
	for attempt := 0; attempt < 4; attempt++ {
		snapshot, err = windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
		if !errors.Is(err, windows.ERROR_BAD_LENGTH) {
			break
		}
	}
	if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
		return nil, errProcessUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var modules []protocol.ProcessModuleInfo
	for err = windows.Module32First(snapshot, &entry); err == nil; err = windows.Module32Next(snapshot, &entry) {
		var module protocol.ProcessModuleInfo
		module.SetBaseDllName(windows.UTF16ToString(entry.Module[:]))
		module.BaseAddress = uint64(entry.ModBaseAddr)
		module.ModuleSize = uint64(entry.ModBaseSize)
		modules = append(modules, module)
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Module32Next failed: %w", err)
	}

	return modules, nil
}
