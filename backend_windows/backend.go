//go:build windows

package backend_windows

import (
	"errors"
	"fmt"
	"sync"

	"gomemd/backend"
	"gomemd/protocol"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

// Name is the registry name of the Windows backend.
const Name = "windows"

// Features is the feature set advertised by the Windows backend.
const Features = protocol.FeatureProcessList |
	protocol.FeatureProcessModules |
	protocol.FeatureMemoryRead |
	protocol.FeatureMemoryWrite

const processAccess = windows.PROCESS_VM_READ |
	windows.PROCESS_VM_WRITE |
	windows.PROCESS_VM_OPERATION |
	windows.PROCESS_QUERY_LIMITED_INFORMATION

func init() {
	backend.Register(Name, func(backend.Options) (protocol.Backend, error) {
		return Open(), nil
	})
}

// Backend serves commands from toolhelp snapshots and Read/WriteProcessMemory.
type Backend struct {
	mu     sync.Mutex
	log    *logger.Logger
	closed bool
}

func Open() *Backend {
	return &Backend{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "backend-windows")),
	}
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) ExecuteCommand(cmd protocol.Command) (protocol.CommandResult, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return protocol.CommandError, "backend closed"
	}

	switch cmd := cmd.(type) {
	case *protocol.DriverCommandInitialize:
		cmd.DriverProtocolVersion = protocol.ProtocolVersion
		cmd.DriverVersion = protocol.NewVersionInfo("gomemd-windows", 1, 0, 0)
		cmd.DriverFeatures = Features
		cmd.Result = protocol.InitializeSuccess
		return protocol.CommandSuccess, ""

	case *protocol.DriverCommandProcessList:
		processes, err := listProcesses()
		if err != nil {
			return protocol.CommandError, err.Error()
		}
		cmd.FillProcesses(processes)
		return protocol.CommandSuccess, ""

	case *protocol.DriverCommandProcessModules:
		if !cmd.DirectoryTableType.IsDefault() {
			return protocol.CommandFeatureUnsupported, ""
		}
		modules, err := listModules(cmd.ProcessID)
		if errors.Is(err, errProcessUnknown) {
			cmd.ProcessUnknown = true
			return protocol.CommandSuccess, ""
		}
		if err != nil {
			return protocol.CommandError, err.Error()
		}
		cmd.FillModules(modules)
		return protocol.CommandSuccess, ""

	case *protocol.DriverCommandMemoryRead:
		if !cmd.DirectoryTableType.IsDefault() {
			return protocol.CommandFeatureUnsupported, ""
		}
		return b.transfer(cmd.ProcessID, cmd.Address, cmd.Buffer, &cmd.Result, windows.ReadProcessMemory)

	case *protocol.DriverCommandMemoryWrite:
		if !cmd.DirectoryTableType.IsDefault() {
			return protocol.CommandFeatureUnsupported, ""
		}
		return b.transfer(cmd.ProcessID, cmd.Address, cmd.Buffer, &cmd.Result, windows.WriteProcessMemory)

	default:
		return protocol.CommandInvalid, ""
	}
}

type transferFunc func(process windows.Handle, baseAddress uintptr, buffer *byte, size uintptr, done *uintptr) error

func (b *Backend) transfer(
	pid protocol.ProcessID,
	address uint64,
	buf []byte,
	result *protocol.MemoryAccessResult,
	fn transferFunc,
) (protocol.CommandResult, string) {
	if len(buf) == 0 {
		*result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessSuccess}
		return protocol.CommandSuccess, ""
	}

	handle, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
		*result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessProcessUnknown}
		return protocol.CommandSuccess, ""
	}
	if err != nil {
		return protocol.CommandError, fmt.Sprintf("OpenProcess failed: %v", err)
	}
	defer windows.CloseHandle(handle)

	var done uintptr
	err = fn(handle, uintptr(address), &buf[0], uintptr(len(buf)), &done)
	switch {
	case err == nil:
		*result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessSuccess}
		if int(done) < len(buf) {
			*result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessPartialSuccess, BytesCopied: int(done)}
		}
	case errors.Is(err, windows.ERROR_PARTIAL_COPY), errors.Is(err, windows.ERROR_NOACCESS):
		*result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessPartialSuccess, BytesCopied: int(done)}
	default:
		b.log.Debugln("transfer failed", pid, fmt.Sprintf("0x%X", address), err)
		return protocol.CommandError, err.Error()
	}

	return protocol.CommandSuccess, ""
}
