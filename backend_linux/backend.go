//go:build linux

package backend_linux

import (
	"fmt"
	"os"
	"sync"

	"gomemd/backend"
	"gomemd/protocol"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Name is the registry name of the Linux backend.
const Name = "linux"

// Features is the feature set advertised by the Linux backend.
const Features = protocol.FeatureProcessList |
	protocol.FeatureProcessModules |
	protocol.FeatureMemoryRead |
	protocol.FeatureMemoryWrite

func init() {
	backend.Register(Name, func(backend.Options) (protocol.Backend, error) {
		return Open("/proc")
	})
}

// Backend serves commands from procfs and process_vm_readv/writev.
type Backend struct {
	mu       sync.Mutex
	log      *logger.Logger
	procRoot string
	closed   bool
}

// Open creates a backend reading procfs at procRoot.
func Open(procRoot string) (*Backend, error) {
	if _, err := os.Stat(procRoot); err != nil {
		return nil, fmt.Errorf("procfs not available at %s: %w", procRoot, err)
	}

	return &Backend{
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "backend-linux")),
		procRoot: procRoot,
	}, nil
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
		cmd.DriverVersion = protocol.NewVersionInfo("gomemd-linux", 1, 0, 0)
		cmd.DriverFeatures = Features
		cmd.Result = protocol.InitializeSuccess
		return protocol.CommandSuccess, ""

	case *protocol.DriverCommandProcessList:
		processes, err := listProcesses(b.procRoot)
		if err != nil {
			return protocol.CommandError, err.Error()
		}
		cmd.FillProcesses(processes)
		return protocol.CommandSuccess, ""

	case *protocol.DriverCommandProcessModules:
		if !cmd.DirectoryTableType.IsDefault() {
			return protocol.CommandFeatureUnsupported, ""
		}
		regions, found, err := readMaps(b.procRoot, cmd.ProcessID)
		if !found {
			cmd.ProcessUnknown = true
			return protocol.CommandSuccess, ""
		}
		if err != nil {
			return protocol.CommandError, err.Error()
		}
		cmd.FillModules(ModulesFromMaps(regions))
		return protocol.CommandSuccess, ""

	case *protocol.DriverCommandMemoryRead:
		if !cmd.DirectoryTableType.IsDefault() {
			return protocol.CommandFeatureUnsupported, ""
		}
		return b.transfer(cmd.ProcessID, cmd.Address, cmd.Buffer, &cmd.Result, processVMReadv)

	case *protocol.DriverCommandMemoryWrite:
		if !cmd.DirectoryTableType.IsDefault() {
			return protocol.CommandFeatureUnsupported, ""
		}
		return b.transfer(cmd.ProcessID, cmd.Address, cmd.Buffer, &cmd.Result, processVMWritev)

	default:
		return protocol.CommandInvalid, ""
	}
}

func (b *Backend) transfer(
	pid protocol.ProcessID,
	address uint64,
	buf []byte,
	result *protocol.MemoryAccessResult,
	fn func(protocol.ProcessID, []byte, uint64) (int, error),
) (protocol.CommandResult, string) {
	if len(buf) == 0 {
		*result = protocol.MemoryAccessResult{Status: protocol.MemoryAccessSuccess}
		return protocol.CommandSuccess, ""
	}

	n, err := fn(pid, buf, address)
	r, err := transferResult(n, len(buf), err)
	if err != nil {
		b.log.Debugln("transfer failed", pid, fmt.Sprintf("0x%X", address), err)
		return protocol.CommandError, err.Error()
	}

	// ESRCH is also returned for a PID that exists but belongs to a thread
	// group we cannot see; only report unknown when procfs agrees.
	if r.Status == protocol.MemoryAccessProcessUnknown && procExists(b.procRoot, pid) {
		return protocol.CommandError, "process not accessible"
	}

	*result = r
	return protocol.CommandSuccess, ""
}
