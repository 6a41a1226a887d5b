// Package protocol defines the command interface spoken between the gomemd client
// and a driver backend: command identifiers, payloads and result codes.
package protocol

import "fmt"

// ProtocolVersion is bumped on every incompatible change of a command payload.
const ProtocolVersion uint32 = 0x03

// CommandID identifies a command payload.
type CommandID uint32

const (
	CommandInitialize     CommandID = 0x01
	CommandProcessList    CommandID = 0x02
	CommandProcessModules CommandID = 0x03
	CommandMemoryRead     CommandID = 0x04
	CommandMemoryWrite    CommandID = 0x05
)

func (id CommandID) String() string {
	switch id {
	case CommandInitialize:
		return "initialize"
	case CommandProcessList:
		return "process-list"
	case CommandProcessModules:
		return "process-modules"
	case CommandMemoryRead:
		return "memory-read"
	case CommandMemoryWrite:
		return "memory-write"
	default:
		return fmt.Sprintf("command(0x%X)", uint32(id))
	}
}

// Command is a payload which can be executed by a Backend.
// The backend fills the output fields of the payload in place.
type Command interface {
	CommandID() CommandID
}

// CommandResult is the transport level outcome of executing a command.
// Command specific outcomes (e.g. a process not being found) are reported
// through the payload itself.
type CommandResult uint64

const (
	CommandSuccess CommandResult = iota
	CommandError
	CommandInvalid
	CommandParameterInvalid
	CommandFeatureUnsupported
)

func (r CommandResult) String() string {
	switch r {
	case CommandSuccess:
		return "success"
	case CommandError:
		return "error"
	case CommandInvalid:
		return "command invalid"
	case CommandParameterInvalid:
		return "parameter invalid"
	case CommandFeatureUnsupported:
		return "feature unsupported"
	default:
		return fmt.Sprintf("CommandResult(%d)", uint64(r))
	}
}

// Backend executes commands on behalf of a client. Implementations must be safe
// for use by a single goroutine at a time; the client serializes access.
type Backend interface {
	// ExecuteCommand runs cmd and returns the result and an optional diagnostic message.
	ExecuteCommand(cmd Command) (CommandResult, string)

	// Close releases the backend. No command may be executed afterwards.
	Close() error
}

// InitializeResult is the outcome of the initialize command.
type InitializeResult uint32

const (
	InitializeSuccess InitializeResult = iota
	InitializeUnavailable
)

// DriverCommandInitialize negotiates a session.
type DriverCommandInitialize struct {
	ClientProtocolVersion uint32
	ClientVersion         VersionInfo

	Result                InitializeResult
	DriverProtocolVersion uint32
	DriverVersion         VersionInfo
	DriverFeatures        DriverFeature
}

func (*DriverCommandInitialize) CommandID() CommandID { return CommandInitialize }

// DriverCommandProcessList fills Buffer with up to len(Buffer) processes.
// ProcessCount always receives the total number of processes, which may exceed
// len(Buffer); the caller grows the buffer and retries in that case.
type DriverCommandProcessList struct {
	Buffer []ProcessInfo

	ProcessCount int
}

func (*DriverCommandProcessList) CommandID() CommandID { return CommandProcessList }

// DriverCommandProcessModules fills Buffer with up to len(Buffer) modules of the
// target process. ModuleCount follows the ProcessCount rules of the process list.
type DriverCommandProcessModules struct {
	ProcessID          ProcessID
	DirectoryTableType DirectoryTableType
	Buffer             []ProcessModuleInfo

	ProcessUnknown bool
	ModuleCount    int
}

func (*DriverCommandProcessModules) CommandID() CommandID { return CommandProcessModules }

// MemoryAccessStatus tags a MemoryAccessResult.
type MemoryAccessStatus uint32

const (
	MemoryAccessSuccess MemoryAccessStatus = iota
	MemoryAccessProcessUnknown
	MemoryAccessPartialSuccess
	MemoryAccessSourcePagedOut
	MemoryAccessDestinationPagedOut
)

// MemoryAccessResult is the outcome of a memory read or write.
// BytesCopied is only meaningful for MemoryAccessPartialSuccess.
type MemoryAccessResult struct {
	Status      MemoryAccessStatus
	BytesCopied int
}

func (r MemoryAccessResult) String() string {
	switch r.Status {
	case MemoryAccessSuccess:
		return "success"
	case MemoryAccessProcessUnknown:
		return "process unknown"
	case MemoryAccessPartialSuccess:
		return fmt.Sprintf("partial success (%d bytes copied)", r.BytesCopied)
	case MemoryAccessSourcePagedOut:
		return "source paged out"
	case MemoryAccessDestinationPagedOut:
		return "destination paged out"
	default:
		return fmt.Sprintf("MemoryAccessStatus(%d)", uint32(r.Status))
	}
}

// DriverCommandMemoryRead copies len(Buffer) bytes from Address in the target
// process into Buffer.
type DriverCommandMemoryRead struct {
	ProcessID          ProcessID
	DirectoryTableType DirectoryTableType
	Address            uint64
	Buffer             []byte

	Result MemoryAccessResult
}

func (*DriverCommandMemoryRead) CommandID() CommandID { return CommandMemoryRead }

// DriverCommandMemoryWrite copies Buffer to Address in the target process.
type DriverCommandMemoryWrite struct {
	ProcessID          ProcessID
	DirectoryTableType DirectoryTableType
	Address            uint64
	Buffer             []byte

	Result MemoryAccessResult
}

func (*DriverCommandMemoryWrite) CommandID() CommandID { return CommandMemoryWrite }
