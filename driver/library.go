// Package driver is the client side of the gomemd driver interface: library
// lifecycle, interface handles, the memory access engine and the enumeration
// engine.
//
// A Library is created once and initialized before any handle exists:
//
//	lib := driver.NewLibrary(config.Default())
//	if err := lib.Initialize(); err != nil { ... }
//	defer lib.Finalize()
//
//	iface, err := lib.Create()
//	if err != nil { ... }
//	defer iface.Close()
//
//	if iface.DriverFeatures().Has(protocol.FeatureMemoryRead) {
//		err = iface.Read(pid, nil, addr, buf)
//	}
//
// Every call is synchronous and may block on the backend. An Interface is safe
// for concurrent use; commands to the backend are serialized by the Library.
package driver

import (
	"fmt"
	"strings"
	"sync"

	"gomemd/backend"
	"gomemd/config"
	"gomemd/protocol"
	"gomemd/status"
	"gomemd/version"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Version returns the version of this client library. It does not depend on
// any handle or backend.
func Version() string {
	return version.Library.String()
}

// Library owns the connection to a backend. It replaces process-wide state:
// create one per program and pass it to whoever needs a handle.
type Library struct {
	mu          sync.Mutex
	cmdMu       sync.Mutex
	cfg         config.Config
	log         *logger.Logger
	backend     protocol.Backend
	backendName string
	preset      bool
	initialized bool

	// generation counts Finalize calls. Handles carry the generation they
	// were created in and stop working once it moves on.
	generation uint64
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithBackend makes the library use b instead of searching the registry.
// b belongs to the caller: Finalize leaves it open so the library can be
// initialized again.
func WithBackend(name string, b protocol.Backend) LibraryOption {
	return func(l *Library) {
		l.backend = b
		l.backendName = name
		l.preset = true
	}
}

// NewLibrary creates an uninitialized library.
func NewLibrary(cfg config.Config, opts ...LibraryOption) *Library {
	l := &Library{
		cfg: cfg,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "library")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Version returns the version of this client library.
func (l *Library) Version() string {
	return Version()
}

// BackendName returns the name of the backend in use, or "" before initialization.
func (l *Library) BackendName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return ""
	}
	return l.backendName
}

// Initialize connects to the first usable backend. Calling it again after a
// successful initialization is a no-op.
func (l *Library) Initialize() error {
	const op = "initialize"

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	if err := l.cfg.Validate(); err != nil {
		return status.New(op, status.InitFailed, err)
	}

	if l.preset {
		if err := handshake(l.backend); err != nil {
			return status.New(op, status.InitFailed, fmt.Errorf("backend %s: %w", l.backendName, err))
		}
		l.initialized = true
		l.log.Infoln("Using backend", l.backendName)
		return nil
	}

	candidates := l.cfg.Candidates()
	if len(candidates) == 0 {
		return status.Newf(op, status.InitFailed, "no backend configured")
	}

	var failures []string
	for _, name := range candidates {
		l.log.Debugln("Trying backend", name)

		b, err := backend.Open(name, backend.Options{SimFixture: l.cfg.SimFixture})
		if err == nil {
			err = handshake(b)
			if err != nil {
				_ = b.Close()
			}
		}
		if err != nil {
			l.log.Warn(fmt.Sprintf("Failed to open backend %s: %v", name, err))
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		l.backend = b
		l.backendName = name
		l.initialized = true
		l.log.Infoln("Using backend", name)
		return nil
	}

	return status.Newf(op, status.InitFailed, "no usable backend (%s)", strings.Join(failures, "; "))
}

// handshake checks that the backend answers and speaks our protocol version.
func handshake(b protocol.Backend) error {
	cmd := &protocol.DriverCommandInitialize{
		ClientProtocolVersion: protocol.ProtocolVersion,
		ClientVersion:         clientVersion(),
	}

	result, message := b.ExecuteCommand(cmd)
	if result != protocol.CommandSuccess {
		if message == "" {
			message = result.String()
		}
		return fmt.Errorf("backend rejected initialization: %s", message)
	}
	if cmd.DriverProtocolVersion != protocol.ProtocolVersion {
		return fmt.Errorf("protocol mismatch: client %d, driver %d", protocol.ProtocolVersion, cmd.DriverProtocolVersion)
	}
	return nil
}

func clientVersion() protocol.VersionInfo {
	return protocol.NewVersionInfo(version.ApplicationName, version.Library.Major, version.Library.Minor, version.Library.Patch)
}

// Finalize closes the backend. Handles created before fail with
// INVALID_HANDLE from now on, even after Initialize is called again, and
// Create fails with NOT_INITIALIZED until then.
func (l *Library) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil
	}

	l.initialized = false
	l.generation++

	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	if l.preset {
		l.log.Infoln("Releasing backend", l.backendName)
		return nil
	}

	l.log.Infoln("Closing backend", l.backendName)
	err := l.backend.Close()
	l.backend = nil
	return err
}

// Create negotiates a new session with the backend.
func (l *Library) Create() (*Interface, error) {
	l.mu.Lock()
	initialized, generation := l.initialized, l.generation
	l.mu.Unlock()

	if !initialized {
		return nil, status.New("create", status.NotInitialized, nil)
	}
	return newInterface(l, generation)
}

// current reports whether generation is the one handles are created in now.
func (l *Library) current(generation uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation == generation
}

// execute runs one command on the backend for a handle of generation,
// serialized with every other command issued through this library.
func (l *Library) execute(op string, generation uint64, cmd protocol.Command) (protocol.CommandResult, string, error) {
	l.mu.Lock()
	initialized := l.initialized
	stale := l.generation != generation
	b := l.backend
	l.mu.Unlock()

	if stale {
		return 0, "", status.Newf(op, status.InvalidHandle, "library was finalized")
	}
	if !initialized {
		return 0, "", status.New(op, status.NotInitialized, nil)
	}

	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	result, message := b.ExecuteCommand(cmd)
	return result, message, nil
}
