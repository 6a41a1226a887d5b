package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"gomemd/protocol"
	"gomemd/status"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/google/uuid"
	goversion "github.com/hashicorp/go-version"
	fsm "github.com/qmuntal/stateless"
)

var (
	stateUninitialized = fsm.State("uninitialized")
	stateCreated       = fsm.State("created")
	stateClosed        = fsm.State("closed")

	triggerCreate = fsm.Trigger("create")
	triggerClose  = fsm.Trigger("close")
)

// Interface is one negotiated session with the driver. It is created by
// Library.Create and must be closed with Close; any call after Close fails
// with INVALID_HANDLE.
type Interface struct {
	lib        *Library
	generation uint64
	id         uuid.UUID
	log        *logger.Logger

	// mu is held for reading by every operation while it talks to the
	// backend and for writing by Close.
	mu    sync.RWMutex
	state *fsm.StateMachine

	driverVersion  protocol.VersionInfo
	driverFeatures protocol.DriverFeature

	processCapacity int
	moduleCapacity  int
	retries         int

	readCalls atomic.Uint64
}

func newInterface(lib *Library, generation uint64) (*Interface, error) {
	const op = "create"

	id := uuid.New()
	i := &Interface{
		lib:             lib,
		generation:      generation,
		id:              id,
		log:             logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "interface-"+id.String()[:8])),
		state:           fsm.NewStateMachine(stateUninitialized),
		processCapacity: lib.cfg.ProcessListCapacity,
		moduleCapacity:  lib.cfg.ModuleListCapacity,
		retries:         lib.cfg.EnumerationRetries,
	}

	i.state.Configure(stateUninitialized).Permit(triggerCreate, stateCreated)
	i.state.Configure(stateCreated).Permit(triggerClose, stateClosed)

	if err := i.negotiate(op); err != nil {
		return nil, err
	}

	if err := i.state.Fire(triggerCreate); err != nil {
		return nil, status.New(op, status.GeneralFailure, err)
	}
	return i, nil
}

func (i *Interface) negotiate(op string) error {
	cmd := &protocol.DriverCommandInitialize{
		ClientProtocolVersion: protocol.ProtocolVersion,
		ClientVersion:         clientVersion(),
	}

	if err := i.execute(op, cmd, status.ConnectionFailed); err != nil {
		return err
	}

	if cmd.ClientProtocolVersion != cmd.DriverProtocolVersion {
		return status.Newf(op, status.ConnectionFailed, "driver protocol mismatch: client %d, driver %d",
			cmd.ClientProtocolVersion, cmd.DriverProtocolVersion)
	}

	switch cmd.Result {
	case protocol.InitializeSuccess:
	case protocol.InitializeUnavailable:
		return status.Newf(op, status.ConnectionFailed, "driver unavailable")
	default:
		return status.Newf(op, status.ConnectionFailed, "unknown initialize result %d", cmd.Result)
	}

	if err := checkDriverVersion(i.lib, cmd.DriverVersion); err != nil {
		return status.New(op, status.ConnectionFailed, err)
	}

	i.driverVersion = cmd.DriverVersion
	i.driverFeatures = cmd.DriverFeatures

	i.log.Infoln(fmt.Sprintf("Initialized driver interface with driver %s (version: %s).",
		nameOrUnknown(i.driverVersion.Name()), i.driverVersion.Semver()))
	i.log.Debugln("Supported features:", i.driverFeatures.String())
	return nil
}

func checkDriverVersion(lib *Library, info protocol.VersionInfo) error {
	constraint, err := lib.cfg.DriverVersionConstraint()
	if err != nil || constraint == nil {
		return err
	}

	v, err := goversion.NewVersion(info.Semver())
	if err != nil {
		return fmt.Errorf("invalid driver version %q: %w", info.Semver(), err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("driver version %s does not satisfy %q", v, lib.cfg.MinDriverVersion)
	}
	return nil
}

func nameOrUnknown(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}

// SessionID identifies the session in logs.
func (i *Interface) SessionID() string {
	return i.id.String()
}

// DriverVersion returns the version reported by the driver, not the library's.
func (i *Interface) DriverVersion() protocol.VersionInfo {
	return i.driverVersion
}

// DriverFeatures returns the capabilities the driver advertised when the
// session was created. The value does not change for the lifetime of the handle.
func (i *Interface) DriverFeatures() protocol.DriverFeature {
	return i.driverFeatures
}

// TotalReadCalls returns the number of memory reads sent to the driver.
func (i *Interface) TotalReadCalls() uint64 {
	return i.readCalls.Load()
}

// Closed reports whether Close has been called.
func (i *Interface) Closed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	closed, _ := i.state.IsInState(stateClosed)
	return closed
}

// Close ends the session. Closing twice fails with INVALID_HANDLE.
func (i *Interface) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.state.FireCtx(context.Background(), triggerClose); err != nil {
		return status.New("close", status.InvalidHandle, err)
	}

	i.log.Infoln("Driver interface closed")
	return nil
}

// usable fails unless the handle is in the created state. Callers hold mu.
func (i *Interface) usable(op string) error {
	created, err := i.state.IsInState(stateCreated)
	if err != nil {
		return status.New(op, status.InvalidHandle, err)
	}
	if !created {
		return status.Newf(op, status.InvalidHandle, "interface is %v", i.state.MustState())
	}
	if !i.lib.current(i.generation) {
		return status.Newf(op, status.InvalidHandle, "library was finalized")
	}
	return nil
}

// require fails with UNSUPPORTED unless the driver advertised feature.
func (i *Interface) require(op string, feature protocol.DriverFeature) error {
	if !i.driverFeatures.Has(feature) {
		return status.Newf(op, status.Unsupported, "driver does not support %s", feature)
	}
	return nil
}

// execute runs cmd and maps transport level failures. A generic command error
// is reported with the failure status of the calling operation.
func (i *Interface) execute(op string, cmd protocol.Command, failure status.Status) error {
	result, message, err := i.lib.execute(op, i.generation, cmd)
	if err != nil {
		return err
	}

	switch result {
	case protocol.CommandSuccess:
		return nil
	case protocol.CommandError:
		if message == "" {
			message = "command failed"
		}
		return status.Newf(op, failure, "%s", message)
	case protocol.CommandParameterInvalid:
		return status.Newf(op, status.GeneralFailure, "parameter invalid: %s", message)
	case protocol.CommandInvalid:
		return status.Newf(op, status.GeneralFailure, "command %s invalid", cmd.CommandID())
	case protocol.CommandFeatureUnsupported:
		return status.Newf(op, status.Unsupported, "driver rejected %s", cmd.CommandID())
	default:
		return status.Newf(op, status.GeneralFailure, "invalid command result %d", uint64(result))
	}
}
