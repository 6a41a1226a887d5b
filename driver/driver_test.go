package driver

import (
	"testing"

	"gomemd/backend_sim"
	"gomemd/config"
	"gomemd/protocol"

	"github.com/stretchr/testify/require"
)

// newSession returns an interface on d. The session is closed when the test ends.
func newSession(t *testing.T, d *backend_sim.Driver, mutate ...func(*config.Config)) (*Library, *Interface) {
	t.Helper()

	cfg := config.Default()
	for _, m := range mutate {
		m(&cfg)
	}

	lib := NewLibrary(cfg, WithBackend(backend_sim.Name, d))
	require.NoError(t, lib.Initialize())

	iface, err := lib.Create()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = iface.Close()
		_ = lib.Finalize()
	})
	return lib, iface
}

// growingBackend reports one more process than fits into every buffer.
type growingBackend struct {
	processListCalls int
}

func (b *growingBackend) ExecuteCommand(cmd protocol.Command) (protocol.CommandResult, string) {
	switch cmd := cmd.(type) {
	case *protocol.DriverCommandInitialize:
		cmd.DriverProtocolVersion = protocol.ProtocolVersion
		cmd.DriverFeatures = protocol.FeatureProcessList
		cmd.Result = protocol.InitializeSuccess
		return protocol.CommandSuccess, ""
	case *protocol.DriverCommandProcessList:
		b.processListCalls++
		cmd.ProcessCount = len(cmd.Buffer) + 1
		return protocol.CommandSuccess, ""
	default:
		return protocol.CommandInvalid, ""
	}
}

func (b *growingBackend) Close() error { return nil }
