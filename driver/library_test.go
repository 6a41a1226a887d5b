package driver

import (
	"testing"

	"gomemd/backend_sim"
	"gomemd/config"
	"gomemd/protocol"
	"gomemd/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionWithoutHandle(t *testing.T) {
	assert.NotEmpty(t, Version())
	assert.Equal(t, Version(), NewLibrary(config.Default()).Version())
}

func TestCreateBeforeInitialize(t *testing.T) {
	d := backend_sim.New()
	lib := NewLibrary(config.Default(), WithBackend("sim", d))

	_, err := lib.Create()
	require.Error(t, err)
	assert.Equal(t, status.NotInitialized, status.Of(err))
	assert.Equal(t, 0, d.TotalCalls())
}

func TestCreateAfterFailedInitialize(t *testing.T) {
	d := backend_sim.New(backend_sim.WithProtocolVersion(protocol.ProtocolVersion + 1))
	lib := NewLibrary(config.Default(), WithBackend("sim", d))

	err := lib.Initialize()
	require.Error(t, err)
	assert.Equal(t, status.InitFailed, status.Of(err))
	calls := d.TotalCalls()

	_, err = lib.Create()
	assert.Equal(t, status.NotInitialized, status.Of(err))
	assert.Equal(t, calls, d.TotalCalls(), "create must not contact the backend")
}

func TestInitializeIsIdempotent(t *testing.T) {
	d := backend_sim.New()
	lib := NewLibrary(config.Default(), WithBackend("sim", d))

	require.NoError(t, lib.Initialize())
	require.NoError(t, lib.Initialize())
	assert.Equal(t, 1, d.Calls(protocol.CommandInitialize))
	assert.Equal(t, "sim", lib.BackendName())
}

func TestInitializeFromRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "does-not-exist"
	cfg.BackendOrder = nil
	cfg.AllowSimulated = true

	lib := NewLibrary(cfg)
	require.NoError(t, lib.Initialize())
	defer lib.Finalize()

	assert.Equal(t, backend_sim.Name, lib.BackendName())
}

func TestInitializeNoUsableBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "does-not-exist"
	cfg.BackendOrder = nil

	err := NewLibrary(cfg).Initialize()
	require.Error(t, err)
	assert.Equal(t, status.InitFailed, status.Of(err))
}

func TestInitializeInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.EnumerationRetries = -1

	err := NewLibrary(cfg, WithBackend("sim", backend_sim.New())).Initialize()
	assert.Equal(t, status.InitFailed, status.Of(err))
}

func TestFinalize(t *testing.T) {
	d := backend_sim.New()
	lib := NewLibrary(config.Default(), WithBackend("sim", d))
	require.NoError(t, lib.Initialize())

	iface, err := lib.Create()
	require.NoError(t, err)

	require.NoError(t, lib.Finalize())
	require.NoError(t, lib.Finalize())

	_, err = lib.Create()
	assert.Equal(t, status.NotInitialized, status.Of(err))

	err = iface.ProcessList(func(*protocol.ProcessInfo) bool { return true })
	assert.Equal(t, status.InvalidHandle, status.Of(err))
}

func TestReinitializeInvalidatesOldHandles(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(1, "a")
	require.NoError(t, d.Map(1, 0x1000, 0x1000))
	lib := NewLibrary(config.Default(), WithBackend("sim", d))
	require.NoError(t, lib.Initialize())

	old, err := lib.Create()
	require.NoError(t, err)

	require.NoError(t, lib.Finalize())
	require.NoError(t, lib.Initialize(), "a caller owned backend stays open")
	defer lib.Finalize()
	calls := d.TotalCalls()

	buf := make([]byte, 4)
	errs := []error{
		old.Read(1, nil, 0x1000, buf),
		old.Write(1, nil, 0x1000, buf),
		old.ProcessList(func(*protocol.ProcessInfo) bool { return true }),
		old.ProcessModuleList(1, nil, func(*protocol.ProcessModuleInfo) bool { return true }),
	}
	_, err = old.ResolveDirectoryTable(1, nil)
	errs = append(errs, err)

	for _, err := range errs {
		assert.Equal(t, status.InvalidHandle, status.Of(err))
	}
	assert.Equal(t, calls, d.TotalCalls())

	fresh, err := lib.Create()
	require.NoError(t, err)
	defer fresh.Close()
	assert.NoError(t, fresh.Read(1, nil, 0x1000, buf))
	assert.NoError(t, old.Close())
}

func TestCreateNegotiation(t *testing.T) {
	_, iface := newSession(t, backend_sim.New(backend_sim.WithVersion(protocol.NewVersionInfo("testdrv", 1, 4, 2))))

	assert.Equal(t, "testdrv 1.4.2", iface.DriverVersion().String())
	assert.Equal(t, backend_sim.AllFeatures, iface.DriverFeatures())
	assert.Len(t, iface.SessionID(), 36)
	assert.False(t, iface.Closed())
}

func TestCreateConnectionFailed(t *testing.T) {
	var tests = []struct {
		name string
		d    *backend_sim.Driver
		cfg  func(*config.Config)
	}{
		{"unavailable", backend_sim.New(backend_sim.Unavailable()), nil},
		{"driver too old", backend_sim.New(), func(c *config.Config) { c.MinDriverVersion = ">= 2.0" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			lib := NewLibrary(cfg, WithBackend("sim", tt.d))
			require.NoError(t, lib.Initialize())
			defer lib.Finalize()

			_, err := lib.Create()
			require.Error(t, err)
			assert.Equal(t, status.ConnectionFailed, status.Of(err))
		})
	}
}

func TestFeaturesAreStable(t *testing.T) {
	features := protocol.FeatureMemoryRead | protocol.DriverFeature(1)<<50
	_, iface := newSession(t, backend_sim.New(backend_sim.WithFeatures(features)))

	first := iface.DriverFeatures()
	second := iface.DriverFeatures()
	assert.Equal(t, first, second)
	assert.Equal(t, features, first, "unknown bits are carried")
	assert.True(t, first.Has(protocol.FeatureMemoryRead))
}

func TestClosedHandle(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(1, "a")
	_, iface := newSession(t, d)

	require.NoError(t, iface.Close())
	assert.True(t, iface.Closed())
	calls := d.TotalCalls()

	buf := []byte{1, 2, 3, 4}
	errs := []error{
		iface.Close(),
		iface.Read(1, nil, 0x1000, buf),
		iface.Write(1, nil, 0x1000, buf),
		iface.ProcessList(func(*protocol.ProcessInfo) bool { return true }),
		iface.ProcessModuleList(1, nil, func(*protocol.ProcessModuleInfo) bool { return true }),
	}
	_, err := iface.ResolveDirectoryTable(1, nil)
	errs = append(errs, err)

	for _, err := range errs {
		assert.Equal(t, status.InvalidHandle, status.Of(err))
	}
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
	assert.Equal(t, calls, d.TotalCalls())
}

func TestIndependentHandles(t *testing.T) {
	d := backend_sim.New()
	lib, first := newSession(t, d)

	second, err := lib.Create()
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.NotEqual(t, first.SessionID(), second.SessionID())
	assert.False(t, first.Closed())
}
