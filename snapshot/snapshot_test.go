package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"gomemd/backend_sim"
	"gomemd/config"
	"gomemd/driver"
	"gomemd/protocol"
	"gomemd/search"
	"gomemd/status"
	"gomemd/translation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInterface(t *testing.T, d *backend_sim.Driver) *driver.Interface {
	t.Helper()

	lib := driver.NewLibrary(config.Default(), driver.WithBackend(backend_sim.Name, d))
	require.NoError(t, lib.Initialize())
	iface, err := lib.Create()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = iface.Close()
		_ = lib.Finalize()
	})
	return iface
}

func modulesOf(t *testing.T, iface *driver.Interface, pid protocol.ProcessID) []protocol.ProcessModuleInfo {
	t.Helper()

	var modules []protocol.ProcessModuleInfo
	require.NoError(t, iface.ProcessModuleList(pid, nil, func(info *protocol.ProcessModuleInfo) bool {
		modules = append(modules, *info)
		return true
	}))
	return modules
}

func save(t *testing.T) (string, *Snapshot) {
	t.Helper()

	d := backend_sim.New()
	d.Spawn(7, "game.exe")
	require.NoError(t, d.AddModule(7, "game.exe", 0x400000, 0x3000))
	require.NoError(t, d.AddModule(7, "lib.dll", 0x7000000, 0x1000))
	require.NoError(t, d.Poke(7, 0x400010, []byte("hello")))
	require.NoError(t, d.Poke(7, 0x402ff0, []byte{0xde, 0xad, 0xbe, 0xef}))
	require.NoError(t, d.PageOut(7, 0x401000))

	iface := newInterface(t, d)
	dir := filepath.Join(t.TempDir(), "dump")

	snap, err := Save(dir, iface, search.Target{ProcessID: 7}, "game.exe", modulesOf(t, iface, 7))
	require.NoError(t, err)
	return dir, snap
}

func TestSaveSkipsUnreadablePages(t *testing.T) {
	dir, snap := save(t)

	assert.Equal(t, []Region{
		{Address: 0x400000, Size: 0x1000},
		{Address: 0x402000, Size: 0x1000},
		{Address: 0x7000000, Size: 0x1000},
	}, snap.Regions)
	assert.Equal(t, []Module{
		{Name: "game.exe", Base: 0x400000, Size: 0x3000},
		{Name: "lib.dll", Base: 0x7000000, Size: 0x1000},
	}, snap.Modules)

	_, err := os.Stat(filepath.Join(dir, "blob_0x402000_4096.bin"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, metadataFile))
	assert.NoError(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	dir, saved := save(t)

	snap, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, protocol.ProcessID(7), snap.ProcessID)
	assert.Equal(t, "game.exe", snap.Name)
	assert.True(t, saved.Captured.Equal(snap.Captured))
	assert.Equal(t, saved.Regions, snap.Regions)

	modules := snap.ModuleList()
	require.Len(t, modules, 2)
	assert.Equal(t, "lib.dll", modules[1].Name())
	assert.Equal(t, uint64(0x7000000), modules[1].BaseAddress)

	buf := make([]byte, 5)
	require.NoError(t, snap.Read(7, nil, 0x400010, buf))
	assert.Equal(t, "hello", string(buf))
}

func TestReadStatuses(t *testing.T) {
	dir, _ := save(t)
	snap, err := Load(dir)
	require.NoError(t, err)

	buf := []byte{1, 2, 3, 4}
	err = snap.Read(7, nil, 0x401000, buf)
	assert.Equal(t, status.TranslationFailed, status.Of(err))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)

	err = snap.Read(7, nil, 0x100, buf)
	assert.Equal(t, status.TranslationFailed, status.Of(err))

	buf = make([]byte, 0x20)
	err = snap.Read(7, nil, 0x400ff0, buf)
	assert.Equal(t, status.PartialTransfer, status.Of(err))
	assert.Equal(t, make([]byte, 0x20), buf)

	err = snap.Read(8, nil, 0x400010, buf)
	assert.Equal(t, status.InvalidProcess, status.Of(err))

	explicit := translation.Explicit(0x1000)
	buf = []byte{5, 6}
	err = snap.Read(7, &explicit, 0x400010, buf)
	assert.Equal(t, status.Unsupported, status.Of(err))
	assert.Equal(t, []byte{5, 6}, buf)

	assert.NoError(t, snap.Read(7, nil, 0x401000, nil))
}

func TestScanSnapshot(t *testing.T) {
	dir, _ := save(t)
	snap, err := Load(dir)
	require.NoError(t, err)

	aob, err := search.ParseAOB("de ad ?? ef")
	require.NoError(t, err)

	matches, err := search.Scan(snap, search.Target{ProcessID: 7}, 0x400000, 0x3000, aob, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x402ff0}, matches)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)

	dir, _ := save(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "blob_0x7000000_4096.bin")))
	_, err = Load(dir)
	assert.Error(t, err)
}

func TestSaveMergesAdjacentModules(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(7, "game.exe")
	require.NoError(t, d.AddModule(7, "game.exe", 0x400000, 0x3000))
	require.NoError(t, d.AddModule(7, "overlay.dll", 0x403000, 0x1000))
	// listed out of order and partly overlapping the overlay
	require.NoError(t, d.AddModule(7, "stub.dll", 0x402000, 0x1800))
	require.NoError(t, d.Poke(7, 0x402ff8, []byte("across the seam!")))

	iface := newInterface(t, d)
	dir := filepath.Join(t.TempDir(), "dump")
	modules := modulesOf(t, iface, 7)

	snap, err := Save(dir, iface, search.Target{ProcessID: 7}, "game.exe", modules)
	require.NoError(t, err)
	assert.Equal(t, []Region{{Address: 0x400000, Size: 0x4000}}, snap.Regions)
	assert.Len(t, snap.Modules, len(modules))

	loaded, err := Load(dir)
	require.NoError(t, err)
	buf := make([]byte, 16)
	require.NoError(t, loaded.Read(7, nil, 0x402ff8, buf))
	assert.Equal(t, "across the seam!", string(buf))
}
