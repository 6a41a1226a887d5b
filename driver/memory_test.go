package driver

import (
	"bytes"
	"sync"
	"testing"

	"gomemd/backend_sim"
	"gomemd/protocol"
	"gomemd/status"
	"gomemd/translation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(100, "game.exe")
	require.NoError(t, d.Map(100, 0x10000, 0x2000))
	_, iface := newSession(t, d)

	want := []byte("hello, driver")
	require.NoError(t, iface.Write(100, nil, 0x10ff8, want))

	got := make([]byte, len(want))
	require.NoError(t, iface.Read(100, nil, 0x10ff8, got))
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(1), iface.TotalReadCalls())
}

func TestReadWriteUnsupported(t *testing.T) {
	d := backend_sim.New(backend_sim.WithFeatures(protocol.FeatureProcessList))
	d.Spawn(100, "game.exe")
	_, iface := newSession(t, d)

	buf := []byte{1, 2, 3}
	err := iface.Read(100, nil, 0x1000, buf)
	assert.Equal(t, status.Unsupported, status.Of(err))
	assert.Equal(t, []byte{1, 2, 3}, buf, "a refused read leaves the buffer alone")

	err = iface.Write(100, nil, 0x1000, []byte{1})
	assert.Equal(t, status.Unsupported, status.Of(err))

	// an empty transfer is still refused when the feature is missing
	err = iface.Read(100, nil, 0x1000, nil)
	assert.Equal(t, status.Unsupported, status.Of(err))

	assert.Equal(t, 0, d.Calls(protocol.CommandMemoryRead))
	assert.Equal(t, 0, d.Calls(protocol.CommandMemoryWrite))
	assert.Equal(t, uint64(0), iface.TotalReadCalls())
}

func TestZeroLengthTransfer(t *testing.T) {
	d := backend_sim.New()
	_, iface := newSession(t, d)

	// no process 55 and nothing mapped: an empty transfer never reaches the driver
	assert.NoError(t, iface.Read(55, nil, 0xdead0000, nil))
	assert.NoError(t, iface.Write(55, nil, 0xdead0000, []byte{}))
	assert.Equal(t, 0, d.Calls(protocol.CommandMemoryRead))
	assert.Equal(t, 0, d.Calls(protocol.CommandMemoryWrite))
}

func TestReadFailures(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(100, "game.exe")
	require.NoError(t, d.Map(100, 0x10000, 0x1000))
	require.NoError(t, d.Map(100, 0x20000, 0x1000))
	require.NoError(t, d.PageOut(100, 0x20000))
	_, iface := newSession(t, d)

	var tests = []struct {
		name    string
		pid     protocol.ProcessID
		address uint64
		want    status.Status
	}{
		{"unknown process", 999, 0x10000, status.InvalidProcess},
		{"unmapped", 100, 0x50000, status.TranslationFailed},
		{"paged out", 100, 0x20000, status.TranslationFailed},
		{"short transfer", 100, 0x10ffc, status.PartialTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.Repeat([]byte{0xFF}, 8)
			err := iface.Read(tt.pid, nil, tt.address, buf)
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Of(err))
			assert.Equal(t, make([]byte, 8), buf, "failed reads leave no fragment in the buffer")
		})
	}
}

func TestWriteFailures(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(100, "game.exe")
	require.NoError(t, d.Map(100, 0x10000, 0x1000))
	_, iface := newSession(t, d)

	err := iface.Write(999, nil, 0x10000, []byte{1})
	assert.Equal(t, status.InvalidProcess, status.Of(err))

	err = iface.Write(100, nil, 0x30000, []byte{1})
	assert.Equal(t, status.TranslationFailed, status.Of(err))

	err = iface.Write(100, nil, 0x10ffe, []byte{1, 2, 3, 4})
	assert.Equal(t, status.PartialTransfer, status.Of(err))
}

func TestDefaultTableFollowsReusedProcessID(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(7, "first")
	require.NoError(t, d.Poke(7, 0x1000, []byte{1}))
	_, iface := newSession(t, d)

	buf := make([]byte, 1)
	require.NoError(t, iface.Read(7, nil, 0x1000, buf))
	assert.Equal(t, byte(1), buf[0])
	firstRoot, err := iface.ResolveDirectoryTable(7, nil)
	require.NoError(t, err)

	d.Exit(7)
	newRoot := d.Spawn(7, "second")
	require.NoError(t, d.Poke(7, 0x1000, []byte{2}))

	require.NoError(t, iface.Read(7, nil, 0x1000, buf))
	assert.Equal(t, byte(2), buf[0])

	secondRoot, err := iface.ResolveDirectoryTable(7, nil)
	require.NoError(t, err)
	assert.NotEqual(t, firstRoot, secondRoot)
	assert.Equal(t, newRoot, secondRoot)

	// the old space is still reachable under its explicit root
	old := translation.Explicit(firstRoot)
	require.NoError(t, iface.Read(7, &old, 0x1000, buf))
	assert.Equal(t, byte(1), buf[0])
}

func TestExplicitTableRequiresFeature(t *testing.T) {
	d := backend_sim.New(backend_sim.WithFeatures(protocol.FeatureMemoryRead | protocol.FeatureMemoryWrite | protocol.FeatureProcessModules))
	d.Spawn(1, "a")
	_, iface := newSession(t, d)

	dtt := translation.Explicit(0x1AD000)
	buf := []byte{9, 9, 9, 9}

	assert.Equal(t, status.Unsupported, status.Of(iface.Read(1, &dtt, 0x1000, buf)))
	assert.Equal(t, []byte{9, 9, 9, 9}, buf)
	assert.Equal(t, status.Unsupported, status.Of(iface.Write(1, &dtt, 0x1000, buf)))
	assert.Equal(t, status.Unsupported, status.Of(iface.ProcessModuleList(1, &dtt, func(*protocol.ProcessModuleInfo) bool { return true })))
	_, err := iface.ResolveDirectoryTable(1, &dtt)
	assert.Equal(t, status.Unsupported, status.Of(err))

	assert.Equal(t, 0, d.Calls(protocol.CommandMemoryRead))
	assert.Equal(t, 0, d.Calls(protocol.CommandMemoryWrite))
	assert.Equal(t, 0, d.Calls(protocol.CommandProcessModules))
}

func TestExplicitTableReadsForeignSpace(t *testing.T) {
	d := backend_sim.New()
	rootA := d.Spawn(1, "a")
	d.Spawn(2, "b")
	require.NoError(t, d.Poke(1, 0x4000, []byte{0xAA}))
	require.NoError(t, d.Poke(2, 0x4000, []byte{0xBB}))
	_, iface := newSession(t, d)

	dtt := translation.Explicit(rootA)
	buf := make([]byte, 1)
	require.NoError(t, iface.Read(2, &dtt, 0x4000, buf))
	assert.Equal(t, byte(0xAA), buf[0])

	root, err := iface.ResolveDirectoryTable(2, &dtt)
	require.NoError(t, err)
	assert.Equal(t, rootA, root)

	_, err = iface.ResolveDirectoryTable(3, nil)
	assert.Equal(t, status.InvalidProcess, status.Of(err))
}

func TestConcurrentReads(t *testing.T) {
	d := backend_sim.New()
	d.Spawn(1, "a")
	require.NoError(t, d.Poke(1, 0x1000, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	_, iface := newSession(t, d)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				value, err := ReadT[uint64](iface, 1, nil, 0x1000)
				if err != nil {
					errs <- err
					return
				}
				if value != 0x0807060504030201 {
					errs <- assert.AnError
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(16*50), iface.TotalReadCalls())
}
