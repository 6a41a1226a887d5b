package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureHas(t *testing.T) {
	features := FeatureProcessList | FeatureMemoryRead

	assert.True(t, features.Has(FeatureMemoryRead))
	assert.False(t, features.Has(FeatureMemoryWrite))
	assert.False(t, features.Has(0))
	assert.True(t, features.Has(FeatureProcessList|FeatureMemoryRead))
}

func TestFeatureDTTExplicitNeedsAllBits(t *testing.T) {
	// 0x1000 alone is only part of the DTT_EXPLICIT mask
	assert.False(t, DriverFeature(0x1000).Has(FeatureDTTExplicit))
	assert.True(t, DriverFeature(0x2001000).Has(FeatureDTTExplicit))
}

func TestFeatureUnknownBits(t *testing.T) {
	features := FeatureMemoryRead | DriverFeature(1)<<40

	assert.True(t, features.Has(FeatureMemoryRead))
	assert.Equal(t, FeatureMemoryRead, features.Known())
	assert.Equal(t, []string{"MEMORY_READ"}, features.Names())
	assert.Equal(t, "MEMORY_READ|0x10000000000", features.String())
	assert.Equal(t, "none", DriverFeature(0).String())
}

func TestParseFeature(t *testing.T) {
	for _, feature := range KnownFeatures() {
		parsed, ok := ParseFeature(strings.ToLower(feature.String()))
		require.True(t, ok, feature.String())
		assert.Equal(t, feature, parsed)
	}

	_, ok := ParseFeature("TELEPORT")
	assert.False(t, ok)
}

func TestProcessInfoName(t *testing.T) {
	var info ProcessInfo
	info.SetImageBaseName("a-very-long-process-name")
	assert.Equal(t, "a-very-long-pro", info.Name())

	info.SetImageBaseName("init")
	assert.Equal(t, "init", info.Name())
}

func TestProcessModuleInfo(t *testing.T) {
	var module ProcessModuleInfo
	module.SetBaseDllName("libc.so.6")
	module.BaseAddress = 0x7f0000000000
	module.ModuleSize = 0x1000

	assert.Equal(t, "libc.so.6", module.Name())
	assert.True(t, module.Contains(0x7f0000000000))
	assert.True(t, module.Contains(0x7f0000000fff))
	assert.False(t, module.Contains(0x7f0000001000))
	assert.False(t, module.Contains(0x7effffffffff))
}

func TestVersionInfo(t *testing.T) {
	info := NewVersionInfo("gomemd", 1, 2, 3)
	assert.Equal(t, "gomemd 1.2.3", info.String())
	assert.Equal(t, "1.2.3", info.Semver())

	info.SetApplicationName(strings.Repeat("x", 64))
	assert.Len(t, info.Name(), 0x1F)
	assert.Equal(t, "unknown 0.0.0", VersionInfo{}.String())
}

func TestFill(t *testing.T) {
	records := make([]ProcessInfo, 3)
	for i := range records {
		records[i].ProcessID = ProcessID(i + 1)
	}

	cmd := &DriverCommandProcessList{Buffer: make([]ProcessInfo, 2)}
	cmd.FillProcesses(records)
	assert.Equal(t, 3, cmd.ProcessCount)
	assert.Equal(t, ProcessID(2), cmd.Buffer[1].ProcessID)

	read := &DriverCommandMemoryRead{Buffer: make([]byte, 8)}
	read.Complete(8)
	assert.Equal(t, MemoryAccessSuccess, read.Result.Status)
	read.Complete(3)
	assert.Equal(t, MemoryAccessResult{Status: MemoryAccessPartialSuccess, BytesCopied: 3}, read.Result)
}

func TestDirectoryTableTypeString(t *testing.T) {
	assert.Equal(t, "default", DirectoryTableType{}.String())
	assert.Equal(t, "explicit(0x1AD000)", DirectoryTableType{Kind: DirectoryTableExplicit, DirectoryTableBase: 0x1AD000}.String())
}
