package protocol

import (
	"fmt"
	"strings"
)

// DriverFeature is the capability mask advertised by a driver during initialization.
// The set of bits is open: bits unknown to this client are carried along and ignored.
type DriverFeature uint64

const (
	FeatureProcessList             DriverFeature = 0x00_00_00_01
	FeatureProcessModules          DriverFeature = 0x00_00_00_02
	FeatureProcessProtectionKernel DriverFeature = 0x00_00_00_04
	FeatureProcessProtectionZenith DriverFeature = 0x00_00_00_08

	FeatureMemoryRead  DriverFeature = 0x00_00_01_00
	FeatureMemoryWrite DriverFeature = 0x00_00_02_00

	FeatureInputKeyboard DriverFeature = 0x00_01_00_00
	FeatureInputMouse    DriverFeature = 0x00_02_00_00

	FeatureMetrics        DriverFeature = 0x01_00_00_00
	FeatureDTTExplicit    DriverFeature = 0x02_00_10_00
	FeatureCr3Shenanigans DriverFeature = 0x04_00_00_00
)

var featureNames = []struct {
	feature DriverFeature
	name    string
}{
	{FeatureProcessList, "PROCESS_LIST"},
	{FeatureProcessModules, "PROCESS_MODULES"},
	{FeatureProcessProtectionKernel, "PROCESS_PROTECTION_KERNEL"},
	{FeatureProcessProtectionZenith, "PROCESS_PROTECTION_ZENITH"},
	{FeatureMemoryRead, "MEMORY_READ"},
	{FeatureMemoryWrite, "MEMORY_WRITE"},
	{FeatureInputKeyboard, "INPUT_KEYBOARD"},
	{FeatureInputMouse, "INPUT_MOUSE"},
	{FeatureMetrics, "METRICS"},
	{FeatureDTTExplicit, "DTT_EXPLICIT"},
	{FeatureCr3Shenanigans, "CR3_SHENANIGANS"},
}

// Has reports whether every bit of feature is set.
func (f DriverFeature) Has(feature DriverFeature) bool {
	return feature != 0 && f&feature == feature
}

// Known returns the mask restricted to the bits this client understands.
func (f DriverFeature) Known() DriverFeature {
	var known DriverFeature
	for _, entry := range featureNames {
		known |= entry.feature
	}
	return f & known
}

// Names lists the names of the known features present in the mask.
func (f DriverFeature) Names() []string {
	var names []string
	for _, entry := range featureNames {
		if f.Has(entry.feature) {
			names = append(names, entry.name)
		}
	}
	return names
}

func (f DriverFeature) String() string {
	names := f.Names()
	if unknown := f &^ f.Known(); unknown != 0 {
		names = append(names, fmt.Sprintf("0x%X", uint64(unknown)))
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseFeature resolves a feature name as printed by String, e.g. "MEMORY_READ".
func ParseFeature(name string) (DriverFeature, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, entry := range featureNames {
		if entry.name == name {
			return entry.feature, true
		}
	}
	return 0, false
}

// KnownFeatures lists every feature bit this client has a name for.
func KnownFeatures() []DriverFeature {
	features := make([]DriverFeature, len(featureNames))
	for i, entry := range featureNames {
		features[i] = entry.feature
	}
	return features
}
