package version

import "fmt"

// Version represents a gomemd release.
type Version struct {
	Major    uint32
	Minor    uint32
	Patch    uint32
	Metadata string
}

var (
	// Library is the version of this client library.
	Library = Version{Major: 0, Minor: 4, Patch: 1}

	// Build is set at link time with -ldflags "-X gomemd/version.Build=...".
	Build = ""
)

// ApplicationName is reported to drivers during session negotiation.
const ApplicationName = "gomemd"

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		s += "-" + v.Metadata
	}
	if Build != "" {
		s += "+" + Build
	}
	return s
}
