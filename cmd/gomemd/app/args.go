package app

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"gomemd/driver"
	"gomemd/protocol"
	"gomemd/translation"

	"github.com/spf13/cobra"
)

const dtbFlag = "dtb"

func addDTBFlag(cmd *cobra.Command) {
	cmd.Flags().String(dtbFlag, "", "Explicit directory table base (e.g. 0x1ad000). Empty uses the process default")
}

// directoryTable returns the selector requested with --dtb, or nil for the default.
func directoryTable(cmd *cobra.Command) (*protocol.DirectoryTableType, error) {
	value, err := cmd.Flags().GetString(dtbFlag)
	if err != nil || value == "" {
		return nil, err
	}

	base, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", dtbFlag, value, err)
	}
	dtt := translation.Explicit(base)
	return &dtt, nil
}

func parsePID(s string) (protocol.ProcessID, error) {
	pid, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid process id %q", s)
	}
	return protocol.ProcessID(pid), nil
}

// parseUint accepts decimal and 0x prefixed hex values.
func parseUint(what, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return v, nil
}

// parseHexBytes accepts "deadbeef", "de ad be ef" and "de,ad,be,ef".
func parseHexBytes(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ",", "", "0x", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// loadedModules copies the module list of pid.
func loadedModules(iface *driver.Interface, pid protocol.ProcessID, dtt *protocol.DirectoryTableType) ([]protocol.ProcessModuleInfo, error) {
	var modules []protocol.ProcessModuleInfo
	err := iface.ProcessModuleList(pid, dtt, func(info *protocol.ProcessModuleInfo) bool {
		modules = append(modules, *info)
		return true
	})
	return modules, err
}
