package app

import (
	"fmt"
	"strings"

	"gomemd/protocol"
	"gomemd/search"
	"gomemd/snapshot"
	"gomemd/status"

	"github.com/spf13/cobra"
)

const snapshotFlag = "snapshot"

func addSnapshotFlag(cmd *cobra.Command) {
	cmd.Flags().String(snapshotFlag, "", "Read from a snapshot directory written by dump instead of the driver")
}

// source is the memory scan and paths read from: a live session or a snapshot.
type source struct {
	search.Reader
	modules func(pid protocol.ProcessID, dtt *protocol.DirectoryTableType) ([]protocol.ProcessModuleInfo, error)
	close   func()
}

func openSource(cmd *cobra.Command) (*source, error) {
	dir, _ := cmd.Flags().GetString(snapshotFlag)
	if dir != "" {
		snap, err := snapshot.Load(dir)
		if err != nil {
			return nil, err
		}
		return &source{
			Reader: snap,
			modules: func(pid protocol.ProcessID, _ *protocol.DirectoryTableType) ([]protocol.ProcessModuleInfo, error) {
				if pid != snap.ProcessID {
					return nil, status.Newf("snapshot", status.InvalidProcess, "snapshot holds process %d", snap.ProcessID)
				}
				return snap.ModuleList(), nil
			},
			close: func() {},
		}, nil
	}

	s, err := openSession()
	if err != nil {
		return nil, err
	}
	return &source{
		Reader: s.iface,
		modules: func(pid protocol.ProcessID, dtt *protocol.DirectoryTableType) ([]protocol.ProcessModuleInfo, error) {
			return loadedModules(s.iface, pid, dtt)
		},
		close: s.Close,
	}, nil
}

func (s *source) Close() {
	s.close()
}

// module returns the first module of pid whose name matches, case insensitive.
func (s *source) module(pid protocol.ProcessID, dtt *protocol.DirectoryTableType, name string) (protocol.ProcessModuleInfo, error) {
	modules, err := s.modules(pid, dtt)
	if err != nil {
		return protocol.ProcessModuleInfo{}, err
	}
	for i := range modules {
		if strings.EqualFold(modules[i].Name(), name) {
			return modules[i], nil
		}
	}
	return protocol.ProcessModuleInfo{}, fmt.Errorf("module %q not loaded in process %d", name, pid)
}
