package app

import (
	"fmt"
	"strings"

	"gomemd/protocol"
	"gomemd/search"
	"gomemd/snapshot"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <pid> <directory>",
	Short: "Save the memory of the modules of a process to a snapshot directory",
	Long: `
	dump reads every loaded module of a process and writes the readable pages to
	a directory. scan and paths read a snapshot with --snapshot.
	`,
	Args: cobra.ExactArgs(2),
	RunE: dump,
}

func init() {
	addDTBFlag(dumpCmd)
	dumpCmd.Flags().StringSlice("module", nil, "Only save these modules (repeatable)")
}

func dump(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	dtt, err := directoryTable(cmd)
	if err != nil {
		return err
	}
	only, _ := cmd.Flags().GetStringSlice("module")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	name := ""
	err = s.iface.ProcessList(func(info *protocol.ProcessInfo) bool {
		if info.ProcessID != pid {
			return true
		}
		name = info.Name()
		return false
	})
	if err != nil {
		return err
	}

	modules, err := loadedModules(s.iface, pid, dtt)
	if err != nil {
		return err
	}
	if len(only) > 0 {
		modules = selectModules(modules, only)
		if len(modules) == 0 {
			return fmt.Errorf("none of %s loaded in process %d", strings.Join(only, ", "), pid)
		}
	}

	snap, err := snapshot.Save(args[1], s.iface, search.Target{ProcessID: pid, DirectoryTable: dtt}, name, modules)
	if err != nil {
		return err
	}

	var total uint64
	for _, region := range snap.Regions {
		total += region.Size
	}
	fmt.Printf("Saved %s of %d modules in %d regions to %s\n", humanize.IBytes(total), len(snap.Modules), len(snap.Regions), args[1])
	return nil
}

func selectModules(modules []protocol.ProcessModuleInfo, names []string) []protocol.ProcessModuleInfo {
	var selected []protocol.ProcessModuleInfo
	for i := range modules {
		for _, name := range names {
			if strings.EqualFold(modules[i].Name(), name) {
				selected = append(selected, modules[i])
				break
			}
		}
	}
	return selected
}
