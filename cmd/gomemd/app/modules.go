package app

import (
	"fmt"
	"os"

	"gomemd/protocol"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules <pid>",
	Short: "List the modules loaded by a process",
	Args:  cobra.ExactArgs(1),
	RunE:  modules,
}

func init() {
	addDTBFlag(modulesCmd)
}

func modules(cmd *cobra.Command, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	dtt, err := directoryTable(cmd)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Base", "End", "Size"})
	t.SetStyle(table.StyleLight)

	err = s.iface.ProcessModuleList(pid, dtt, func(info *protocol.ProcessModuleInfo) bool {
		t.AppendRow(table.Row{
			info.Name(),
			fmt.Sprintf("0x%X", info.BaseAddress),
			fmt.Sprintf("0x%X", info.BaseAddress+info.ModuleSize),
			humanize.IBytes(info.ModuleSize),
		})
		return true
	})
	if err != nil {
		return err
	}
	t.Render()

	return nil
}
