package app

import (
	"fmt"
	"os"
	"strings"

	"gomemd/protocol"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List processes known to the driver",
	Args:  cobra.NoArgs,
	RunE:  ps,
}

func init() {
	psCmd.Flags().String("name", "", "Only show processes whose image name contains this string")
	psCmd.Flags().Int("limit", 0, "Stop after this many processes (0 for no limit)")
}

func ps(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"PID", "Name", "Directory Table Base"})
	t.SetStyle(table.StyleLight)

	shown := 0
	err = s.iface.ProcessList(func(info *protocol.ProcessInfo) bool {
		if name != "" && !strings.Contains(strings.ToLower(info.Name()), strings.ToLower(name)) {
			return true
		}
		t.AppendRow(table.Row{info.ProcessID, info.Name(), fmt.Sprintf("0x%X", info.DirectoryTableBase)})
		shown++
		return limit <= 0 || shown < limit
	})
	if err != nil {
		return err
	}
	t.Render()

	return nil
}
