package app

import (
	"os"

	"gomemd/protocol"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the backend, driver version and driver features",
	RunE:  info,
}

func info(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	features := s.iface.DriverFeatures()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Value"})
	t.SetStyle(table.StyleLight)

	t.AppendRow(table.Row{"Library version", s.lib.Version()})
	t.AppendRow(table.Row{"Backend", s.lib.BackendName()})
	t.AppendRow(table.Row{"Session", s.iface.SessionID()})
	t.AppendRow(table.Row{"Driver", s.iface.DriverVersion().String()})
	t.AppendRow(table.Row{"Features", features.String()})
	for _, feature := range protocol.KnownFeatures() {
		t.AppendRow(table.Row{feature.String(), features.Has(feature)})
	}
	t.Render()

	return nil
}
