package app

import (
	"gomemd/config"
	"gomemd/driver"

	// backends register themselves with the backend registry
	_ "gomemd/backend_linux"
	_ "gomemd/backend_sim"
	_ "gomemd/backend_windows"

	"github.com/spf13/cobra"
)

// RootCmd is the entrance to the gomemd CLI
var RootCmd = &cobra.Command{
	Use:   "gomemd",
	Short: "Inspect processes and memory through a gomemd driver",
	Long: `
	gomemd talks to a memory introspection driver through its command interface.
	It lists processes and their loaded modules and reads or writes the virtual
	memory of a target process, optionally under an explicit directory table base.
	`,
	SilenceUsage: true,
}

var cfg = config.New()

func init() {
	cfg.MustViperize(RootCmd)

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(infoCmd)
	RootCmd.AddCommand(psCmd)
	RootCmd.AddCommand(modulesCmd)
	RootCmd.AddCommand(readCmd)
	RootCmd.AddCommand(writeCmd)
	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(pathsCmd)
	RootCmd.AddCommand(dumpCmd)
	RootCmd.AddCommand(selftestCmd)
}

// session is an initialized library with one open interface.
type session struct {
	lib   *driver.Library
	iface *driver.Interface
}

func openSession() (*session, error) {
	if err := cfg.Init(); err != nil {
		return nil, err
	}

	lib := driver.NewLibrary(*cfg)
	if err := lib.Initialize(); err != nil {
		return nil, err
	}

	iface, err := lib.Create()
	if err != nil {
		_ = lib.Finalize()
		return nil, err
	}
	return &session{lib: lib, iface: iface}, nil
}

func (s *session) Close() {
	_ = s.iface.Close()
	_ = s.lib.Finalize()
}
