package app

import (
	"fmt"
	"os"
	"runtime"

	"gomemd/driver"
	"gomemd/protocol"
	"gomemd/version"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run:   versionFn,
}

func versionFn(cmd *cobra.Command, args []string) {
	build := version.Build
	if build == "" {
		build = "dev"
	}
	_, _ = fmt.Fprintln(
		os.Stdout,
		"\n",
		"Version:", driver.Version(), "\n",
		"Protocol:", protocol.ProtocolVersion, "\n",
		"Build:", build, "\n",
		"Go compiler:", runtime.Version(),
	)
}
