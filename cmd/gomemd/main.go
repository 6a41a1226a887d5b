package main

import (
	"os"

	"gomemd/cmd/gomemd/app"
)

func main() {
	if err := app.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
