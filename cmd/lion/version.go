package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set via -ldflags "-X main.version=..." at build time.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of Lion",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("lion version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
