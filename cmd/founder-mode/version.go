package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justinDeu/Founder-Mode-sub000/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("founder-mode version %s\n", version.Detailed())
	},
}
