package main

import (
	"fmt"

	"neogvm/internal/pkg/version"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("neogvm %s\n", version.GetFullVersion())
		fmt.Printf("API Version: %s\n", version.APIVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
