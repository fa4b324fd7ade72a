package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlied266/work-manager-sub001/internal/cli"
)

var rootCmd = &cobra.Command{Use: "workman"}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
