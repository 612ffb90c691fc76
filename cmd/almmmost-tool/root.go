package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vax11/almmmost/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "almmmost-tool",
	Short: "Offline inspection tool for Almmmost disk images",
	Long:  `almmmost-tool reads CP/M disk images used by the almmmost-server without requiring a running server. It does not modify the images.`,
}

func init() {
	rootCmd.Version = version.Get().String()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
