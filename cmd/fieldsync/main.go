// Command fieldsync runs the field-expense local store and background
// sync engine, either as a standalone daemon (serve) or as a one-shot CLI
// driving the same appapi.App surface a mobile client would embed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first field-expense local store and sync engine",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(expenseCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
}
