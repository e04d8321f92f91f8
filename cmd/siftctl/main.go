package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag string
	dbFlag  string
	rootCmd = &cobra.Command{
		Use:   "siftctl",
		Short: "CLI client for the feedsift relay and its local state",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://127.0.0.1:8753", "Relay base URL")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "feedsift.db", "Path to the local state database")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
