package cmd

import (
	"fmt"
	"os"

	"github.com/nutrilog/sessiond/cmd/server"
	"github.com/spf13/cobra"
)

var sessiondCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "sessiond is the session-integrity service of the NutriLog backend",
	Long: `sessiond issues, validates and revokes bearer credentials, runs the
two-step login flow (primary credential plus optional second factor),
and keeps the derived identity read cache coherent with concurrent
identity writes.`,
}

func Execute() {
	if err := sessiondCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	sessiondCmd.AddCommand(server.ServerCmd)
}
