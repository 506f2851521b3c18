package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/envagent/envboot/cli/flags"
	"github.com/envagent/envboot/cli/log"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var envbootCmd = &cobra.Command{
	Use:   "envboot",
	Short: "Envboot provisions reserved cloud hardware for development environments.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Init()
	},
}

func init() {
	flags.Setup(envbootCmd.PersistentFlags())

	envbootCmd.AddCommand(capacityCmd)
	envbootCmd.AddCommand(reserveCmd)
	envbootCmd.AddCommand(statusCmd)
	envbootCmd.AddCommand(deleteCmd)
	envbootCmd.AddCommand(deployCmd)
	envbootCmd.AddCommand(launchCmd)
	envbootCmd.AddCommand(provisionCmd)
	envbootCmd.AddCommand(leasesCmd)
	envbootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envbootCmd.SetOut(os.Stdout)
	envbootCmd.SetErr(os.Stderr)

	err := envbootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(1)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version number of envboot",

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("envboot version %s (%s)\n", version, commit)
		return nil
	},
}
