package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/banksync/internal/bank"
	"github.com/cleared-dev/banksync/internal/buildinfo"
	"github.com/cleared-dev/banksync/internal/config"
	"github.com/cleared-dev/banksync/internal/runner"
)

// env holds the collaborators commands reach outside the process through.
type env struct {
	registry   *bank.Registry
	openLedger runner.OpenLedger
	getenv     config.Getenv
}

func defaultEnv() env {
	return env{
		registry:   DefaultRegistry(),
		openLedger: runner.OpenActual,
		getenv:     os.Getenv,
	}
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultEnv())
}

func newRootCommand(e env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "banksync",
		Short:   "Sync recent bank transactions into an Actual budget",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", config.FileName, "path to the configuration file")

	rootCmd.AddCommand(newSyncCommand(e))
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newBanksCommand(e))
	rootCmd.AddCommand(newReportCommand(e))

	return rootCmd
}
